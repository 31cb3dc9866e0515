package observability

import (
	"context"
	"errors"
	"testing"
)

// TestStartSpanSafeBeforeInit guards against a nil trace.Tracer: every
// isolate and txsession query opens a span unconditionally, without ever
// calling Init first in a unit test, so globalProvider must already hold a
// usable (noop) tracer at package load time.
func TestStartSpanSafeBeforeInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", AttrScriptName.String("x"))
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	SetSpanOK(span)
	span.End()
}

func TestSetSpanErrorDoesNotPanic(t *testing.T) {
	_, span := StartSpan(context.Background(), "test.span")
	SetSpanError(span, errors.New("boom"))
	span.End()
}

func TestEnabledDefaultsFalse(t *testing.T) {
	if Enabled() {
		t.Fatal("tracing should be disabled until Init is called with Enabled: true")
	}
}
