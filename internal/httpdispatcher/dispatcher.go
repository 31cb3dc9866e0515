// Package httpdispatcher is C8: the HTTP front door. It normalizes and
// looks up the incoming path against the Requests cache, then either
// serves cached static content directly, redirects, rejects with 404, or
// builds a Servlet task and hands the connection to the isolate pool.
//
// Grounded on the teacher's internal/api/server.go for the
// http.ServeMux + http.Server wiring and its plain-handler-function
// style; the gateway/host-routing and tenant-scope middleware chain has
// no equivalent here since routing is entirely table-driven through
// the Requests cache rather than a compiled mux.
package httpdispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"nino/internal/auth"
	"nino/internal/domain"
	"nino/internal/logging"
	"nino/internal/metrics"
	"nino/internal/observability"
	"nino/internal/pkg/crypto"
	"nino/internal/taskqueue"
)

const (
	defaultDecodeTimeout = 30 * time.Second
	defaultLoginPath     = "/login"
)

// errHTTPFailureStatus marks a span's error cause when a handler wrote a
// 4xx/5xx status without otherwise returning a Go error to wrap.
var errHTTPFailureStatus = errors.New("http request failed")

// SettingsSource is the subset of contentcache.Settings the dispatcher
// needs, narrowed to ease testing with a fake.
type SettingsSource interface {
	Int(key string, def int64) int64
	Str(key, def string) string
}

// RequestSource is the subset of contentcache.Requests the dispatcher
// needs.
type RequestSource interface {
	Lookup(path string) (domain.RequestInfo, bool)
}

// ResponseSource is the subset of contentcache.Responses the dispatcher
// needs.
type ResponseSource interface {
	Content(ctx context.Context, name string) (string, error)
}

// Dispatcher implements http.Handler, wired against the shared caches and
// the isolate pool's task queue.
type Dispatcher struct {
	Settings  SettingsSource
	Requests  RequestSource
	Responses ResponseSource
	Queue     *taskqueue.Queue

	JWTSecret   string
	ProgramName string
}

// statusRecorder captures the status code and byte count a handler wrote,
// so the access log entry and the request span both reflect what actually
// went out rather than what was intended.
type statusRecorder struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytesWritten += int64(n)
	return n, err
}

// ServeHTTP is the one pass every request makes: extract any inbound trace
// context, open the request's server span, run routing/dispatch under a
// decode-timeout context, then close out the access log entry, the
// RequestDuration histogram, and the span together.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := observability.StartServerSpan(ctx, r.Method+" "+r.URL.Path,
		semconv.HTTPMethod(r.Method),
		semconv.HTTPTarget(r.URL.Path),
		attribute.String("http.host", r.Host),
		attribute.String("http.user_agent", r.UserAgent()),
		observability.AttrRequestID.String(requestID),
	)
	defer span.End()

	var script string
	defer func() {
		elapsed := time.Since(start)
		logging.Default().Log(&logging.AccessLogEntry{
			RequestID:  requestID,
			Method:     r.Method,
			Path:       r.URL.Path,
			Script:     script,
			Status:     rec.status,
			DurationMs: elapsed.Milliseconds(),
		})
		metrics.RequestDuration.WithLabelValues(statusClass(rec.status)).Observe(elapsed.Seconds())

		span.SetAttributes(
			semconv.HTTPStatusCode(rec.status),
			attribute.Int64("http.response_size", rec.bytesWritten),
		)
		if rec.status >= 400 {
			observability.SetSpanError(span, fmt.Errorf("http status %d: %w", rec.status, errHTTPFailureStatus))
		} else {
			observability.SetSpanOK(span)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.decodeTimeout())
	defer cancel()
	r = r.WithContext(ctx)

	path := NormalizePath(r.URL.Path)
	info, ok := d.Requests.Lookup(path)
	if !ok {
		http.NotFound(rec, r)
		return
	}
	script = info.ResponseName

	if info.Redirect {
		http.Redirect(rec, r, "/"+info.ResponseName, http.StatusTemporaryRedirect)
		return
	}

	var userID string
	if info.Authorize {
		user, valid := auth.UserFromRequest(r, d.JWTSecret, d.ProgramName)
		if !valid {
			http.Redirect(rec, r, d.loginPath()+"?return="+r.URL.RequestURI(), http.StatusTemporaryRedirect)
			return
		}
		userID = user
	}

	if info.Execute {
		d.dispatchServlet(rec, r, info, userID)
		return
	}

	d.serveStatic(rec, r, info)
}

func (d *Dispatcher) dispatchServlet(w http.ResponseWriter, r *http.Request, info domain.RequestInfo, userID string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	task := domain.Task{
		Kind: domain.TaskServlet,
		Servlet: &domain.ServletTask{
			ScriptName: info.ResponseName,
			Request:    &info,
			Body:       body,
			UserID:     userID,
			Conn: &domain.ServletConn{
				W:    w,
				R:    r,
				Done: make(chan struct{}),
			},
		},
	}

	if err := d.Queue.Enqueue(r.Context(), task); err != nil {
		logging.Op().Error("failed to enqueue servlet task", "script", info.ResponseName, "error", err)
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-task.Servlet.Conn.Done:
	case <-r.Context().Done():
	}
}

func (d *Dispatcher) serveStatic(w http.ResponseWriter, r *http.Request, info domain.RequestInfo) {
	content, err := d.Responses.Content(r.Context(), info.ResponseName)
	if err != nil {
		logging.Op().Error("failed to fetch static response", "response", info.ResponseName, "error", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if info.Mime != "" {
		w.Header().Set("Content-Type", info.Mime)
	}
	etag := `"` + crypto.HashString(content) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	_, _ = w.Write([]byte(content))
}

func (d *Dispatcher) decodeTimeout() time.Duration {
	ms := d.Settings.Int("nino_web_request_timeout_ms", int64(defaultDecodeTimeout/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func (d *Dispatcher) loginPath() string {
	return d.Settings.Str("nino_login_paths", defaultLoginPath)
}

// statusClass buckets an HTTP status into the low-cardinality label
// RequestDuration is keyed by ("2xx", "4xx", ...), so the histogram
// doesn't grow one series per distinct status code.
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
