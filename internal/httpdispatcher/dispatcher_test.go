package httpdispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"nino/internal/domain"
	"nino/internal/metrics"
	"nino/internal/taskqueue"
)

// histogramSampleCount reads the observation count backing a labeled
// histogram series, since testutil.ToFloat64 only handles single-value
// metrics (gauges, counters).
func histogramSampleCount(t *testing.T, status string) uint64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.RequestDuration.WithLabelValues(status).(interface{ Write(*dto.Metric) error }).Write(&m); err != nil {
		t.Fatalf("write histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

type fakeSettings struct {
	ints map[string]int64
	strs map[string]string
}

func (f *fakeSettings) Int(key string, def int64) int64 {
	if v, ok := f.ints[key]; ok {
		return v
	}
	return def
}

func (f *fakeSettings) Str(key, def string) string {
	if v, ok := f.strs[key]; ok {
		return v
	}
	return def
}

type fakeRequests struct {
	routes map[string]domain.RequestInfo
}

func (f *fakeRequests) Lookup(path string) (domain.RequestInfo, bool) {
	info, ok := f.routes[path]
	return info, ok
}

type fakeResponses struct {
	content map[string]string
}

func (f *fakeResponses) Content(_ context.Context, name string) (string, error) {
	return f.content[name], nil
}

func newTestDispatcher(routes map[string]domain.RequestInfo) *Dispatcher {
	return &Dispatcher{
		Settings:    &fakeSettings{ints: map[string]int64{}, strs: map[string]string{}},
		Requests:    &fakeRequests{routes: routes},
		Responses:   &fakeResponses{content: map[string]string{"home": "<h1>hi</h1>"}},
		Queue:       taskqueue.New(4),
		JWTSecret:   "s3cret",
		ProgramName: "nino",
	}
}

func TestDispatcherNoMatchReturns404(t *testing.T) {
	d := newTestDispatcher(nil)
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestDispatcherRedirect(t *testing.T) {
	d := newTestDispatcher(map[string]domain.RequestInfo{
		"old": {Redirect: true, ResponseName: "new"},
	})
	req := httptest.NewRequest(http.MethodGet, "/old", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("got status %d, want 307", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/new" {
		t.Fatalf("got Location %q, want /new", loc)
	}
}

func TestDispatcherAuthorizeRedirectsWithoutCredential(t *testing.T) {
	d := newTestDispatcher(map[string]domain.RequestInfo{
		"secret": {Authorize: true, ResponseName: "home"},
	})
	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("got status %d, want 307", w.Code)
	}
}

func TestDispatcherServesStaticContent(t *testing.T) {
	d := newTestDispatcher(map[string]domain.RequestInfo{
		"home": {ResponseName: "home", Mime: "text/html"},
	})
	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	if w.Body.String() != "<h1>hi</h1>" {
		t.Fatalf("got body %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html" {
		t.Fatalf("got Content-Type %q, want text/html", ct)
	}
}

func TestDispatcherRecordsRequestDuration(t *testing.T) {
	d := newTestDispatcher(map[string]domain.RequestInfo{
		"home": {ResponseName: "home", Mime: "text/html"},
	})

	before := histogramSampleCount(t, "2xx")
	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)
	after := histogramSampleCount(t, "2xx")

	if after != before+1 {
		t.Fatalf("got sample count %d, want %d", after, before+1)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		301: "3xx",
		404: "4xx",
		503: "5xx",
	}
	for status, want := range cases {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestDispatcherStaticContentHonorsIfNoneMatch(t *testing.T) {
	d := newTestDispatcher(map[string]domain.RequestInfo{
		"home": {ResponseName: "home", Mime: "text/html"},
	})

	first := httptest.NewRequest(http.MethodGet, "/home", nil)
	w1 := httptest.NewRecorder()
	d.ServeHTTP(w1, first)
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag header on the first response")
	}

	second := httptest.NewRequest(http.MethodGet, "/home", nil)
	second.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	d.ServeHTTP(w2, second)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want 304", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Fatalf("expected an empty body on a 304, got %q", w2.Body.String())
	}
}
