package httpdispatcher

import (
	"net/http"

	"nino/internal/logging"
)

// StartServer builds an *http.Server around d and starts it in a
// background goroutine, mirroring the teacher's StartHTTPServer. Tracing is
// done by ServeHTTP itself rather than a wrapping middleware, since it
// already owns the one statusRecorder/requestID/access-log pass over every
// request.
func StartServer(addr string, d *Dispatcher) *http.Server {
	server := &http.Server{
		Addr:    addr,
		Handler: d,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}
