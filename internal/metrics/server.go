package metrics

import (
	"net/http"

	"nino/internal/logging"
)

// StartServer serves /metrics on addr in the background. It is entirely
// separate from the dispatcher's table-driven routing, since a scrape
// path has no corresponding nino_request row.
func StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("metrics server error", "error", err)
		}
	}()
	return server
}
