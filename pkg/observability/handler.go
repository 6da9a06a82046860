package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the HTTP handler exposing the registered metrics in
// Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Mount registers the metrics handler on mux at path ("/metrics" when
// empty).
func Mount(mux *http.ServeMux, path string) {
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, Handler())
}
