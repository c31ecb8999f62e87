package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/listmail/internal/ipfilter"
)

// Handler exposes the registry in Prometheus text and OpenMetrics formats.
// filter may be nil to serve every client.
func Handler(m *Metrics, filter *ipfilter.Filter) http.Handler {
	h := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	if filter == nil {
		return h
	}
	return filter.HTTPMiddleware(h)
}
