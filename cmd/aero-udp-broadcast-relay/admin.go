package main

import (
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/peerfeed"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/relay"
)

// newAdminServer mounts the metrics and peer feed endpoints next to the
// built-in health routes. /readyz follows the relay loop.
func newAdminServer(cfg config.Config, logger *slog.Logger, r *relay.Relay, m *metrics.Metrics, hub *peerfeed.Hub, build httpserver.BuildInfo) *httpserver.Server {
	srv := httpserver.New(cfg, logger, build)
	srv.SetReadiness(r.Running)

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m, metrics.BuildInfo{
		Commit:    build.Commit,
		BuildTime: build.BuildTime,
	}))
	srv.Mux().Handle("GET /events", hub)
	return srv
}
