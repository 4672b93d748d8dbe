package metrics

import (
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aero_udp_broadcast_relay"

var (
	eventsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "events_total"),
		"Internal event counters.",
		[]string{"event"}, nil,
	)
	activePeersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "active_peers"),
		"Peers currently tracked by the relay.",
		nil, nil,
	)
)

// collector exports a Metrics snapshot on every scrape. All counters share a
// single metric with an `event` label so new counters need no registration.
type collector struct {
	m *Metrics
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
	ch <- activePeersDesc
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(snap[k]), k)
	}
	ch <- prometheus.MustNewConstMetric(activePeersDesc, prometheus.GaugeValue, float64(c.m.ActivePeers()))
}

// BuildInfo labels the build_info gauge.
type BuildInfo struct {
	Commit    string
	BuildTime string
}

// NewRegistry returns a registry exporting m together with process uptime and
// build info.
func NewRegistry(m *Metrics, build BuildInfo) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	startTime := time.Now()
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by commit and build time).",
		},
		[]string{"commit", "build_time"},
	)
	buildInfo.WithLabelValues(build.Commit, build.BuildTime).Set(1)

	reg.MustRegister(collector{m: m}, uptime, buildInfo)
	return reg
}

// PrometheusHandler exposes m in Prometheus' text exposition format.
func PrometheusHandler(m *Metrics, build BuildInfo) http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(NewRegistry(m, build), promhttp.HandlerOpts{})
}
