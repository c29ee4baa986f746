// Package metrics exposes NAVscout's operational state as Prometheus
// gauges/counters, grounded on the pack's own prometheus/client_golang
// usage (promauto-registered metrics served over promhttp.Handler behind
// a dedicated registry, rather than the global default one).
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every NAVscout Prometheus metric.
type Metrics struct {
	registry *prometheus.Registry

	MissionState     *prometheus.GaugeVec
	GnssSatellites   prometheus.Gauge
	GnssHDOP         prometheus.Gauge
	PowerMode        *prometheus.GaugeVec
	TracksActive     prometheus.Gauge
	TrackLocked      prometheus.Gauge
	DetectionsTotal  prometheus.Counter
	BatteryPercent   prometheus.Gauge
	CPUTempC         prometheus.Gauge
	UplinkQuality    prometheus.Gauge
	UplinkFailures   prometheus.Counter
	SpoolDepth       prometheus.Gauge
	RthEventsTotal   *prometheus.CounterVec
}

// New constructs and registers every metric against a fresh registry, so
// multiple Metrics instances (e.g. across tests) never collide on the
// default global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MissionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "mission_state",
			Help:      "1 for the current mission state, 0 otherwise, labeled by state name",
		}, []string{"state"}),

		GnssSatellites: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "gnss_satellites",
			Help:      "Satellites used in the most recent GNSS fix",
		}),

		GnssHDOP: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "gnss_hdop",
			Help:      "Horizontal dilution of precision of the most recent GNSS fix",
		}),

		PowerMode: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "power_mode",
			Help:      "1 for the current vision power mode, 0 otherwise, labeled by mode name",
		}, []string{"mode"}),

		TracksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "tracks_active",
			Help:      "Number of tracks currently held by the tracker",
		}),

		TrackLocked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "track_locked",
			Help:      "1 if the tracker currently holds a lock, 0 otherwise",
		}),

		DetectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "navscout",
			Name:      "detections_total",
			Help:      "Total detections produced by the vision backend after NMS",
		}),

		BatteryPercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "battery_percent",
			Help:      "Most recently reported flight-controller battery percentage",
		}),

		CPUTempC: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "cpu_temp_celsius",
			Help:      "Onboard CPU temperature",
		}),

		UplinkQuality: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "uplink_quality",
			Help:      "Uplink link quality score, 0-100",
		}),

		UplinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "navscout",
			Name:      "uplink_send_failures_total",
			Help:      "Total failed uplink send attempts",
		}),

		SpoolDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "navscout",
			Name:      "uplink_spool_depth",
			Help:      "Number of telemetry events currently spooled on disk",
		}),

		RthEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navscout",
			Name:      "rth_events_total",
			Help:      "Total return-to-home transitions, labeled by trigger reason",
		}, []string{"reason"}),
	}
}

// SetMissionState zeroes every known state gauge and sets the current
// one to 1, so Grafana can chart state as a step function.
func (m *Metrics) SetMissionState(states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.MissionState.WithLabelValues(s).Set(v)
	}
}

// SetPowerMode zeroes every known mode gauge and sets the current one.
func (m *Metrics) SetPowerMode(modes []string, current string) {
	for _, mode := range modes {
		v := 0.0
		if mode == current {
			v = 1.0
		}
		m.PowerMode.WithLabelValues(mode).Set(v)
	}
}

// Server serves the /metrics endpoint over HTTP.
type Server struct {
	httpServer *http.Server
}

// Serve starts an HTTP server on addr exposing m under /metrics. It
// returns immediately; call Shutdown to stop it.
func Serve(addr string, m *Metrics) (*Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = err // best-effort background server; mission loop doesn't depend on it
		}
	}()

	return &Server{httpServer: srv}, nil
}

// Shutdown gracefully stops the metrics HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
