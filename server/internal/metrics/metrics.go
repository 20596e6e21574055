// Package metrics owns the server's Prometheus instruments and serves them in
// the exposition format negotiated with the scraper.
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/poolchem/poolchem/pkg/types"
)

// Calculation outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Metrics is a registry plus the instruments the front-ends update.
// The zero value is not usable; call New.
type Metrics struct {
	reg *prometheus.Registry

	calculations *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	stripReads   *prometheus.CounterVec
	wsClients    prometheus.Gauge
	configLoads  *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		calculations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poolchem_calculations_total",
			Help: "Dosing calculations by mode, front-end and outcome.",
		}, []string{"mode", "frontend", "outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poolchem_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "poolchem_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		stripReads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poolchem_strip_reads_total",
			Help: "Strip image uploads by outcome.",
		}, []string{"outcome"}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "poolchem_ws_clients",
			Help: "Connected WebSocket calculator sessions.",
		}),
		configLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poolchem_config_reloads_total",
			Help: "Config hot-reloads applied.",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveCalculation counts one calculation.
func (m *Metrics) ObserveCalculation(mode types.Mode, frontend, outcome string) {
	m.calculations.WithLabelValues(string(mode), frontend, outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, dur time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

// ObserveStripRead counts one strip upload.
func (m *Metrics) ObserveStripRead(outcome string) {
	m.stripReads.WithLabelValues(outcome).Inc()
}

// ObserveConfigReload counts one applied or rejected reload.
func (m *Metrics) ObserveConfigReload(outcome string) {
	m.configLoads.WithLabelValues(outcome).Inc()
}

// ClientConnected and ClientDisconnected track live WebSocket sessions.
func (m *Metrics) ClientConnected() { m.wsClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.wsClients.Dec() }

// WSClients exposes the live-session gauge, mainly for tests.
func (m *Metrics) WSClients() prometheus.Gauge { return m.wsClients }

// CalculationCounts sums poolchem_calculations_total by mode.
func (m *Metrics) CalculationCounts() (map[string]float64, error) {
	families, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "poolchem_calculations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			out[labelValue(metric, "mode")] += metric.GetCounter().GetValue()
		}
	}
	return out, nil
}

// Handler serves the registry in the format the client negotiates.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		families, err := m.reg.Gather()
		if err != nil {
			slog.Error("metrics: gather failed", "err", err)
			http.Error(w, "gather failed", http.StatusInternalServerError)
			return
		}

		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
		if closer, ok := enc.(expfmt.Closer); ok {
			closer.Close() //nolint:errcheck
		}
	})
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
