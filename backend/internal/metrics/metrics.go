// Package metrics exposes the daemon's Prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arksync/backend/pkg/ezo"
	"arksync/backend/pkg/serialport"
)

const namespace = "arksync"

// Metrics is safe to use as a nil pointer, every recorder is then a no-op.
type Metrics struct {
	reg *prometheus.Registry

	sensors       *prometheus.GaugeVec
	exchanges     *prometheus.CounterVec
	exchangeTime  *prometheus.HistogramVec
	readings      *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	discoveryErrs prometheus.Counter
}

// New registers every collector on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sensors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors",
			Help:      "Sensors in the fleet by state.",
		}, []string{"state"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Command exchanges by command and result.",
		}, []string{"command", "result"}),
		exchangeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Latency of command exchanges.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"command"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Readings published by sensor kind.",
		}, []string{"kind"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Background cycles by task and result.",
		}, []string{"task", "result"}),
		discoveryErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_errors_total",
			Help:      "Ports that failed bring-up.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sensors,
		m.exchanges,
		m.exchangeTime,
		m.readings,
		m.cycles,
		m.discoveryErrs,
	)

	return m
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observer returns an ezo.Observer recording every exchange.
func (m *Metrics) Observer() ezo.Observer {
	if m == nil {
		return nil
	}

	return func(cmd string, took time.Duration, err error) {
		m.exchanges.WithLabelValues(cmd, exchangeResult(err)).Inc()
		m.exchangeTime.WithLabelValues(cmd).Observe(took.Seconds())
	}
}

// SetSensors replaces the per-state gauge with counts.
func (m *Metrics) SetSensors(counts map[string]int) {
	if m == nil {
		return
	}

	m.sensors.Reset()

	for state, n := range counts {
		m.sensors.WithLabelValues(state).Set(float64(n))
	}
}

func (m *Metrics) Reading(kind string) {
	if m == nil {
		return
	}

	m.readings.WithLabelValues(kind).Inc()
}

// Cycle records the outcome of a detection or healthcheck cycle.
func (m *Metrics) Cycle(task string, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.cycles.WithLabelValues(task, result).Inc()
}

func (m *Metrics) DiscoveryError() {
	if m == nil {
		return
	}

	m.discoveryErrs.Inc()
}

func exchangeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, serialport.ErrTimeout):
		return "timeout"
	case errors.Is(err, serialport.ErrDisconnected), errors.Is(err, serialport.ErrClosed):
		return "disconnected"
	default:
		return "error"
	}
}
