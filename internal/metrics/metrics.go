// Package metrics exposes prometheus collectors for the door server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

const namespace = "autodoor"

// Metrics owns a registry so several servers can coexist in one process.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	doorTransitions    *prometheus.CounterVec
	alertsRaised       *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		doorTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "door_transitions_total",
			Help:      "Door state changes by resulting status and trigger",
		}, []string{"status", "trigger"}),
		alertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts published by type and priority",
		}, []string{"type", "priority", "persisted"}),
		breakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_breaker_transitions_total",
			Help:      "Persistence circuit breaker state changes",
		}, []string{"from", "to"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RecordHTTPRequest records one served request. route is the chi pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// BreakerStateChanged matches service.KernelConfig.OnBreakerChange.
func (m *Metrics) BreakerStateChanged(from, to gobreaker.State) {
	m.breakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// Instrument wraps next so door transitions and alerts are counted as they
// are published.
func (m *Metrics) Instrument(next service.Publisher) service.Publisher {
	return service.PublisherFunc(func(event string, payload any) {
		switch p := payload.(type) {
		case types.DoorState:
			if event == types.EventDoorStatusUpdate {
				m.doorTransitions.WithLabelValues(string(p.Status), string(p.Trigger)).Inc()
			}
		case types.Alert:
			if event == types.EventAlertNew {
				m.alertsRaised.WithLabelValues(string(p.Type), string(p.Priority), strconv.FormatBool(p.Persisted)).Inc()
			}
		}
		next.Publish(event, payload)
	})
}

type HealthSource interface {
	Report() service.HealthReport
}

type HubSource interface {
	ClientCount() int
	Published() int64
	AuditDropped() int64
	SlowDisconnects() int64
}

type SensorSource interface {
	Running() bool
	ActiveTickers() int
	DroppedReadings() int64
}

// Sources are sampled at scrape time. Nil fields are skipped.
type Sources struct {
	Health HealthSource
	Hub    HubSource
	Sensor SensorSource
}

// Observe registers scrape-time collectors for src. Call it once per Metrics.
func (m *Metrics) Observe(src Sources) {
	f := promauto.With(m.reg)

	if h := src.Health; h != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "persistence_healthy",
			Help: "1 when persistence is healthy, 0 when degraded",
		}, func() float64 { return boolGauge(h.Report().Healthy) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outbox_backlog",
			Help: "Side effects queued on the outbox",
		}, func() float64 { return float64(h.Report().Backlog) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_dropped_total",
			Help: "Side effects dropped because the outbox was full",
		}, func() float64 { return float64(h.Report().Dropped) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_writes",
			Help: "Writes queued on the database worker",
		}, func() float64 { return float64(h.Report().PendingWrites) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "persistence_breaker_open",
			Help: "1 while the persistence breaker is open",
		}, func() float64 { return boolGauge(h.Report().BreakerState == gobreaker.StateOpen.String()) })
	}

	if hub := src.Hub; hub != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_clients",
			Help: "Connected websocket clients",
		}, func() float64 { return float64(hub.ClientCount()) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Events published through the hub",
		}, func() float64 { return float64(hub.Published()) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_dropped_total",
			Help: "Audit records dropped because the queue was full",
		}, func() float64 { return float64(hub.AuditDropped()) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "websocket_slow_disconnects_total",
			Help: "Websocket clients dropped for falling behind",
		}, func() float64 { return float64(hub.SlowDisconnects()) })
	}

	if s := src.Sensor; s != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sensor_running",
			Help: "1 while the sensor loop is running",
		}, func() float64 { return boolGauge(s.Running()) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sensor_active_tickers",
			Help: "Live sensor tickers; never more than one",
		}, func() float64 { return float64(s.ActiveTickers()) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_dropped_readings_total",
			Help: "Readings missed by slow local subscribers",
		}, func() float64 { return float64(s.DroppedReadings()) })
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
