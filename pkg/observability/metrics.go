// Package observability binds Prometheus metrics to the coordinator's lifecycle hooks.
package observability

import (
	"context"

	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	sessionEvents *prometheus.CounterVec
	sessionsOpen  prometheus.Gauge
	transfers     *prometheus.CounterVec
	summarize     *prometheus.HistogramVec
	notifyDropped prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warmtransfer_sessions_total",
				Help: "Session lifecycle events by type",
			},
			[]string{"event"},
		),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warmtransfer_sessions_open",
			Help: "Sessions created and not yet closed",
		}),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warmtransfer_transfers_total",
				Help: "Transfer state transitions by resulting status",
			},
			[]string{"status"},
		),
		summarize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warmtransfer_summarize_duration_seconds",
				Help:    "Duration of text-generation calls",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"outcome"},
		),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warmtransfer_notify_dropped_total",
			Help: "Events evicted from slow subscriber buffers",
		}),
	}
	reg.MustRegister(m.sessionEvents, m.sessionsOpen, m.transfers, m.summarize, m.notifyDropped)
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionEvent: func(_ context.Context, ev *domain.Event) {
			m.sessionEvents.WithLabelValues(string(ev.Type)).Inc()
			switch ev.Type {
			case domain.EventSessionCreated:
				m.sessionsOpen.Inc()
			case domain.EventSessionClosed:
				m.sessionsOpen.Dec()
			}
		},
		OnTransferEvent: func(_ context.Context, ev *domain.Event) {
			if ev.Transfer != nil {
				m.transfers.WithLabelValues(string(ev.Transfer.Status)).Inc()
			}
		},
		OnSummarize: func(_ context.Context, ev *domain.SummarizeEvent) {
			outcome := "ok"
			if ev.Err != nil {
				outcome = string(domain.KindOf(ev.Err))
				if outcome == string(domain.KindInternal) {
					outcome = "error"
				}
			}
			m.summarize.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
		},
	}
}

// NotifyDropped records events evicted by the notification hub.
func (m *Metrics) NotifyDropped(_ string, n int) {
	m.notifyDropped.Add(float64(n))
}
