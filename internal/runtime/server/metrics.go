// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/metrics.go
// Summary: Log and Prometheus observers for the allocator.
// Usage: cmd/texelwin installs both; the admin endpoint serves the Prometheus registry.

package server

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReallocationLogger logs every completed reallocation.
type ReallocationLogger struct {
	NopObserver
	logger *log.Logger
}

// NewReallocationLogger creates an observer that logs reallocations.
func NewReallocationLogger(l *log.Logger) *ReallocationLogger {
	if l == nil {
		l = log.Default()
	}
	return &ReallocationLogger{logger: l}
}

func (r *ReallocationLogger) ObserveReallocation(stats ReallocationStats) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf("realloc trigger=%s window=%d acks=%d wait=%s granted=%d exposed=%d",
		stats.Trigger, stats.Target, stats.Acks, stats.Wait, stats.Granted, stats.Exposed)
}

func (r *ReallocationLogger) ObserveClient(id ClientID, name string, connected bool) {
	if r == nil || r.logger == nil {
		return
	}
	state := "connected"
	if !connected {
		state = "disconnected"
	}
	r.logger.Printf("client=%d name=%q %s", id, name, state)
}

// Metrics exports allocator state to Prometheus.
type Metrics struct {
	pendingAcks    prometheus.Gauge
	queueDepth     prometheus.Gauge
	windows        prometheus.Gauge
	clients        prometheus.Gauge
	reallocations  *prometheus.CounterVec
	acksAwaited    prometheus.Counter
	protocolErrors *prometheus.CounterVec
	connections    *prometheus.CounterVec
	droppedClients prometheus.Counter
	ackWait        prometheus.Histogram
}

// NewMetrics registers the allocator collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns = "texelwin"
	return &Metrics{
		pendingAcks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "pending_acks",
			Help:      "RegionAcks the server is waiting for",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "queue_depth",
			Help:      "Commands deferred behind a pending reallocation",
		}),
		windows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "windows",
			Help:      "Live windows",
		}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "clients",
			Help:      "Connected clients",
		}),
		reallocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reallocations_total",
			Help:      "Completed reallocations by trigger",
		}, []string{"trigger"}),
		acksAwaited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "region_removes_total",
			Help:      "RegionRemove events that required an acknowledgement",
		}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "protocol_errors_total",
			Help:      "Ignored or rejected client messages by reason",
		}, []string{"reason"}),
		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connections_total",
			Help:      "Client connects and disconnects",
		}, []string{"event"}),
		droppedClients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dropped_clients_total",
			Help:      "Clients disconnected because their event queue overflowed",
		}),
		ackWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "ack_wait_seconds",
			Help:      "Time from revocation to grant for reallocations that waited on acks",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}
}

func (m *Metrics) ObserveReallocation(stats ReallocationStats) {
	m.reallocations.WithLabelValues(stats.Trigger).Inc()
	if stats.Acks > 0 {
		m.acksAwaited.Add(float64(stats.Acks))
		m.ackWait.Observe(stats.Wait.Seconds())
	}
}

func (m *Metrics) ObserveState(stats StateStats) {
	m.pendingAcks.Set(float64(stats.PendingAcks))
	m.queueDepth.Set(float64(stats.QueueDepth))
	m.windows.Set(float64(stats.Windows))
	m.clients.Set(float64(stats.Clients))
}

func (m *Metrics) ObserveClient(_ ClientID, _ string, connected bool) {
	if connected {
		m.connections.WithLabelValues("connect").Inc()
		return
	}
	m.connections.WithLabelValues("disconnect").Inc()
}

func (m *Metrics) ObserveProtocolError(reason string) {
	m.protocolErrors.WithLabelValues(reason).Inc()
	if reason == ReasonQueueOverflow {
		m.droppedClients.Inc()
	}
}
