// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scenyx_chat_connections",
		Help: "Number of live socket connections.",
	})
	onlineUsersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scenyx_chat_online_users",
		Help: "Number of users holding at least one live connection.",
	})
	eventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenyx_chat_events_total",
		Help: "Inbound socket events by kind and result.",
	}, []string{"kind", "result"})
	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scenyx_chat_broadcast_dropped_total",
		Help: "Broadcast deliveries dropped because a connection's send queue was full.",
	})
	persistenceHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scenyx_chat_persistence_seconds",
		Help:    "Latency of persistence gateway operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

func SetConnections(n int) { connectionsGauge.Set(float64(n)) }

func SetOnlineUsers(n int) { onlineUsersGauge.Set(float64(n)) }

func CountEvent(kind, result string) {
	eventsCounter.WithLabelValues(kind, result).Inc()
}

func CountDropped() { droppedCounter.Inc() }

// ObservePersistence records the time since start for op. Meant to be deferred.
func ObservePersistence(op string, start time.Time) {
	persistenceHistogram.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
