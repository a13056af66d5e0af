package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects cleanup and storage metrics for a session.
type Metrics struct {
	CleanupPasses   *prometheus.CounterVec
	CleanupActions  *prometheus.CounterVec
	MessagesEvicted *prometheus.CounterVec
	SaveFailures    prometheus.Counter
	StorageBytes    prometheus.Gauge
	StorageItems    prometheus.Gauge
}

// NewMetrics creates the metric vectors and registers them with reg.
// A nil registerer leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CleanupPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easychat",
			Name:      "cleanup_passes_total",
			Help:      "Cleanup passes by mode (normal, emergency).",
		}, []string{"mode"}),
		CleanupActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easychat",
			Name:      "cleanup_actions_total",
			Help:      "Cleanup actions executed by kind.",
		}, []string{"action"}),
		MessagesEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easychat",
			Name:      "messages_evicted_total",
			Help:      "Messages removed from the log by cause (expired, trimmed, emergency).",
		}, []string{"cause"}),
		SaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "easychat",
			Name:      "save_failures_total",
			Help:      "Persistence writes that failed even after emergency cleanup.",
		}),
		StorageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "easychat",
			Name:      "storage_bytes",
			Help:      "Bytes occupied in the persistence namespace.",
		}),
		StorageItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "easychat",
			Name:      "storage_items",
			Help:      "Keys present in the persistence namespace.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CleanupPasses,
			m.CleanupActions,
			m.MessagesEvicted,
			m.SaveFailures,
			m.StorageBytes,
			m.StorageItems,
		)
	}
	return m
}
