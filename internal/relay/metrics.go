package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks relay activity. All record methods tolerate a nil receiver
// so wiring metrics stays optional in tests.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	UpdatesTotal      prometheus.Counter
	BroadcastsTotal   prometheus.Counter
	SkippedDeliveries prometheus.Counter
	ExternalReloads   prometheus.Counter
	ExportsRequested  prometheus.Counter
	ExportsFulfilled  prometheus.Counter
	ExportsTimedOut   prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide metrics set, registering collectors on
// first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "scenesync_sessions_active",
				Help: "Current number of connected live sessions",
			}),
			UpdatesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scenesync_updates_total",
				Help: "Total number of document updates saved",
			}),
			BroadcastsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scenesync_broadcasts_total",
				Help: "Total number of hub broadcasts",
			}),
			SkippedDeliveries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scenesync_skipped_deliveries_total",
				Help: "Deliveries skipped because a session buffer was full",
			}),
			ExternalReloads: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scenesync_external_reloads_total",
				Help: "Document reloads triggered by external file edits",
			}),
			ExportsRequested: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scenesync_exports_requested_total",
				Help: "Total number of export requests accepted",
			}),
			ExportsFulfilled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scenesync_exports_fulfilled_total",
				Help: "Export requests fulfilled by a renderer",
			}),
			ExportsTimedOut: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scenesync_exports_timed_out_total",
				Help: "Export requests that expired before fulfillment",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) SessionConnected() {
	if m == nil || m.ActiveSessions == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionDisconnected() {
	if m == nil || m.ActiveSessions == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) RecordUpdate() {
	if m == nil || m.UpdatesTotal == nil {
		return
	}
	m.UpdatesTotal.Inc()
}

func (m *Metrics) RecordBroadcast() {
	if m == nil || m.BroadcastsTotal == nil {
		return
	}
	m.BroadcastsTotal.Inc()
}

func (m *Metrics) RecordSkippedDelivery() {
	if m == nil || m.SkippedDeliveries == nil {
		return
	}
	m.SkippedDeliveries.Inc()
}

func (m *Metrics) RecordExternalReload() {
	if m == nil || m.ExternalReloads == nil {
		return
	}
	m.ExternalReloads.Inc()
}

func (m *Metrics) RecordExportRequested() {
	if m == nil || m.ExportsRequested == nil {
		return
	}
	m.ExportsRequested.Inc()
}

func (m *Metrics) RecordExportFulfilled() {
	if m == nil || m.ExportsFulfilled == nil {
		return
	}
	m.ExportsFulfilled.Inc()
}

func (m *Metrics) RecordExportTimedOut() {
	if m == nil || m.ExportsTimedOut == nil {
		return
	}
	m.ExportsTimedOut.Inc()
}
