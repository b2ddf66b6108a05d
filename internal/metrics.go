package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters the server exports on /metrics. A fresh
// registry per server instance keeps tests from tripping over duplicate
// registration.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedClients    prometheus.Gauge
	MessagesTotal       *prometheus.CounterVec
	JoinsRejectedTotal  prometheus.Counter
	UploadsTotal        prometheus.Counter
	UploadBytesTotal    prometheus.Counter
	UploadsRejected     prometheus.Counter
	RetentionRunsTotal  prometheus.Counter
	MessagesPrunedTotal prometheus.Counter
	FilesPrunedTotal    prometheus.Counter
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quadchat_connected_clients",
			Help: "Number of websocket connections currently attached to the room.",
		}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quadchat_messages_total",
			Help: "Messages accepted into the room, by type.",
		}, []string{"type"}),
		JoinsRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadchat_joins_rejected_total",
			Help: "Join attempts rejected because the room was full.",
		}),
		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadchat_uploads_total",
			Help: "Files stored by the upload endpoint.",
		}),
		UploadBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadchat_upload_bytes_total",
			Help: "Bytes written by the upload endpoint.",
		}),
		UploadsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadchat_uploads_rejected_total",
			Help: "Uploads rejected for size, rate, or missing file.",
		}),
		RetentionRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadchat_retention_runs_total",
			Help: "Completed retention sweeps.",
		}),
		MessagesPrunedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadchat_messages_pruned_total",
			Help: "Messages removed by retention sweeps.",
		}),
		FilesPrunedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadchat_files_pruned_total",
			Help: "Uploaded files removed by retention sweeps.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
