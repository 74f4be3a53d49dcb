// Package metrics holds the run counters for both stages. Each process
// uses a private registry that can be dumped in the Prometheus text format
// for the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grouparchive"

// Metrics is the set of counters updated during a run.
type Metrics struct {
	Registry *prometheus.Registry

	PagesFetched      prometheus.Counter
	MessagesStored    prometheus.Counter
	AttachmentsStored *prometheus.CounterVec
	RowsDelivered     *prometheus.CounterVec
	Cooldowns         *prometheus.CounterVec
}

// New creates and registers the counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Non-empty history pages fetched from upstream.",
		}),
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages upserted into the snapshot.",
		}),
		AttachmentsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_stored_total",
			Help:      "Image attachments upserted, by whether content was saved locally.",
		}, []string{"local"}),
		RowsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_delivered_total",
			Help:      "Snapshot rows posted to the destination, by result.",
		}, []string{"result"}),
		Cooldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldowns_total",
			Help:      "Replay pauses, by reason.",
		}, []string{"reason"}),
	}
	m.Registry.MustRegister(
		m.PagesFetched,
		m.MessagesStored,
		m.AttachmentsStored,
		m.RowsDelivered,
		m.Cooldowns,
	)
	return m
}

// WriteFile writes the registry to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
