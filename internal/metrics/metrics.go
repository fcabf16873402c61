// Package metrics declares the Prometheus collectors shared by the producer,
// consumer, registry and lineage transports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_lineage_build_info",
			Help: "Build information of the kafka-lineage binaries",
		},
		[]string{"binary", "version"},
	)

	LineageEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_lineage_events_total",
			Help: "Total number of OpenLineage events handed to a transport",
		},
		[]string{"transport", "event_type", "status"},
	)

	LineageEmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_lineage_emit_duration_seconds",
			Help:    "Duration of lineage event delivery",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"transport"},
	)

	RegistryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_lineage_registry_requests_total",
			Help: "Total number of schema registry requests",
		},
		[]string{"operation", "status"},
	)

	RecordsProducedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_lineage_records_produced_total",
			Help: "Total number of records written to Kafka",
		},
		[]string{"topic", "status"},
	)

	RecordsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_lineage_records_consumed_total",
			Help: "Total number of records read from Kafka",
		},
		[]string{"topic", "status"},
	)
)

// Status maps an error to the status label value.
func Status(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusSuccess
}
