// Package emitter turns a schema facet and run metadata into OpenLineage run
// events for the configured Kafka topic and hands them to a lineage client.
package emitter

import (
	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// CreateDatasets describes the configured topic as a single dataset:
// namespace kafka://<kafka.cluster_name>, name <kafka.topic>, with facet
// attached under "schema" when it is not nil.
//
// Whether the dataset is an input or an output is decided at emission time.
func CreateDatasets(cfg *config.Config, facet *lineage.SchemaDatasetFacet) ([]lineage.Dataset, error) {
	if err := cfg.Require(config.KeyKafkaClusterName, config.KeyKafkaTopic); err != nil {
		return nil, err
	}

	dataset := lineage.Dataset{
		Namespace: lineage.KafkaNamespace(cfg.Kafka.ClusterName),
		Name:      cfg.Kafka.Topic,
	}

	if facet != nil {
		dataset.Facets = lineage.Facets{lineage.SchemaFacetKey: facet}
	}

	return []lineage.Dataset{dataset}, nil
}
