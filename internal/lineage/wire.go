package lineage

import (
	"encoding/json"
	"fmt"
)

// eventTimeLayout is ISO-8601 with microseconds. UTC renders as "Z".
const eventTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type (
	wireEvent struct {
		EventType string        `json:"eventType"`
		EventTime string        `json:"eventTime"`
		Run       wireRun       `json:"run"`
		Job       wireJob       `json:"job"`
		Inputs    []wireDataset `json:"inputs"`
		Outputs   []wireDataset `json:"outputs"`
		Producer  string        `json:"producer"`
		SchemaURL string        `json:"schemaURL"` //nolint:tagliatelle // OpenLineage spec field name
	}

	wireRun struct {
		ID     string                 `json:"runId"`
		Facets map[string]interface{} `json:"facets,omitempty"`
	}

	wireJob struct {
		Namespace string                 `json:"namespace"`
		Name      string                 `json:"name"`
		Facets    map[string]interface{} `json:"facets,omitempty"`
	}

	wireDataset struct {
		Namespace string                 `json:"namespace"`
		Name      string                 `json:"name"`
		Facets    map[string]interface{} `json:"facets,omitempty"`
	}
)

// Marshal encodes a RunEvent as OpenLineage JSON.
//
// Inputs and outputs are always arrays, never null. Schema facets without a
// producer inherit the event producer, and the event schema URL defaults to
// DefaultSchemaURL.
func Marshal(event *RunEvent) ([]byte, error) {
	if event == nil {
		return nil, ErrNilEvent
	}

	schemaURL := event.SchemaURL
	if schemaURL == "" {
		schemaURL = DefaultSchemaURL
	}

	wire := wireEvent{
		EventType: string(event.EventType),
		EventTime: event.EventTime.UTC().Format(eventTimeLayout),
		Run: wireRun{
			ID:     event.Run.ID,
			Facets: event.Run.Facets,
		},
		Job: wireJob{
			Namespace: event.Job.Namespace,
			Name:      event.Job.Name,
			Facets:    event.Job.Facets,
		},
		Inputs:    toWireDatasets(event.Inputs, event.Producer),
		Outputs:   toWireDatasets(event.Outputs, event.Producer),
		Producer:  event.Producer,
		SchemaURL: schemaURL,
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenLineage event: %w", err)
	}

	return data, nil
}

func toWireDatasets(datasets []Dataset, producer string) []wireDataset {
	wire := make([]wireDataset, 0, len(datasets))

	for _, dataset := range datasets {
		wire = append(wire, wireDataset{
			Namespace: dataset.Namespace,
			Name:      dataset.Name,
			Facets:    stampFacets(dataset.Facets, producer),
		})
	}

	return wire
}

// stampFacets copies facets, filling in the producer of schema facets that lack one.
// The caller's facet values are not mutated.
func stampFacets(facets Facets, producer string) map[string]interface{} {
	if len(facets) == 0 {
		return nil
	}

	stamped := make(map[string]interface{}, len(facets))

	for key, value := range facets {
		switch facet := value.(type) {
		case *SchemaDatasetFacet:
			if facet == nil {
				continue
			}

			stamped[key] = stampSchemaFacet(*facet, producer)
		case SchemaDatasetFacet:
			stamped[key] = stampSchemaFacet(facet, producer)
		default:
			stamped[key] = value
		}
	}

	return stamped
}

func stampSchemaFacet(facet SchemaDatasetFacet, producer string) SchemaDatasetFacet {
	if facet.Producer == "" {
		facet.Producer = producer
	}

	if facet.SchemaURL == "" {
		facet.SchemaURL = SchemaFacetSchemaURL
	}

	if facet.Fields == nil {
		facet.Fields = []SchemaField{}
	}

	return facet
}
