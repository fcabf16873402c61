// Package lineage provides the OpenLineage domain model emitted for Kafka topics.
// Spec: https://openlineage.io/docs/spec/object-model
package lineage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultSchemaURL is the OpenLineage spec version stamped on emitted events.
	DefaultSchemaURL = "https://openlineage.io/spec/2-0-2/OpenLineage.json#/$defs/RunEvent"

	// SchemaFacetSchemaURL is the spec URL of the schema dataset facet.
	SchemaFacetSchemaURL = "https://openlineage.io/spec/facets/1-1-1/SchemaDatasetFacet.json#/$defs/SchemaDatasetFacet"

	// SchemaFacetKey is the key under which the schema facet is attached to a dataset.
	SchemaFacetKey = "schema"

	// KafkaNamespacePrefix prefixes the cluster name to form a topic dataset namespace.
	KafkaNamespacePrefix = "kafka://"
)

// ErrUnknownRunState indicates a state string outside the OpenLineage run states.
var ErrUnknownRunState = errors.New("unknown run state")

type (
	// RunEvent represents an OpenLineage RunEvent describing one state change of a job run.
	//
	// Events built by this module carry datasets in exactly one of Inputs or Outputs:
	// producers report the topic as an output, consumers report it as an input.
	//
	// Spec: https://openlineage.io/docs/spec/object-model#job-run-state-update
	RunEvent struct {
		// EventTime is when the state change happened (UTC).
		EventTime time.Time

		// EventType is the run state: START, RUNNING, COMPLETE, FAIL, ABORT, or OTHER.
		EventType EventType

		// Producer identifies the tool that generated this event.
		Producer string

		// SchemaURL is the OpenLineage spec version URL.
		SchemaURL string

		Run Run
		Job Job

		// Inputs are datasets consumed by this run.
		Inputs []Dataset

		// Outputs are datasets produced by this run.
		Outputs []Dataset
	}

	// EventType represents OpenLineage run states.
	// Spec: https://openlineage.io/docs/spec/run-cycle#run-states
	EventType string

	// Facets are extensible metadata attached to runs, jobs and datasets.
	Facets map[string]interface{}

	// Run is one execution instance of a Job. ID must be unique per execution
	// and stay the same across the state updates of that execution.
	Run struct {
		ID     string
		Facets Facets
	}

	// Job is a named unit of work within a namespace.
	// For Kafka clients the namespace is the cluster name.
	Job struct {
		Namespace string
		Name      string
		Facets    Facets
	}

	// Dataset is a named, namespaced data resource. Here: one Kafka topic,
	// namespaced as kafka://<cluster_name>.
	Dataset struct {
		Namespace string
		Name      string
		Facets    Facets
	}

	// SchemaField is one field of a record schema.
	SchemaField struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	// SchemaDatasetFacet is the ordered field list of a dataset schema.
	// Field order follows the source definition.
	//
	// Spec: https://openlineage.io/docs/spec/facets/dataset-facets/schema
	SchemaDatasetFacet struct {
		Producer  string        `json:"_producer"`  //nolint:tagliatelle // OpenLineage facet base fields
		SchemaURL string        `json:"_schemaURL"` //nolint:tagliatelle
		Fields    []SchemaField `json:"fields"`
	}
)

const (
	// EventTypeStart indicates the beginning of a job execution.
	EventTypeStart EventType = "START"

	// EventTypeRunning provides additional information about a running job.
	EventTypeRunning EventType = "RUNNING"

	// EventTypeComplete signifies that execution of the job has concluded successfully.
	EventTypeComplete EventType = "COMPLETE"

	// EventTypeFail signifies that the job has failed.
	EventTypeFail EventType = "FAIL"

	// EventTypeAbort signifies that the job has been stopped abnormally.
	EventTypeAbort EventType = "ABORT"

	// EventTypeOther is used to send additional metadata outside standard run cycle.
	EventTypeOther EventType = "OTHER"
)

// ValidEventTypes returns all valid OpenLineage event types.
func ValidEventTypes() []EventType {
	return []EventType{
		EventTypeStart,
		EventTypeRunning,
		EventTypeComplete,
		EventTypeFail,
		EventTypeAbort,
		EventTypeOther,
	}
}

// ParseEventType maps a state name to its EventType.
// Matching is exact: "complete" is not COMPLETE.
func ParseEventType(state string) (EventType, error) {
	et := EventType(state)
	if !et.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: START, RUNNING, COMPLETE, FAIL, ABORT, OTHER)", ErrUnknownRunState, state)
	}

	return et, nil
}

// IsValid checks if the EventType is a valid OpenLineage run state.
func (et EventType) IsValid() bool {
	for _, valid := range ValidEventTypes() {
		if et == valid {
			return true
		}
	}

	return false
}

// IsTerminal returns true for COMPLETE, FAIL and ABORT.
func (et EventType) IsTerminal() bool {
	return et == EventTypeComplete || et == EventTypeFail || et == EventTypeAbort
}

// NewSchemaDatasetFacet builds a schema facet over fields, preserving their order.
func NewSchemaDatasetFacet(fields []SchemaField) *SchemaDatasetFacet {
	copied := make([]SchemaField, len(fields))
	copy(copied, fields)

	return &SchemaDatasetFacet{
		SchemaURL: SchemaFacetSchemaURL,
		Fields:    copied,
	}
}

// KafkaNamespace returns the dataset namespace for topics of a cluster.
func KafkaNamespace(clusterName string) string {
	return KafkaNamespacePrefix + clusterName
}

// IdempotencyKey returns a deterministic key for this event.
//
// Formula: SHA256(producer + job.namespace + job.name + run.runId + eventTime + eventType)
//
// The same event sent twice yields the same key, so collectors accepting a client
// token can drop duplicates. Returns a 64-character lowercase hex string.
func (e *RunEvent) IdempotencyKey() string {
	hasher := sha256.New()

	for _, part := range []string{
		e.Producer,
		e.Job.Namespace,
		e.Job.Name,
		e.Run.ID,
		e.EventTime.UTC().Format(time.RFC3339Nano),
		string(e.EventType),
	} {
		hasher.Write([]byte(part))
		hasher.Write([]byte{0})
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

// Datasets returns the inputs and outputs of the event in that order.
func (e *RunEvent) Datasets() []Dataset {
	all := make([]Dataset, 0, len(e.Inputs)+len(e.Outputs))
	all = append(all, e.Inputs...)

	return append(all, e.Outputs...)
}

// DatasetURNs returns the URN of every dataset of the event, inputs first.
func (e *RunEvent) DatasetURNs() []string {
	datasets := e.Datasets()

	urns := make([]string, 0, len(datasets))
	for i := range datasets {
		urns = append(urns, datasets[i].URN())
	}

	return urns
}

// URN returns the dataset identifier in "{namespace}/{name}" form.
//
// Example:
//
//	dataset := Dataset{Namespace: "kafka://msk-producer", Name: "users"}
//	dataset.URN()  // "kafka://msk-producer/users"
func (d *Dataset) URN() string {
	return strings.TrimSuffix(d.Namespace, "/") + "/" + strings.TrimPrefix(d.Name, "/")
}

// SchemaFacet returns the schema facet attached to the dataset, if any.
func (d *Dataset) SchemaFacet() (*SchemaDatasetFacet, bool) {
	switch facet := d.Facets[SchemaFacetKey].(type) {
	case *SchemaDatasetFacet:
		return facet, facet != nil
	case SchemaDatasetFacet:
		return &facet, true
	default:
		return nil, false
	}
}
