package lineage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel errors for validation failures.
var (
	ErrNilEvent                = errors.New("event cannot be nil")
	ErrInvalidEventType        = errors.New("invalid eventType")
	ErrMissingEventTime        = errors.New("eventTime is required")
	ErrMissingProducer         = errors.New("producer is required")
	ErrInvalidSchemaURL        = errors.New("schemaURL must be an OpenLineage spec URL")
	ErrMissingRunID            = errors.New("run.runId is required")
	ErrMissingJobNamespace     = errors.New("job.namespace is required")
	ErrMissingJobName          = errors.New("job.name is required")
	ErrDatasetMissingNamespace = errors.New("dataset.namespace is required")
	ErrDatasetMissingName      = errors.New("dataset.name is required")
)

// openLineageSchemaURLPattern matches https://openlineage.io/spec/X-Y-Z/OpenLineage.json.
var openLineageSchemaURLPattern = regexp.MustCompile(`^https://openlineage\.io/spec/\d+-\d+-\d+/OpenLineage\.json$`)

// Validator checks that a RunEvent is complete enough to be accepted by an
// OpenLineage collector. It is run before every emission so that malformed
// events fail locally instead of at the backend.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRunEvent validates the required OpenLineage RunEvent fields.
//
// Required:
//   - eventType: one of START, RUNNING, COMPLETE, FAIL, ABORT, OTHER
//   - eventTime: not zero
//   - producer: not empty
//   - schemaURL: empty (defaulted on encode) or an OpenLineage spec URL
//   - run.runId, job.namespace, job.name: not empty
//   - every input and output dataset: namespace and name not empty
func (v *Validator) ValidateRunEvent(event *RunEvent) error {
	if event == nil {
		return ErrNilEvent
	}

	if !event.EventType.IsValid() {
		return fmt.Errorf(
			"%w: %s (valid: START, RUNNING, COMPLETE, FAIL, ABORT, OTHER)",
			ErrInvalidEventType, event.EventType,
		)
	}

	if event.EventTime.IsZero() {
		return ErrMissingEventTime
	}

	if strings.TrimSpace(event.Producer) == "" {
		return ErrMissingProducer
	}

	if event.SchemaURL != "" && !IsValidOpenLineageSchemaURL(event.SchemaURL) {
		return fmt.Errorf("%w, got: %s", ErrInvalidSchemaURL, event.SchemaURL)
	}

	if event.Run.ID == "" {
		return ErrMissingRunID
	}

	if event.Job.Namespace == "" {
		return ErrMissingJobNamespace
	}

	if event.Job.Name == "" {
		return ErrMissingJobName
	}

	for i := range event.Inputs {
		if err := v.ValidateDataset(&event.Inputs[i]); err != nil {
			return fmt.Errorf("inputs[%d]: %w", i, err)
		}
	}

	for i := range event.Outputs {
		if err := v.ValidateDataset(&event.Outputs[i]); err != nil {
			return fmt.Errorf("outputs[%d]: %w", i, err)
		}
	}

	return nil
}

// ValidateDataset validates that a Dataset has a namespace and a name.
func (v *Validator) ValidateDataset(dataset *Dataset) error {
	if dataset.Namespace == "" {
		return ErrDatasetMissingNamespace
	}

	if dataset.Name == "" {
		return ErrDatasetMissingName
	}

	return nil
}

// IsValidOpenLineageSchemaURL reports whether url is an OpenLineage spec URL.
// JSON Schema fragments such as #/$defs/RunEvent are ignored.
//
// Examples:
//
//	IsValidOpenLineageSchemaURL("https://openlineage.io/spec/2-0-2/OpenLineage.json")                    // true
//	IsValidOpenLineageSchemaURL("https://openlineage.io/spec/2-0-2/OpenLineage.json#/$defs/RunEvent")    // true
//	IsValidOpenLineageSchemaURL("https://example.com/schema.json")                                       // false
func IsValidOpenLineageSchemaURL(url string) bool {
	baseURL := url
	if idx := strings.Index(url, "#"); idx != -1 {
		baseURL = url[:idx]
	}

	return openLineageSchemaURLPattern.MatchString(baseURL)
}
