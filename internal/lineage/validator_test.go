package lineage

import (
	"errors"
	"testing"
	"time"
)

func validEvent() *RunEvent {
	return &RunEvent{
		EventTime: time.Now().UTC(),
		EventType: EventTypeComplete,
		Producer:  "https://github.com/correlator-io/kafka-lineage",
		SchemaURL: DefaultSchemaURL,
		Run:       Run{ID: "550e8400-e29b-41d4-a716-446655440000"},
		Job:       Job{Namespace: "msk-producer", Name: "producer-job"},
		Outputs: []Dataset{{
			Namespace: "kafka://msk-producer",
			Name:      "users",
		}},
	}
}

func TestValidateRunEvent_Valid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validator := NewValidator()

	if err := validator.ValidateRunEvent(validEvent()); err != nil {
		t.Errorf("ValidateRunEvent() failed for valid event: %v", err)
	}

	withoutSchemaURL := validEvent()
	withoutSchemaURL.SchemaURL = ""

	if err := validator.ValidateRunEvent(withoutSchemaURL); err != nil {
		t.Errorf("ValidateRunEvent() failed for event without schemaURL: %v", err)
	}
}

func TestValidateRunEvent_Invalid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		mutate  func(e *RunEvent)
		wantErr error
	}{
		{"invalid event type", func(e *RunEvent) { e.EventType = "DONE" }, ErrInvalidEventType},
		{"zero event time", func(e *RunEvent) { e.EventTime = time.Time{} }, ErrMissingEventTime},
		{"blank producer", func(e *RunEvent) { e.Producer = "  " }, ErrMissingProducer},
		{"foreign schema url", func(e *RunEvent) { e.SchemaURL = "https://example.com/schema.json" }, ErrInvalidSchemaURL},
		{"missing run id", func(e *RunEvent) { e.Run.ID = "" }, ErrMissingRunID},
		{"missing job namespace", func(e *RunEvent) { e.Job.Namespace = "" }, ErrMissingJobNamespace},
		{"missing job name", func(e *RunEvent) { e.Job.Name = "" }, ErrMissingJobName},
		{"output without namespace", func(e *RunEvent) { e.Outputs[0].Namespace = "" }, ErrDatasetMissingNamespace},
		{"input without name", func(e *RunEvent) {
			e.Inputs = []Dataset{{Namespace: "kafka://c"}}
		}, ErrDatasetMissingName},
	}

	validator := NewValidator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(event)

			err := validator.ValidateRunEvent(event)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRunEvent() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRunEvent_Nil(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if err := NewValidator().ValidateRunEvent(nil); !errors.Is(err, ErrNilEvent) {
		t.Errorf("ValidateRunEvent(nil) = %v, want ErrNilEvent", err)
	}
}

func TestIsValidOpenLineageSchemaURL(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://openlineage.io/spec/2-0-2/OpenLineage.json", true},
		{"https://openlineage.io/spec/2-0-2/OpenLineage.json#/$defs/RunEvent", true},
		{"https://openlineage.io/spec/1-8-0/OpenLineage.json", true},
		{"https://example.com/schema.json", false},
		{"https://openlineage.io/spec/", false},
		{"https://openlineage.io/spec/garbage", false},
	}

	for _, tt := range tests {
		if got := IsValidOpenLineageSchemaURL(tt.url); got != tt.want {
			t.Errorf("IsValidOpenLineageSchemaURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
