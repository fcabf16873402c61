package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"
)

// Record is a decoded Avro record together with the schema it was written with.
type Record struct {
	Data            map[string]any
	SchemaVersionID uuid.UUID
	Schema          *AvroSchema
}

// Deserializer decodes records in the Glue Schema Registry wire format.
//
// Writer schemas are fetched by version id and cached. Deserializer is safe
// for concurrent use.
type Deserializer struct {
	registry VersionRegistry

	mu      sync.RWMutex
	schemas map[uuid.UUID]*AvroSchema
}

// NewDeserializer returns a Deserializer resolving writer schemas through registry.
func NewDeserializer(registry VersionRegistry) (*Deserializer, error) {
	if registry == nil {
		return nil, errNilRegistry
	}

	return &Deserializer{
		registry: registry,
		schemas:  make(map[uuid.UUID]*AvroSchema),
	}, nil
}

// Deserialize decodes data into a generic record.
func (d *Deserializer) Deserialize(ctx context.Context, data []byte) (*Record, error) {
	versionID, payload, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	writerSchema, err := d.schemaFor(ctx, versionID)
	if err != nil {
		return nil, err
	}

	decoded := make(map[string]any)
	if err := avro.Unmarshal(writerSchema.Schema, payload, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode avro record for schema version %s: %w", versionID, err)
	}

	return &Record{Data: decoded, SchemaVersionID: versionID, Schema: writerSchema}, nil
}

func (d *Deserializer) schemaFor(ctx context.Context, versionID uuid.UUID) (*AvroSchema, error) {
	d.mu.RLock()
	cached, ok := d.schemas[versionID]
	d.mu.RUnlock()

	if ok {
		return cached, nil
	}

	definition, err := d.registry.GetSchemaDefinitionByID(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema version %s: %w", versionID, err)
	}

	parsed, err := ParseAvroSchema(definition)
	if err != nil {
		return nil, fmt.Errorf("schema version %s: %w", versionID, err)
	}

	d.mu.Lock()
	d.schemas[versionID] = parsed
	d.mu.Unlock()

	return parsed, nil
}
