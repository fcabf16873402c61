package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"
)

var (
	errNilRegistry = errors.New("schema registry is required")
	errNoSubject   = errors.New("schema name is required")
	errNilSchema   = errors.New("avro schema is required")
)

// VersionRegistry registers and resolves schema versions by id.
// *Registry implements it.
type VersionRegistry interface {
	EnsureSchemaVersion(ctx context.Context, name, definition string) (uuid.UUID, error)
	GetSchemaDefinitionByID(ctx context.Context, versionID uuid.UUID) (string, error)
}

// Serializer encodes records as Avro and prepends the Glue Schema Registry header.
//
// The schema version is registered on first use and cached afterwards.
// Serializer is safe for concurrent use.
type Serializer struct {
	registry   VersionRegistry
	schemaName string
	schema     *AvroSchema

	mu        sync.RWMutex
	versionID uuid.UUID
}

// NewSerializer returns a Serializer writing records of schema under schemaName.
// Topics use the topic-name strategy: the schema name is the topic.
func NewSerializer(registry VersionRegistry, schemaName string, schema *AvroSchema) (*Serializer, error) {
	if registry == nil {
		return nil, errNilRegistry
	}

	if schemaName == "" {
		return nil, errNoSubject
	}

	if schema == nil {
		return nil, errNilSchema
	}

	return &Serializer{
		registry:   registry,
		schemaName: schemaName,
		schema:     schema,
	}, nil
}

// SchemaName returns the registry schema name records are written under.
func (s *Serializer) SchemaName() string {
	return s.schemaName
}

// Serialize encodes record. record may be a map[string]any or a struct with avro tags.
func (s *Serializer) Serialize(ctx context.Context, record any) ([]byte, error) {
	payload, err := avro.Marshal(s.schema.Schema, record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode avro record: %w", err)
	}

	versionID, err := s.schemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema %s: %w", s.schemaName, err)
	}

	return EncodeHeader(versionID, payload), nil
}

func (s *Serializer) schemaVersion(ctx context.Context) (uuid.UUID, error) {
	s.mu.RLock()
	versionID := s.versionID
	s.mu.RUnlock()

	if versionID != uuid.Nil {
		return versionID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.versionID != uuid.Nil {
		return s.versionID, nil
	}

	versionID, err := s.registry.EnsureSchemaVersion(ctx, s.schemaName, s.schema.Definition)
	if err != nil {
		return uuid.Nil, err
	}

	s.versionID = versionID

	return versionID, nil
}
