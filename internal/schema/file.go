// Package schema resolves record schemas into OpenLineage schema facets, either
// from a local JSON file or from the AWS Glue Schema Registry, and encodes
// Kafka records in the Glue Schema Registry wire format.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hamba/avro/v2"

	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// LoadFacetFromFile reads a JSON schema document from path and converts its
// top-level fields array into a schema facet.
//
// The file is read on every call.
func LoadFacetFromFile(path string) (*lineage.SchemaDatasetFacet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaFileNotFound, path)
		}

		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	facet, err := ParseFacet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return facet, nil
}

// ParseFacet converts a schema definition of the form
// {"fields": [{"name": ..., "type": ...}, ...]} into a schema facet.
//
// Field order is preserved. A string type is kept as is; any other type
// (union array, nested record, map) is rendered as compact JSON.
func ParseFacet(data []byte) (*lineage.SchemaDatasetFacet, error) {
	if !json.Valid(data) {
		return nil, ErrSchemaParse
	}

	var document map[string]json.RawMessage
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: schema is not an object", ErrMalformedSchema)
	}

	rawFields, ok := document["fields"]
	if !ok || isNull(rawFields) {
		return nil, fmt.Errorf("%w: missing fields array", ErrMalformedSchema)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(rawFields, &entries); err != nil {
		return nil, fmt.Errorf("%w: fields is not an array", ErrMalformedSchema)
	}

	fields := make([]lineage.SchemaField, 0, len(entries))

	for i, entry := range entries {
		field, err := parseField(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %w", ErrMalformedSchema, i, err)
		}

		fields = append(fields, field)
	}

	return lineage.NewSchemaDatasetFacet(fields), nil
}

// parseField decodes one fields entry. The type is kept undecoded: Avro
// types may be a name, a union array or a nested record.
func parseField(entry json.RawMessage) (lineage.SchemaField, error) {
	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(entry, &attrs); err != nil || attrs == nil {
		return lineage.SchemaField{}, errors.New("not an object")
	}

	var name string
	if err := json.Unmarshal(attrs["name"], &name); err != nil || name == "" {
		return lineage.SchemaField{}, errors.New("name must be a non-empty string")
	}

	fieldType, err := typeString(attrs["type"])
	if err != nil {
		return lineage.SchemaField{}, fmt.Errorf("field %q: %w", name, err)
	}

	return lineage.SchemaField{Name: name, Type: fieldType}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func typeString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", errors.New("no type")
	}

	trimmed := bytes.TrimSpace(raw)

	var name string
	if err := json.Unmarshal(trimmed, &name); err == nil {
		if name == "" {
			return "", errors.New("empty type")
		}

		return name, nil
	}

	var compacted bytes.Buffer
	if err := json.Compact(&compacted, trimmed); err != nil {
		return "", err
	}

	return compacted.String(), nil
}

// AvroSchema is a parsed Avro schema together with its source text,
// which is what the registry stores and compares.
type AvroSchema struct {
	Definition string
	Schema     avro.Schema
}

// LoadAvroSchema reads and parses the Avro schema at path.
func LoadAvroSchema(path string) (*AvroSchema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaFileNotFound, path)
		}

		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	return ParseAvroSchema(string(data))
}

// ParseAvroSchema parses an Avro schema definition.
func ParseAvroSchema(text string) (*AvroSchema, error) {
	if !json.Valid([]byte(text)) {
		return nil, ErrSchemaParse
	}

	parsed, err := avro.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSchema, err)
	}

	return &AvroSchema{Definition: text, Schema: parsed}, nil
}
