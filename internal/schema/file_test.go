package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

const userSchema = `{
  "type": "record",
  "name": "User",
  "namespace": "example.avro",
  "fields": [
    {"name": "name", "type": "string"},
    {"name": "favorite_number", "type": ["int", "null"]},
    {"name": "favorite_color", "type": ["string", "null"]}
  ]
}`

func writeSchema(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "schema.avsc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFacetFromFile_PreservesOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeSchema(t, `{"fields":[{"name":"id","type":"long"},{"name":"name","type":"string"}]}`)

	facet, err := LoadFacetFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []lineage.SchemaField{
		{Name: "id", Type: "long"},
		{Name: "name", Type: "string"},
	}, facet.Fields)
}

func TestLoadFacetFromFile_NestedTypesRenderedAsJSON(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	facet, err := LoadFacetFromFile(writeSchema(t, userSchema))
	require.NoError(t, err)

	require.Len(t, facet.Fields, 3)
	assert.Equal(t, lineage.SchemaField{Name: "name", Type: "string"}, facet.Fields[0])
	assert.Equal(t, lineage.SchemaField{Name: "favorite_number", Type: `["int","null"]`}, facet.Fields[1])
	assert.Equal(t, lineage.SchemaField{Name: "favorite_color", Type: `["string","null"]`}, facet.Fields[2])
}

func TestLoadFacetFromFile_Errors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := LoadFacetFromFile(filepath.Join(t.TempDir(), "missing.avsc"))
	require.ErrorIs(t, err, ErrSchemaFileNotFound)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"invalid json", `{"fields": [`, ErrSchemaParse},
		{"no fields array", `{"type": "record", "name": "User"}`, ErrMalformedSchema},
		{"field without name", `{"fields": [{"type": "long"}]}`, ErrMalformedSchema},
		{"field with empty name", `{"fields": [{"name": "", "type": "long"}]}`, ErrMalformedSchema},
		{"field without type", `{"fields": [{"name": "id"}]}`, ErrMalformedSchema},
		{"field with null type", `{"fields": [{"name": "id", "type": null}]}`, ErrMalformedSchema},
		{"field is a string", `{"fields": ["id"]}`, ErrMalformedSchema},
		{"field is null", `{"fields": [null]}`, ErrMalformedSchema},
		{"numeric field name", `{"fields": [{"name": 1, "type": "long"}]}`, ErrMalformedSchema},
		{"fields is an object", `{"fields": {"name": "id"}}`, ErrMalformedSchema},
		{"fields is null", `{"fields": null}`, ErrMalformedSchema},
		{"document is an array", `[{"name": "id", "type": "long"}]`, ErrMalformedSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFacetFromFile(writeSchema(t, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)

			if tt.wantErr == ErrMalformedSchema {
				assert.NotErrorIs(t, err, ErrSchemaParse, "valid JSON must not be reported as a parse error")
			}
		})
	}
}

func TestParseFacet_ManyFields(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	facet, err := ParseFacet([]byte(`{"fields":[
		{"name":"a","type":"int"},
		{"name":"b","type":"boolean"},
		{"name":"c","type":{"type":"array","items":"string"}},
		{"name":"d","type":"bytes"},
		{"name":"e","type":"double"}
	]}`))
	require.NoError(t, err)

	names := make([]string, 0, len(facet.Fields))
	for _, field := range facet.Fields {
		names = append(names, field.Name)
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
	assert.Equal(t, `{"type":"array","items":"string"}`, facet.Fields[2].Type)
}

func TestParseFacet_EmptyFields(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	facet, err := ParseFacet([]byte(`{"fields": []}`))
	require.NoError(t, err)

	assert.Empty(t, facet.Fields)
}

func TestLoadAvroSchema(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	parsed, err := LoadAvroSchema(writeSchema(t, userSchema))
	require.NoError(t, err)

	assert.Equal(t, userSchema, parsed.Definition)
	require.Equal(t, avro.Record, parsed.Schema.Type())
	assert.Equal(t, "example.avro.User", parsed.Schema.(avro.NamedSchema).FullName())

	_, err = LoadAvroSchema(writeSchema(t, `{"type": "record"`))
	require.ErrorIs(t, err, ErrSchemaParse)

	_, err = LoadAvroSchema(writeSchema(t, `{"type": "not-a-type"}`))
	require.ErrorIs(t, err, ErrMalformedSchema)

	_, err = LoadAvroSchema(filepath.Join(t.TempDir(), "missing.avsc"))
	require.ErrorIs(t, err, ErrSchemaFileNotFound)
}
