package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
kafka:
  cluster_name: msk-producer
  topic: users
  brokers:
    - b-1.msk.example:9096
    - b-2.msk.example:9096
  authentication: sasl_scram
  username: producer
  password: secret
  group_id: consumer-job
openlineage:
  transport_type: datazone
  domain_id: dzd_abc123
  region: eu-west-1
gsr:
  region: eu-west-1
  registry_name: streaming-registry
  schema_file: user.avsc
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := Load(writeConfig(t, fullConfig))

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "msk-producer", cfg.Kafka.ClusterName)
	assert.Equal(t, "users", cfg.Kafka.Topic)
	assert.Equal(t, []string{"b-1.msk.example:9096", "b-2.msk.example:9096"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sasl_scram", cfg.Kafka.Authentication)
	assert.Equal(t, "datazone", cfg.OpenLineage.TransportType)
	assert.Equal(t, "dzd_abc123", cfg.OpenLineage.DomainID)
	assert.Equal(t, "eu-west-1", cfg.OpenLineage.Region)
	assert.Equal(t, "streaming-registry", cfg.GSR.RegistryName)
	assert.Equal(t, "user.avsc", cfg.GSR.SchemaFile)
}

func TestLoad_MissingFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := Load("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoad_InvalidYAML(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := Load(writeConfig(t, "kafka:\n  topic: [invalid yaml\n"))

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrConfigParse)
}

func TestLoad_EmptyFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := Load(writeConfig(t, ""))

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Kafka.Topic)
}

func TestLoad_RereadsFileOnEveryCall(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeConfig(t, "kafka:\n  topic: first\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Kafka.Topic)

	require.NoError(t, os.WriteFile(path, []byte("kafka:\n  topic: second\n"), 0o600))

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.Kafka.Topic)
}

func TestLoadFromEnv_CustomPath(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv(ConfigPathEnvVar, writeConfig(t, fullConfig))

	cfg, err := LoadFromEnv()

	require.NoError(t, err)
	assert.Equal(t, "msk-producer", cfg.Kafka.ClusterName)
}

func TestLoadFromEnv_DefaultPathMissing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv(ConfigPathEnvVar, "")
	t.Chdir(t.TempDir())

	_, err := LoadFromEnv()

	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestRequire(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	tests := []struct {
		name    string
		keys    []string
		wantErr bool
		missing string
	}{
		{"all present", []string{KeyKafkaClusterName, KeyKafkaTopic, KeyRegistryName}, false, ""},
		{"brokers present", []string{KeyKafkaBrokers}, false, ""},
		{"url absent", []string{KeyKafkaTopic, KeyOpenLineageURL}, true, KeyOpenLineageURL},
		{"unknown key", []string{"kafka.nope"}, true, "kafka.nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.Require(tt.keys...)
			if !tt.wantErr {
				assert.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, ErrMissingConfigKey)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestRequire_BlankValueIsMissing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &Config{Kafka: KafkaConfig{ClusterName: "   ", Brokers: []string{""}}}

	assert.ErrorIs(t, cfg.Require(KeyKafkaClusterName), ErrMissingConfigKey)
	assert.ErrorIs(t, cfg.Require(KeyKafkaBrokers), ErrMissingConfigKey)
}

func TestDerivedValues(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &Config{Kafka: KafkaConfig{Topic: "users"}}

	assert.Equal(t, "users", cfg.SchemaName())
	assert.Equal(t, DefaultProducer, cfg.Producer())
	assert.Equal(t, "BACKWARD", cfg.Compatibility())

	cfg.GSR.SchemaName = "user-value"
	cfg.GSR.Compatibility = "full"
	cfg.OpenLineage.Producer = "https://example.com/producer"

	assert.Equal(t, "user-value", cfg.SchemaName())
	assert.Equal(t, "https://example.com/producer", cfg.Producer())
	assert.Equal(t, "FULL", cfg.Compatibility())
}

func TestLoadFromEnv_BrokersOverride(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv(ConfigPathEnvVar, writeConfig(t, fullConfig))
	t.Setenv(BrokersEnvVar, " localhost:9092, ,localhost:9093 ")

	cfg, err := LoadFromEnv()

	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Kafka.Brokers)
}

func TestOverrideFromEnv_BlankKeepsFileBrokers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv(BrokersEnvVar, " , ")

	cfg := NewTestConfig("b-1:9096")
	cfg.OverrideFromEnv()

	assert.Equal(t, []string{"b-1:9096"}, cfg.Kafka.Brokers)
}
