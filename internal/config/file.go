package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location of the configuration file, relative to the working directory.
const DefaultConfigPath = "config.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config path.
const ConfigPathEnvVar = "LINEAGE_CONFIG_PATH"

// BrokersEnvVar overrides kafka.brokers with a comma-separated broker list.
const BrokersEnvVar = "LINEAGE_KAFKA_BROKERS"

// ShutdownTimeoutEnvVar bounds delivery of the terminal lineage event on shutdown.
const ShutdownTimeoutEnvVar = "LINEAGE_SHUTDOWN_TIMEOUT"

// DefaultProducer identifies this module as the producer of emitted lineage events.
const DefaultProducer = "https://github.com/correlator-io/kafka-lineage"

// Dotted configuration keys accepted by Config.Require.
const (
	KeyKafkaClusterName         = "kafka.cluster_name"
	KeyKafkaTopic               = "kafka.topic"
	KeyKafkaBrokers             = "kafka.brokers"
	KeyKafkaGroupID             = "kafka.group_id"
	KeyOpenLineageTransportType = "openlineage.transport_type"
	KeyOpenLineageDomainID      = "openlineage.domain_id"
	KeyOpenLineageRegion        = "openlineage.region"
	KeyOpenLineageURL           = "openlineage.url"
	KeyOpenLineageTopic         = "openlineage.topic"
	KeyRegistryRegion           = "gsr.region"
	KeyRegistryName             = "gsr.registry_name"
	KeyRegistrySchemaFile       = "gsr.schema_file"
)

const defaultRegistryCompatibility = "BACKWARD"

// Sentinel errors for configuration loading.
var (
	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigParse indicates the configuration file is not valid YAML.
	ErrConfigParse = errors.New("config file is not valid YAML")

	// ErrMissingConfigKey indicates a key required by a component is absent or empty.
	ErrMissingConfigKey = errors.New("missing config key")
)

type (
	// Config holds the deployment parameters loaded from config.yaml.
	//
	// A Config is immutable once loaded and is passed explicitly to every component
	// that needs it. Keys are not validated at load time: components call Require
	// for the keys they depend on.
	Config struct {
		Kafka       KafkaConfig       `yaml:"kafka"`
		OpenLineage OpenLineageConfig `yaml:"openlineage"`
		GSR         RegistryConfig    `yaml:"gsr"`
	}

	// KafkaConfig describes the cluster and topic the producer and consumer work with.
	KafkaConfig struct {
		ClusterName    string   `yaml:"cluster_name"`   //nolint:tagliatelle // snake_case is intentional for YAML config files
		Topic          string   `yaml:"topic"`
		Brokers        []string `yaml:"brokers"`
		Authentication string   `yaml:"authentication"`
		Username       string   `yaml:"username"`
		Password       string   `yaml:"password"` //nolint:gosec // loaded from a trusted config file
		GroupID        string   `yaml:"group_id"` //nolint:tagliatelle
		Compression    string   `yaml:"compression"`
		CACertFile     string   `yaml:"ca_cert_file"` //nolint:tagliatelle
	}

	// OpenLineageConfig selects and parameterizes the lineage transport.
	OpenLineageConfig struct {
		TransportType  string  `yaml:"transport_type"` //nolint:tagliatelle
		DomainID       string  `yaml:"domain_id"`      //nolint:tagliatelle
		Region         string  `yaml:"region"`
		Producer       string  `yaml:"producer"`
		URL            string  `yaml:"url"`
		APIKey         string  `yaml:"api_key"` //nolint:tagliatelle,gosec
		Topic          string  `yaml:"topic"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`   //nolint:tagliatelle
		RateLimitBurst int     `yaml:"rate_limit_burst"` //nolint:tagliatelle
	}

	// RegistryConfig locates the AWS Glue Schema Registry and the local schema file.
	RegistryConfig struct {
		Region        string `yaml:"region"`
		RegistryName  string `yaml:"registry_name"` //nolint:tagliatelle
		SchemaFile    string `yaml:"schema_file"`   //nolint:tagliatelle
		SchemaName    string `yaml:"schema_name"`   //nolint:tagliatelle
		Compatibility string `yaml:"compatibility"`
	}
)

// Load reads and parses the YAML configuration at path.
//
// The file is read on every call; nothing is cached. An empty document yields an
// empty Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}

		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigParse, path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads config from the path in LINEAGE_CONFIG_PATH, falling back
// to "config.yaml" in the current directory, and applies OverrideFromEnv.
func LoadFromEnv() (*Config, error) {
	cfg, err := Load(GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
	if err != nil {
		return nil, err
	}

	cfg.OverrideFromEnv()

	return cfg, nil
}

// OverrideFromEnv replaces kafka.brokers with LINEAGE_KAFKA_BROKERS when that
// variable lists at least one broker.
func (c *Config) OverrideFromEnv() {
	if brokers := ParseCommaSeparatedList(GetEnvStr(BrokersEnvVar, "")); len(brokers) > 0 {
		c.Kafka.Brokers = brokers
	}
}

// Require returns an error wrapping ErrMissingConfigKey for the first listed key
// that is absent or blank.
func (c *Config) Require(keys ...string) error {
	for _, key := range keys {
		if !c.has(key) {
			return fmt.Errorf("%w: %s", ErrMissingConfigKey, key)
		}
	}

	return nil
}

func (c *Config) has(key string) bool {
	switch key {
	case KeyKafkaClusterName:
		return present(c.Kafka.ClusterName)
	case KeyKafkaTopic:
		return present(c.Kafka.Topic)
	case KeyKafkaBrokers:
		for _, broker := range c.Kafka.Brokers {
			if present(broker) {
				return true
			}
		}

		return false
	case KeyKafkaGroupID:
		return present(c.Kafka.GroupID)
	case KeyOpenLineageTransportType:
		return present(c.OpenLineage.TransportType)
	case KeyOpenLineageDomainID:
		return present(c.OpenLineage.DomainID)
	case KeyOpenLineageRegion:
		return present(c.OpenLineage.Region)
	case KeyOpenLineageURL:
		return present(c.OpenLineage.URL)
	case KeyOpenLineageTopic:
		return present(c.OpenLineage.Topic)
	case KeyRegistryRegion:
		return present(c.GSR.Region)
	case KeyRegistryName:
		return present(c.GSR.RegistryName)
	case KeyRegistrySchemaFile:
		return present(c.GSR.SchemaFile)
	default:
		return false
	}
}

// SchemaName returns the registry schema name for the configured topic.
// Schemas are named after the topic unless gsr.schema_name overrides it.
func (c *Config) SchemaName() string {
	if present(c.GSR.SchemaName) {
		return c.GSR.SchemaName
	}

	return c.Kafka.Topic
}

// Producer returns the producer URI stamped on emitted lineage events.
func (c *Config) Producer() string {
	if present(c.OpenLineage.Producer) {
		return c.OpenLineage.Producer
	}

	return DefaultProducer
}

// Compatibility returns the registry compatibility mode used when a schema is created.
func (c *Config) Compatibility() string {
	if present(c.GSR.Compatibility) {
		return strings.ToUpper(c.GSR.Compatibility)
	}

	return defaultRegistryCompatibility
}

func present(value string) bool {
	return strings.TrimSpace(value) != ""
}
