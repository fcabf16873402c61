package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	kafkaImage     = "confluentinc/confluent-local:7.5.0"
	kafkaClusterID = "kafka-lineage-test"
	startUpTimeOut = 120 * time.Second
)

// TestKafka encapsulates test broker resources for cleanup.
// Used by integration tests across multiple packages to maintain consistent test infrastructure.
type TestKafka struct {
	Container *tckafka.KafkaContainer
	Brokers   []string
}

// SetupTestKafka starts a single-node Kafka container and returns its broker addresses.
//
// Usage:
//
//	func TestMyFeature(t *testing.T) {
//		if testing.Short() {
//			t.Skip("skipping integration test in short mode")
//		}
//		ctx := context.Background()
//		testKafka := config.SetupTestKafka(ctx, t)
//		t.Cleanup(func() {
//			_ = testcontainers.TerminateContainer(testKafka.Container)
//		})
//		// ... your test code
//	}
//
// Cleanup is the caller's responsibility using t.Cleanup().
func SetupTestKafka(ctx context.Context, t *testing.T) *TestKafka {
	t.Helper()

	startCtx, cancel := context.WithTimeout(ctx, startUpTimeOut)
	defer cancel()

	kafkaContainer, err := tckafka.Run(startCtx,
		kafkaImage,
		tckafka.WithClusterID(kafkaClusterID),
	)
	require.NoError(t, err, "Failed to start kafka container")
	require.NotNil(t, kafkaContainer, "kafka container is nil")

	brokers, err := kafkaContainer.Brokers(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(kafkaContainer)

		t.Fatalf("Failed to get kafka brokers: %v", err)
	}

	return &TestKafka{
		Container: kafkaContainer,
		Brokers:   brokers,
	}
}

// NewTestConfig returns a Config suitable for unit and integration tests.
// The console transport is selected so no cloud credentials are needed.
func NewTestConfig(brokers ...string) *Config {
	return &Config{
		Kafka: KafkaConfig{
			ClusterName:    "test-cluster",
			Topic:          "users",
			Brokers:        brokers,
			Authentication: "none",
			GroupID:        "consumer-job",
		},
		OpenLineage: OpenLineageConfig{
			TransportType: "console",
			DomainID:      "dzd_test",
			Region:        "us-east-1",
		},
		GSR: RegistryConfig{
			Region:       "us-east-1",
			RegistryName: "test-registry",
		},
	}
}
