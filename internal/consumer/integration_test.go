package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/kafkaconn"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

func TestConsumer_ReadsFromKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	testKafka := config.SetupTestKafka(ctx, t)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(testKafka.Container)
	})

	cfg := config.NewTestConfig(testKafka.Brokers...)

	writer, err := kafkaconn.NewWriter(cfg, cfg.Kafka.Topic, nil)
	require.NoError(t, err)

	require.NoError(t, writer.WriteMessages(ctx,
		kafka.Message{Value: []byte("Francisco Doe")},
		kafka.Message{Value: []byte("Jane Smith")},
	))
	require.NoError(t, writer.Close())

	client := &recordingClient{}

	c, err := New(ctx, cfg,
		WithDeserializer(&fakeDeserializer{}),
		WithFacetResolver(&fakeResolver{}),
		WithLineageClient(client))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var names []string

	err = c.Run(runCtx, func(_ context.Context, msg *Message) error {
		names = append(names, msg.Record.Data["name"].(string))
		if len(names) == 2 {
			cancel()
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Francisco Doe", "Jane Smith"}, names)
	assert.Equal(t, []lineage.EventType{lineage.EventTypeStart, lineage.EventTypeComplete}, client.states())
}
