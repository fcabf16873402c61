package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/datazone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// countingTransport counts deliveries.
type countingTransport struct {
	emitted atomic.Int32
	closed  atomic.Int32
	err     error
}

func (c *countingTransport) Emit(context.Context, *lineage.RunEvent) error {
	c.emitted.Add(1)

	return c.err
}

func (c *countingTransport) Close() error {
	c.closed.Add(1)

	return nil
}

func TestNewClient_Kinds(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()

	tests := []struct {
		name      string
		configure func(cfg *config.Config)
		opts      []Option
		wantKind  Kind
	}{
		{
			name:      "datazone",
			configure: func(cfg *config.Config) { cfg.OpenLineage.TransportType = "datazone" },
			opts:      []Option{WithDataZoneAPI(&mockDataZoneAPI{})},
			wantKind:  KindDataZone,
		},
		{
			name:      "console",
			configure: func(cfg *config.Config) { cfg.OpenLineage.TransportType = "console" },
			wantKind:  KindConsole,
		},
		{
			name: "kafka",
			configure: func(cfg *config.Config) {
				cfg.OpenLineage.TransportType = "kafka"
				cfg.OpenLineage.Topic = "openlineage"
			},
			opts:     []Option{WithKafkaWriter(&fakeWriter{})},
			wantKind: KindKafka,
		},
		{
			name: "http",
			configure: func(cfg *config.Config) {
				cfg.OpenLineage.TransportType = "http"
				cfg.OpenLineage.URL = "http://localhost:8080/api/v1/lineage/events"
			},
			wantKind: KindHTTP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewTestConfig()
			tt.configure(cfg)

			client, err := NewClient(ctx, cfg, tt.opts...)
			require.NoError(t, err)
			t.Cleanup(func() { _ = client.Close() })

			assert.Equal(t, tt.wantKind, client.Kind())
		})
	}
}

func TestNewClient_UnsupportedTransport(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	for _, transportType := range []string{"", "marquez", "datazone2"} {
		cfg := config.NewTestConfig()
		cfg.OpenLineage.TransportType = transportType

		client, err := NewClient(context.Background(), cfg)

		require.ErrorIs(t, err, ErrUnsupportedTransport, "transport_type %q", transportType)
		assert.Nil(t, client)
	}
}

func TestNewClient_MissingKindKeys(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		kind    string
		wantKey string
	}{
		{"kafka", config.KeyOpenLineageTopic},
		{"http", config.KeyOpenLineageURL},
	}

	for _, tt := range tests {
		cfg := config.NewTestConfig()
		cfg.OpenLineage.TransportType = tt.kind

		_, err := NewClient(context.Background(), cfg)

		require.ErrorIs(t, err, config.ErrMissingConfigKey)
		assert.Contains(t, err.Error(), tt.wantKey)
	}

	cfg := config.NewTestConfig()
	cfg.OpenLineage.TransportType = "datazone"
	cfg.OpenLineage.Region = ""

	_, err := NewClient(context.Background(), cfg, WithDataZoneAPI(&mockDataZoneAPI{}))
	require.ErrorIs(t, err, config.ErrMissingConfigKey)
}

func TestClient_EmitThroughDataZone(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var posts atomic.Int32

	api := &mockDataZoneAPI{
		postLineageEventFunc: func(context.Context, *datazone.PostLineageEventInput, ...func(*datazone.Options)) (*datazone.PostLineageEventOutput, error) {
			posts.Add(1)

			return &datazone.PostLineageEventOutput{}, nil
		},
	}

	cfg := config.NewTestConfig()
	cfg.OpenLineage.TransportType = "datazone"

	client, err := NewClient(context.Background(), cfg, WithDataZoneAPI(api))
	require.NoError(t, err)

	require.NoError(t, client.Emit(context.Background(), testEvent()))
	assert.Equal(t, int32(1), posts.Load())
}

func TestClient_RejectsInvalidEvents(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transport := &countingTransport{}
	client := NewClientWithTransport(KindConsole, transport)

	err := client.Emit(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidEvent)
	require.ErrorIs(t, err, lineage.ErrNilEvent)

	event := testEvent()
	event.Job.Name = ""

	err = client.Emit(context.Background(), event)
	require.ErrorIs(t, err, ErrInvalidEvent)
	require.ErrorIs(t, err, lineage.ErrMissingJobName)

	assert.Equal(t, int32(0), transport.emitted.Load())
}

func TestClient_ReturnsTransportErrorWithoutRetry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	deliveryErr := errors.New("network unreachable")
	transport := &countingTransport{err: deliveryErr}

	var logs bytes.Buffer

	client := NewClientWithTransport(KindHTTP, transport, WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	err := client.Emit(context.Background(), testEvent())

	require.ErrorIs(t, err, deliveryErr)
	assert.Equal(t, int32(1), transport.emitted.Load())
}

func TestClient_RateLimit(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transport := &countingTransport{}
	client := NewClientWithTransport(KindConsole, transport, WithRateLimit(1, 1))

	require.NoError(t, client.Emit(context.Background(), testEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Emit(ctx, testEvent())
	require.Error(t, err, "second event must wait for a token beyond the deadline")
	assert.Equal(t, int32(1), transport.emitted.Load())
}

func TestClient_RateLimitFromConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := config.NewTestConfig()
	cfg.OpenLineage.RateLimitRPS = 2
	cfg.OpenLineage.RateLimitBurst = 3

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)

	require.NotNil(t, client.limiter)
	assert.Equal(t, 3, client.limiter.Burst())
}

func TestClient_CloseOnce(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	transport := &countingTransport{}
	client := NewClientWithTransport(KindConsole, transport)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, int32(1), transport.closed.Load())
}
