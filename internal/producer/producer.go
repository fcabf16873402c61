// Package producer writes Avro records to a Kafka topic through the Glue
// Schema Registry and reports the run to the lineage collector: START when
// the producer starts, COMPLETE or FAIL when it closes. The topic is reported
// as an output dataset carrying the schema facet of gsr.schema_file.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/emitter"
	"github.com/correlator-io/kafka-lineage/internal/kafkaconn"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
	"github.com/correlator-io/kafka-lineage/internal/metrics"
	"github.com/correlator-io/kafka-lineage/internal/schema"
	"github.com/correlator-io/kafka-lineage/internal/transport"
)

// DefaultJobName is the job name reported when none is configured.
const DefaultJobName = "producer-job"

// ErrProducerClosed is returned by Send after Close.
var ErrProducerClosed = errors.New("producer is closed")

type (
	// MessageWriter is the subset of *kafka.Writer used by Producer.
	MessageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// RecordSerializer encodes one record into a registry-framed payload.
	RecordSerializer interface {
		Serialize(ctx context.Context, record any) ([]byte, error)
	}

	// LineageClient delivers run events. *transport.Client implements it.
	LineageClient interface {
		Emit(ctx context.Context, event *lineage.RunEvent) error
		Close() error
	}

	// Producer sends records to kafka.topic as one lineage run.
	Producer struct {
		topic      string
		jobName    string
		writer     MessageWriter
		serializer RecordSerializer
		client     LineageClient
		emitter    *emitter.Emitter
		tracker    *lineage.Tracker
		datasets   []lineage.Dataset
		logger     *slog.Logger

		mu     sync.RWMutex
		closed bool
	}

	options struct {
		jobName    string
		runID      string
		logger     *slog.Logger
		clock      clockwork.Clock
		writer     MessageWriter
		serializer RecordSerializer
		client     LineageClient
		registry   []schema.RegistryOption
		transport  []transport.Option
	}

	// Option configures a Producer.
	Option func(*options)
)

// WithJobName sets the lineage job name. Defaults to DefaultJobName.
func WithJobName(name string) Option {
	return func(o *options) {
		o.jobName = name
	}
}

// WithRunID sets the lineage run id. Defaults to a new UUIDv7.
func WithRunID(runID string) Option {
	return func(o *options) {
		o.runID = runID
	}
}

// WithLogger sets the logger of the producer and the components it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock stamping lineage events.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithWriter replaces the kafka writer built from configuration.
func WithWriter(writer MessageWriter) Option {
	return func(o *options) {
		o.writer = writer
	}
}

// WithSerializer replaces the Glue Schema Registry serializer.
func WithSerializer(serializer RecordSerializer) Option {
	return func(o *options) {
		o.serializer = serializer
	}
}

// WithLineageClient replaces the lineage client built from openlineage.transport_type.
func WithLineageClient(client LineageClient) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithRegistryOptions passes options to the schema registry client.
func WithRegistryOptions(opts ...schema.RegistryOption) Option {
	return func(o *options) {
		o.registry = append(o.registry, opts...)
	}
}

// WithTransportOptions passes options to the lineage client.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) {
		o.transport = append(o.transport, opts...)
	}
}

// New builds a Producer for cfg.
//
// Required keys: kafka.cluster_name, kafka.topic, gsr.schema_file, plus the
// keys of every component not replaced by an option (kafka.brokers for the
// writer, gsr.region and gsr.registry_name for the serializer, the transport
// keys for the lineage client).
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Producer, error) {
	if err := cfg.Require(config.KeyKafkaClusterName, config.KeyKafkaTopic, config.KeyRegistrySchemaFile); err != nil {
		return nil, err
	}

	o := &options{
		jobName: DefaultJobName,
		logger:  slog.Default(),
		clock:   clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	if o.runID == "" {
		runID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate run id: %w", err)
		}

		o.runID = runID.String()
	}

	facet, err := schema.LoadFacetFromFile(cfg.GSR.SchemaFile)
	if err != nil {
		return nil, err
	}

	datasets, err := emitter.CreateDatasets(cfg, facet)
	if err != nil {
		return nil, err
	}

	if o.serializer == nil {
		serializer, err := newSerializer(ctx, cfg, o)
		if err != nil {
			return nil, err
		}

		o.serializer = serializer
	}

	if o.writer == nil {
		writer, err := kafkaconn.NewWriter(cfg, cfg.Kafka.Topic, o.logger)
		if err != nil {
			return nil, err
		}

		o.writer = writer
	}

	if o.client == nil {
		client, err := transport.NewClient(ctx, cfg, append([]transport.Option{transport.WithLogger(o.logger)}, o.transport...)...)
		if err != nil {
			_ = o.writer.Close()

			return nil, err
		}

		o.client = client
	}

	lineageEmitter, err := emitter.New(cfg, o.client, emitter.WithClock(o.clock), emitter.WithLogger(o.logger))
	if err != nil {
		_ = o.writer.Close()
		_ = o.client.Close()

		return nil, err
	}

	return &Producer{
		topic:      cfg.Kafka.Topic,
		jobName:    o.jobName,
		writer:     o.writer,
		serializer: o.serializer,
		client:     o.client,
		emitter:    lineageEmitter,
		tracker:    lineage.NewTracker(o.runID),
		datasets:   datasets,
		logger:     o.logger.With(slog.String("job", o.jobName), slog.String("topic", cfg.Kafka.Topic)),
	}, nil
}

func newSerializer(ctx context.Context, cfg *config.Config, o *options) (*schema.Serializer, error) {
	avroSchema, err := schema.LoadAvroSchema(cfg.GSR.SchemaFile)
	if err != nil {
		return nil, err
	}

	registry, err := schema.NewRegistry(ctx, cfg, append([]schema.RegistryOption{schema.WithLogger(o.logger)}, o.registry...)...)
	if err != nil {
		return nil, err
	}

	return schema.NewSerializer(registry, cfg.SchemaName(), avroSchema)
}

// RunID returns the lineage run id of this producer.
func (p *Producer) RunID() string {
	return p.tracker.RunID()
}

// Start emits the START event of the run.
func (p *Producer) Start(ctx context.Context) error {
	return p.emit(ctx, lineage.EventTypeStart)
}

// Send serializes record with the registered schema and writes it under key.
func (p *Producer) Send(ctx context.Context, key []byte, record any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrProducerClosed
	}

	err := p.send(ctx, key, record)
	metrics.RecordsProducedTotal.WithLabelValues(p.topic, metrics.Status(err)).Inc()

	return err
}

func (p *Producer) send(ctx context.Context, key []byte, record any) error {
	value, err := p.serializer.Serialize(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to serialize record for %s: %w", p.topic, err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("failed to write record to %s: %w", p.topic, err)
	}

	p.logger.Debug("Sent record", slog.Int("bytes", len(value)))

	return nil
}

// Close ends the run: COMPLETE when runErr is nil, FAIL otherwise. No
// terminal event is sent for a run that never started. The writer and the
// lineage client are closed even when the terminal event cannot be delivered.
// Later calls return nil.
func (p *Producer) Close(ctx context.Context, runErr error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return nil
	}

	p.closed = true
	p.mu.Unlock()

	state := lineage.EventTypeComplete
	if runErr != nil {
		state = lineage.EventTypeFail

		p.logger.Error("Producer run failed", slog.String("error", runErr.Error()))
	}

	var emitErr error

	if p.tracker.State() == "" {
		p.logger.Warn("Producer closed before Start, no terminal lineage event sent",
			slog.String("run_id", p.RunID()))
	} else {
		emitErr = p.emit(ctx, state)
	}

	return errors.Join(emitErr, p.writer.Close(), p.client.Close())
}

func (p *Producer) emit(ctx context.Context, state lineage.EventType) error {
	if err := p.tracker.Advance(state); err != nil {
		return err
	}

	_, err := p.emitter.EmitEvent(ctx, emitter.EmitParams{
		RunID:       p.tracker.RunID(),
		JobName:     p.jobName,
		State:       string(state),
		Datasets:    p.datasets,
		DatasetType: emitter.DatasetTypeOutput,
	})

	return err
}
