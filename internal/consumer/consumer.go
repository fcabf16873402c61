// Package consumer reads Glue Schema Registry framed Avro records from a Kafka
// topic as one lineage run. The topic is reported as an input dataset; the
// job is named after kafka.group_id.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

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

// DefaultShutdownTimeout bounds delivery of COMPLETE or FAIL once the run context is done.
const DefaultShutdownTimeout = 10 * time.Second

// ErrNilHandler is returned by Run without a handler.
var ErrNilHandler = errors.New("message handler is required")

type (
	// MessageReader is the subset of *kafka.Reader used by Consumer.
	MessageReader interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
		CommitMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// RecordDeserializer decodes a registry-framed payload.
	RecordDeserializer interface {
		Deserialize(ctx context.Context, data []byte) (*schema.Record, error)
	}

	// FacetResolver looks up the schema facet of a registry schema.
	// A nil version requests the latest one.
	FacetResolver interface {
		GetSchemaFacet(ctx context.Context, name string, version *int64) (*lineage.SchemaDatasetFacet, error)
	}

	// LineageClient delivers run events. *transport.Client implements it.
	LineageClient interface {
		Emit(ctx context.Context, event *lineage.RunEvent) error
		Close() error
	}

	// Message is one decoded record with its Kafka coordinates.
	Message struct {
		Topic     string
		Partition int
		Offset    int64
		Key       []byte
		Time      time.Time
		Record    *schema.Record
	}

	// Handler processes one message. A returned error stops the run with FAIL;
	// the message is not committed.
	Handler func(ctx context.Context, msg *Message) error

	// Consumer reads kafka.topic as a member of kafka.group_id.
	Consumer struct {
		cfg          *config.Config
		jobName      string
		reader       MessageReader
		deserializer RecordDeserializer
		resolver     FacetResolver
		client       LineageClient
		emitter      *emitter.Emitter
		tracker      *lineage.Tracker
		logger       *slog.Logger
		shutdown     time.Duration

		closeOnce sync.Once
		closeErr  error
	}

	options struct {
		jobName      string
		runID        string
		shutdown     time.Duration
		logger       *slog.Logger
		clock        clockwork.Clock
		reader       MessageReader
		deserializer RecordDeserializer
		resolver     FacetResolver
		client       LineageClient
		registry     []schema.RegistryOption
		transport    []transport.Option
	}

	// Option configures a Consumer.
	Option func(*options)
)

// WithJobName overrides the job name, which defaults to kafka.group_id.
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

// WithShutdownTimeout bounds delivery of the terminal event after the run
// context is done. Defaults to DefaultShutdownTimeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.shutdown = timeout
	}
}

// WithLogger sets the logger of the consumer and the components it builds.
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

// WithReader replaces the kafka reader built from configuration.
func WithReader(reader MessageReader) Option {
	return func(o *options) {
		o.reader = reader
	}
}

// WithDeserializer replaces the Glue Schema Registry deserializer.
func WithDeserializer(deserializer RecordDeserializer) Option {
	return func(o *options) {
		o.deserializer = deserializer
	}
}

// WithFacetResolver replaces the registry used to resolve the topic schema
// facet when gsr.schema_file is not set.
func WithFacetResolver(resolver FacetResolver) Option {
	return func(o *options) {
		o.resolver = resolver
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

// New builds a Consumer for cfg.
//
// Required keys: kafka.cluster_name, kafka.topic, kafka.group_id, plus the keys
// of every component not replaced by an option.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Consumer, error) {
	err := cfg.Require(config.KeyKafkaClusterName, config.KeyKafkaTopic, config.KeyKafkaGroupID)
	if err != nil {
		return nil, err
	}

	o := &options{
		jobName:  cfg.Kafka.GroupID,
		shutdown: DefaultShutdownTimeout,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	if o.shutdown <= 0 {
		o.shutdown = DefaultShutdownTimeout
	}

	if o.runID == "" {
		runID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate run id: %w", err)
		}

		o.runID = runID.String()
	}

	if o.deserializer == nil || (o.resolver == nil && cfg.GSR.SchemaFile == "") {
		registry, err := schema.NewRegistry(ctx, cfg, append([]schema.RegistryOption{schema.WithLogger(o.logger)}, o.registry...)...)
		if err != nil {
			return nil, err
		}

		if o.deserializer == nil {
			deserializer, err := schema.NewDeserializer(registry)
			if err != nil {
				return nil, err
			}

			o.deserializer = deserializer
		}

		if o.resolver == nil {
			o.resolver = registry
		}
	}

	if o.reader == nil {
		reader, err := kafkaconn.NewReader(cfg, o.logger)
		if err != nil {
			return nil, err
		}

		o.reader = reader
	}

	if o.client == nil {
		client, err := transport.NewClient(ctx, cfg, append([]transport.Option{transport.WithLogger(o.logger)}, o.transport...)...)
		if err != nil {
			_ = o.reader.Close()

			return nil, err
		}

		o.client = client
	}

	lineageEmitter, err := emitter.New(cfg, o.client, emitter.WithClock(o.clock), emitter.WithLogger(o.logger))
	if err != nil {
		_ = o.reader.Close()
		_ = o.client.Close()

		return nil, err
	}

	return &Consumer{
		cfg:          cfg,
		jobName:      o.jobName,
		reader:       o.reader,
		deserializer: o.deserializer,
		resolver:     o.resolver,
		client:       o.client,
		emitter:      lineageEmitter,
		tracker:      lineage.NewTracker(o.runID),
		shutdown:     o.shutdown,
		logger:       o.logger.With(slog.String("job", o.jobName), slog.String("topic", cfg.Kafka.Topic)),
	}, nil
}

// RunID returns the lineage run id of this consumer.
func (c *Consumer) RunID() string {
	return c.tracker.RunID()
}

// Run emits START, then fetches, decodes and hands records to handler until
// ctx is done or an error occurs. Each message is committed after handler
// returns nil. Cancellation ends the run with COMPLETE and a nil error; any
// other error ends it with FAIL and is returned.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	datasets, err := c.datasets(ctx)
	if err != nil {
		return err
	}

	if err := c.emit(ctx, lineage.EventTypeStart, datasets); err != nil {
		return err
	}

	c.logger.Info("Consumer started", slog.String("run_id", c.RunID()))

	runErr := c.consume(ctx, handler)

	state := lineage.EventTypeComplete
	if runErr != nil {
		state = lineage.EventTypeFail

		c.logger.Error("Consumer run failed", slog.String("error", runErr.Error()))
	}

	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.shutdown)
	defer cancel()

	return errors.Join(runErr, c.emit(emitCtx, state, datasets))
}

func (c *Consumer) consume(ctx context.Context, handler Handler) error {
	topic := c.cfg.Kafka.Topic

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if stopped(ctx, err) {
				return nil
			}

			return fmt.Errorf("failed to fetch message from %s: %w", topic, err)
		}

		record, err := c.deserializer.Deserialize(ctx, msg.Value)
		if err != nil {
			metrics.RecordsConsumedTotal.WithLabelValues(topic, metrics.StatusError).Inc()

			return fmt.Errorf("failed to decode message %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}

		if err := handler(ctx, &Message{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Time:      msg.Time,
			Record:    record,
		}); err != nil {
			if stopped(ctx, err) {
				return nil
			}

			metrics.RecordsConsumedTotal.WithLabelValues(topic, metrics.StatusError).Inc()

			return fmt.Errorf("handler failed for message %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if stopped(ctx, err) {
				return nil
			}

			return fmt.Errorf("failed to commit offset %d on %s: %w", msg.Offset, topic, err)
		}

		metrics.RecordsConsumedTotal.WithLabelValues(topic, metrics.StatusSuccess).Inc()
	}
}

// datasets describes the topic with the schema facet of gsr.schema_file, or
// of the latest registry version when no file is configured. A schema absent
// from the registry yields a dataset without facet.
func (c *Consumer) datasets(ctx context.Context) ([]lineage.Dataset, error) {
	var facet *lineage.SchemaDatasetFacet

	if c.cfg.GSR.SchemaFile != "" {
		fileFacet, err := schema.LoadFacetFromFile(c.cfg.GSR.SchemaFile)
		if err != nil {
			return nil, err
		}

		facet = fileFacet
	} else if c.resolver != nil {
		registryFacet, err := c.resolver.GetSchemaFacet(ctx, c.cfg.SchemaName(), nil)

		switch {
		case err == nil:
			facet = registryFacet
		case schema.IsNotFound(err):
			c.logger.Warn("Topic schema not registered, dataset has no schema facet",
				slog.String("schema", c.cfg.SchemaName()))
		default:
			return nil, err
		}
	}

	return emitter.CreateDatasets(c.cfg, facet)
}

func (c *Consumer) emit(ctx context.Context, state lineage.EventType, datasets []lineage.Dataset) error {
	if err := c.tracker.Advance(state); err != nil {
		return err
	}

	_, err := c.emitter.EmitEvent(ctx, emitter.EmitParams{
		RunID:       c.tracker.RunID(),
		JobName:     c.jobName,
		State:       string(state),
		Datasets:    datasets,
		DatasetType: emitter.DatasetTypeInput,
	})

	return err
}

// Close closes the reader and the lineage client. Later calls return the
// first result.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.reader.Close(), c.client.Close())
	})

	return c.closeErr
}

func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
