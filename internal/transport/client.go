package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/kafkaconn"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
	"github.com/correlator-io/kafka-lineage/internal/metrics"
)

// Client validates run events and delivers them through one Transport.
//
// Delivery is attempted once per Emit. When a rate limit is configured, Emit
// waits for a token or until ctx is done. Client is safe for concurrent use.
type Client struct {
	kind      Kind
	transport Transport
	validator *lineage.Validator
	limiter   *rate.Limiter
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

type clientOptions struct {
	logger      *slog.Logger
	dataZoneAPI DataZoneAPI
	httpClient  *http.Client
	kafkaWriter MessageWriter
	rateLimit   rate.Limit
	burst       int
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the logger used by the client and the console transport.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *clientOptions) {
		opts.logger = logger
	}
}

// WithDataZoneAPI replaces the DataZone client built from the AWS default configuration.
func WithDataZoneAPI(api DataZoneAPI) Option {
	return func(opts *clientOptions) {
		opts.dataZoneAPI = api
	}
}

// WithHTTPClient sets the HTTP client of the http transport.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *clientOptions) {
		opts.httpClient = client
	}
}

// WithKafkaWriter replaces the writer the kafka transport builds from configuration.
func WithKafkaWriter(writer MessageWriter) Option {
	return func(opts *clientOptions) {
		opts.kafkaWriter = writer
	}
}

// WithRateLimit caps deliveries at rps events per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(opts *clientOptions) {
		opts.rateLimit = rate.Limit(rps)
		opts.burst = burst
	}
}

func newClientOptions(cfg *config.Config, opts []Option) *clientOptions {
	options := &clientOptions{
		logger:    slog.Default(),
		rateLimit: rate.Limit(cfg.OpenLineage.RateLimitRPS),
		burst:     cfg.OpenLineage.RateLimitBurst,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.logger == nil {
		options.logger = slog.Default()
	}

	return options
}

// NewClient builds the transport named by openlineage.transport_type and
// wraps it in a Client.
//
// Supported kinds and the keys they require:
//   - datazone: openlineage.domain_id, openlineage.region
//   - console: none
//   - kafka: kafka.brokers, openlineage.topic
//   - http: openlineage.url (openlineage.api_key is optional)
//
// Any other transport type fails with ErrUnsupportedTransport.
func NewClient(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Require(config.KeyOpenLineageTransportType); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedTransport, err)
	}

	kind, err := ParseKind(cfg.OpenLineage.TransportType)
	if err != nil {
		return nil, err
	}

	options := newClientOptions(cfg, opts)

	var transport Transport

	switch kind {
	case KindDataZone:
		dataZone, err := NewDataZoneTransport(ctx, cfg, options.dataZoneAPI)
		if err != nil {
			return nil, err
		}

		transport = dataZone
	case KindConsole:
		transport = NewConsoleTransport(options.logger)
	case KindKafka:
		if err := cfg.Require(config.KeyOpenLineageTopic); err != nil {
			return nil, err
		}

		writer := options.kafkaWriter
		if writer == nil {
			kafkaWriter, err := kafkaconn.NewWriter(cfg, cfg.OpenLineage.Topic, options.logger)
			if err != nil {
				return nil, err
			}

			writer = kafkaWriter
		}

		transport = NewKafkaTransport(writer)
	case KindHTTP:
		if err := cfg.Require(config.KeyOpenLineageURL); err != nil {
			return nil, err
		}

		transport = NewHTTPTransport(cfg.OpenLineage.URL, cfg.OpenLineage.APIKey, options.httpClient)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, kind)
	}

	return newClient(kind, transport, options), nil
}

// NewClientWithTransport wraps an existing transport. kind labels metrics and logs.
func NewClientWithTransport(kind Kind, transport Transport, opts ...Option) *Client {
	return newClient(kind, transport, newClientOptions(&config.Config{}, opts))
}

func newClient(kind Kind, transport Transport, options *clientOptions) *Client {
	client := &Client{
		kind:      kind,
		transport: transport,
		validator: lineage.NewValidator(),
		logger:    options.logger,
	}

	if options.rateLimit > 0 {
		burst := options.burst
		if burst < 1 {
			burst = 1
		}

		client.limiter = rate.NewLimiter(options.rateLimit, burst)
	}

	return client
}

// Kind returns the kind of the wrapped transport.
func (c *Client) Kind() Kind {
	return c.kind
}

// Emit validates event and delivers it once. Invalid events are never sent
// and fail with ErrInvalidEvent.
func (c *Client) Emit(ctx context.Context, event *lineage.RunEvent) error {
	if err := c.validator.ValidateRunEvent(event); err != nil {
		c.record(event, err)

		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.record(event, err)

			return fmt.Errorf("lineage rate limit wait: %w", err)
		}
	}

	start := time.Now()
	err := c.transport.Emit(ctx, event)
	duration := time.Since(start)

	metrics.LineageEmitDuration.WithLabelValues(string(c.kind)).Observe(duration.Seconds())
	c.record(event, err)

	if err != nil {
		return err
	}

	c.logger.Debug("Lineage event delivered",
		slog.String("transport", string(c.kind)),
		slog.String("event_type", string(event.EventType)),
		slog.String("run_id", event.Run.ID),
		slog.Duration("duration", duration))

	return nil
}

func (c *Client) record(event *lineage.RunEvent, err error) {
	eventType := "unknown"
	if event != nil {
		eventType = string(event.EventType)
	}

	metrics.LineageEventsTotal.WithLabelValues(string(c.kind), eventType, metrics.Status(err)).Inc()
}

// Close closes the transport. Later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.transport.Close()
	})

	return c.closeErr
}
