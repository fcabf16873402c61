package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// Dataset directions.
const (
	DatasetTypeInput  = "input"
	DatasetTypeOutput = "output"
)

var (
	// ErrNilClient indicates an Emitter was built without a lineage client.
	ErrNilClient = errors.New("lineage client is required")

	// ErrMissingJobName indicates EmitParams carry no job name.
	ErrMissingJobName = errors.New("job name is required")

	// ErrMissingRunID indicates EmitParams carry no run id.
	ErrMissingRunID = errors.New("run id is required")
)

type (
	// EventClient delivers a run event. *transport.Client implements it.
	EventClient interface {
		Emit(ctx context.Context, event *lineage.RunEvent) error
	}

	// EmitParams describe one state change of a job run.
	EmitParams struct {
		RunID    string
		JobName  string
		State    string
		Producer string
		Datasets []lineage.Dataset

		// DatasetType routes Datasets: exactly "input" makes them inputs,
		// any other value makes them outputs.
		DatasetType string
	}

	// Emitter builds run events for one Kafka cluster and hands them to a client.
	Emitter struct {
		cfg    *config.Config
		client EventClient
		clock  clockwork.Clock
		logger *slog.Logger
	}

	// Option configures an Emitter.
	Option func(*Emitter)
)

// WithClock sets the clock used to stamp events. Defaults to the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Emitter) {
		e.clock = clock
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// New returns an Emitter for cfg.Kafka.ClusterName delivering through client.
func New(cfg *config.Config, client EventClient, opts ...Option) (*Emitter, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	if err := cfg.Require(config.KeyKafkaClusterName); err != nil {
		return nil, err
	}

	e := &Emitter{
		cfg:    cfg,
		client: client,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}

	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}

	return e, nil
}

// EmitEvent builds a run event from params with a real-clock timestamp and
// hands it to client.
func EmitEvent(ctx context.Context, client EventClient, cfg *config.Config, params EmitParams) (*lineage.RunEvent, error) {
	e, err := New(cfg, client)
	if err != nil {
		return nil, err
	}

	return e.EmitEvent(ctx, params)
}

// BuildEvent converts params into a run event stamped with the current time.
//
// The job namespace is the cluster name. An unknown State fails with
// lineage.ErrUnknownRunState.
func (e *Emitter) BuildEvent(params EmitParams) (*lineage.RunEvent, error) {
	eventType, err := lineage.ParseEventType(params.State)
	if err != nil {
		return nil, err
	}

	if params.RunID == "" {
		return nil, ErrMissingRunID
	}

	if params.JobName == "" {
		return nil, ErrMissingJobName
	}

	producer := params.Producer
	if producer == "" {
		producer = e.cfg.Producer()
	}

	event := &lineage.RunEvent{
		EventTime: e.clock.Now().UTC(),
		EventType: eventType,
		Producer:  producer,
		SchemaURL: lineage.DefaultSchemaURL,
		Run:       lineage.Run{ID: params.RunID},
		Job: lineage.Job{
			Namespace: e.cfg.Kafka.ClusterName,
			Name:      params.JobName,
		},
		Inputs:  []lineage.Dataset{},
		Outputs: []lineage.Dataset{},
	}

	datasets := make([]lineage.Dataset, len(params.Datasets))
	copy(datasets, params.Datasets)

	if params.DatasetType == DatasetTypeInput {
		event.Inputs = datasets
	} else {
		event.Outputs = datasets
	}

	return event, nil
}

// EmitEvent builds the event and delivers it. Nothing is sent when the event
// cannot be built. Delivery is attempted once; the client's error is returned
// as is, together with the event.
func (e *Emitter) EmitEvent(ctx context.Context, params EmitParams) (*lineage.RunEvent, error) {
	event, err := e.BuildEvent(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s event for job %s: %w", params.State, params.JobName, err)
	}

	if err := e.client.Emit(ctx, event); err != nil {
		e.logger.Error("Failed to emit lineage event",
			slog.String("event_type", string(event.EventType)),
			slog.String("job", event.Job.Name),
			slog.String("run_id", event.Run.ID),
			slog.String("error", err.Error()))

		return event, err
	}

	e.logger.Info("Emitted lineage event",
		slog.String("event_type", string(event.EventType)),
		slog.String("job", event.Job.Namespace+"/"+event.Job.Name),
		slog.String("run_id", event.Run.ID),
		slog.Int("inputs", len(event.Inputs)),
		slog.Int("outputs", len(event.Outputs)),
		slog.Any("datasets", event.DatasetURNs()))

	return event, nil
}
