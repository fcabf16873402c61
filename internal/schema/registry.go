package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/google/uuid"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
	"github.com/correlator-io/kafka-lineage/internal/metrics"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxPolls     = 20
)

// Registry operation names, used in errors and metrics.
const (
	OpGetSchemaVersion      = "GetSchemaVersion"
	OpGetSchemaByDefinition = "GetSchemaByDefinition"
	OpRegisterSchemaVersion = "RegisterSchemaVersion"
	OpCreateSchema          = "CreateSchema"
)

// GlueAPI is the subset of the AWS Glue client used by the registry.
type GlueAPI interface {
	GetSchemaVersion(
		ctx context.Context,
		params *glue.GetSchemaVersionInput,
		optFns ...func(*glue.Options),
	) (*glue.GetSchemaVersionOutput, error)

	GetSchemaByDefinition(
		ctx context.Context,
		params *glue.GetSchemaByDefinitionInput,
		optFns ...func(*glue.Options),
	) (*glue.GetSchemaByDefinitionOutput, error)

	RegisterSchemaVersion(
		ctx context.Context,
		params *glue.RegisterSchemaVersionInput,
		optFns ...func(*glue.Options),
	) (*glue.RegisterSchemaVersionOutput, error)

	CreateSchema(
		ctx context.Context,
		params *glue.CreateSchemaInput,
		optFns ...func(*glue.Options),
	) (*glue.CreateSchemaOutput, error)
}

// Registry resolves and registers Avro schemas in one Glue Schema Registry.
//
// Lookups distinguish a confirmed absence (ErrSchemaNotFound) from a failed
// call (*RegistryError), so callers can retry only the latter.
//
// Registry is safe for concurrent use.
type Registry struct {
	api           GlueAPI
	registryName  string
	compatibility types.Compatibility
	logger        *slog.Logger
	pollInterval  time.Duration
	maxPolls      int
}

type registryOptions struct {
	logger       *slog.Logger
	pollInterval time.Duration
	maxPolls     int
	api          GlueAPI
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(opts *registryOptions) {
		opts.logger = logger
	}
}

// WithPollInterval sets how often a pending schema version is re-checked.
func WithPollInterval(interval time.Duration) RegistryOption {
	return func(opts *registryOptions) {
		opts.pollInterval = interval
	}
}

// WithMaxPolls bounds how many times a pending schema version is re-checked.
func WithMaxPolls(n int) RegistryOption {
	return func(opts *registryOptions) {
		opts.maxPolls = n
	}
}

// WithGlueAPI replaces the Glue client built from the AWS default configuration.
func WithGlueAPI(api GlueAPI) RegistryOption {
	return func(opts *registryOptions) {
		opts.api = api
	}
}

// NewRegistry builds a Registry for cfg.GSR. Unless WithGlueAPI is given, the
// Glue client is created from the AWS default credential chain in gsr.region.
func NewRegistry(ctx context.Context, cfg *config.Config, opts ...RegistryOption) (*Registry, error) {
	if err := cfg.Require(config.KeyRegistryRegion, config.KeyRegistryName); err != nil {
		return nil, err
	}

	options := &registryOptions{
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
	}

	for _, opt := range opts {
		opt(options)
	}

	api := options.api
	if api == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.GSR.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		api = glue.NewFromConfig(awsCfg)
	}

	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Registry{
		api:           api,
		registryName:  cfg.GSR.RegistryName,
		compatibility: types.Compatibility(cfg.Compatibility()),
		logger:        options.logger,
		pollInterval:  options.pollInterval,
		maxPolls:      options.maxPolls,
	}, nil
}

// GetSchemaFacet fetches a schema definition and converts it into a schema facet.
// A nil version selects the latest version.
//
// A schema or version the registry does not know yields ErrSchemaNotFound.
// Every other failure yields a *RegistryError. Both are logged at error level.
func (r *Registry) GetSchemaFacet(ctx context.Context, name string, version *int64) (*lineage.SchemaDatasetFacet, error) {
	definition, err := r.GetSchemaDefinition(ctx, name, version)
	if err != nil {
		return nil, err
	}

	facet, err := ParseFacet([]byte(definition))
	if err != nil {
		r.logger.Error("Registry schema definition is unusable",
			slog.String("schema_name", name),
			slog.String("registry_name", r.registryName),
			slog.String("error", err.Error()))

		return nil, err
	}

	return facet, nil
}

// GetSchemaDefinition returns the definition text of a schema version.
// A nil version selects the latest version.
func (r *Registry) GetSchemaDefinition(ctx context.Context, name string, version *int64) (string, error) {
	selector := &types.SchemaVersionNumber{LatestVersion: true}
	if version != nil {
		selector = &types.SchemaVersionNumber{VersionNumber: aws.Int64(*version)}
	}

	r.logger.Info("Fetching schema version",
		slog.String("schema_name", name),
		slog.String("registry_name", r.registryName),
		slog.String("version", versionLabel(version)))

	out, err := r.api.GetSchemaVersion(ctx, &glue.GetSchemaVersionInput{
		SchemaId:            r.schemaID(name),
		SchemaVersionNumber: selector,
	})
	if err != nil {
		return "", r.fail(OpGetSchemaVersion, name, err)
	}

	metrics.RegistryRequestsTotal.WithLabelValues(OpGetSchemaVersion, metrics.StatusSuccess).Inc()

	return aws.ToString(out.SchemaDefinition), nil
}

// GetSchemaDefinitionByID returns the definition text of the schema version with the given id.
func (r *Registry) GetSchemaDefinitionByID(ctx context.Context, versionID uuid.UUID) (string, error) {
	out, err := r.api.GetSchemaVersion(ctx, &glue.GetSchemaVersionInput{
		SchemaVersionId: aws.String(versionID.String()),
	})
	if err != nil {
		return "", r.fail(OpGetSchemaVersion, versionID.String(), err)
	}

	metrics.RegistryRequestsTotal.WithLabelValues(OpGetSchemaVersion, metrics.StatusSuccess).Inc()

	return aws.ToString(out.SchemaDefinition), nil
}

// EnsureSchemaVersion returns the version id of definition under schema name,
// registering a new version, or creating the schema, when needed. It waits
// until the version is AVAILABLE.
func (r *Registry) EnsureSchemaVersion(ctx context.Context, name, definition string) (uuid.UUID, error) {
	id, status, err := r.lookupByDefinition(ctx, name, definition)
	if err == nil {
		return r.awaitAvailable(ctx, name, id, status)
	}

	if !IsNotFound(err) {
		return uuid.Nil, err
	}

	id, status, err = r.registerVersion(ctx, name, definition)
	if err == nil {
		return r.awaitAvailable(ctx, name, id, status)
	}

	if !IsNotFound(err) {
		return uuid.Nil, err
	}

	id, status, err = r.createSchema(ctx, name, definition)
	if err != nil {
		return uuid.Nil, err
	}

	return r.awaitAvailable(ctx, name, id, status)
}

func (r *Registry) lookupByDefinition(ctx context.Context, name, definition string) (string, types.SchemaVersionStatus, error) {
	out, err := r.api.GetSchemaByDefinition(ctx, &glue.GetSchemaByDefinitionInput{
		SchemaId:         r.schemaID(name),
		SchemaDefinition: aws.String(definition),
	})
	if err != nil {
		err = classify(OpGetSchemaByDefinition, err)
		metrics.RegistryRequestsTotal.WithLabelValues(OpGetSchemaByDefinition, statusLabel(err)).Inc()

		return "", "", err
	}

	metrics.RegistryRequestsTotal.WithLabelValues(OpGetSchemaByDefinition, metrics.StatusSuccess).Inc()

	return aws.ToString(out.SchemaVersionId), out.Status, nil
}

func (r *Registry) registerVersion(ctx context.Context, name, definition string) (string, types.SchemaVersionStatus, error) {
	out, err := r.api.RegisterSchemaVersion(ctx, &glue.RegisterSchemaVersionInput{
		SchemaId:         r.schemaID(name),
		SchemaDefinition: aws.String(definition),
	})
	if err != nil {
		err = classify(OpRegisterSchemaVersion, err)
		metrics.RegistryRequestsTotal.WithLabelValues(OpRegisterSchemaVersion, statusLabel(err)).Inc()

		if !IsNotFound(err) {
			r.logError(OpRegisterSchemaVersion, name, err)
		}

		return "", "", err
	}

	metrics.RegistryRequestsTotal.WithLabelValues(OpRegisterSchemaVersion, metrics.StatusSuccess).Inc()
	r.logger.Info("Registered schema version",
		slog.String("schema_name", name),
		slog.String("schema_version_id", aws.ToString(out.SchemaVersionId)))

	return aws.ToString(out.SchemaVersionId), out.Status, nil
}

func (r *Registry) createSchema(ctx context.Context, name, definition string) (string, types.SchemaVersionStatus, error) {
	out, err := r.api.CreateSchema(ctx, &glue.CreateSchemaInput{
		RegistryId:       &types.RegistryId{RegistryName: aws.String(r.registryName)},
		SchemaName:       aws.String(name),
		DataFormat:       types.DataFormatAvro,
		Compatibility:    r.compatibility,
		SchemaDefinition: aws.String(definition),
	})
	if err != nil {
		return "", "", r.fail(OpCreateSchema, name, err)
	}

	metrics.RegistryRequestsTotal.WithLabelValues(OpCreateSchema, metrics.StatusSuccess).Inc()
	r.logger.Info("Created schema",
		slog.String("schema_name", name),
		slog.String("registry_name", r.registryName),
		slog.String("compatibility", string(r.compatibility)))

	return aws.ToString(out.SchemaVersionId), out.SchemaVersionStatus, nil
}

// awaitAvailable polls a schema version until it leaves PENDING.
func (r *Registry) awaitAvailable(
	ctx context.Context,
	name, rawID string,
	status types.SchemaVersionStatus,
) (uuid.UUID, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, &RegistryError{Op: OpGetSchemaVersion, Err: fmt.Errorf("invalid schema version id %q: %w", rawID, err)}
	}

	for polls := 0; status == types.SchemaVersionStatusPending; polls++ {
		if polls >= r.maxPolls {
			return uuid.Nil, &RegistryError{
				Op:        OpGetSchemaVersion,
				Retryable: true,
				Err:       fmt.Errorf("%w: %s still %s", ErrSchemaVersionUnavailable, id, status),
			}
		}

		timer := time.NewTimer(r.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()

			return uuid.Nil, classify(OpGetSchemaVersion, ctx.Err())
		case <-timer.C:
		}

		out, err := r.api.GetSchemaVersion(ctx, &glue.GetSchemaVersionInput{SchemaVersionId: aws.String(rawID)})
		if err != nil {
			return uuid.Nil, r.fail(OpGetSchemaVersion, name, err)
		}

		status = out.Status
	}

	if status != types.SchemaVersionStatusAvailable {
		err := fmt.Errorf("%w: %s is %s", ErrSchemaVersionUnavailable, id, status)
		r.logError(OpGetSchemaVersion, name, err)

		return uuid.Nil, &RegistryError{Op: OpGetSchemaVersion, Err: err}
	}

	return id, nil
}

// fail classifies err, records it and logs it at error level.
func (r *Registry) fail(op, name string, err error) error {
	err = classify(op, err)
	metrics.RegistryRequestsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	r.logError(op, name, err)

	return err
}

func (r *Registry) logError(op, name string, err error) {
	if IsNotFound(err) {
		r.logger.Error("Schema not found in registry",
			slog.String("operation", op),
			slog.String("schema", name),
			slog.String("registry_name", r.registryName))

		return
	}

	r.logger.Error("Error retrieving schema",
		slog.String("operation", op),
		slog.String("schema", name),
		slog.String("registry_name", r.registryName),
		slog.Bool("retryable", IsRetryable(err)),
		slog.String("error", err.Error()))
}

func (r *Registry) schemaID(name string) *types.SchemaId {
	return &types.SchemaId{
		SchemaName:   aws.String(name),
		RegistryName: aws.String(r.registryName),
	}
}

func statusLabel(err error) string {
	if errors.Is(err, ErrSchemaNotFound) {
		return "not_found"
	}

	return metrics.Status(err)
}

func versionLabel(version *int64) string {
	if version == nil {
		return "latest"
	}

	return fmt.Sprintf("%d", *version)
}
