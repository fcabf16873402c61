package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/datazone"
	"github.com/aws/smithy-go"

	"github.com/correlator-io/kafka-lineage/internal/config"
	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// ErrDataZoneRejected indicates DataZone refused a lineage event.
var ErrDataZoneRejected = errors.New("datazone rejected lineage event")

// DataZoneAPI is the subset of the Amazon DataZone client used by DataZoneTransport.
type DataZoneAPI interface {
	PostLineageEvent(
		ctx context.Context,
		params *datazone.PostLineageEventInput,
		optFns ...func(*datazone.Options),
	) (*datazone.PostLineageEventOutput, error)
}

// DataZoneTransport posts run events to one DataZone domain.
//
// The event's idempotency key is sent as the client token, so a repeated
// delivery of the same event is accepted once.
type DataZoneTransport struct {
	api      DataZoneAPI
	domainID string
}

// NewDataZoneTransport builds a transport for openlineage.domain_id in
// openlineage.region. api may be nil, in which case a client is created from
// the AWS default credential chain.
func NewDataZoneTransport(ctx context.Context, cfg *config.Config, api DataZoneAPI) (*DataZoneTransport, error) {
	if err := cfg.Require(config.KeyOpenLineageDomainID, config.KeyOpenLineageRegion); err != nil {
		return nil, err
	}

	if api == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.OpenLineage.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		api = datazone.NewFromConfig(awsCfg)
	}

	return &DataZoneTransport{api: api, domainID: cfg.OpenLineage.DomainID}, nil
}

// Emit posts event as OpenLineage JSON.
func (t *DataZoneTransport) Emit(ctx context.Context, event *lineage.RunEvent) error {
	body, err := lineage.Marshal(event)
	if err != nil {
		return err
	}

	_, err = t.api.PostLineageEvent(ctx, &datazone.PostLineageEventInput{
		DomainIdentifier: aws.String(t.domainID),
		Event:            body,
		ClientToken:      aws.String(event.IdempotencyKey()),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: %s: %s: %w", ErrDataZoneRejected, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}

		return fmt.Errorf("failed to post lineage event to domain %s: %w", t.domainID, err)
	}

	return nil
}

// Close is a no-op; the DataZone client holds no resources.
func (t *DataZoneTransport) Close() error {
	return nil
}
