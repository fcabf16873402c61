// Package transport delivers OpenLineage run events to a lineage backend.
//
// A Transport performs delivery. A Client wraps one Transport with event
// validation, optional rate limiting, logging and metrics, and is built from
// configuration by NewClient.
package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// Kind names a transport implementation, selected by openlineage.transport_type.
type Kind string

const (
	// KindDataZone posts events to Amazon DataZone PostLineageEvent.
	KindDataZone Kind = "datazone"

	// KindConsole writes events to the process log.
	KindConsole Kind = "console"

	// KindKafka writes events as JSON to a Kafka topic.
	KindKafka Kind = "kafka"

	// KindHTTP posts events to an OpenLineage HTTP endpoint.
	KindHTTP Kind = "http"
)

var (
	// ErrUnsupportedTransport indicates openlineage.transport_type names no known transport.
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrTransportClosed indicates Emit was called after Close.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrInvalidEvent indicates an event failed validation and was not sent.
	ErrInvalidEvent = errors.New("invalid lineage event")
)

// Transport delivers a single run event.
type Transport interface {
	Emit(ctx context.Context, event *lineage.RunEvent) error
	Close() error
}

// Kinds returns every supported transport kind.
func Kinds() []Kind {
	return []Kind{KindDataZone, KindConsole, KindKafka, KindHTTP}
}

// ParseKind maps a transport_type value to its Kind. Matching ignores case and
// surrounding whitespace.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))

	if slices.Contains(Kinds(), kind) {
		return kind, nil
	}

	supported := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		supported = append(supported, string(k))
	}

	return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedTransport, value, strings.Join(supported, ", "))
}
