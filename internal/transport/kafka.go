package transport

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaTransport.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport writes each event as OpenLineage JSON to a Kafka topic.
// Messages are keyed by "<job namespace>/<job name>" so the events of a job
// stay ordered within one partition.
type KafkaTransport struct {
	writer MessageWriter
	closed atomic.Bool
}

// NewKafkaTransport wraps writer, which must target the lineage topic.
func NewKafkaTransport(writer MessageWriter) *KafkaTransport {
	return &KafkaTransport{writer: writer}
}

func (t *KafkaTransport) Emit(ctx context.Context, event *lineage.RunEvent) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	body, err := lineage.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Job.Namespace + "/" + event.Job.Name),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "run_id", Value: []byte(event.Run.ID)},
		},
	}

	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write lineage event to kafka: %w", err)
	}

	return nil
}

// Close closes the underlying writer. Later calls are no-ops.
func (t *KafkaTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	return t.writer.Close()
}
