package transport

import (
	"context"
	"log/slog"

	"github.com/correlator-io/kafka-lineage/internal/lineage"
)

// ConsoleTransport logs each event as OpenLineage JSON at info level.
type ConsoleTransport struct {
	logger *slog.Logger
}

// NewConsoleTransport returns a ConsoleTransport writing to logger, or to
// slog.Default() when logger is nil.
func NewConsoleTransport(logger *slog.Logger) *ConsoleTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConsoleTransport{logger: logger}
}

func (t *ConsoleTransport) Emit(ctx context.Context, event *lineage.RunEvent) error {
	body, err := lineage.Marshal(event)
	if err != nil {
		return err
	}

	t.logger.InfoContext(ctx, "OpenLineage event",
		slog.String("event_type", string(event.EventType)),
		slog.String("job", event.Job.Namespace+"/"+event.Job.Name),
		slog.String("run_id", event.Run.ID),
		slog.Any("datasets", event.DatasetURNs()),
		slog.String("event", string(body)))

	return nil
}

func (t *ConsoleTransport) Close() error {
	return nil
}
