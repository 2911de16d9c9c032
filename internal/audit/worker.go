package audit

import (
	"context"
	"log/slog"

	dErrors "curio/pkg/domain-errors"
)

// Worker consumes audit events from a channel and persists them. It
// decouples request latency from slow sinks (Kafka, databases).
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is cancelled. A sink failure loses
// that one event, never the worker: a transient Kafka outage must not take
// the process down with it.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"error", err,
					"event_id", event.ID,
					"action", event.Action,
				)
			}
		}
	}
}

// ChannelStore hands events to a worker via a buffered channel. Append never
// blocks the request path; when the buffer is full the event is rejected and
// the caller decides whether to log or drop.
type ChannelStore struct {
	inbox chan<- Event
}

func NewChannelStore(inbox chan<- Event) *ChannelStore {
	return &ChannelStore{inbox: inbox}
}

func (s *ChannelStore) Append(_ context.Context, event Event) error {
	select {
	case s.inbox <- event:
		return nil
	default:
		return dErrors.New(dErrors.CodeUnavailable, "audit inbox full")
	}
}

// ListByActor is unsupported; reads go to the worker's backing store.
func (s *ChannelStore) ListByActor(_ context.Context, _ string) ([]Event, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "channel store does not support reads")
}
