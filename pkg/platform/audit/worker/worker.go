package worker

import (
	"context"
	"log/slog"

	audit "moflow/pkg/platform/audit"
)

// Worker consumes audit entries from a channel and persists them in order.
// It keeps async publishing testable without a queue implementation.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Entry
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Entry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run appends entries until the inbox is closed or ctx is done. A closed
// inbox is drained completely before Run returns nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, entry); err != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit entry",
					"kind", entry.Kind,
					"subject_id", entry.SubjectID,
					"error", err,
				)
			}
		}
	}
}
