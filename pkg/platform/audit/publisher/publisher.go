package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	audit "moflow/pkg/platform/audit"
	"moflow/pkg/platform/audit/worker"
	"moflow/pkg/requestcontext"
)

// ErrBufferFull is returned by Emit in async mode when the buffer is full.
// The entry is dropped.
var ErrBufferFull = errors.New("audit buffer full")

// ErrClosed is returned by Emit after Close. The entry is dropped.
var ErrClosed = errors.New("audit publisher closed")

// Publisher appends audit entries to a store. In sync mode Emit returns
// after the entry is stored; in async mode a worker goroutine persists
// entries in emission order and Close drains the buffer.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics

	bufferSize int
	inbox      chan audit.Entry
	done       chan struct{}

	// mu guards closed and sends on inbox against Close.
	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n entries.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Entry, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit appends entry, stamping the request time and ID when unset.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.incDropped()
		p.logger.WarnContext(ctx, "audit log closed, dropping entry",
			"kind", entry.Kind,
			"subject_id", entry.SubjectID,
		)
		return ErrClosed
	}

	if p.inbox == nil {
		if err := p.store.Append(ctx, entry); err != nil {
			p.metrics.incPersistFailures()
			return err
		}
		p.metrics.incEmitted(entry.Kind)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- entry:
		p.metrics.incEmitted(entry.Kind)
		return nil
	default:
		p.metrics.incDropped()
		p.logger.WarnContext(ctx, "audit buffer full, dropping entry",
			"kind", entry.Kind,
			"subject_id", entry.SubjectID,
		)
		return ErrBufferFull
	}
}

// Recent returns the last n entries, oldest first.
func (p *Publisher) Recent(ctx context.Context, n int) ([]audit.Entry, error) {
	return p.store.Recent(ctx, n)
}

// All returns the whole log.
func (p *Publisher) All(ctx context.Context) ([]audit.Entry, error) {
	return p.store.All(ctx)
}

// Close drains buffered entries in async mode. Later calls to Emit return
// ErrClosed. Close is idempotent.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}
