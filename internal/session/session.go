// Package session owns the per-UI-session state: workflow stores, dialogs
// and the audit log. Nothing is global; handlers look a Session up by the
// X-Session-ID header.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"moflow/internal/modal"
	"moflow/internal/notify"
	"moflow/internal/validation"
	"moflow/internal/workflow"
	id "moflow/pkg/domain"
	audit "moflow/pkg/platform/audit"
	"moflow/pkg/platform/audit/publisher"
	"moflow/pkg/platform/sentinel"
)

const maxEvents = 50

// Session is one UI session.
type Session struct {
	ID       id.SessionID
	Workflow *workflow.Workflow
	Audit    *publisher.Publisher

	dialogs map[string]*modal.Dialog

	mu       sync.Mutex
	lastSeen time.Time
	events   []modal.Event
}

// Dialog returns the named dialog.
func (s *Session) Dialog(name string) (*modal.Dialog, error) {
	d, ok := s.dialogs[name]
	if !ok {
		return nil, fmt.Errorf("dialog %q: %w", name, sentinel.ErrNotFound)
	}
	return d, nil
}

// Events returns the most recent completion events, oldest first.
func (s *Session) Events() []modal.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]modal.Event(nil), s.events...)
}

func (s *Session) addEvent(ev modal.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// StoreFactory returns the audit store backing one session's log.
type StoreFactory func(sessionID id.SessionID) audit.Store

// Registry creates sessions on demand and expires idle ones.
type Registry struct {
	submitter  workflow.Submitter
	validator  *validation.Validator
	stores     StoreFactory
	notifier   notify.Notifier
	logger     *slog.Logger
	ttl        time.Duration
	auditOpts  []publisher.Option
	wfOpts     []workflow.Option
	now        func() time.Time
	activeGage prometheus.Gauge

	mu       sync.Mutex
	sessions map[id.SessionID]*Session
}

type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAuditOptions configures each session's audit publisher.
func WithAuditOptions(opts ...publisher.Option) Option {
	return func(r *Registry) { r.auditOpts = append(r.auditOpts, opts...) }
}

// WithWorkflowOptions configures each session's workflow.
func WithWorkflowOptions(opts ...workflow.Option) Option {
	return func(r *Registry) { r.wfOpts = append(r.wfOpts, opts...) }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithActiveGauge reports the number of live sessions.
func WithActiveGauge(g prometheus.Gauge) Option {
	return func(r *Registry) { r.activeGage = g }
}

// NewActiveGauge registers moflow_sessions_active on the default registry.
func NewActiveGauge() prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moflow_sessions_active",
		Help: "Number of live UI sessions",
	})
}

func NewRegistry(submitter workflow.Submitter, v *validation.Validator, stores StoreFactory, opts ...Option) (*Registry, error) {
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if v == nil {
		return nil, errors.New("validator is required")
	}
	if stores == nil {
		return nil, errors.New("audit store factory is required")
	}
	r := &Registry{
		submitter: submitter,
		validator: v,
		stores:    stores,
		notifier:  notify.Nop{},
		logger:    slog.Default(),
		ttl:       8 * time.Hour,
		now:       time.Now,
		sessions:  map[id.SessionID]*Session{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Get returns the session for sid, creating it when absent, and marks it
// as used.
func (r *Registry) Get(ctx context.Context, sid id.SessionID) (*Session, error) {
	if sid.IsNil() {
		return nil, fmt.Errorf("session id: %w", sentinel.ErrNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s, ok := r.sessions[sid]; ok {
		s.touch(now)
		return s, nil
	}

	s, err := r.newSession(sid)
	if err != nil {
		return nil, err
	}
	s.touch(now)
	r.sessions[sid] = s
	r.setGauge()
	r.logger.InfoContext(ctx, "session started", "session_id", sid.String())
	return s, nil
}

func (r *Registry) newSession(sid id.SessionID) (*Session, error) {
	logger := r.logger.With("session_id", sid.String())
	auditOpts := append([]publisher.Option{publisher.WithLogger(logger)}, r.auditOpts...)
	auditLog := publisher.NewPublisher(r.stores(sid), auditOpts...)

	wfOpts := append([]workflow.Option{workflow.WithNotifier(r.notifier), workflow.WithLogger(logger)}, r.wfOpts...)
	wf, err := workflow.New(r.submitter, auditLog, wfOpts...)
	if err != nil {
		auditLog.Close()
		return nil, err
	}
	s := &Session{ID: sid, Workflow: wf, Audit: auditLog}
	s.dialogs = modal.NewDialogs(wf, r.validator, modal.WithLogger(logger), modal.WithOnComplete(s.addEvent))
	return s, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RemoveExpiredAt drops sessions idle for longer than the TTL as of now and
// returns how many were removed.
func (r *Registry) RemoveExpiredAt(now time.Time) int {
	r.mu.Lock()
	var expired []*Session
	for sid, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, sid)
		}
	}
	r.setGauge()
	r.mu.Unlock()

	for _, s := range expired {
		s.Audit.Close()
		r.logger.Info("session expired", "session_id", s.ID.String())
	}
	return len(expired)
}

// StartCleanup expires idle sessions every interval until ctx is cancelled.
func (r *Registry) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RemoveExpiredAt(r.now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close waits for pending notifications and drains every session's audit log.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	clear(r.sessions)
	r.setGauge()
	r.mu.Unlock()

	for _, s := range sessions {
		s.Workflow.Wait()
		s.Audit.Close()
	}
}

func (r *Registry) setGauge() {
	if r.activeGage != nil {
		r.activeGage.Set(float64(len(r.sessions)))
	}
}
