// Package workflow stages employee and org unit edits, submits them to the
// remote MO API and records the outcome in the session audit log.
//
// Submissions never return a Go error. Every failure, application or
// transport, becomes an ERROR audit entry and an Outcome carrying the raw
// payload. Drafts are never cleared by a submission; callers decide when to
// call ResetFields.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"moflow/internal/gateway"
	"moflow/internal/notify"
	"moflow/internal/workflow/models"
	audit "moflow/pkg/platform/audit"
)

// Submitter is the remote API boundary.
type Submitter interface {
	Create(ctx context.Context, kind models.EntityKind, payload any) (gateway.Result, error)
	Edit(ctx context.Context, kind models.EntityKind, id string, payload any) (gateway.Result, error)
	Terminate(ctx context.Context, kind models.EntityKind, id string, payload any) (gateway.Result, error)
}

// AuditLog receives one entry per resolved submission.
type AuditLog interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Workflow holds a create draft and an edit draft per entity kind, and the
// collaborators shared by all submissions of a session.
type Workflow struct {
	Employee     *Store
	OrgUnit      *Store
	EmployeeEdit *Store
	OrgUnitEdit  *Store

	submitter     Submitter
	audit         AuditLog
	notifier      notify.Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger
	metrics       *Metrics

	notifying sync.WaitGroup
}

type Option func(*Workflow)

func WithNotifier(n notify.Notifier) Option {
	return func(w *Workflow) {
		if n != nil {
			w.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

// WithNotifyTimeout bounds how long change notifications for one submission
// may take. Defaults to 10s.
func WithNotifyTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.notifyTimeout = d
		}
	}
}

func New(submitter Submitter, auditLog AuditLog, opts ...Option) (*Workflow, error) {
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if auditLog == nil {
		return nil, errors.New("audit log is required")
	}
	w := &Workflow{
		Employee:      NewStore(models.EntityEmployee),
		OrgUnit:       NewStore(models.EntityOrgUnit),
		EmployeeEdit:  NewStore(models.EntityEmployee),
		OrgUnitEdit:   NewStore(models.EntityOrgUnit),
		submitter:     submitter,
		audit:         auditLog,
		notifier:      notify.Nop{},
		notifyTimeout: 10 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Store returns the create draft for kind.
func (w *Workflow) Store(kind models.EntityKind) *Store {
	switch kind {
	case models.EntityEmployee:
		return w.Employee
	case models.EntityOrgUnit:
		return w.OrgUnit
	}
	panic(models.ErrUnknownEntityKind(kind))
}

// EditStore returns the edit draft for kind.
func (w *Workflow) EditStore(kind models.EntityKind) *Store {
	switch kind {
	case models.EntityEmployee:
		return w.EmployeeEdit
	case models.EntityOrgUnit:
		return w.OrgUnitEdit
	}
	panic(models.ErrUnknownEntityKind(kind))
}

// Wait blocks until change notifications of resolved submissions are sent.
func (w *Workflow) Wait() {
	w.notifying.Wait()
}

// Create submits the draft of kind as a new object.
func (w *Workflow) Create(ctx context.Context, kind models.EntityKind) models.Outcome {
	draft := w.Store(kind).Snapshot()
	var payload any
	switch kind {
	case models.EntityEmployee:
		payload = models.BuildEmployeeCreate(&draft)
	case models.EntityOrgUnit:
		payload = models.BuildOrgUnitCreate(&draft)
	}
	res, err := w.submitter.Create(ctx, kind, payload)
	return w.resolve(ctx, submission{
		kind:    kind.CreateAuditKind(),
		op:      "create",
		result:  res,
		err:     err,
		notices: createNotices(&draft),
	})
}

// CreateEmployee submits the employee draft. On success the returned
// Outcome carries the new employee's uuid.
func (w *Workflow) CreateEmployee(ctx context.Context) models.Outcome {
	return w.Create(ctx, models.EntityEmployee)
}

func (w *Workflow) CreateOrgUnit(ctx context.Context) models.Outcome {
	return w.Create(ctx, models.EntityOrgUnit)
}

// Edit submits the edit draft of kind as changes to the object id.
func (w *Workflow) Edit(ctx context.Context, kind models.EntityKind, id string) models.Outcome {
	draft := w.EditStore(kind).Snapshot()
	reqs := models.BuildEdits(&draft, id)
	res, err := w.submitter.Edit(ctx, kind, id, reqs)
	return w.resolve(ctx, submission{
		kind:    kind.EditAuditKind(),
		op:      "edit",
		subject: id,
		result:  res,
		err:     err,
		notices: editNotices(kind, id, reqs),
	})
}

func (w *Workflow) EditEmployee(ctx context.Context, id string) models.Outcome {
	return w.Edit(ctx, models.EntityEmployee, id)
}

func (w *Workflow) EditOrgUnit(ctx context.Context, id string) models.Outcome {
	return w.Edit(ctx, models.EntityOrgUnit, id)
}

// MoveEmployee moves one engagement to another unit from m.From.
func (w *Workflow) MoveEmployee(ctx context.Context, m models.EmployeeMove) models.Outcome {
	kind := models.EntityEmployee
	res, err := w.submitter.Edit(ctx, kind, m.EmployeeUUID, []models.EditRequest{m.Request()})
	return w.resolve(ctx, submission{
		kind:    kind.MoveAuditKind(),
		op:      "move",
		subject: m.EmployeeUUID,
		result:  res,
		err:     err,
		notices: employeeMoveNotices(m),
	})
}

// MoveOrgUnit gives a unit a new parent from m.From.
func (w *Workflow) MoveOrgUnit(ctx context.Context, m models.OrgUnitMove) models.Outcome {
	kind := models.EntityOrgUnit
	res, err := w.submitter.Edit(ctx, kind, m.Unit.UUID, []models.EditRequest{m.Request()})
	return w.resolve(ctx, submission{
		kind:    kind.MoveAuditKind(),
		op:      "move",
		subject: m.Unit.UUID,
		result:  res,
		err:     err,
		notices: orgUnitMoveNotices(m),
	})
}

// TerminateEmployee ends the employee's relations at t.To.
func (w *Workflow) TerminateEmployee(ctx context.Context, t models.EmployeeTermination) models.Outcome {
	res, err := w.submitter.Terminate(ctx, models.EntityEmployee, t.EmployeeUUID, t.Payload())
	return w.resolve(ctx, submission{
		kind:    audit.KindEmployeeTerminate,
		op:      "terminate",
		subject: t.EmployeeUUID,
		result:  res,
		err:     err,
		notices: terminateNotices(t),
	})
}

type submission struct {
	kind    audit.Kind
	op      string
	subject string // known object, empty for creates
	result  gateway.Result
	err     error
	notices func(id string) []notify.Notification
}

func (w *Workflow) resolve(ctx context.Context, sub submission) models.Outcome {
	if f := failureOf(sub); f != nil {
		w.metrics.outcome(sub.op, false)
		w.logger.InfoContext(ctx, "submission failed",
			"operation", sub.op,
			"kind", string(sub.kind),
			"error_key", f.ErrorKey,
			"transport", f.Transport,
			"status", f.Status,
		)
		w.record(ctx, audit.Entry{Kind: audit.KindError, SubjectID: sub.subject, Payload: f.Payload})
		return models.Outcome{Failure: f}
	}

	id, err := sub.result.Identifier()
	if err != nil {
		if sub.subject == "" {
			f := &models.Failure{Payload: append(json.RawMessage(nil), sub.result.Data...), Status: sub.result.StatusCode}
			if !json.Valid(f.Payload) {
				f.Payload, _ = json.Marshal(map[string]string{"message": err.Error()})
			}
			w.metrics.outcome(sub.op, false)
			w.logger.WarnContext(ctx, "submission returned no identifier", "operation", sub.op, "error", err)
			w.record(ctx, audit.Entry{Kind: audit.KindError, Payload: f.Payload})
			return models.Outcome{Failure: f}
		}
		id = sub.subject
	}

	w.metrics.outcome(sub.op, true)
	w.record(ctx, audit.Entry{Kind: sub.kind, SubjectID: id})
	if sub.notices != nil {
		w.notify(ctx, sub.notices(id))
	}
	return models.Outcome{ID: id}
}

// failureOf returns nil when the call resolved without an application error.
func failureOf(sub submission) *models.Failure {
	if sub.err != nil {
		var te *gateway.TransportError
		if errors.As(sub.err, &te) {
			f := &models.Failure{Transport: true, Status: te.StatusCode, Payload: te.Payload()}
			if appErr, ok := te.AppError(); ok {
				f.ErrorKey = appErr.ErrorKey
				f.Description = appErr.Description
			}
			return f
		}
		payload, _ := json.Marshal(map[string]string{"message": sub.err.Error()})
		return &models.Failure{Description: sub.err.Error(), Payload: payload}
	}
	if appErr, ok := sub.result.Failure(); ok {
		return &models.Failure{
			ErrorKey:    appErr.ErrorKey,
			Description: appErr.Description,
			Status:      appErr.Status,
			Payload:     appErr.Raw,
		}
	}
	return nil
}

// notify publishes off the request path; a slow broker must not hold the
// caller after MO has accepted the change.
func (w *Workflow) notify(ctx context.Context, notes []notify.Notification) {
	if len(notes) == 0 {
		return
	}
	w.notifying.Add(1)
	go func() {
		defer w.notifying.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.notifyTimeout)
		defer cancel()
		w.notifier.Notify(nctx, notes...)
	}()
}

// record appends to the audit log. The submission already resolved, so the
// entry is written even when the caller's context is done, and a failing log
// is reported but does not change the outcome.
func (w *Workflow) record(ctx context.Context, entry audit.Entry) {
	if err := w.audit.Emit(context.WithoutCancel(ctx), entry); err != nil {
		w.logger.ErrorContext(ctx, "failed to append audit entry",
			"kind", string(entry.Kind),
			"subject", entry.SubjectID,
			"error", err,
		)
	}
}
