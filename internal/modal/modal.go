// Package modal drives edit and create dialogs through
// Closed -> Open -> Editing -> Submitting -> Closed | Editing.
//
// Behaviour shared by every dialog lives in Dialog; what differs per
// workflow is expressed through the Validatable, Submittable and
// ModalLifecycle capabilities that each Form implements.
package modal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anggasct/fluo"

	"moflow/internal/validation"
	"moflow/internal/workflow/models"
	"moflow/pkg/platform/sentinel"
	"moflow/pkg/requestcontext"
)

// State is the position of a dialog in its state machine.
type State string

const (
	StateClosed     State = "closed"
	StateOpen       State = "open"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
)

// Dialog events.
const (
	eventOpen    = "open"
	eventContent = "content"
	eventSubmit  = "submit"
	eventResolve = "resolve"
	eventClose   = "close"
)

// Validatable checks the form's current content locally.
type Validatable interface {
	Validate(ctx context.Context, v *validation.Validator) validation.Errors
}

// Submittable sends the form's content to the remote API.
type Submittable interface {
	Submit(ctx context.Context) models.Outcome
}

// ModalLifecycle receives dialog transitions and externally supplied content.
type ModalLifecycle interface {
	Opened(ctx context.Context)
	Closed(ctx context.Context)
	SetContent(ctx context.Context, raw json.RawMessage) error
	// Completed runs after a successful submission the dialog still waited
	// for. It is skipped for results that arrive after Close.
	Completed(ctx context.Context, out models.Outcome)
}

// Form is a concrete workflow behind a dialog. A Dialog serializes calls to
// Validate and SetContent and never calls SetContent while submitting.
type Form interface {
	Validatable
	Submittable
	ModalLifecycle
	// CompletionEvent names the event emitted after a successful submission.
	CompletionEvent() string
}

// Event announces a completed workflow, e.g. employeeCreated.
type Event struct {
	Name   string    `json:"event"`
	Dialog string    `json:"dialog"`
	UUID   string    `json:"uuid,omitempty"`
	At     time.Time `json:"at"`
}

// View is a read-only copy of a dialog's state.
type View struct {
	Dialog           string            `json:"dialog"`
	State            State             `json:"state"`
	Loading          bool              `json:"is_loading"`
	BackendError     string            `json:"backend_error,omitempty"`
	BackendErrorKey  string            `json:"backend_error_key,omitempty"`
	ValidationErrors validation.Errors `json:"validation_errors,omitempty"`
	LastEvent        *Event            `json:"last_event,omitempty"`
}

// SubmitResult reports what one Submit call did.
type SubmitResult struct {
	View
	Outcome *models.Outcome `json:"outcome,omitempty"`
	Event   *Event          `json:"completed,omitempty"`
	// Discarded is set when the dialog was closed before the submission
	// resolved; the outcome was still recorded by the workflow.
	Discarded bool `json:"discarded,omitempty"`
}

type Dialog struct {
	name       string
	form       Form
	validator  *validation.Validator
	onComplete func(Event)
	logger     *slog.Logger
	machine    fluo.Machine

	// mu serializes dialog operations. The machine holds the state; the
	// fields below are written by its transition actions.
	mu           sync.Mutex
	loading      bool
	backendError string
	backendKey   string
	fieldErrors  validation.Errors
	generation   uint64
	lastEvent    *Event
}

type Option func(*Dialog)

// WithOnComplete registers a listener for completion events.
func WithOnComplete(fn func(Event)) Option {
	return func(d *Dialog) { d.onComplete = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dialog) {
		if l != nil {
			d.logger = l
		}
	}
}

// trigger is the event data handed to guards and actions. Guards and actions
// run on the machine's own context, so the request context travels here.
type trigger struct {
	dialog  *Dialog
	ctx     context.Context
	content json.RawMessage
	invalid validation.Errors
	outcome models.Outcome
	event   *Event
}

func triggerOf(ctx fluo.Context) *trigger {
	t, ok := ctx.GetEventData().(*trigger)
	if !ok {
		panic(fmt.Sprintf("modal: unexpected event data %T", ctx.GetEventData()))
	}
	return t
}

var dialogMachine = buildDialogMachine()

func buildDialogMachine() fluo.MachineDefinition {
	b := fluo.NewMachine()

	b.State(string(StateClosed)).Initial().
		To(string(StateOpen)).On(eventOpen).Do(opened)

	b.State(string(StateOpen)).
		To(string(StateEditing)).On(eventContent).Do(applyContent).
		To(string(StateEditing)).On(eventSubmit).When(invalid).Do(rejectLocally).
		To(string(StateSubmitting)).On(eventSubmit).Unless(invalid).
		To(string(StateClosed)).On(eventClose).Do(closed)

	b.State(string(StateEditing)).
		To(string(StateEditing)).On(eventContent).Do(applyContent).
		To(string(StateEditing)).On(eventSubmit).When(invalid).Do(rejectLocally).
		To(string(StateSubmitting)).On(eventSubmit).Unless(invalid).
		To(string(StateClosed)).On(eventClose).Do(closed)

	b.State(string(StateSubmitting)).
		To(string(StateEditing)).On(eventResolve).When(failed).Do(rejectRemotely).
		To(string(StateClosed)).On(eventResolve).Unless(failed).Do(completed).
		To(string(StateClosed)).On(eventClose).Do(closed)

	return b.Build()
}

func invalid(ctx fluo.Context) bool { return len(triggerOf(ctx).invalid) > 0 }

func failed(ctx fluo.Context) bool { return !triggerOf(ctx).outcome.OK() }

func opened(ctx fluo.Context) error {
	t := triggerOf(ctx)
	t.dialog.clearErrors()
	t.dialog.form.Opened(t.ctx)
	return nil
}

func applyContent(ctx fluo.Context) error {
	t := triggerOf(ctx)
	if err := t.dialog.form.SetContent(t.ctx, t.content); err != nil {
		return err
	}
	t.dialog.backendError, t.dialog.backendKey = "", ""
	return nil
}

func rejectLocally(ctx fluo.Context) error {
	t := triggerOf(ctx)
	t.dialog.fieldErrors = t.invalid
	return nil
}

func rejectRemotely(ctx fluo.Context) error {
	t := triggerOf(ctx)
	d := t.dialog
	d.backendKey = t.outcome.Failure.ErrorKey
	d.backendError = d.validator.ErrorMessage(t.ctx, t.outcome.Failure.ErrorKey)
	return nil
}

func completed(ctx fluo.Context) error {
	t := triggerOf(ctx)
	d := t.dialog
	ev := Event{Name: d.form.CompletionEvent(), Dialog: d.name, UUID: t.outcome.ID, At: requestcontext.Now(t.ctx)}
	d.lastEvent = &ev
	t.event = &ev
	d.form.Completed(t.ctx, t.outcome)
	return closed(ctx)
}

func closed(ctx fluo.Context) error {
	t := triggerOf(ctx)
	d := t.dialog
	d.loading = false
	d.generation++
	d.clearErrors()
	d.form.Closed(t.ctx)
	return nil
}

func NewDialog(name string, form Form, v *validation.Validator, opts ...Option) *Dialog {
	d := &Dialog{name: name, form: form, validator: v, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	d.machine = dialogMachine.CreateInstance()
	if err := d.machine.Start(); err != nil {
		panic(fmt.Sprintf("modal: start dialog %s: %v", name, err))
	}
	return d
}

func (d *Dialog) Name() string { return d.name }

func (d *Dialog) state() State { return State(d.machine.CurrentState()) }

// fire sends event to the machine. A transition the current state does not
// allow fails with sentinel.ErrInvalidState; an action error is returned as is.
func (d *Dialog) fire(ctx context.Context, event string, t *trigger) error {
	t.dialog, t.ctx = d, ctx
	res := d.machine.HandleEventWithContext(ctx, event, t)
	switch {
	case res.Success():
		return nil
	case res.RejectionReason != "":
		return fmt.Errorf("dialog %s: %s: %w", d.name, res.RejectionReason, sentinel.ErrInvalidState)
	}
	return res.Error
}

// Open shows the dialog. Opening an open dialog is a no-op.
func (d *Dialog) Open(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state() != StateClosed {
		return
	}
	if err := d.fire(ctx, eventOpen, &trigger{}); err != nil {
		d.logger.ErrorContext(ctx, "failed to open dialog", "dialog", d.name, "error", err)
	}
}

// SetContent hands the form new content and clears any backend error.
func (d *Dialog) SetContent(ctx context.Context, raw json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state() {
	case StateClosed:
		return fmt.Errorf("dialog %s is closed: %w", d.name, sentinel.ErrInvalidState)
	case StateSubmitting:
		return fmt.Errorf("dialog %s is submitting: %w", d.name, sentinel.ErrBusy)
	}
	return d.fire(ctx, eventContent, &trigger{content: raw})
}

// Close hides the dialog. An in-flight submission is not cancelled; its
// result is ignored by the dialog when it arrives.
func (d *Dialog) Close(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state() == StateClosed {
		return
	}
	if err := d.fire(ctx, eventClose, &trigger{}); err != nil {
		d.logger.ErrorContext(ctx, "failed to close dialog", "dialog", d.name, "error", err)
	}
}

func (d *Dialog) clearErrors() {
	d.backendError, d.backendKey = "", ""
	d.fieldErrors = nil
}

// Submit validates locally and, when valid, submits the form. Local
// validation failures never reach the network. A second Submit while one is
// in flight fails with sentinel.ErrBusy.
func (d *Dialog) Submit(ctx context.Context) (SubmitResult, error) {
	d.mu.Lock()
	switch {
	case d.state() == StateClosed:
		d.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("dialog %s is closed: %w", d.name, sentinel.ErrInvalidState)
	case d.loading:
		d.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("dialog %s: %w", d.name, sentinel.ErrBusy)
	}

	d.clearErrors()
	check := &trigger{invalid: d.form.Validate(ctx, d.validator)}
	if err := d.fire(ctx, eventSubmit, check); err != nil {
		d.mu.Unlock()
		return SubmitResult{}, err
	}
	if len(check.invalid) > 0 {
		res := SubmitResult{View: d.viewLocked()}
		d.mu.Unlock()
		return res, nil
	}
	d.loading = true
	gen := d.generation
	d.mu.Unlock()

	out := d.form.Submit(ctx)

	d.mu.Lock()
	if gen != d.generation {
		res := SubmitResult{View: d.viewLocked(), Outcome: &out, Discarded: true}
		d.mu.Unlock()
		d.logger.InfoContext(ctx, "dialog closed before submission resolved",
			"dialog", d.name,
			"ok", out.OK(),
		)
		return res, nil
	}
	d.loading = false

	resolution := &trigger{outcome: out}
	if err := d.fire(ctx, eventResolve, resolution); err != nil {
		d.mu.Unlock()
		return SubmitResult{}, err
	}
	res := SubmitResult{View: d.viewLocked(), Outcome: &out, Event: resolution.event}
	d.mu.Unlock()

	if resolution.event != nil && d.onComplete != nil {
		d.onComplete(*resolution.event)
	}
	return res, nil
}

func (d *Dialog) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

func (d *Dialog) viewLocked() View {
	v := View{
		Dialog:          d.name,
		State:           d.state(),
		Loading:         d.loading,
		BackendError:    d.backendError,
		BackendErrorKey: d.backendKey,
	}
	if len(d.fieldErrors) > 0 {
		v.ValidationErrors = append(validation.Errors(nil), d.fieldErrors...)
	}
	if d.lastEvent != nil {
		ev := *d.lastEvent
		v.LastEvent = &ev
	}
	return v
}
