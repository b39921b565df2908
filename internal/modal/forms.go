package modal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"moflow/internal/validation"
	"moflow/internal/workflow"
	"moflow/internal/workflow/models"
	dErrors "moflow/pkg/domain-errors"
)

// Dialog names.
const (
	EmployeeCreate     = "employee-create"
	EmployeeEdit       = "employee-edit"
	EmployeeMove       = "employee-move"
	EmployeeTerminate  = "employee-terminate"
	OrganisationCreate = "organisation-create"
	OrganisationEdit   = "organisation-edit"
	OrganisationMove   = "organisation-move"
)

// Completion events.
const (
	EventEmployeeCreated     = "employeeCreated"
	EventEmployeeEdited      = "employeeEdited"
	EventEmployeeMoved       = "employeeMoved"
	EventEmployeeTerminated  = "employeeTerminated"
	EventOrganisationCreated = "organisationCreated"
	EventOrganisationEdited  = "organisationEdited"
	EventOrganisationMoved   = "organisationMoved"
)

// Names lists every dialog NewDialogs builds.
var Names = []string{
	EmployeeCreate,
	EmployeeEdit,
	EmployeeMove,
	EmployeeTerminate,
	OrganisationCreate,
	OrganisationEdit,
	OrganisationMove,
}

// NewDialogs builds one dialog per workflow, all sharing wf.
func NewDialogs(wf *workflow.Workflow, v *validation.Validator, opts ...Option) map[string]*Dialog {
	forms := map[string]Form{
		EmployeeCreate:     &DraftForm{wf: wf, kind: models.EntityEmployee, event: EventEmployeeCreated},
		EmployeeEdit:       &DraftForm{wf: wf, kind: models.EntityEmployee, edit: true, event: EventEmployeeEdited},
		EmployeeMove:       &EmployeeMoveForm{wf: wf},
		EmployeeTerminate:  &EmployeeTerminateForm{wf: wf},
		OrganisationCreate: &DraftForm{wf: wf, kind: models.EntityOrgUnit, event: EventOrganisationCreated},
		OrganisationEdit:   &DraftForm{wf: wf, kind: models.EntityOrgUnit, edit: true, event: EventOrganisationEdited},
		OrganisationMove:   &OrgUnitMoveForm{wf: wf},
	}
	out := make(map[string]*Dialog, len(forms))
	for name, f := range forms {
		out[name] = NewDialog(name, f, v, opts...)
	}
	return out
}

func decodeContent(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, fmt.Sprintf("invalid dialog content: %v", err))
	}
	return nil
}

// guarded holds form content read by an in-flight submission while the
// dialog may already have been closed and reopened.
type guarded[T any] struct {
	mu sync.Mutex
	v  T
}

func (g *guarded[T]) get() T {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

func (g *guarded[T]) set(v T) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

// DraftContent is the content of create and edit dialogs. UUID names the
// object being edited.
type DraftContent struct {
	UUID     string                                      `json:"uuid,omitempty"`
	Identity *models.Identity                            `json:"identity,omitempty"`
	Details  map[models.DetailKind][]models.DetailRecord `json:"details,omitempty"`
}

// DraftForm creates or edits an entity through its workflow store. Create
// and edit dialogs stage into separate stores. The store is reset after a
// successful submission only, and only when nothing was staged meanwhile.
type DraftForm struct {
	wf      *workflow.Workflow
	kind    models.EntityKind
	edit    bool
	event   string
	uuid    guarded[string]
	version guarded[uint64]
}

func (f *DraftForm) store() *workflow.Store {
	if f.edit {
		return f.wf.EditStore(f.kind)
	}
	return f.wf.Store(f.kind)
}

func (f *DraftForm) Opened(context.Context) {}

func (f *DraftForm) Closed(context.Context) {}

func (f *DraftForm) SetContent(_ context.Context, raw json.RawMessage) error {
	var c DraftContent
	if err := decodeContent(raw, &c); err != nil {
		return err
	}
	for k := range c.Details {
		if _, err := models.ParseDetailKind(string(k)); err != nil {
			return err
		}
	}
	store := f.store()
	if f.edit && c.UUID != "" && c.UUID != f.uuid.get() {
		store.ResetFields()
		f.uuid.set(c.UUID)
	}
	if c.Identity != nil {
		store.SetIdentity(*c.Identity)
	}
	for k, recs := range c.Details {
		store.StageAll(k, recs)
	}
	return nil
}

type employeeRules struct {
	Name    string                `json:"name" validate:"required"`
	CPRNo   string                `json:"cpr_no" validate:"required,cpr"`
	Details []models.DetailRecord `json:"details" validate:"dive"`
}

type orgUnitRules struct {
	Name        string                `json:"name" validate:"required"`
	Parent      *models.Ref           `json:"parent" validate:"required"`
	OrgUnitType *models.Ref           `json:"org_unit_type" validate:"required"`
	Validity    *models.Validity      `json:"validity" validate:"required"`
	Details     []models.DetailRecord `json:"details" validate:"dive"`
}

type editRules struct {
	UUID     string                `json:"uuid" validate:"required,uuid"`
	Validity *models.Validity      `json:"validity"`
	Details  []models.DetailRecord `json:"details" validate:"dive"`
}

func (f *DraftForm) Validate(ctx context.Context, v *validation.Validator) validation.Errors {
	draft := f.store().Snapshot()
	details := draft.Flatten()
	if f.edit {
		return v.Struct(ctx, editRules{UUID: f.uuid.get(), Validity: draft.Identity.Validity, Details: details})
	}
	switch f.kind {
	case models.EntityEmployee:
		return v.Struct(ctx, employeeRules{Name: draft.Identity.Name, CPRNo: draft.Identity.CPRNo, Details: details})
	case models.EntityOrgUnit:
		return v.Struct(ctx, orgUnitRules{
			Name:        draft.Identity.Name,
			Parent:      draft.Identity.Parent,
			OrgUnitType: draft.Identity.OrgUnitType,
			Validity:    draft.Identity.Validity,
			Details:     details,
		})
	}
	panic(models.ErrUnknownEntityKind(f.kind))
}

func (f *DraftForm) Submit(ctx context.Context) models.Outcome {
	f.version.set(f.store().Version())
	if f.edit {
		return f.wf.Edit(ctx, f.kind, f.uuid.get())
	}
	return f.wf.Create(ctx, f.kind)
}

// Completed clears the submitted draft unless it changed while in flight.
func (f *DraftForm) Completed(context.Context, models.Outcome) {
	f.store().ResetFieldsIf(f.version.get())
}

func (f *DraftForm) CompletionEvent() string { return f.event }

// EmployeeMoveForm moves an engagement to another unit.
type EmployeeMoveForm struct {
	wf      *workflow.Workflow
	content guarded[models.EmployeeMove]
}

func (f *EmployeeMoveForm) Opened(context.Context) {}

func (f *EmployeeMoveForm) Completed(context.Context, models.Outcome) {}

func (f *EmployeeMoveForm) Closed(context.Context) { f.content.set(models.EmployeeMove{}) }

func (f *EmployeeMoveForm) SetContent(_ context.Context, raw json.RawMessage) error {
	var c models.EmployeeMove
	if err := decodeContent(raw, &c); err != nil {
		return err
	}
	f.content.set(c)
	return nil
}

func (f *EmployeeMoveForm) Validate(ctx context.Context, v *validation.Validator) validation.Errors {
	return v.Struct(ctx, f.content.get())
}

func (f *EmployeeMoveForm) Submit(ctx context.Context) models.Outcome {
	return f.wf.MoveEmployee(ctx, f.content.get())
}

func (f *EmployeeMoveForm) CompletionEvent() string { return EventEmployeeMoved }

// EmployeeTerminateForm ends an employee's relations.
type EmployeeTerminateForm struct {
	wf      *workflow.Workflow
	content guarded[models.EmployeeTermination]
}

func (f *EmployeeTerminateForm) Opened(context.Context) {}

func (f *EmployeeTerminateForm) Completed(context.Context, models.Outcome) {}

func (f *EmployeeTerminateForm) Closed(context.Context) { f.content.set(models.EmployeeTermination{}) }

func (f *EmployeeTerminateForm) SetContent(_ context.Context, raw json.RawMessage) error {
	var c models.EmployeeTermination
	if err := decodeContent(raw, &c); err != nil {
		return err
	}
	f.content.set(c)
	return nil
}

func (f *EmployeeTerminateForm) Validate(ctx context.Context, v *validation.Validator) validation.Errors {
	return v.Struct(ctx, f.content.get())
}

func (f *EmployeeTerminateForm) Submit(ctx context.Context) models.Outcome {
	return f.wf.TerminateEmployee(ctx, f.content.get())
}

func (f *EmployeeTerminateForm) CompletionEvent() string { return EventEmployeeTerminated }

// OrgUnitMoveForm gives a unit a new parent.
type OrgUnitMoveForm struct {
	wf      *workflow.Workflow
	content guarded[models.OrgUnitMove]
}

func (f *OrgUnitMoveForm) Opened(context.Context) {}

func (f *OrgUnitMoveForm) Completed(context.Context, models.Outcome) {}

func (f *OrgUnitMoveForm) Closed(context.Context) { f.content.set(models.OrgUnitMove{}) }

func (f *OrgUnitMoveForm) SetContent(_ context.Context, raw json.RawMessage) error {
	var c models.OrgUnitMove
	if err := decodeContent(raw, &c); err != nil {
		return err
	}
	f.content.set(c)
	return nil
}

func (f *OrgUnitMoveForm) Validate(ctx context.Context, v *validation.Validator) validation.Errors {
	return v.Struct(ctx, f.content.get())
}

func (f *OrgUnitMoveForm) Submit(ctx context.Context) models.Outcome {
	return f.wf.MoveOrgUnit(ctx, f.content.get())
}

func (f *OrgUnitMoveForm) CompletionEvent() string { return EventOrganisationMoved }
