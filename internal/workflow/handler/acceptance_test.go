package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cucumber/godog"
	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"moflow/internal/gateway"
	"moflow/internal/session"
	"moflow/internal/validation"
	id "moflow/pkg/domain"
	audit "moflow/pkg/platform/audit"
	"moflow/pkg/platform/audit/store/memory"
	"moflow/pkg/testutil"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// fakeMO stands in for the remote service API.
type fakeMO struct {
	mu        sync.Mutex
	createID  string
	editError string
	status    int
	body      string
	calls     []moCall
}

type moCall struct {
	Path string
	Body json.RawMessage
}

func (f *fakeMO) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, moCall{Path: r.URL.Path, Body: raw})
	status, body, createID, editError := f.status, f.body, f.createID, f.editError
	f.mu.Unlock()

	switch {
	case status != 0:
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	case strings.HasSuffix(r.URL.Path, "/create"):
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(createID)
	case strings.HasSuffix(r.URL.Path, "/edit") && editError != "":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       true,
			"error_key":   editError,
			"description": "rejected by fake",
			"status":      400,
		})
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]string{strings.Split(strings.TrimPrefix(r.URL.Path, "/service/"), "/")[1]})
	}
}

func (f *fakeMO) snapshot() []moCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]moCall(nil), f.calls...)
}

type acceptance struct {
	mo        *fakeMO
	server    *httptest.Server
	registry  *session.Registry
	router    chi.Router
	sessionID string

	status int
	body   map[string]any
}

func initializeScenario(sc *godog.ScenarioContext) {
	a := &acceptance{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, a.start()
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		a.stop()
		return ctx, err
	})

	sc.Step(`^MO creates objects with uuid "([^"]*)"$`, a.moCreates)
	sc.Step(`^MO rejects edits with error key "([^"]*)"$`, a.moRejectsEdits)
	sc.Step(`^MO answers every call with status (\d+) and body "([^"]*)"$`, a.moAnswers)

	sc.Step(`^the employee identity is "([^"]*)" with CPR "([^"]*)"$`, a.employeeIdentity)
	sc.Step(`^an engagement from "([^"]*)" is staged$`, a.stageEngagement)
	sc.Step(`^an address "([^"]*)" without validity is staged$`, a.stageAddress)
	sc.Step(`^I open the "([^"]*)" dialog$`, a.openDialog)
	sc.Step(`^I submit the "([^"]*)" dialog$`, a.submitDialog)
	sc.Step(`^I move unit "([^"]*)" under "([^"]*)" from "([^"]*)"$`, a.moveUnit)

	sc.Step(`^the response status is (\d+)$`, a.responseStatus)
	sc.Step(`^the dialog state is "([^"]*)"$`, a.dialogState)
	sc.Step(`^the completion event is "([^"]*)"$`, a.completionEvent)
	sc.Step(`^the dialog shows "([^"]*)"$`, a.dialogShows)
	sc.Step(`^the dialog shows no backend error$`, a.noBackendError)
	sc.Step(`^the last audit entry is "([^"]*)" for "([^"]*)"$`, a.lastAuditEntryFor)
	sc.Step(`^the last audit entry is "([^"]*)"$`, a.lastAuditEntry)
	sc.Step(`^the audit log is empty$`, a.auditLogEmpty)
	sc.Step(`^MO received a create with (\d+) details all valid from "([^"]*)"$`, a.receivedCreate)
	sc.Step(`^MO received no calls$`, a.receivedNoCalls)
	sc.Step(`^the employee draft is empty$`, a.employeeDraftEmpty)
}

func (a *acceptance) start() error {
	a.mo = &fakeMO{}
	a.server = httptest.NewServer(a.mo)

	client, err := gateway.New(a.server.URL)
	if err != nil {
		return err
	}
	msgs, err := validation.NewMessages(language.Danish)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a.registry, err = session.NewRegistry(client, validation.New(msgs),
		func(id.SessionID) audit.Store { return memory.NewInMemoryStore() },
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	a.router = chi.NewRouter()
	New(a.registry, logger, nil, 0).Register(a.router)
	a.sessionID = testutil.NewSessionID()
	return nil
}

func (a *acceptance) stop() {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.server != nil {
		a.server.Close()
	}
}

func (a *acceptance) call(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	testutil.WithSession(req, a.sessionID)
	rr := testutil.DoRequest(a.router, req)

	a.status = rr.Code
	a.body = nil
	if rr.Body.Len() > 0 {
		a.body = map[string]any{}
		if err := json.Unmarshal(rr.Body.Bytes(), &a.body); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// callOK fails the step on any status outside 2xx.
func (a *acceptance) callOK(method, path string, body any) error {
	if err := a.call(method, path, body); err != nil {
		return err
	}
	if a.status >= 300 {
		return fmt.Errorf("%s %s: status %d: %v", method, path, a.status, a.body)
	}
	return nil
}

func (a *acceptance) moCreates(uuid string) error {
	a.mo.mu.Lock()
	a.mo.createID = uuid
	a.mo.mu.Unlock()
	return nil
}

func (a *acceptance) moRejectsEdits(key string) error {
	a.mo.mu.Lock()
	a.mo.editError = key
	a.mo.mu.Unlock()
	return nil
}

func (a *acceptance) moAnswers(status int, body string) error {
	a.mo.mu.Lock()
	a.mo.status, a.mo.body = status, body
	a.mo.mu.Unlock()
	return nil
}

func (a *acceptance) employeeIdentity(name, cpr string) error {
	return a.callOK(http.MethodPut, "/api/v1/drafts/employee/identity", map[string]any{"name": name, "cpr_no": cpr})
}

func (a *acceptance) stageEngagement(from string) error {
	return a.callOK(http.MethodPost, "/api/v1/drafts/employee/details/engagement", map[string]any{
		"validity": map[string]any{"from": from, "to": nil},
	})
}

func (a *acceptance) stageAddress(value string) error {
	return a.callOK(http.MethodPost, "/api/v1/drafts/employee/details/address", map[string]any{"value": value})
}

func (a *acceptance) openDialog(name string) error {
	return a.callOK(http.MethodPost, "/api/v1/dialogs/"+name+"/open", nil)
}

func (a *acceptance) submitDialog(name string) error {
	return a.call(http.MethodPost, "/api/v1/dialogs/"+name+"/submit", nil)
}

func (a *acceptance) moveUnit(unit, parent, from string) error {
	return a.callOK(http.MethodPut, "/api/v1/dialogs/organisation-move/content", map[string]any{
		"unit":       map[string]any{"uuid": unit, "name": "IT-Support"},
		"new_parent": map[string]any{"uuid": parent, "name": "Social og sundhed"},
		"from":       from,
	})
}

func (a *acceptance) responseStatus(want int) error {
	if a.status != want {
		return fmt.Errorf("expected status %d, got %d: %v", want, a.status, a.body)
	}
	return nil
}

func (a *acceptance) dialogState(want string) error {
	if got := a.body["state"]; got != want {
		return fmt.Errorf("expected dialog state %q, got %v", want, got)
	}
	return nil
}

func (a *acceptance) completionEvent(want string) error {
	ev, _ := a.body["completed"].(map[string]any)
	if ev == nil || ev["event"] != want {
		return fmt.Errorf("expected completion event %q, got %v", want, a.body["completed"])
	}
	return nil
}

func (a *acceptance) dialogShows(want string) error {
	if got := a.body["backend_error"]; got != want {
		return fmt.Errorf("expected backend error %q, got %v", want, got)
	}
	return nil
}

func (a *acceptance) noBackendError() error {
	if got, ok := a.body["backend_error"]; ok {
		return fmt.Errorf("expected no backend error, got %v", got)
	}
	return nil
}

func (a *acceptance) auditEntries() ([]any, error) {
	if err := a.callOK(http.MethodGet, "/api/v1/log", nil); err != nil {
		return nil, err
	}
	entries, _ := a.body["entries"].([]any)
	return entries, nil
}

func (a *acceptance) lastAuditEntry(kind string) error {
	_, err := a.lastEntryOfKind(kind)
	return err
}

func (a *acceptance) lastAuditEntryFor(kind, subject string) error {
	entry, err := a.lastEntryOfKind(kind)
	if err != nil {
		return err
	}
	if entry["value"] != subject {
		return fmt.Errorf("expected audit subject %q, got %v", subject, entry["value"])
	}
	return nil
}

func (a *acceptance) lastEntryOfKind(kind string) (map[string]any, error) {
	entries, err := a.auditEntries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("expected an audit entry %q, the log is empty", kind)
	}
	entry := entries[len(entries)-1].(map[string]any)
	if entry["type"] != kind {
		return nil, fmt.Errorf("expected audit entry %q, got %v", kind, entry["type"])
	}
	return entry, nil
}

func (a *acceptance) auditLogEmpty() error {
	entries, err := a.auditEntries()
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("expected an empty audit log, got %d entries", len(entries))
	}
	return nil
}

func (a *acceptance) receivedCreate(n int, from string) error {
	calls := a.mo.snapshot()
	if len(calls) != 1 || calls[0].Path != "/service/e/create" {
		return fmt.Errorf("expected one employee create call, got %v", calls)
	}
	var payload struct {
		Details []struct {
			Validity struct {
				From string `json:"from"`
			} `json:"validity"`
		} `json:"details"`
	}
	if err := json.Unmarshal(calls[0].Body, &payload); err != nil {
		return err
	}
	if len(payload.Details) != n {
		return fmt.Errorf("expected %d details, got %d", n, len(payload.Details))
	}
	for i, d := range payload.Details {
		if d.Validity.From != from {
			return fmt.Errorf("detail %d valid from %q, expected %q", i, d.Validity.From, from)
		}
	}
	return nil
}

func (a *acceptance) receivedNoCalls() error {
	if calls := a.mo.snapshot(); len(calls) != 0 {
		return fmt.Errorf("expected no MO calls, got %d", len(calls))
	}
	return nil
}

func (a *acceptance) employeeDraftEmpty() error {
	if err := a.callOK(http.MethodGet, "/api/v1/drafts/employee", nil); err != nil {
		return err
	}
	if details, _ := a.body["details"].(map[string]any); len(details) != 0 {
		return fmt.Errorf("expected no staged details, got %v", details)
	}
	if identity, _ := a.body["identity"].(map[string]any); identity["name"] != "" {
		return fmt.Errorf("expected a cleared identity, got %v", identity)
	}
	return nil
}
