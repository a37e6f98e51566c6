package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
)

// faultyWorkspace injects failures into selected Workspace calls and
// delegates everything else to the embedded store.
type faultyWorkspace struct {
	store.Workspace
	panicOnCreatePage bool
	failScopeRefresh  bool
}

func (f *faultyWorkspace) CreatePage(p *models.Page) error {
	if f.panicOnCreatePage {
		panic("simulated store failure")
	}
	return f.Workspace.CreatePage(p)
}

func (f *faultyWorkspace) VisibleScope(userID string) (store.Scope, error) {
	if f.failScopeRefresh {
		return store.Scope{}, errors.New("scope query failed")
	}
	return f.Workspace.VisibleScope(userID)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	return NewDispatcher(db, DefaultViewThresholds(), nil), db
}

func newEnv(t *testing.T, db *store.DB, userID string) *Env {
	t.Helper()
	return &Env{Scope: scopeFor(t, db, userID), UserID: userID}
}

func TestDispatchCreateNote_InlineMetadata(t *testing.T) {
	d, db := newTestDispatcher(t)
	testutil.Seed(t, db, "alice", "Work", "Inbox")
	env := newEnv(t, db, "alice")
	env.Request = RequestContext{CurrentPage: "Work", CurrentSection: "Inbox"}

	out := d.Dispatch(env, "create_note", map[string]any{
		"content": "- fix the login bug #bug !2026-09-12",
		"tags":    []any{"work"},
	})
	note, ok := out["note"].(map[string]any)
	if !ok {
		t.Fatalf("result = %v", out)
	}
	if note["content"] != "fix the login bug" {
		t.Errorf("content = %v", note["content"])
	}
	tags := note["tags"].([]string)
	if len(tags) != 2 || tags[0] != "work" || tags[1] != "bug" {
		t.Errorf("tags = %v, want [work bug]", tags)
	}
	if note["date"] != "2026-09-12" {
		t.Errorf("date = %v", note["date"])
	}
	if !env.Mutated {
		t.Error("mutation flag not set")
	}
}

func TestDispatchCreateSection_ResolvesPageFromExecContext(t *testing.T) {
	d, db := newTestDispatcher(t)
	p, _ := testutil.Seed(t, db, "alice", "Elsewhere", "S")
	env := newEnv(t, db, "alice")
	exec := &ExecutionContext{}
	exec.RecordPage(p.ID, "Project")
	env.Exec = exec

	out := d.Dispatch(env, "create_section", map[string]any{"name": "Backlog", "page": "Project"})
	section, ok := out["section"].(map[string]any)
	if !ok {
		t.Fatalf("result = %v", out)
	}
	if section["page_id"] != p.ID {
		t.Errorf("page_id = %v, want %s (resolved from execution context)", section["page_id"], p.ID)
	}
}

func TestDispatchRenamePage(t *testing.T) {
	d, db := newTestDispatcher(t)
	p, _ := testutil.Seed(t, db, "alice", "Work", "Inbox")
	env := newEnv(t, db, "alice")

	out := d.Dispatch(env, "rename_page", map[string]any{"page": "Work", "new_name": "Projects"})
	page, ok := out["page"].(map[string]any)
	if !ok || page["name"] != "Projects" {
		t.Fatalf("result = %v", out)
	}
	got, err := db.GetPage(env.Scope, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Projects" {
		t.Errorf("stored name = %q", got.Name)
	}
	if !env.Mutated {
		t.Error("mutation flag not set")
	}

	out = d.Dispatch(env, "rename_page", map[string]any{"page": "Projects"})
	if _, ok := out["error"]; !ok {
		t.Error("missing new_name accepted")
	}
}

func TestDispatchDeletePage_ConfirmRoundTrip(t *testing.T) {
	d, db := newTestDispatcher(t)
	p, _ := testutil.Seed(t, db, "alice", "Work", "Inbox")
	env := newEnv(t, db, "alice")

	out := d.Dispatch(env, "delete_page", map[string]any{"pageId": p.ID})
	if out["requires_confirmation"] != true {
		t.Fatalf("unconfirmed delete executed: %v", out)
	}
	token, _ := out["confirm_value"].(string)
	if token == "" {
		t.Fatal("no confirm_value issued")
	}
	if env.Mutated {
		t.Error("gate set the mutation flag")
	}

	// Echoing the token executes the delete.
	env.Confirmed = token
	out = d.Dispatch(env, "delete_page", map[string]any{"pageId": p.ID})
	if out["deleted"] != true {
		t.Fatalf("confirmed delete failed: %v", out)
	}
	if _, err := db.GetPage(env.Scope, p.ID); err == nil {
		t.Error("page still live after confirmed delete")
	}
}

func TestDispatchDeletePage_WrongTokenStaysGated(t *testing.T) {
	d, db := newTestDispatcher(t)
	p, _ := testutil.Seed(t, db, "alice", "Work", "Inbox")
	env := newEnv(t, db, "alice")
	env.Confirmed = "stale-token"

	out := d.Dispatch(env, "delete_page", map[string]any{"pageId": p.ID})
	if out["requires_confirmation"] != true {
		t.Fatalf("stale token executed the delete: %v", out)
	}
}

func TestDispatchConfirmBypass(t *testing.T) {
	d, db := newTestDispatcher(t)
	p, _ := testutil.Seed(t, db, "alice", "Work", "Inbox")
	env := newEnv(t, db, "alice")
	env.ConfirmBypass = true

	out := d.Dispatch(env, "delete_page", map[string]any{"pageId": p.ID})
	if out["deleted"] != true {
		t.Fatalf("bypass did not skip the gate: %v", out)
	}
}

func TestDispatchQueryNotes_PresentationAndMaterialize(t *testing.T) {
	d, db := newTestDispatcher(t)
	_, sec := testutil.Seed(t, db, "alice", "Work", "Inbox")
	for i := 0; i < 7; i++ {
		n := &models.Note{SectionID: sec.ID, Content: "task", Tags: []string{"work"}, OwnerID: "alice"}
		if err := db.CreateNote(n); err != nil {
			t.Fatal(err)
		}
	}
	env := newEnv(t, db, "alice")

	out := d.Dispatch(env, "query_notes", map[string]any{"filter": map[string]any{"tags": []any{"work"}}})
	if out["count"] != 7 {
		t.Fatalf("count = %v", out["count"])
	}
	if out["presentation"] != "materialize_view" {
		t.Errorf("presentation = %v", out["presentation"])
	}
	if len(env.Actions) != 1 || env.Actions[0].Type != "apply_filter" {
		t.Errorf("actions = %v, want one apply_filter directive", env.Actions)
	}
}

func TestDispatchBulkDelete_ContinueOnErrorCounts(t *testing.T) {
	d, db := newTestDispatcher(t)
	_, sec := testutil.Seed(t, db, "alice", "Work", "Inbox")
	for i := 0; i < 3; i++ {
		n := &models.Note{SectionID: sec.ID, Content: "old stuff", Tags: []string{"old"}, OwnerID: "alice"}
		if err := db.CreateNote(n); err != nil {
			t.Fatal(err)
		}
	}
	env := newEnv(t, db, "alice")

	args := map[string]any{"filter": map[string]any{"tags": []any{"old"}}}
	out := d.Dispatch(env, "bulk_delete_notes", args)
	if out["requires_confirmation"] != true || out["matched_count"] != 3 {
		t.Fatalf("gate result = %v", out)
	}

	env.Confirmed, _ = out["confirm_value"].(string)
	out = d.Dispatch(env, "bulk_delete_notes", args)
	if out["deleted_count"] != 3 || out["matched_count"] != 3 {
		t.Fatalf("confirmed bulk delete = %v", out)
	}
	left, _ := db.QueryNotes(env.Scope, store.Filter{Tags: []string{"old"}})
	if len(left) != 0 {
		t.Errorf("%d notes survived the bulk delete", len(left))
	}
}

func TestDispatchRestore_ConflictMessage(t *testing.T) {
	d, db := newTestDispatcher(t)
	p, sec := testutil.Seed(t, db, "alice", "Work", "Inbox")
	n := &models.Note{SectionID: sec.ID, Content: "x", OwnerID: "alice"}
	if err := db.CreateNote(n); err != nil {
		t.Fatal(err)
	}
	env := newEnv(t, db, "alice")
	if _, err := db.SoftDeleteNote(env.Scope, n.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SoftDeletePage(env.Scope, p.ID); err != nil {
		t.Fatal(err)
	}

	out := d.Dispatch(env, "restore_item", map[string]any{"kind": "note", "id": n.ID})
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "restore it first") {
		t.Errorf("error = %q, want parent-first hint", msg)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d, db := newTestDispatcher(t)
	env := newEnv(t, db, "alice")
	out := d.Dispatch(env, "frobnicate", map[string]any{})
	if _, ok := out["error"]; !ok {
		t.Errorf("unknown tool result = %v, want error payload", out)
	}
}

func TestDispatchPanicReturnsErrorPayload(t *testing.T) {
	db := testutil.TestDB(t)
	ws := &faultyWorkspace{Workspace: db, panicOnCreatePage: true}
	d := NewDispatcher(ws, DefaultViewThresholds(), nil)
	env := newEnv(t, db, "alice")

	out := d.Dispatch(env, "create_page", map[string]any{"name": "Work"})
	if out == nil {
		t.Fatal("panicking tool returned a nil result")
	}
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "internal error in create_page") {
		t.Errorf("error = %q, want internal-error payload", msg)
	}
}

func TestExecuteGroupCountsPanickedOperationAsFailed(t *testing.T) {
	db := testutil.TestDB(t)
	ws := &faultyWorkspace{Workspace: db, panicOnCreatePage: true}
	d := NewDispatcher(ws, DefaultViewThresholds(), nil)
	env := newEnv(t, db, "alice")

	g := Group{Title: "Setup", Operations: []Operation{
		{Type: "create_page", Params: map[string]any{"name": "Work"}},
	}}
	result, _ := d.ExecuteGroup(env, ExecutionContext{}, g, 0)
	if result.Failed != 1 || result.Succeeded != 0 {
		t.Fatalf("succeeded=%d failed=%d, want 0/1", result.Succeeded, result.Failed)
	}
	if len(result.Operations) != 1 || result.Operations[0].OK || result.Operations[0].Error == "" {
		t.Errorf("operations = %+v, want one failed outcome with an error", result.Operations)
	}
}

func TestDispatchCreatePage_KeepsScopeWhenRefreshFails(t *testing.T) {
	db := testutil.TestDB(t)
	p, _ := testutil.Seed(t, db, "alice", "Work", "Inbox")
	env := newEnv(t, db, "alice")

	ws := &faultyWorkspace{Workspace: db, failScopeRefresh: true}
	d := NewDispatcher(ws, DefaultViewThresholds(), nil)

	out := d.Dispatch(env, "create_page", map[string]any{"name": "Projects"})
	if _, ok := out["page"]; !ok {
		t.Fatalf("result = %v", out)
	}
	// The refresh failed; the pre-existing scope must survive instead of
	// being replaced with an empty one.
	if env.Scope.UserID != "alice" || !env.Scope.Allows(p.ID) {
		t.Errorf("scope was wiped by a failed refresh: user=%q allows=%v", env.Scope.UserID, env.Scope.Allows(p.ID))
	}
}

func TestDispatchViewDirective(t *testing.T) {
	d, db := newTestDispatcher(t)
	env := newEnv(t, db, "alice")
	out := d.Dispatch(env, "navigate", map[string]any{"page": "Work"})
	if out["ok"] != true {
		t.Fatalf("result = %v", out)
	}
	if len(env.Actions) != 1 || env.Actions[0].Type != "navigate" || env.Actions[0].Payload["page"] != "Work" {
		t.Errorf("actions = %v", env.Actions)
	}
}
