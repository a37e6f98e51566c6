package agent

import (
	"testing"

	"github.com/starford/ansuz/internal/testutil"
)

func TestExecuteGroup_ContinueOnErrorAndDelta(t *testing.T) {
	d, db := newTestDispatcher(t)
	env := newEnv(t, db, "alice")

	g := Group{Title: "Set up", Operations: []Operation{
		{Type: "create_page", Params: map[string]any{"name": "Project"}},
		{Type: "create_note", Params: map[string]any{}}, // missing content: fails
		{Type: "create_section", Params: map[string]any{"name": "Backlog", "page": "Project"}},
	}}

	result, delta := d.ExecuteGroup(env, ExecutionContext{}, g, 0)

	if result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("result = %d ok / %d failed, want 2/1", result.Succeeded, result.Failed)
	}
	if len(result.Operations) != 3 {
		t.Fatalf("operations = %d, want all recorded", len(result.Operations))
	}
	if result.Operations[1].OK || result.Operations[1].Error == "" {
		t.Error("failing operation not recorded as failure")
	}
	if result.Operations[0].Created == "" {
		t.Error("created page ID not captured")
	}

	if len(delta.CreatedPages) != 1 || len(delta.CreatedSections) != 1 {
		t.Errorf("delta = %d pages / %d sections, want 1/1", len(delta.CreatedPages), len(delta.CreatedSections))
	}
	if delta.LastPageName != "Project" {
		t.Errorf("delta last page = %q", delta.LastPageName)
	}

	if env.Exec != nil || env.ConfirmBypass {
		t.Error("env not restored after group execution")
	}
}

func TestExecuteGroup_LaterGroupSeesEarlierContext(t *testing.T) {
	d, db := newTestDispatcher(t)
	env := newEnv(t, db, "alice")

	g1 := Group{Title: "Page", Operations: []Operation{
		{Type: "create_page", Params: map[string]any{"name": "Trip"}},
	}}
	r1, delta1 := d.ExecuteGroup(env, ExecutionContext{}, g1, 0)
	if r1.Failed != 0 {
		t.Fatalf("group 1 failed: %+v", r1)
	}

	var planCtx ExecutionContext
	planCtx.Merge(delta1)

	// Group 2 references the page by the name created in group 1, which does
	// not exist anywhere else.
	g2 := Group{Title: "Sections", Operations: []Operation{
		{Type: "create_section", Params: map[string]any{"name": "Packing", "page": "Trip"}},
		{Type: "create_section", Params: map[string]any{"name": "Itinerary", "page": "Trip"}},
	}}
	r2, delta2 := d.ExecuteGroup(env, planCtx, g2, 1)
	if r2.Failed != 0 {
		t.Fatalf("group 2 failed: %+v", r2)
	}
	if len(delta2.CreatedSections) != 2 {
		t.Errorf("delta 2 sections = %d, want 2", len(delta2.CreatedSections))
	}
	if len(delta2.CreatedPages) != 0 {
		t.Errorf("delta 2 leaked %d pages from the base context", len(delta2.CreatedPages))
	}

	sections, err := db.ListSections(env.Scope, delta1.CreatedPages[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 {
		t.Errorf("sections under created page = %d, want 2", len(sections))
	}
}

func TestExecuteGroup_BypassesConfirmGate(t *testing.T) {
	d, db := newTestDispatcher(t)
	p, _ := testutil.Seed(t, db, "alice", "Doomed", "S")
	env := newEnv(t, db, "alice")

	g := Group{Title: "Cleanup", Operations: []Operation{
		{Type: "delete_page", Params: map[string]any{"pageId": p.ID}},
	}}
	result, _ := d.ExecuteGroup(env, ExecutionContext{}, g, 0)
	if result.Succeeded != 1 {
		t.Fatalf("gated delete inside an approved group did not run: %+v", result)
	}
}

func TestBuildPlanPreview(t *testing.T) {
	p := twoGroupPlan()
	preview := BuildPlanPreview(p)
	if preview.TotalGroups != 2 || preview.TotalActions != 3 {
		t.Errorf("totals = %d groups / %d actions, want 2/3", preview.TotalGroups, preview.TotalActions)
	}
	if preview.Groups[0].Operations[0].Summary == "" {
		t.Error("operation summary empty")
	}
}
