package agent

import (
	"fmt"
)

// ExecuteGroup runs every operation of one approved plan group in order.
// Operation k failing does not stop k+1..n (they may fail too if they
// depended on k's output); each outcome is recorded individually. The
// returned delta holds only the entities created by this group, ready to
// be merged into the plan's execution context via RecordResults.
//
// Group approval already happened, so the confirmation gate is bypassed
// for the operations inside.
func (d *Dispatcher) ExecuteGroup(env *Env, planCtx ExecutionContext, g Group, idx int) (GroupResult, ExecutionContext) {
	working := planCtx
	// Slices are shared with planCtx up to their current length; appends
	// during execution grow copies, so the delta can be sliced off below.
	basePages := len(working.CreatedPages)
	baseSections := len(working.CreatedSections)
	baseNotes := len(working.CreatedNotes)

	prevExec := env.Exec
	prevBypass := env.ConfirmBypass
	env.Exec = &working
	env.ConfirmBypass = true
	defer func() {
		env.Exec = prevExec
		env.ConfirmBypass = prevBypass
	}()

	result := GroupResult{GroupIndex: idx}
	for _, op := range g.Operations {
		params := op.Params
		if params == nil {
			params = map[string]any{}
		}
		out := d.Dispatch(env, op.Type, params)
		opResult := OperationResult{Type: op.Type}
		if errMsg, ok := out["error"].(string); ok {
			opResult.Error = errMsg
			result.Failed++
		} else {
			opResult.OK = true
			opResult.Detail = operationSummary(op)
			opResult.Created = createdID(out)
			result.Succeeded++
		}
		result.Operations = append(result.Operations, opResult)
	}

	delta := ExecutionContext{
		CreatedPages:    working.CreatedPages[basePages:],
		CreatedSections: working.CreatedSections[baseSections:],
		CreatedNotes:    working.CreatedNotes[baseNotes:],
	}
	if working.LastPageID != planCtx.LastPageID {
		delta.LastPageID, delta.LastPageName = working.LastPageID, working.LastPageName
	}
	if working.LastSectionID != planCtx.LastSectionID {
		delta.LastSectionID, delta.LastSectionName = working.LastSectionID, working.LastSectionName
	}
	return result, delta
}

func createdID(out map[string]any) string {
	for _, key := range []string{"page", "section", "note"} {
		if entity, ok := out[key].(map[string]any); ok {
			if id, ok := entity["id"].(string); ok {
				return id
			}
		}
	}
	return ""
}

// operationSummary renders a one-line user-facing preview of an operation.
func operationSummary(op Operation) string {
	name := func(keys ...string) string { return argString(op.Params, keys...) }
	switch op.Type {
	case "create_page":
		return fmt.Sprintf("Create page %q", name("name", "page"))
	case "create_section":
		if page := name("page", "pageName", "page_name"); page != "" {
			return fmt.Sprintf("Create section %q in page %q", name("name", "section"), page)
		}
		return fmt.Sprintf("Create section %q", name("name", "section"))
	case "create_note":
		content := name("content", "text")
		if len(content) > 60 {
			content = content[:60] + "..."
		}
		return fmt.Sprintf("Create note %q", content)
	case "rename_page":
		return fmt.Sprintf("Rename page %q to %q", name("page", "pageId"), name("new_name", "newName"))
	case "delete_page":
		return fmt.Sprintf("Delete page %q", name("page", "pageId"))
	case "delete_section":
		return fmt.Sprintf("Delete section %q", name("section", "sectionId"))
	case "delete_note":
		return fmt.Sprintf("Delete note %q", name("id", "note"))
	case "bulk_update_notes":
		return "Update matching notes"
	case "bulk_delete_notes":
		return "Delete matching notes"
	default:
		return op.Type
	}
}

// BuildPlanPreview renders a plan for the caller, including the totals the
// proposal payload carries.
func BuildPlanPreview(p Plan) *PlanPreview {
	preview := &PlanPreview{
		Summary:     p.Summary,
		Groups:      make([]GroupPreview, len(p.Groups)),
		TotalGroups: len(p.Groups),
	}
	for i, g := range p.Groups {
		preview.Groups[i] = buildGroupPreview(g)
		preview.TotalActions += len(g.Operations)
	}
	return preview
}

func buildGroupPreview(g Group) GroupPreview {
	gp := GroupPreview{ID: g.ID, Title: g.Title, Description: g.Description}
	for _, op := range g.Operations {
		gp.Operations = append(gp.Operations, OperationPreview{Type: op.Type, Summary: operationSummary(op)})
	}
	return gp
}
