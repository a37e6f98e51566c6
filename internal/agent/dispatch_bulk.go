package agent

import (
	"fmt"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

func (d *Dispatcher) listPages(env *Env) map[string]any {
	pages, err := d.ws.ListPages(env.Scope)
	if err != nil {
		return errResult(err.Error())
	}
	out := make([]map[string]any, len(pages))
	for i, p := range pages {
		out[i] = map[string]any{"id": p.ID, "name": p.Name}
	}
	return map[string]any{"pages": out, "count": len(out)}
}

func (d *Dispatcher) listSections(env *Env, args map[string]any) map[string]any {
	pageID := ""
	if ref := pageRef(args); ref.ID != "" || ref.Name != "" {
		var err error
		pageID, err = d.resolvePageRef(env, ref)
		if err != nil {
			return errResult("list_sections: page " + err.Error())
		}
	}
	sections, err := d.ws.ListSections(env.Scope, pageID)
	if err != nil {
		return errResult(err.Error())
	}
	out := make([]map[string]any, len(sections))
	for i, s := range sections {
		out[i] = map[string]any{"id": s.ID, "name": s.Name, "page_id": s.PageID}
	}
	return map[string]any{"sections": out, "count": len(out)}
}

// queryNotes materializes matching notes and attaches the presentation
// decision so the model knows whether to inline the list, offer a saved
// view, or materialize one directly. A materialize decision emits the
// apply_filter directive straight away.
func (d *Dispatcher) queryNotes(env *Env, args map[string]any) map[string]any {
	filter, err := d.parseFilter(env, args)
	if err != nil {
		return errResult("query_notes: " + err.Error())
	}
	notes, err := d.ws.QueryNotes(env.Scope, filter)
	if err != nil {
		return errResult(err.Error())
	}
	out := make([]map[string]any, len(notes))
	for i, n := range notes {
		out[i] = notePayload(n)
	}
	decision := d.thresholds.Decide(len(notes))
	result := map[string]any{
		"notes":        out,
		"count":        len(notes),
		"presentation": decision.String(),
	}
	if decision == ViewMaterialize {
		env.Actions = append(env.Actions, Action{Type: "apply_filter", Payload: rawFilterPayload(args)})
	}
	return result
}

func (d *Dispatcher) listTrash(env *Env) map[string]any {
	items, err := d.ws.ListTrash(env.Scope)
	if err != nil {
		return errResult(err.Error())
	}
	out := make([]map[string]any, len(items))
	for i, item := range items {
		out[i] = map[string]any{
			"kind":       item.Kind,
			"id":         item.ID,
			"label":      item.Label,
			"deleted_at": item.DeletedAt,
		}
	}
	return map[string]any{"trash": out, "count": len(out)}
}

func (d *Dispatcher) listTags(env *Env) map[string]any {
	tags, err := d.ws.ListTags(env.Scope)
	if err != nil {
		return errResult(err.Error())
	}
	return map[string]any{"tags": tags, "count": len(tags)}
}

// bulkUpdateNotes applies one update payload to every note matched by a
// filter.
// Tag set algebra forces the per-note path (add first, then remove, so a
// tag present in both ends up absent); plain field updates go through one
// batched statement. Per-item failures are recorded and do not abort the
// remaining items.
func (d *Dispatcher) bulkUpdateNotes(env *Env, args map[string]any) map[string]any {
	filter, err := d.parseFilter(env, args)
	if err != nil {
		return errResult("bulk_update_notes: " + err.Error())
	}
	update := argMap(args, "update", "updates")
	if update == nil {
		return errResult("bulk_update_notes: update payload is required")
	}
	patch, err := d.parsePatch(env, update)
	if err != nil {
		return errResult("bulk_update_notes: " + err.Error())
	}

	notes, err := d.ws.QueryNotes(env.Scope, filter)
	if err != nil {
		return errResult(err.Error())
	}
	if len(notes) == 0 {
		return map[string]any{"updated_count": 0, "matched_count": 0}
	}

	if pending := d.confirmGate(env, "bulk_update_notes", map[string]any{"filter": rawFilterPayload(args), "update": update},
		fmt.Sprintf("update %d notes", len(notes))); pending != nil {
		pending["matched_count"] = len(notes)
		return pending
	}

	perNote := len(patch.AddTags) > 0 || len(patch.RemoveTags) > 0
	if !perNote {
		ids := noteIDs(notes)
		count, err := d.ws.BulkUpdateNotes(env.Scope, ids, patch)
		if err != nil {
			return errResult(err.Error())
		}
		env.Mutated = true
		return map[string]any{"updated_count": count, "matched_count": len(notes)}
	}

	updated := 0
	failures := []map[string]any{}
	for _, n := range notes {
		if _, err := d.ws.UpdateNote(env.Scope, n.ID, patch); err != nil {
			failures = append(failures, map[string]any{"id": n.ID, "error": err.Error()})
			continue
		}
		updated++
	}
	if updated > 0 {
		env.Mutated = true
	}
	result := map[string]any{"updated_count": updated, "matched_count": len(notes)}
	if len(failures) > 0 {
		result["failures"] = failures
	}
	return result
}

// bulkDeleteNotes soft-deletes every note matched by a filter, after the
// confirmation round-trip. Continue-on-error; the returned count reflects
// only successes.
func (d *Dispatcher) bulkDeleteNotes(env *Env, args map[string]any) map[string]any {
	filter, err := d.parseFilter(env, args)
	if err != nil {
		return errResult("bulk_delete_notes: " + err.Error())
	}
	notes, err := d.ws.QueryNotes(env.Scope, filter)
	if err != nil {
		return errResult(err.Error())
	}
	if len(notes) == 0 {
		return map[string]any{"deleted_count": 0, "matched_count": 0}
	}

	if pending := d.confirmGate(env, "bulk_delete_notes", map[string]any{"filter": rawFilterPayload(args)},
		fmt.Sprintf("delete %d notes", len(notes))); pending != nil {
		pending["matched_count"] = len(notes)
		return pending
	}

	deleted := 0
	failures := []map[string]any{}
	for _, n := range notes {
		if _, err := d.ws.SoftDeleteNote(env.Scope, n.ID); err != nil {
			failures = append(failures, map[string]any{"id": n.ID, "error": err.Error()})
			continue
		}
		deleted++
	}
	if deleted > 0 {
		env.Mutated = true
	}
	result := map[string]any{"deleted_count": deleted, "matched_count": len(notes)}
	if len(failures) > 0 {
		result["failures"] = failures
	}
	return result
}

// viewDirective collects a side-channel action for the caller to apply.
// The core never navigates or filters by itself.
func (d *Dispatcher) viewDirective(env *Env, name string, args map[string]any) map[string]any {
	payload := map[string]any{}
	for k, v := range args {
		payload[k] = v
	}
	env.Actions = append(env.Actions, Action{Type: name, Payload: payload})
	return map[string]any{"ok": true, "action": name}
}

// parseFilter builds a store.Filter from tool arguments. The filter may
// arrive nested under "filter" or flattened on the argument object; page
// and section references are resolved through the usual tiers.
func (d *Dispatcher) parseFilter(env *Env, args map[string]any) (store.Filter, error) {
	raw := argMap(args, "filter")
	if raw == nil {
		raw = args
	}
	var f store.Filter
	if ref := pageRef(raw); ref.ID != "" || ref.Name != "" {
		id, err := d.resolvePageRef(env, ref)
		if err != nil {
			return f, fmt.Errorf("page %w", err)
		}
		f.PageID = id
	}
	if ref := sectionRef(raw); ref.ID != "" || ref.Name != "" {
		id, err := d.resolveSectionRef(env, ref)
		if err != nil {
			return f, fmt.Errorf("section %w", err)
		}
		f.SectionID = id
	}
	f.Tags = argStringSlice(raw, "tags")
	f.Search = argString(raw, "search", "query")
	if v, ok := raw["completed"].(bool); ok {
		f.Completed = &v
	}
	f.DateFrom = argDate(raw, "date_from", "dateFrom")
	f.DateTo = argDate(raw, "date_to", "dateTo")
	f.IDs = argStringSlice(raw, "ids", "note_ids")
	if v, ok := raw["limit"].(float64); ok {
		f.Limit = int(v)
	}
	return f, nil
}

// parsePatch builds a store.NotePatch from an update payload.
func (d *Dispatcher) parsePatch(env *Env, args map[string]any) (store.NotePatch, error) {
	var p store.NotePatch
	if v, ok := args["content"].(string); ok {
		p.Content = &v
	}
	if v, ok := args["completed"].(bool); ok {
		p.Completed = &v
	}
	if argBool(args, "clear_date") {
		p.ClearDate = true
	} else {
		p.Date = argDate(args, "date")
	}
	if _, ok := args["tags"]; ok {
		tags := argStringSlice(args, "tags")
		p.Tags = &tags
	}
	p.AddTags = argStringSlice(args, "add_tags", "addTags")
	p.RemoveTags = argStringSlice(args, "remove_tags", "removeTags")
	if ref := sectionRef(args); ref.ID != "" || ref.Name != "" {
		id, err := d.resolveSectionRef(env, ref)
		if err != nil {
			return p, fmt.Errorf("section %w", err)
		}
		p.SectionID = &id
	}
	return p, nil
}

func noteIDs(notes []models.Note) []string {
	ids := make([]string, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
	}
	return ids
}

func rawFilterPayload(args map[string]any) map[string]any {
	if raw := argMap(args, "filter"); raw != nil {
		return raw
	}
	return args
}
