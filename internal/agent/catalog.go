package agent

import (
	"encoding/json"

	"github.com/starford/ansuz/internal/llm"
)

// prop is shorthand for one JSON-schema property.
type prop map[string]any

func toolDef(name, description string, properties map[string]prop, required ...string) llm.Tool {
	if required == nil {
		required = []string{}
	}
	params, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return llm.Tool{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

var filterProps = map[string]prop{
	"page":      {"type": "string", "description": "Page name or ID to scope the filter"},
	"section":   {"type": "string", "description": "Section name or ID to scope the filter"},
	"tags":      {"type": "array", "items": map[string]any{"type": "string"}, "description": "Match notes carrying any of these tags"},
	"search":    {"type": "string", "description": "Case-insensitive substring of note content"},
	"completed": {"type": "boolean"},
	"date_from": {"type": "string", "description": "YYYY-MM-DD"},
	"date_to":   {"type": "string", "description": "YYYY-MM-DD"},
	"ids":       {"type": "array", "items": map[string]any{"type": "string"}, "description": "Explicit note ID allow-list"},
}

func filterParam() prop {
	return prop{"type": "object", "properties": filterProps}
}

// Catalog returns the full tool catalog presented to the model.
func Catalog() []llm.Tool {
	groupSchema := prop{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"operations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":   map[string]any{"type": "string", "description": "create_page, create_section, create_note, delete_note, bulk_update_notes, ..."},
						"params": map[string]any{"type": "object"},
					},
					"required": []string{"type", "params"},
				},
			},
		},
		"required": []string{"title", "operations"},
	}

	return []llm.Tool{
		// Terminal tools: each of these ends the turn.
		toolDef("respond", "Send the final reply for this turn. Call after any needed queries or mutations.",
			map[string]prop{"message": {"type": "string"}}, "message"),
		toolDef("clarify", "Ask the user a clarifying question with selectable options.",
			map[string]prop{
				"message": {"type": "string"},
				"options": {"type": "array", "items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label": map[string]any{"type": "string"},
						"value": map[string]any{"type": "string"},
					},
					"required": []string{"label", "value"},
				}},
			}, "message"),
		toolDef("confirm_action", "Ask the user to confirm a destructive or bulk action before it runs.",
			map[string]prop{
				"message":       {"type": "string"},
				"confirm_value": {"type": "string", "description": "The confirm_value returned by the gated tool"},
			}, "message", "confirm_value"),
		toolDef("propose_plan", "Propose a multi-step plan of dependent operation groups for step-by-step approval.",
			map[string]prop{
				"summary": {"type": "string"},
				"groups":  {"type": "array", "items": groupSchema},
			}, "summary", "groups"),
		toolDef("revise_plan_step", "Revise one group of the active plan in place for re-approval.",
			map[string]prop{
				"step_index": {"type": "integer"},
				"group":      groupSchema,
			}, "step_index", "group"),
		toolDef("skip_plan_step", "Skip the current group of the active plan and move on.", map[string]prop{}),
		toolDef("cancel_plan", "Cancel the active plan. Already-executed groups are not rolled back.", map[string]prop{}),

		// Workspace mutations.
		toolDef("create_page", "Create a new page.",
			map[string]prop{"name": {"type": "string"}}, "name"),
		toolDef("create_section", "Create a section inside a page.",
			map[string]prop{
				"name": {"type": "string"},
				"page": {"type": "string", "description": "Page name or ID"},
			}, "name", "page"),
		toolDef("create_note", "Create a note inside a section. Inline #tags and a !YYYY-MM-DD date in the content are extracted automatically.",
			map[string]prop{
				"content":   {"type": "string"},
				"section":   {"type": "string", "description": "Section name or ID; defaults to the caller's current section"},
				"page":      {"type": "string", "description": "Page name narrowing the section lookup"},
				"tags":      {"type": "array", "items": map[string]any{"type": "string"}},
				"date":      {"type": "string", "description": "YYYY-MM-DD"},
				"completed": {"type": "boolean"},
			}, "content"),
		toolDef("update_note", "Update a single note's content, tags, date, completion, or section.",
			map[string]prop{
				"id":          {"type": "string"},
				"note":        {"type": "string", "description": "Content search when the ID is unknown; must match exactly one note"},
				"content":     {"type": "string"},
				"add_tags":    {"type": "array", "items": map[string]any{"type": "string"}},
				"remove_tags": {"type": "array", "items": map[string]any{"type": "string"}},
				"tags":        {"type": "array", "items": map[string]any{"type": "string"}},
				"completed":   {"type": "boolean"},
				"date":        {"type": "string"},
				"clear_date":  {"type": "boolean"},
				"section":     {"type": "string"},
			}),
		toolDef("rename_page", "Rename a page.",
			map[string]prop{
				"page":     {"type": "string", "description": "Current page name or ID"},
				"pageId":   {"type": "string"},
				"new_name": {"type": "string"},
			}, "new_name"),
		toolDef("delete_page", "Move a page and everything in it to the trash. Requires confirmation.",
			map[string]prop{"page": {"type": "string"}, "pageId": {"type": "string"}}),
		toolDef("delete_section", "Move a section and its notes to the trash. Requires confirmation.",
			map[string]prop{"section": {"type": "string"}, "page": {"type": "string"}, "sectionId": {"type": "string"}}),
		toolDef("delete_note", "Move a single note to the trash. Requires confirmation.",
			map[string]prop{"id": {"type": "string"}, "note": {"type": "string"}}),
		toolDef("restore_item", "Restore a page, section, or note from the trash.",
			map[string]prop{
				"kind": {"type": "string", "enum": []string{"page", "section", "note"}},
				"id":   {"type": "string"},
			}, "kind", "id"),

		// Queries.
		toolDef("list_pages", "List the pages visible to the user.", map[string]prop{}),
		toolDef("list_sections", "List sections, optionally within one page.",
			map[string]prop{"page": {"type": "string"}}),
		toolDef("query_notes", "Query notes with a filter. The result includes a presentation hint.",
			map[string]prop{"filter": filterParam()}),
		toolDef("bulk_update_notes", "Update every note matching a filter. Requires confirmation.",
			map[string]prop{
				"filter": filterParam(),
				"update": {"type": "object", "properties": map[string]any{
					"add_tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"remove_tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"completed":   map[string]any{"type": "boolean"},
					"date":        map[string]any{"type": "string"},
					"clear_date":  map[string]any{"type": "boolean"},
					"section":     map[string]any{"type": "string"},
				}},
			}, "filter", "update"),
		toolDef("bulk_delete_notes", "Move every note matching a filter to the trash. Requires confirmation.",
			map[string]prop{"filter": filterParam()}, "filter"),
		toolDef("list_trash", "List trashed items.", map[string]prop{}),
		toolDef("list_tags", "List the distinct tags in use.", map[string]prop{}),

		// View directives applied by the caller, not by the assistant.
		toolDef("navigate", "Direct the caller's UI to a page or section.",
			map[string]prop{"page": {"type": "string"}, "section": {"type": "string"}}),
		toolDef("apply_filter", "Direct the caller's UI to apply a note filter.",
			map[string]prop{"filter": filterParam()}),
		toolDef("clear_filters", "Direct the caller's UI to clear active filters.", map[string]prop{}),
		toolDef("create_custom_view", "Create a named, persistent filtered view in the caller's UI.",
			map[string]prop{"name": {"type": "string"}, "filter": filterParam()}, "name"),
	}
}

// CatalogFor returns the catalog restricted to a persona's allowed tools.
// A nil allow-set means the full catalog.
func CatalogFor(allowed map[string]bool) []llm.Tool {
	all := Catalog()
	if allowed == nil {
		return all
	}
	out := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		if allowed[t.Function.Name] {
			out = append(out, t)
		}
	}
	return out
}
