package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/store"
)

// Env is the per-request dispatch environment: the authorization scope,
// collected side-channel actions, the mutation flag consulted by the
// hallucination guard, and (during plan execution) the execution context.
type Env struct {
	Scope     store.Scope
	UserID    string
	Confirmed string
	Request   RequestContext
	Exec      *ExecutionContext
	Actions   []Action
	Mutated   bool

	// ConfirmBypass is set while executing an approved plan group: the
	// group-level approval already covered its destructive operations.
	ConfirmBypass bool
}

// Dispatcher routes non-terminal tool invocations to data-store operations.
// Every failure is captured and returned as a structured payload so the
// model can react; nothing panics out of Dispatch.
type Dispatcher struct {
	ws         store.Workspace
	resolver   *Resolver
	thresholds ViewThresholds
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher over the given workspace.
func NewDispatcher(ws store.Workspace, thresholds ViewThresholds, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ws: ws, resolver: NewResolver(ws), thresholds: thresholds, logger: logger}
}

// Dispatch executes one named tool invocation and returns its result
// payload. Unknown tools and all operational failures come back as
// {"error": ...} payloads.
func (d *Dispatcher) Dispatch(env *Env, name string, args map[string]any) (result map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool dispatch panic", slog.String("tool", name), slog.Any("panic", r))
			result = errResult(fmt.Sprintf("internal error in %s", name))
		}
	}()

	switch name {
	case "create_page":
		return d.createPage(env, args)
	case "create_section":
		return d.createSection(env, args)
	case "create_note":
		return d.createNote(env, args)
	case "update_note":
		return d.updateNote(env, args)
	case "rename_page":
		return d.renamePage(env, args)
	case "delete_page":
		return d.deletePage(env, args)
	case "delete_section":
		return d.deleteSection(env, args)
	case "delete_note":
		return d.deleteNote(env, args)
	case "restore_item":
		return d.restoreItem(env, args)
	case "list_pages":
		return d.listPages(env)
	case "list_sections":
		return d.listSections(env, args)
	case "list_notes", "query_notes":
		return d.queryNotes(env, args)
	case "bulk_update_notes":
		return d.bulkUpdateNotes(env, args)
	case "bulk_delete_notes":
		return d.bulkDeleteNotes(env, args)
	case "list_trash":
		return d.listTrash(env)
	case "list_tags":
		return d.listTags(env)
	case "navigate", "apply_filter", "clear_filters", "create_custom_view":
		return d.viewDirective(env, name, args)
	default:
		return errResult(fmt.Sprintf("unknown tool %q", name))
	}
}

func (d *Dispatcher) createPage(env *Env, args map[string]any) map[string]any {
	name := argString(args, "name", "page")
	if name == "" {
		return errResult("create_page: name is required")
	}
	p := &models.Page{Name: name, OwnerID: env.UserID}
	if err := d.ws.CreatePage(p); err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	// Refresh the scope so the new page is visible to later operations in
	// this turn. On failure keep the old scope rather than wiping it.
	if scope, err := d.ws.VisibleScope(env.UserID); err != nil {
		d.logger.Warn("scope refresh failed", slog.String("user", env.UserID), slog.String("error", err.Error()))
	} else {
		env.Scope = scope
	}
	if env.Exec != nil {
		env.Exec.RecordPage(p.ID, p.Name)
	}
	return map[string]any{"page": map[string]any{"id": p.ID, "name": p.Name}}
}

func (d *Dispatcher) createSection(env *Env, args map[string]any) map[string]any {
	name := argString(args, "name", "section")
	if name == "" {
		return errResult("create_section: name is required")
	}
	pageID, err := d.resolvePageRef(env, pageRef(args))
	if err != nil {
		return errResult("create_section: page " + err.Error())
	}
	s := &models.Section{PageID: pageID, Name: name, OwnerID: env.UserID}
	if err := d.ws.CreateSection(s); err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	if env.Exec != nil {
		env.Exec.RecordSection(s.ID, s.Name)
	}
	return map[string]any{"section": map[string]any{"id": s.ID, "name": s.Name, "page_id": pageID}}
}

func (d *Dispatcher) createNote(env *Env, args map[string]any) map[string]any {
	content := argString(args, "content", "text")
	if content == "" {
		return errResult("create_note: content is required")
	}
	sectionID, err := d.resolveSectionRef(env, sectionRef(args))
	if err != nil {
		return errResult("create_note: section " + err.Error())
	}

	// Merge explicit tags with inline #tags and a !date from the content.
	parsed := parser.Parse(content)
	tags := models.DedupeTags(append(argStringSlice(args, "tags"), parsed.Tags...))
	n := &models.Note{
		SectionID: sectionID,
		Content:   parsed.Body,
		Tags:      tags,
		Date:      parsed.Date,
		Completed: argBool(args, "completed"),
		OwnerID:   env.UserID,
	}
	if d := argDate(args, "date"); d != nil {
		n.Date = d
	}
	if err := d.ws.CreateNote(n); err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	if env.Exec != nil {
		env.Exec.RecordNote(n.ID, n.Content)
	}
	return map[string]any{"note": notePayload(*n)}
}

func (d *Dispatcher) updateNote(env *Env, args map[string]any) map[string]any {
	id, err := d.resolveNoteRef(env, args)
	if err != nil {
		return errResult("update_note: " + err.Error())
	}
	patch, err := d.parsePatch(env, args)
	if err != nil {
		return errResult("update_note: " + err.Error())
	}
	n, err := d.ws.UpdateNote(env.Scope, id, patch)
	if err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	return map[string]any{"note": notePayload(*n)}
}

func (d *Dispatcher) renamePage(env *Env, args map[string]any) map[string]any {
	newName := argString(args, "new_name", "newName")
	if newName == "" {
		return errResult("rename_page: new_name is required")
	}
	pageID, err := d.resolvePageRef(env, pageRef(args))
	if err != nil {
		return errResult("rename_page: " + err.Error())
	}
	if err := d.ws.RenamePage(env.Scope, pageID, newName); err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	if env.Exec != nil {
		env.Exec.RecordPage(pageID, newName)
	}
	return map[string]any{"page": map[string]any{"id": pageID, "name": newName}}
}

func (d *Dispatcher) deletePage(env *Env, args map[string]any) map[string]any {
	pageID, err := d.resolvePageRef(env, pageRef(args))
	if err != nil {
		return errResult("delete_page: " + err.Error())
	}
	if pending := d.confirmGate(env, "delete_page", map[string]any{"id": pageID}, "delete this page and everything in it"); pending != nil {
		return pending
	}
	if _, err := d.ws.SoftDeletePage(env.Scope, pageID); err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	return map[string]any{"deleted": true, "kind": "page", "id": pageID}
}

func (d *Dispatcher) deleteSection(env *Env, args map[string]any) map[string]any {
	sectionID, err := d.resolveSectionRef(env, sectionRef(args))
	if err != nil {
		return errResult("delete_section: " + err.Error())
	}
	if pending := d.confirmGate(env, "delete_section", map[string]any{"id": sectionID}, "delete this section and its notes"); pending != nil {
		return pending
	}
	if _, err := d.ws.SoftDeleteSection(env.Scope, sectionID); err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	return map[string]any{"deleted": true, "kind": "section", "id": sectionID}
}

func (d *Dispatcher) deleteNote(env *Env, args map[string]any) map[string]any {
	id, err := d.resolveNoteRef(env, args)
	if err != nil {
		return errResult("delete_note: " + err.Error())
	}
	if pending := d.confirmGate(env, "delete_note", map[string]any{"id": id}, "delete this note"); pending != nil {
		return pending
	}
	if _, err := d.ws.SoftDeleteNote(env.Scope, id); err != nil {
		return errResult(err.Error())
	}
	env.Mutated = true
	return map[string]any{"deleted": true, "kind": "note", "id": id}
}

func (d *Dispatcher) restoreItem(env *Env, args map[string]any) map[string]any {
	kind := argString(args, "kind")
	id := argString(args, "id")
	if kind == "" || id == "" {
		return errResult("restore_item: kind and id are required")
	}
	var err error
	switch kind {
	case "page":
		err = d.ws.RestorePage(env.Scope, id)
	case "section":
		err = d.ws.RestoreSection(env.Scope, id)
	case "note":
		err = d.ws.RestoreNote(env.Scope, id)
	default:
		return errResult(fmt.Sprintf("restore_item: unknown kind %q", kind))
	}
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return errResult("restore_item: the parent is still in the trash; restore it first")
		}
		return errResult(err.Error())
	}
	env.Mutated = true
	return map[string]any{"restored": true, "kind": kind, "id": id}
}

// confirmGate enforces the confirmation round-trip for destructive and bulk
// operations. When the request does not carry a matching confirmed value,
// the tool result instructs the model to run a confirm_action exchange with
// the caller; the operation itself is not executed.
func (d *Dispatcher) confirmGate(env *Env, tool string, payload map[string]any, what string) map[string]any {
	if env.ConfirmBypass {
		return nil
	}
	token := ConfirmToken(env.UserID, tool, payload)
	if env.Confirmed == token {
		return nil
	}
	return map[string]any{
		"requires_confirmation": true,
		"confirm_value":         token,
		"pending_action":        what,
		"instruction":           "Ask the user to confirm via confirm_action with this confirm_value before retrying.",
	}
}

// ConfirmToken derives a stable confirmation token from the acting user,
// the tool, and its canonicalized payload.
func ConfirmToken(userID, tool string, payload map[string]any) string {
	canonical, _ := json.Marshal(map[string]any{"user": userID, "tool": tool, "payload": payload})
	return checksum.Sum(canonical)[:16]
}

// resolvePageRef resolves a page reference through the three tiers:
// explicit ID, plan execution context (most recent first), then the store.
// With no reference at all it falls back to the caller's current page.
func (d *Dispatcher) resolvePageRef(env *Env, ref EntityRef) (string, error) {
	if ref.ID != "" {
		return ref.ID, nil
	}
	name := ref.Name
	if name == "" {
		name = env.Request.CurrentPage
	}
	if name == "" {
		return "", apperr.ErrNotFound
	}
	if env.Exec != nil {
		if id, ok := env.Exec.LookupPage(name); ok {
			return id, nil
		}
	}
	return d.resolver.ResolvePage(env.Scope, EntityRef{Name: name})
}

// resolveSectionRef mirrors resolvePageRef for sections.
func (d *Dispatcher) resolveSectionRef(env *Env, ref EntityRef) (string, error) {
	if ref.ID != "" {
		return ref.ID, nil
	}
	name := ref.Name
	parent := ref.ParentName
	if name == "" {
		name = env.Request.CurrentSection
		if parent == "" {
			parent = env.Request.CurrentPage
		}
	}
	if name == "" {
		return "", apperr.ErrNotFound
	}
	if env.Exec != nil {
		if id, ok := env.Exec.LookupSection(name); ok {
			return id, nil
		}
	}
	return d.resolver.ResolveSection(env.Scope, EntityRef{Name: name, ParentName: parent})
}

// resolveNoteRef finds a single note by explicit ID or by a unique content
// search.
func (d *Dispatcher) resolveNoteRef(env *Env, args map[string]any) (string, error) {
	if id := argString(args, "id", "noteId", "note_id"); id != "" {
		return id, nil
	}
	search := argString(args, "note", "search", "match")
	if search == "" {
		return "", apperr.ErrNotFound
	}
	notes, err := d.ws.QueryNotes(env.Scope, store.Filter{Search: search, Limit: 2})
	if err != nil {
		return "", err
	}
	if len(notes) != 1 {
		return "", apperr.ErrNotFound
	}
	return notes[0].ID, nil
}

func notePayload(n models.Note) map[string]any {
	out := map[string]any{
		"id":         n.ID,
		"section_id": n.SectionID,
		"content":    n.Content,
		"tags":       n.Tags,
		"completed":  n.Completed,
	}
	if n.Date != nil {
		out["date"] = n.Date.Format("2006-01-02")
	}
	return out
}

func errResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// Argument extraction helpers. Tool arguments arrive as loosely typed JSON;
// each helper tries the given keys in order.

func argString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func argBool(args map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := args[k].(bool); ok {
			return v
		}
	}
	return false
}

func argStringSlice(args map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := args[k].(type) {
		case []string:
			return v
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}

func argDate(args map[string]any, keys ...string) *time.Time {
	s := argString(args, keys...)
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func argMap(args map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if v, ok := args[k].(map[string]any); ok {
			return v
		}
	}
	return nil
}

func pageRef(args map[string]any) EntityRef {
	return EntityRef{
		ID:   argString(args, "pageId", "page_id"),
		Name: argString(args, "page", "pageName", "page_name"),
	}
}

func sectionRef(args map[string]any) EntityRef {
	return EntityRef{
		ID:         argString(args, "sectionId", "section_id"),
		Name:       argString(args, "section", "sectionName", "section_name"),
		ParentName: argString(args, "page", "pageName", "page_name"),
	}
}
