package agent

import "strings"

// CreatedEntity is one identifier recorded during plan execution.
type CreatedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // "page", "section" or "note"
}

// ExecutionContext accumulates the identifiers of entities created during a
// plan's execution so later groups can reference earlier groups' output
// without a data-store round-trip. It is owned by exactly one plan and
// destroyed with it.
type ExecutionContext struct {
	LastPageID      string          `json:"lastPageId,omitempty"`
	LastPageName    string          `json:"lastPageName,omitempty"`
	LastSectionID   string          `json:"lastSectionId,omitempty"`
	LastSectionName string          `json:"lastSectionName,omitempty"`
	CreatedPages    []CreatedEntity `json:"createdPages,omitempty"`
	CreatedSections []CreatedEntity `json:"createdSections,omitempty"`
	CreatedNotes    []CreatedEntity `json:"createdNotes,omitempty"`
}

// RecordPage appends a created page and moves the "last created" pointer.
func (c *ExecutionContext) RecordPage(id, name string) {
	c.CreatedPages = append(c.CreatedPages, CreatedEntity{ID: id, Name: name, Kind: "page"})
	c.LastPageID, c.LastPageName = id, name
}

// RecordSection appends a created section and moves the pointer.
func (c *ExecutionContext) RecordSection(id, name string) {
	c.CreatedSections = append(c.CreatedSections, CreatedEntity{ID: id, Name: name, Kind: "section"})
	c.LastSectionID, c.LastSectionName = id, name
}

// RecordNote appends a created note.
func (c *ExecutionContext) RecordNote(id, name string) {
	c.CreatedNotes = append(c.CreatedNotes, CreatedEntity{ID: id, Name: name, Kind: "note"})
}

// LookupPage resolves a page reference (ID or case-insensitive name)
// against the created pages, most recent first.
func (c *ExecutionContext) LookupPage(ref string) (string, bool) {
	return lookup(c.CreatedPages, ref)
}

// LookupSection resolves a section reference against the created sections,
// most recent first.
func (c *ExecutionContext) LookupSection(ref string) (string, bool) {
	return lookup(c.CreatedSections, ref)
}

func lookup(entities []CreatedEntity, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	for i := len(entities) - 1; i >= 0; i-- {
		e := entities[i]
		if e.ID == ref || strings.EqualFold(e.Name, ref) {
			return e.ID, true
		}
	}
	return "", false
}

// Merge folds a delta produced by one group's execution into the context.
func (c *ExecutionContext) Merge(delta ExecutionContext) {
	c.CreatedPages = append(c.CreatedPages, delta.CreatedPages...)
	c.CreatedSections = append(c.CreatedSections, delta.CreatedSections...)
	c.CreatedNotes = append(c.CreatedNotes, delta.CreatedNotes...)
	if delta.LastPageID != "" {
		c.LastPageID, c.LastPageName = delta.LastPageID, delta.LastPageName
	}
	if delta.LastSectionID != "" {
		c.LastSectionID, c.LastSectionName = delta.LastSectionID, delta.LastSectionName
	}
}
