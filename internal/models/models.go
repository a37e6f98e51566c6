// Package models defines the domain types for Ansuz.
package models

import "time"

// Page is the top level of the workspace hierarchy.
type Page struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"owner_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Section belongs to exactly one page and holds notes.
type Section struct {
	ID        string     `json:"id"`
	PageID    string     `json:"page_id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"owner_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Note is a free-text entry inside a section. Tags are de-duplicated on
// write; Date and Completed support task-style notes.
type Note struct {
	ID        string     `json:"id"`
	SectionID string     `json:"section_id"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	Date      *time.Time `json:"date,omitempty"`
	Completed bool       `json:"completed"`
	OwnerID   string     `json:"owner_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Grant records that a user holds explicit access to a page they do not own.
type Grant struct {
	UserID string `json:"user_id"`
	PageID string `json:"page_id"`
}

// TrashItem is a soft-deleted entity as surfaced by trash listings.
type TrashItem struct {
	Kind      string    `json:"kind"` // "page", "section" or "note"
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	DeletedAt time.Time `json:"deleted_at"`
}

// DedupeTags returns tags with duplicates and empty entries removed,
// preserving first-seen order.
func DedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
