package agent

import (
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/store"
)

// EntityRef is a loose reference to a page or section: an explicit ID, a
// name, or a name narrowed by a parent page name.
type EntityRef struct {
	ID         string
	Name       string
	ParentName string
}

// Resolver resolves entity references against the set of entities visible
// to the current user. It never guesses: zero or ambiguous name matches
// come back as apperr.ErrNotFound.
type Resolver struct {
	ws store.Workspace
}

// NewResolver creates a resolver over the given workspace.
func NewResolver(ws store.Workspace) *Resolver {
	return &Resolver{ws: ws}
}

// ResolvePage returns the page ID for a reference. An explicit ID is
// returned unchecked since the caller already holds an authorized scope.
func (r *Resolver) ResolvePage(scope store.Scope, ref EntityRef) (string, error) {
	if ref.ID != "" {
		return ref.ID, nil
	}
	if ref.Name == "" {
		return "", apperr.ErrNotFound
	}
	pages, err := r.ws.ListPages(scope)
	if err != nil {
		return "", err
	}
	var match string
	for _, p := range pages {
		if strings.EqualFold(p.Name, ref.Name) {
			if match != "" {
				return "", apperr.ErrNotFound // ambiguous duplicate
			}
			match = p.ID
		}
	}
	if match == "" {
		return "", apperr.ErrNotFound
	}
	return match, nil
}

// ResolveSection returns the section ID for a reference, optionally
// narrowed to a parent page.
func (r *Resolver) ResolveSection(scope store.Scope, ref EntityRef) (string, error) {
	if ref.ID != "" {
		return ref.ID, nil
	}
	if ref.Name == "" {
		return "", apperr.ErrNotFound
	}
	pageID := ""
	if ref.ParentName != "" {
		var err error
		pageID, err = r.ResolvePage(scope, EntityRef{Name: ref.ParentName})
		if err != nil {
			return "", err
		}
	}
	sections, err := r.ws.ListSections(scope, pageID)
	if err != nil {
		return "", err
	}
	var match string
	for _, s := range sections {
		if strings.EqualFold(s.Name, ref.Name) {
			if match != "" {
				return "", apperr.ErrNotFound
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", apperr.ErrNotFound
	}
	return match, nil
}
