package store

import (
	"time"

	"github.com/starford/ansuz/internal/models"
)

// EventSink receives entity-change notifications from the eventing
// decorator. The SSE broker satisfies this.
type EventSink interface {
	PublishEntityEvent(userID, kind, action, id string)
}

// Eventing wraps a Workspace and publishes an entity event after every
// successful mutation. Reads pass through the embedded Workspace.
type Eventing struct {
	Workspace
	sink EventSink
}

// WithEvents decorates ws so mutations notify sink.
func WithEvents(ws Workspace, sink EventSink) *Eventing {
	return &Eventing{Workspace: ws, sink: sink}
}

func (e *Eventing) CreatePage(p *models.Page) error {
	if err := e.Workspace.CreatePage(p); err != nil {
		return err
	}
	e.sink.PublishEntityEvent(p.OwnerID, "page", "created", p.ID)
	return nil
}

func (e *Eventing) RenamePage(scope Scope, id, name string) error {
	if err := e.Workspace.RenamePage(scope, id, name); err != nil {
		return err
	}
	e.sink.PublishEntityEvent(scope.UserID, "page", "updated", id)
	return nil
}

func (e *Eventing) CreateSection(s *models.Section) error {
	if err := e.Workspace.CreateSection(s); err != nil {
		return err
	}
	e.sink.PublishEntityEvent(s.OwnerID, "section", "created", s.ID)
	return nil
}

func (e *Eventing) CreateNote(n *models.Note) error {
	if err := e.Workspace.CreateNote(n); err != nil {
		return err
	}
	e.sink.PublishEntityEvent(n.OwnerID, "note", "created", n.ID)
	return nil
}

func (e *Eventing) UpdateNote(scope Scope, id string, patch NotePatch) (*models.Note, error) {
	n, err := e.Workspace.UpdateNote(scope, id, patch)
	if err != nil {
		return nil, err
	}
	e.sink.PublishEntityEvent(scope.UserID, "note", "updated", id)
	return n, nil
}

func (e *Eventing) BulkUpdateNotes(scope Scope, ids []string, patch NotePatch) (int, error) {
	n, err := e.Workspace.BulkUpdateNotes(scope, ids, patch)
	if err != nil {
		return n, err
	}
	// The update skips requested IDs that are out of scope or deleted;
	// only the rows it actually touched get events.
	updated, qerr := e.Workspace.QueryNotes(scope, Filter{IDs: ids, Limit: MaxQueryLimit})
	if qerr != nil {
		return n, nil
	}
	for _, note := range updated {
		e.sink.PublishEntityEvent(scope.UserID, "note", "updated", note.ID)
	}
	return n, nil
}

func (e *Eventing) SoftDeletePage(scope Scope, id string) (time.Time, error) {
	ts, err := e.Workspace.SoftDeletePage(scope, id)
	if err != nil {
		return ts, err
	}
	e.sink.PublishEntityEvent(scope.UserID, "page", "deleted", id)
	return ts, nil
}

func (e *Eventing) SoftDeleteSection(scope Scope, id string) (time.Time, error) {
	ts, err := e.Workspace.SoftDeleteSection(scope, id)
	if err != nil {
		return ts, err
	}
	e.sink.PublishEntityEvent(scope.UserID, "section", "deleted", id)
	return ts, nil
}

func (e *Eventing) SoftDeleteNote(scope Scope, id string) (time.Time, error) {
	ts, err := e.Workspace.SoftDeleteNote(scope, id)
	if err != nil {
		return ts, err
	}
	e.sink.PublishEntityEvent(scope.UserID, "note", "deleted", id)
	return ts, nil
}

func (e *Eventing) RestorePage(scope Scope, id string) error {
	if err := e.Workspace.RestorePage(scope, id); err != nil {
		return err
	}
	e.sink.PublishEntityEvent(scope.UserID, "page", "restored", id)
	return nil
}

func (e *Eventing) RestoreSection(scope Scope, id string) error {
	if err := e.Workspace.RestoreSection(scope, id); err != nil {
		return err
	}
	e.sink.PublishEntityEvent(scope.UserID, "section", "restored", id)
	return nil
}

func (e *Eventing) RestoreNote(scope Scope, id string) error {
	if err := e.Workspace.RestoreNote(scope, id); err != nil {
		return err
	}
	e.sink.PublishEntityEvent(scope.UserID, "note", "restored", id)
	return nil
}
