package store

import (
	"time"

	"github.com/starford/ansuz/internal/models"
)

// Filter narrows a note query. Zero values mean "no constraint".
// Limit is clamped to MaxQueryLimit; a zero Limit uses DefaultQueryLimit.
type Filter struct {
	PageID    string
	SectionID string
	Tags      []string // overlap: note matches if it carries any of these
	Search    string   // case-insensitive substring of content
	Completed *bool
	DateFrom  *time.Time
	DateTo    *time.Time
	IDs       []string // explicit allow-list
	Limit     int
}

// NotePatch describes a partial note update. Nil fields are left untouched.
// AddTags is applied before RemoveTags, so a tag present in both ends up
// absent from the final set.
type NotePatch struct {
	Content    *string
	SectionID  *string
	Completed  *bool
	Date       *time.Time
	ClearDate  bool
	Tags       *[]string
	AddTags    []string
	RemoveTags []string
}

// Workspace defines the persistence operations the agent core depends on.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing.
type Workspace interface {
	VisibleScope(userID string) (Scope, error)
	AddGrant(userID, pageID string) error

	CreatePage(p *models.Page) error
	GetPage(scope Scope, id string) (*models.Page, error)
	ListPages(scope Scope) ([]models.Page, error)
	RenamePage(scope Scope, id, name string) error

	CreateSection(s *models.Section) error
	GetSection(scope Scope, id string) (*models.Section, error)
	ListSections(scope Scope, pageID string) ([]models.Section, error)

	CreateNote(n *models.Note) error
	GetNote(scope Scope, id string) (*models.Note, error)
	UpdateNote(scope Scope, id string, patch NotePatch) (*models.Note, error)
	QueryNotes(scope Scope, f Filter) ([]models.Note, error)
	BulkUpdateNotes(scope Scope, ids []string, patch NotePatch) (int, error)
	ListTags(scope Scope) ([]string, error)

	SoftDeletePage(scope Scope, id string) (time.Time, error)
	SoftDeleteSection(scope Scope, id string) (time.Time, error)
	SoftDeleteNote(scope Scope, id string) (time.Time, error)
	RestorePage(scope Scope, id string) error
	RestoreSection(scope Scope, id string) error
	RestoreNote(scope Scope, id string) error
	ListTrash(scope Scope) ([]models.TrashItem, error)
	PurgeTrash(olderThan time.Time) (int, error)

	Close() error
}

// Verify *DB satisfies Workspace at compile time.
var _ Workspace = (*DB)(nil)

// Scope is the set of pages visible to one user, computed once per request
// as owned pages plus explicit grants. It includes soft-deleted pages so
// that trash listings and restores stay permission-checked; normal queries
// add their own deleted_at IS NULL constraint.
type Scope struct {
	UserID  string
	pageIDs map[string]struct{}
}

// Allows reports whether the scope covers the given page.
func (s Scope) Allows(pageID string) bool {
	_, ok := s.pageIDs[pageID]
	return ok
}

// PageIDs returns the visible page IDs in unspecified order.
func (s Scope) PageIDs() []string {
	out := make([]string, 0, len(s.pageIDs))
	for id := range s.pageIDs {
		out = append(out, id)
	}
	return out
}
