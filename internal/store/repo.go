package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// VisibleScope computes the set of pages a user may see: pages they own
// plus pages explicitly granted to them. Soft-deleted pages are included
// so trash operations stay permission-checked.
func (db *DB) VisibleScope(userID string) (Scope, error) {
	rows, err := db.conn.Query(`
		SELECT id FROM pages WHERE owner_id = ?
		UNION
		SELECT page_id FROM grants WHERE user_id = ?
	`, userID, userID)
	if err != nil {
		return Scope{}, fmt.Errorf("store: visible scope: %w", err)
	}
	defer rows.Close()

	scope := Scope{UserID: userID, pageIDs: make(map[string]struct{})}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Scope{}, err
		}
		scope.pageIDs[id] = struct{}{}
	}
	return scope, rows.Err()
}

// AddGrant shares a page with another user.
func (db *DB) AddGrant(userID, pageID string) error {
	_, err := db.conn.Exec(`INSERT OR IGNORE INTO grants (user_id, page_id) VALUES (?, ?)`, userID, pageID)
	if err != nil {
		return fmt.Errorf("store: add grant: %w", err)
	}
	return nil
}

// CreatePage inserts a new page, assigning ID and timestamps when missing.
func (db *DB) CreatePage(p *models.Page) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := db.conn.Exec(`
		INSERT INTO pages (id, name, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create page: %w", err)
	}
	return nil
}

// GetPage returns a live page within scope.
func (db *DB) GetPage(scope Scope, id string) (*models.Page, error) {
	if !scope.Allows(id) {
		return nil, apperr.ErrNotFound
	}
	var p models.Page
	err := db.conn.QueryRow(`
		SELECT id, name, owner_id, created_at, updated_at
		FROM pages WHERE id = ? AND deleted_at IS NULL
	`, id).Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get page: %w", err)
	}
	return &p, nil
}

// ListPages returns live pages within scope ordered by name.
func (db *DB) ListPages(scope Scope) ([]models.Page, error) {
	args := scopeArgs(scope)
	if len(args) == 0 {
		return []models.Page{}, nil
	}
	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT id, name, owner_id, created_at, updated_at
		FROM pages WHERE id IN (%s) AND deleted_at IS NULL
		ORDER BY name COLLATE NOCASE
	`, placeholders(len(args))), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list pages: %w", err)
	}
	defer rows.Close()

	out := []models.Page{}
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RenamePage updates a page name.
func (db *DB) RenamePage(scope Scope, id, name string) error {
	if !scope.Allows(id) {
		return apperr.ErrNotFound
	}
	res, err := db.conn.Exec(`
		UPDATE pages SET name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
	`, name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: rename page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// CreateSection inserts a new section under a live page.
func (db *DB) CreateSection(s *models.Section) error {
	var exists int
	err := db.conn.QueryRow(`SELECT COUNT(1) FROM pages WHERE id = ? AND deleted_at IS NULL`, s.PageID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: create section: %w", err)
	}
	if exists == 0 {
		return apperr.ErrNotFound
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err = db.conn.Exec(`
		INSERT INTO sections (id, page_id, name, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.PageID, s.Name, s.OwnerID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create section: %w", err)
	}
	return nil
}

// GetSection returns a live section within scope.
func (db *DB) GetSection(scope Scope, id string) (*models.Section, error) {
	var s models.Section
	err := db.conn.QueryRow(`
		SELECT id, page_id, name, owner_id, created_at, updated_at
		FROM sections WHERE id = ? AND deleted_at IS NULL
	`, id).Scan(&s.ID, &s.PageID, &s.Name, &s.OwnerID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get section: %w", err)
	}
	if !scope.Allows(s.PageID) {
		return nil, apperr.ErrNotFound
	}
	return &s, nil
}

// ListSections returns live sections within scope, optionally narrowed to
// one page, ordered by name.
func (db *DB) ListSections(scope Scope, pageID string) ([]models.Section, error) {
	args := scopeArgs(scope)
	if len(args) == 0 {
		return []models.Section{}, nil
	}
	q := fmt.Sprintf(`
		SELECT id, page_id, name, owner_id, created_at, updated_at
		FROM sections WHERE page_id IN (%s) AND deleted_at IS NULL
	`, placeholders(len(args)))
	if pageID != "" {
		if !scope.Allows(pageID) {
			return []models.Section{}, nil
		}
		q += ` AND page_id = ?`
		args = append(args, pageID)
	}
	q += ` ORDER BY name COLLATE NOCASE`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sections: %w", err)
	}
	defer rows.Close()

	out := []models.Section{}
	for rows.Next() {
		var s models.Section
		if err := rows.Scan(&s.ID, &s.PageID, &s.Name, &s.OwnerID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateNote inserts a new note under a live section. Tags are de-duplicated
// on write.
func (db *DB) CreateNote(n *models.Note) error {
	var exists int
	err := db.conn.QueryRow(`SELECT COUNT(1) FROM sections WHERE id = ? AND deleted_at IS NULL`, n.SectionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: create note: %w", err)
	}
	if exists == 0 {
		return apperr.ErrNotFound
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Tags = models.DedupeTags(n.Tags)
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	tagsJSON, _ := json.Marshal(n.Tags)
	_, err = db.conn.Exec(`
		INSERT INTO notes (id, section_id, content, tags, date, completed, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.SectionID, n.Content, string(tagsJSON), n.Date, n.Completed, n.OwnerID, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create note: %w", err)
	}
	return nil
}

const noteColumns = `n.id, n.section_id, n.content, n.tags, n.date, n.completed, n.owner_id, n.created_at, n.updated_at`

func scanNote(scanner interface{ Scan(...any) error }) (models.Note, error) {
	var n models.Note
	var tagsJSON string
	if err := scanner.Scan(&n.ID, &n.SectionID, &n.Content, &tagsJSON, &n.Date, &n.Completed, &n.OwnerID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return n, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		n.Tags = []string{}
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return n, nil
}

// GetNote returns a live note within scope.
func (db *DB) GetNote(scope Scope, id string) (*models.Note, error) {
	row := db.conn.QueryRow(`
		SELECT `+noteColumns+` FROM notes n
		JOIN sections s ON s.id = n.section_id
		WHERE n.id = ? AND n.deleted_at IS NULL
	`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	var pageID string
	if err := db.conn.QueryRow(`SELECT page_id FROM sections WHERE id = ?`, n.SectionID).Scan(&pageID); err != nil {
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	if !scope.Allows(pageID) {
		return nil, apperr.ErrNotFound
	}
	return &n, nil
}

// QueryNotes materializes live notes matching the filter, bounded by
// Filter.Limit (clamped to MaxQueryLimit). Tag overlap is applied in Go
// after the SQL constraints since tags live in a JSON column.
func (db *DB) QueryNotes(scope Scope, f Filter) ([]models.Note, error) {
	args := scopeArgs(scope)
	if len(args) == 0 {
		return []models.Note{}, nil
	}
	q := fmt.Sprintf(`
		SELECT `+noteColumns+` FROM notes n
		JOIN sections s ON s.id = n.section_id
		WHERE s.page_id IN (%s) AND n.deleted_at IS NULL
	`, placeholders(len(args)))

	if f.PageID != "" {
		q += ` AND s.page_id = ?`
		args = append(args, f.PageID)
	}
	if f.SectionID != "" {
		q += ` AND n.section_id = ?`
		args = append(args, f.SectionID)
	}
	if f.Search != "" {
		q += ` AND lower(n.content) LIKE ?`
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	if f.Completed != nil {
		q += ` AND n.completed = ?`
		args = append(args, *f.Completed)
	}
	if f.DateFrom != nil {
		q += ` AND n.date >= ?`
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		q += ` AND n.date <= ?`
		args = append(args, *f.DateTo)
	}
	if len(f.IDs) > 0 {
		q += fmt.Sprintf(` AND n.id IN (%s)`, placeholders(len(f.IDs)))
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY n.created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query notes: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		if len(f.Tags) > 0 && !tagsOverlap(n.Tags, f.Tags) {
			continue
		}
		out = append(out, n)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func tagsOverlap(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// UpdateNote applies a patch to a single note. Tag updates apply AddTags
// first, then RemoveTags, so a tag named in both ends up removed.
func (db *DB) UpdateNote(scope Scope, id string, patch NotePatch) (*models.Note, error) {
	n, err := db.GetNote(scope, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		n.Content = *patch.Content
	}
	if patch.SectionID != nil {
		var exists int
		if err := db.conn.QueryRow(`SELECT COUNT(1) FROM sections WHERE id = ? AND deleted_at IS NULL`, *patch.SectionID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("store: update note: %w", err)
		}
		if exists == 0 {
			return nil, apperr.ErrNotFound
		}
		n.SectionID = *patch.SectionID
	}
	if patch.Completed != nil {
		n.Completed = *patch.Completed
	}
	if patch.ClearDate {
		n.Date = nil
	} else if patch.Date != nil {
		n.Date = patch.Date
	}
	if patch.Tags != nil {
		n.Tags = models.DedupeTags(*patch.Tags)
	}
	if len(patch.AddTags) > 0 {
		n.Tags = models.DedupeTags(append(n.Tags, patch.AddTags...))
	}
	if len(patch.RemoveTags) > 0 {
		kept := n.Tags[:0]
		for _, t := range n.Tags {
			if !tagsOverlap([]string{t}, patch.RemoveTags) {
				kept = append(kept, t)
			}
		}
		n.Tags = kept
	}

	n.UpdatedAt = time.Now().UTC()
	tagsJSON, _ := json.Marshal(n.Tags)
	_, err = db.conn.Exec(`
		UPDATE notes SET section_id = ?, content = ?, tags = ?, date = ?, completed = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, n.SectionID, n.Content, string(tagsJSON), n.Date, n.Completed, n.UpdatedAt, n.ID)
	if err != nil {
		return nil, fmt.Errorf("store: update note: %w", err)
	}
	return n, nil
}

// BulkUpdateNotes applies the batched-safe fields of a patch to many notes
// in one UPDATE and returns the number of rows changed. Tag set algebra is
// deliberately absent here; callers needing it iterate with UpdateNote.
func (db *DB) BulkUpdateNotes(scope Scope, ids []string, patch NotePatch) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.SectionID != nil {
		sets = append(sets, "section_id = ?")
		args = append(args, *patch.SectionID)
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *patch.Completed)
	}
	if patch.ClearDate {
		sets = append(sets, "date = NULL")
	} else if patch.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, *patch.Date)
	}
	if patch.Tags != nil {
		tagsJSON, _ := json.Marshal(models.DedupeTags(*patch.Tags))
		sets = append(sets, "tags = ?")
		args = append(args, string(tagsJSON))
	}

	// Constrain to notes actually visible in scope.
	visible, err := db.QueryNotes(scope, Filter{IDs: ids, Limit: MaxQueryLimit})
	if err != nil {
		return 0, err
	}
	if len(visible) == 0 {
		return 0, nil
	}
	visIDs := make([]string, len(visible))
	for i, n := range visible {
		visIDs[i] = n.ID
	}

	q := fmt.Sprintf(`UPDATE notes SET %s WHERE id IN (%s) AND deleted_at IS NULL`,
		strings.Join(sets, ", "), placeholders(len(visIDs)))
	for _, id := range visIDs {
		args = append(args, id)
	}
	res, err := db.conn.Exec(q, args...)
	if err != nil {
		return 0, fmt.Errorf("store: bulk update notes: %w", err)
	}
	count, _ := res.RowsAffected()
	return int(count), nil
}

// ListTags returns the distinct tags across all live notes in scope,
// sorted case-insensitively.
func (db *DB) ListTags(scope Scope) ([]string, error) {
	notes, err := db.QueryNotes(scope, Filter{Limit: MaxQueryLimit})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, n := range notes {
		for _, t := range n.Tags {
			key := strings.ToLower(t)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out, nil
}
