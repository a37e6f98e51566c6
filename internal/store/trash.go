package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// SoftDeletePage marks a page and its live descendants deleted with one
// shared timestamp so a later restore can rewind exactly this cascade.
// Descendants that were already deleted keep their earlier timestamp.
func (db *DB) SoftDeletePage(scope Scope, id string) (time.Time, error) {
	if !scope.Allows(id) {
		return time.Time{}, apperr.ErrNotFound
	}
	ts := time.Now().UTC()
	tx, err := db.conn.Begin()
	if err != nil {
		return time.Time{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`UPDATE pages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, ts, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: delete page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return time.Time{}, apperr.ErrNotFound
	}
	if _, err := tx.Exec(`
		UPDATE notes SET deleted_at = ?
		WHERE deleted_at IS NULL
		  AND section_id IN (SELECT id FROM sections WHERE page_id = ? AND deleted_at IS NULL)
	`, ts, id); err != nil {
		return time.Time{}, fmt.Errorf("store: delete page notes: %w", err)
	}
	if _, err := tx.Exec(`UPDATE sections SET deleted_at = ? WHERE page_id = ? AND deleted_at IS NULL`, ts, id); err != nil {
		return time.Time{}, fmt.Errorf("store: delete page sections: %w", err)
	}
	return ts, tx.Commit()
}

// SoftDeleteSection marks a section and its live notes deleted with one
// shared timestamp.
func (db *DB) SoftDeleteSection(scope Scope, id string) (time.Time, error) {
	if _, err := db.GetSection(scope, id); err != nil {
		return time.Time{}, err
	}
	ts := time.Now().UTC()
	tx, err := db.conn.Begin()
	if err != nil {
		return time.Time{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`UPDATE sections SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, ts, id); err != nil {
		return time.Time{}, fmt.Errorf("store: delete section: %w", err)
	}
	if _, err := tx.Exec(`UPDATE notes SET deleted_at = ? WHERE section_id = ? AND deleted_at IS NULL`, ts, id); err != nil {
		return time.Time{}, fmt.Errorf("store: delete section notes: %w", err)
	}
	return ts, tx.Commit()
}

// SoftDeleteNote marks a single note deleted.
func (db *DB) SoftDeleteNote(scope Scope, id string) (time.Time, error) {
	if _, err := db.GetNote(scope, id); err != nil {
		return time.Time{}, err
	}
	ts := time.Now().UTC()
	if _, err := db.conn.Exec(`UPDATE notes SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, ts, id); err != nil {
		return time.Time{}, fmt.Errorf("store: delete note: %w", err)
	}
	return ts, nil
}

// RestorePage restores a deleted page together with exactly the descendants
// sharing its cascade timestamp. Descendants deleted independently at an
// earlier time stay in the trash.
func (db *DB) RestorePage(scope Scope, id string) error {
	if !scope.Allows(id) {
		return apperr.ErrNotFound
	}
	var ts time.Time
	err := db.conn.QueryRow(`SELECT deleted_at FROM pages WHERE id = ? AND deleted_at IS NOT NULL`, id).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: restore page: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		UPDATE notes SET deleted_at = NULL
		WHERE deleted_at = ?
		  AND section_id IN (SELECT id FROM sections WHERE page_id = ?)
	`, ts, id); err != nil {
		return fmt.Errorf("store: restore page notes: %w", err)
	}
	if _, err := tx.Exec(`UPDATE sections SET deleted_at = NULL WHERE page_id = ? AND deleted_at = ?`, id, ts); err != nil {
		return fmt.Errorf("store: restore page sections: %w", err)
	}
	if _, err := tx.Exec(`UPDATE pages SET deleted_at = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: restore page: %w", err)
	}
	return tx.Commit()
}

// RestoreSection restores a deleted section and the notes sharing its
// cascade timestamp. The parent page must be live.
func (db *DB) RestoreSection(scope Scope, id string) error {
	var pageID string
	var ts time.Time
	err := db.conn.QueryRow(`SELECT page_id, deleted_at FROM sections WHERE id = ? AND deleted_at IS NOT NULL`, id).Scan(&pageID, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: restore section: %w", err)
	}
	if !scope.Allows(pageID) {
		return apperr.ErrNotFound
	}
	if _, err := db.GetPage(scope, pageID); err != nil {
		// Parent page is itself deleted; restoring the section alone would
		// orphan it.
		return apperr.ErrConflict
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`UPDATE notes SET deleted_at = NULL WHERE section_id = ? AND deleted_at = ?`, id, ts); err != nil {
		return fmt.Errorf("store: restore section notes: %w", err)
	}
	if _, err := tx.Exec(`UPDATE sections SET deleted_at = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: restore section: %w", err)
	}
	return tx.Commit()
}

// RestoreNote restores a single deleted note. Its section must be live.
func (db *DB) RestoreNote(scope Scope, id string) error {
	var sectionID string
	err := db.conn.QueryRow(`SELECT section_id FROM notes WHERE id = ? AND deleted_at IS NOT NULL`, id).Scan(&sectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: restore note: %w", err)
	}
	if _, err := db.GetSection(scope, sectionID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrConflict
		}
		return err
	}
	if _, err := db.conn.Exec(`UPDATE notes SET deleted_at = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: restore note: %w", err)
	}
	return nil
}

// ListTrash returns deleted items visible in scope, newest first. Children
// swept up by a parent's cascade are hidden behind the parent entry:
// sections show up only when their page is live, notes only when their
// section is live.
func (db *DB) ListTrash(scope Scope) ([]models.TrashItem, error) {
	args := scopeArgs(scope)
	if len(args) == 0 {
		return []models.TrashItem{}, nil
	}
	ph := placeholders(len(args))
	q := fmt.Sprintf(`
		SELECT 'page', id, name, deleted_at FROM pages
		WHERE id IN (%s) AND deleted_at IS NOT NULL
		UNION ALL
		SELECT 'section', s.id, s.name, s.deleted_at FROM sections s
		JOIN pages p ON p.id = s.page_id
		WHERE s.page_id IN (%s) AND s.deleted_at IS NOT NULL AND p.deleted_at IS NULL
		UNION ALL
		SELECT 'note', n.id, n.content, n.deleted_at FROM notes n
		JOIN sections s ON s.id = n.section_id
		WHERE s.page_id IN (%s) AND n.deleted_at IS NOT NULL AND s.deleted_at IS NULL
		ORDER BY 4 DESC
	`, ph, ph, ph)
	all := append(append(append([]any{}, args...), args...), args...)

	rows, err := db.conn.Query(q, all...)
	if err != nil {
		return nil, fmt.Errorf("store: list trash: %w", err)
	}
	defer rows.Close()

	out := []models.TrashItem{}
	for rows.Next() {
		var item models.TrashItem
		if err := rows.Scan(&item.Kind, &item.ID, &item.Label, &item.DeletedAt); err != nil {
			return nil, err
		}
		if len(item.Label) > 80 {
			item.Label = item.Label[:80]
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// PurgeTrash physically removes rows soft-deleted before the cutoff and
// returns the number of rows purged. Children go first to respect foreign
// keys.
func (db *DB) PurgeTrash(olderThan time.Time) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	total := 0
	for _, q := range []string{
		`DELETE FROM notes WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		`DELETE FROM sections WHERE deleted_at IS NOT NULL AND deleted_at < ?
		   AND id NOT IN (SELECT DISTINCT section_id FROM notes)`,
		`DELETE FROM pages WHERE deleted_at IS NOT NULL AND deleted_at < ?
		   AND id NOT IN (SELECT DISTINCT page_id FROM sections)`,
	} {
		res, err := tx.Exec(q, olderThan)
		if err != nil {
			return 0, fmt.Errorf("store: purge trash: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, tx.Commit()
}
