// Package testutil provides shared test helpers for setting up workspace databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Seed creates a page with one section for the given user and returns both.
func Seed(t *testing.T, db *store.DB, userID, pageName, sectionName string) (*models.Page, *models.Section) {
	t.Helper()
	p := &models.Page{Name: pageName, OwnerID: userID}
	if err := db.CreatePage(p); err != nil {
		t.Fatal(err)
	}
	s := &models.Section{PageID: p.ID, Name: sectionName, OwnerID: userID}
	if err := db.CreateSection(s); err != nil {
		t.Fatal(err)
	}
	return p, s
}
