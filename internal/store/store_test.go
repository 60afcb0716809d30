package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/merelax/internal/database"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "merelax.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestParent(t *testing.T, db *sql.DB, email string) int64 {
	t.Helper()
	p, err := NewParentStore(db).Create(t.Context(), email, "hash")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	return p.ID
}

func createTestChild(t *testing.T, db *sql.DB, parentID int64) int64 {
	t.Helper()
	c, err := NewChildStore(db).Create(t.Context(), parentID, "Mina", testNow)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return c.ID
}
