package testutil

import (
	"path/filepath"
	"testing"

	"smartfit-coach/internal/database"

	"github.com/jmoiron/sqlx"
)

// NewTestDB opens a migrated SQLite database in a temporary directory and closes it
// when the test finishes.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDB(path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db.SQL
}

// CreateUser inserts a bare user row and returns its id.
func CreateUser(t *testing.T, db *sqlx.DB, username string) int64 {
	t.Helper()

	var id int64
	if err := db.QueryRowx(`INSERT INTO users (username) VALUES (?) RETURNING id`, username).Scan(&id); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return id
}
