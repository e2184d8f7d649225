package cache

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"iroha/internal/hierarchy"
	"iroha/internal/utils"
)

// SQLite is a Store backed by a private in-memory SQLite database. The
// database lives exactly as long as the store; nothing is written to disk.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a fresh in-memory database and creates the schema.
func NewSQLite() (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates the items table.
func (s *SQLite) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS items (
			level INTEGER NOT NULL,
			friendly_id TEXT NOT NULL,
			remote_id TEXT NOT NULL,
			name TEXT NOT NULL,
			seq INTEGER NOT NULL,
			PRIMARY KEY (level, friendly_id)
		);
		CREATE INDEX IF NOT EXISTS idx_items_order ON items(level, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Clear drops every entry of level.
func (s *SQLite) Clear(level hierarchy.Level) error {
	_, err := s.db.Exec(`DELETE FROM items WHERE level = ?`, int(level))
	return err
}

// Insert files item under id in level. Re-inserting an id keeps its position.
func (s *SQLite) Insert(level hierarchy.Level, id string, item Item) error {
	_, err := s.db.Exec(`
		INSERT INTO items (level, friendly_id, remote_id, name, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM items WHERE level = ?))
		ON CONFLICT (level, friendly_id) DO UPDATE SET remote_id = excluded.remote_id, name = excluded.name`,
		int(level), id, item.RemoteID, item.Name, int(level))
	return err
}

// Replace clears level and inserts entries in one transaction.
func (s *SQLite) Replace(level hierarchy.Level, entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM items WHERE level = ?`, int(level)); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO items (level, friendly_id, remote_id, name, seq) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (level, friendly_id) DO UPDATE SET remote_id = excluded.remote_id, name = excluded.name`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range entries {
		if _, err := stmt.Exec(int(level), e.ID, e.RemoteID, e.Name, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Lookup returns the item filed under id.
func (s *SQLite) Lookup(level hierarchy.Level, id string) (Item, error) {
	var item Item
	err := s.db.QueryRow(`SELECT remote_id, name FROM items WHERE level = ? AND friendly_id = ?`,
		int(level), id).Scan(&item.RemoteID, &item.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, utils.ErrItemNotFound(level.String(), id)
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// Entries returns the entries of level in insertion order.
func (s *SQLite) Entries(level hierarchy.Level) ([]Entry, error) {
	rows, err := s.db.Query(`SELECT friendly_id, remote_id, name FROM items WHERE level = ? ORDER BY seq`, int(level))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RemoteID, &e.Name); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database, discarding its contents.
func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLite)(nil)
