// Package store persists named member groups in SQLite. A group is a
// room-scoped set of member identifiers; it exists exactly as long as
// it has members. Group names are case-insensitive and stored
// lower-cased.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Groups is the durable (room, group, member) triple store. Every
// operation runs as a single implicit transaction. Callers are expected
// to mutate from a single goroutine; the dispatch loop guarantees at
// most one mutating call in flight.
type Groups struct {
	db *sql.DB
}

// Open opens (creating if needed) the group database at path.
func Open(path string) (*Groups, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS highlight_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
			room_id TEXT NOT NULL,
			group_name TEXT NOT NULL,
			member TEXT NOT NULL,
			UNIQUE(room_id, group_name, member)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to create table: %w", err)
	}

	return &Groups{db: db}, nil
}

// Close closes the database.
func (g *Groups) Close() error {
	return g.db.Close()
}

// AddMember adds a member to a group, creating the group implicitly.
// Idempotent: adding an existing member is not an error. Returns
// whether a row was actually inserted, distinguishing "added" from
// "already a member".
func (g *Groups) AddMember(roomID, group, member string) (bool, error) {
	result, err := g.db.Exec(`
		INSERT OR IGNORE INTO highlight_groups (room_id, group_name, member)
		VALUES (?, ?, ?)
	`, roomID, normalize(group), member)
	if err != nil {
		return false, fmt.Errorf("store: failed to add member: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: failed to read insert result: %w", err)
	}
	return inserted > 0, nil
}

// RemoveMember removes a member from a group. A missing triple is a
// no-op, not an error. Returns whether a row was actually deleted.
func (g *Groups) RemoveMember(roomID, group, member string) (bool, error) {
	result, err := g.db.Exec(`
		DELETE FROM highlight_groups
		WHERE room_id = ? AND group_name = ? AND member = ?
	`, roomID, normalize(group), member)
	if err != nil {
		return false, fmt.Errorf("store: failed to remove member: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: failed to read delete result: %w", err)
	}
	return deleted > 0, nil
}

// Members returns the group's members in insertion order. An unknown
// group yields an empty slice.
func (g *Groups) Members(roomID, group string) ([]string, error) {
	rows, err := g.db.Query(`
		SELECT member FROM highlight_groups
		WHERE room_id = ? AND group_name = ?
		ORDER BY id
	`, roomID, normalize(group))
	if err != nil {
		return nil, fmt.Errorf("store: failed to list members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("store: failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to iterate members: %w", err)
	}
	return members, nil
}

// IsMember reports whether the member belongs to the group.
func (g *Groups) IsMember(roomID, group, member string) (bool, error) {
	row := g.db.QueryRow(`
		SELECT 1 FROM highlight_groups
		WHERE room_id = ? AND group_name = ? AND member = ?
		LIMIT 1
	`, roomID, normalize(group), member)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: failed to check membership: %w", err)
	}
	return true, nil
}

func normalize(group string) string {
	return strings.ToLower(group)
}
