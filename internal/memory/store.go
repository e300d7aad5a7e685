// Package memory persists small per-guild notes the model saves during
// conversation. Memories are keyed strings with tight size caps so the
// whole set fits comfortably in a system prompt.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Limits on stored memories. Oversized input is rejected, not truncated, so
// the model learns the constraint from the error string.
const (
	MaxPerGuild   = 50
	MaxKeyLen     = 100
	MaxContentLen = 500
)

var (
	ErrEmptyKey       = errors.New("memory key must not be empty")
	ErrKeyTooLong     = fmt.Errorf("memory key must be at most %d characters", MaxKeyLen)
	ErrEmptyContent   = errors.New("memory content must not be empty")
	ErrContentTooLong = fmt.Errorf("memory content must be at most %d characters", MaxContentLen)
	ErrGuildFull      = fmt.Errorf("this server already has %d memories; delete one first", MaxPerGuild)
	ErrNotFound       = errors.New("no memory with that key")
)

// Memory is one saved note.
type Memory struct {
	GuildID   string
	Key       string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is a SQLite-backed memory store.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the memory table in the database at
// path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle, creating the table if needed.
// The caller keeps ownership of the handle.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			guild_id   TEXT NOT NULL,
			key        TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (guild_id, key)
		)`)
	if err != nil {
		return fmt.Errorf("init memory store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save creates or updates a memory. It reports whether an existing memory
// was updated. The per-guild cap applies only to new keys.
func (s *Store) Save(ctx context.Context, guildID, key, content string) (updated bool, err error) {
	key = strings.TrimSpace(key)
	content = strings.TrimSpace(content)
	switch {
	case key == "":
		return false, ErrEmptyKey
	case len(key) > MaxKeyLen:
		return false, ErrKeyTooLong
	case content == "":
		return false, ErrEmptyContent
	case len(content) > MaxContentLen:
		return false, ErrContentTooLong
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE guild_id = ? AND key = ?`, guildID, key).Scan(&exists)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	if exists > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE memories SET content = ?, updated_at = ? WHERE guild_id = ? AND key = ?`,
			content, now, guildID, key)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE guild_id = ?`, guildID).Scan(&count)
	if err != nil {
		return false, err
	}
	if count >= MaxPerGuild {
		return false, ErrGuildFull
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (guild_id, key, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		guildID, key, content, now, now)
	if err != nil {
		return false, err
	}
	return false, tx.Commit()
}

// Delete removes a memory by key. Returns ErrNotFound if absent.
func (s *Store) Delete(ctx context.Context, guildID, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE guild_id = ? AND key = ?`, guildID, strings.TrimSpace(key))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a guild's memories ordered by creation time.
func (s *Store) List(ctx context.Context, guildID string) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, key, content, created_at, updated_at
		 FROM memories WHERE guild_id = ? ORDER BY created_at, key`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.GuildID, &m.Key, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FormatPrompt renders memories as a system prompt section. Returns an empty
// string when there is nothing to include.
func FormatPrompt(memories []Memory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Saved memories for this server:\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- %s: %s\n", m.Key, m.Content)
	}
	return b.String()
}
