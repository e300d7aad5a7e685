package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// TaskType distinguishes what happens when a task fires.
type TaskType string

const (
	// TaskStatic posts a fixed message to the channel.
	TaskStatic TaskType = "static"
	// TaskDynamic runs the conversation engine with the stored instruction
	// and full tool access, then posts the result.
	TaskDynamic TaskType = "dynamic"
)

// Task is a scheduled future action in a guild channel.
type Task struct {
	ID        string
	GuildID   string
	ChannelID string
	Type      TaskType
	// Content is the message text for static tasks, or the instruction
	// handed to the engine for dynamic tasks.
	Content   string
	ExecuteAt time.Time
	// CronSpec, when set, reschedules the task after each run
	// ("0 9 * * *" fires daily at 09:00).
	CronSpec  string
	CreatedBy string
	CreatedAt time.Time
}

// ErrTaskNotFound is returned when cancelling an unknown task.
var ErrTaskNotFound = errors.New("no scheduled task with that ID")

// Store persists scheduled tasks in SQLite so they survive restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the tasks table in the database at
// path. Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB wraps an existing database handle, creating the table if
// needed. The caller keeps ownership of the handle.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id         TEXT PRIMARY KEY,
			guild_id   TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			content    TEXT NOT NULL,
			execute_at TIMESTAMP NOT NULL,
			cron_spec  TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_execute_at ON scheduled_tasks(execute_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_guild ON scheduled_tasks(guild_id);
	`)
	if err != nil {
		return fmt.Errorf("init task store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a task.
func (s *Store) Add(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks (id, guild_id, channel_id, type, content, execute_at, cron_spec, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.GuildID, task.ChannelID, string(task.Type), task.Content,
		task.ExecuteAt.UTC(), task.CronSpec, task.CreatedBy, task.CreatedAt.UTC())
	return err
}

// Delete removes a task by ID within a guild. Returns ErrTaskNotFound if the
// task does not exist in that guild.
func (s *Store) Delete(ctx context.Context, guildID, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_tasks WHERE guild_id = ? AND id = ?`, guildID, taskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Reschedule moves a task's execution time, used for recurring tasks.
func (s *Store) Reschedule(ctx context.Context, taskID string, executeAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET execute_at = ? WHERE id = ?`, executeAt.UTC(), taskID)
	return err
}

// CountGuild returns how many tasks a guild has pending.
func (s *Store) CountGuild(ctx context.Context, guildID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_tasks WHERE guild_id = ?`, guildID).Scan(&n)
	return n, err
}

// ListGuild returns a guild's tasks ordered by execution time.
func (s *Store) ListGuild(ctx context.Context, guildID string) ([]Task, error) {
	return s.query(ctx,
		`SELECT id, guild_id, channel_id, type, content, execute_at, cron_spec, created_by, created_at
		 FROM scheduled_tasks WHERE guild_id = ? ORDER BY execute_at`, guildID)
}

// Due returns all tasks whose execution time is at or before the cutoff,
// oldest first.
func (s *Store) Due(ctx context.Context, cutoff time.Time) ([]Task, error) {
	return s.query(ctx,
		`SELECT id, guild_id, channel_id, type, content, execute_at, cron_spec, created_by, created_at
		 FROM scheduled_tasks WHERE execute_at <= ? ORDER BY execute_at`, cutoff.UTC())
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var typ string
		if err := rows.Scan(&t.ID, &t.GuildID, &t.ChannelID, &typ, &t.Content,
			&t.ExecuteAt, &t.CronSpec, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TaskType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}
