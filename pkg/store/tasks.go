package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrTaskNotFound is returned when a task ID does not exist.
var ErrTaskNotFound = errors.New("task not found")

// Task is one item on the task list.
type Task struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}

// TaskStore keeps the task list in SQLite. IDs are stable row IDs and
// never reused, so "task done 3" refers to the same task forever.
type TaskStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenTasks opens (creating if needed) the task database.
func OpenTasks(dbPath string, logger zerolog.Logger) (*TaskStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			done INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			done_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_done ON tasks(done);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize task schema: %w", err)
	}

	logger.Debug().Str("path", dbPath).Msg("Task store opened")
	return &TaskStore{db: db, logger: logger}, nil
}

// Add inserts a new open task and returns it.
func (s *TaskStore) Add(text string) (Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, fmt.Errorf("task text cannot be empty")
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO tasks (text, done, created_at) VALUES (?, 0, ?)",
		text, now.Unix(),
	)
	if err != nil {
		return Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("failed to read task id: %w", err)
	}
	return Task{ID: id, Text: text, CreatedAt: now}, nil
}

// List returns tasks in creation order. With openOnly, completed tasks
// are filtered out.
func (s *TaskStore) List(openOnly bool) ([]Task, error) {
	query := "SELECT id, text, done, created_at, done_at FROM tasks"
	if openOnly {
		query += " WHERE done = 0"
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			task      Task
			done      int
			createdAt int64
			doneAt    sql.NullInt64
		)
		if err := rows.Scan(&task.ID, &task.Text, &done, &createdAt, &doneAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		task.Done = done != 0
		task.CreatedAt = time.Unix(createdAt, 0).UTC()
		if doneAt.Valid {
			t := time.Unix(doneAt.Int64, 0).UTC()
			task.DoneAt = &t
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

// Done marks a task complete. Completing an already-done task is a
// no-op that still succeeds.
func (s *TaskStore) Done(id int64) (Task, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		"UPDATE tasks SET done = 1, done_at = COALESCE(done_at, ?) WHERE id = ?",
		now.Unix(), id,
	)
	if err != nil {
		return Task{}, fmt.Errorf("failed to complete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Task{}, fmt.Errorf("failed to read update count: %w", err)
	}
	if affected == 0 {
		return Task{}, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return s.get(id)
}

func (s *TaskStore) get(id int64) (Task, error) {
	var (
		task      Task
		done      int
		createdAt int64
		doneAt    sql.NullInt64
	)
	err := s.db.QueryRow(
		"SELECT id, text, done, created_at, done_at FROM tasks WHERE id = ?", id,
	).Scan(&task.ID, &task.Text, &done, &createdAt, &doneAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to load task: %w", err)
	}
	task.Done = done != 0
	task.CreatedAt = time.Unix(createdAt, 0).UTC()
	if doneAt.Valid {
		t := time.Unix(doneAt.Int64, 0).UTC()
		task.DoneAt = &t
	}
	return task, nil
}

// Close releases the database handle.
func (s *TaskStore) Close() error {
	return s.db.Close()
}
