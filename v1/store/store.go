// Package store implements TaskStore: the embedded relational persistence
// layer. It is grounded on the sqlite-backed stores in
// the reference corpus (transactional schema setup, WAL journaling, bounded
// jittered retry on SQLITE_BUSY/LOCKED, compare-and-swap status updates)
// rather than on the original's SQLAlchemy ORM, which has no Go analogue.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TaskStatus is the tagged variant for Task.Status.
type TaskStatus string

const (
	StatusWaiting   TaskStatus = "WAITING"
	StatusWork      TaskStatus = "WORK"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusError     TaskStatus = "ERROR"
	StatusCancelled TaskStatus = "CANCELLED"
	StatusOverdue   TaskStatus = "OVERDUE"
	StatusOrphan    TaskStatus = "ORPHAN"
)

// allowedTransitions encodes invariant I2: WAITING→WORK→{COMPLETED,ERROR,
// CANCELLED}; WAITING→OVERDUE; WAITING→ORPHAN; WAITING→CANCELLED (a task
// cancelled before it ever ran). WORK→WAITING is the
// recovery-time re-arm transition (resolved open
// question: a task still WORK at startup means the service died
// mid-execution, and is treated as if it never left WAITING rather than
// as ERROR).
var allowedTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusWaiting: {
		StatusWork:      true,
		StatusOverdue:   true,
		StatusOrphan:    true,
		StatusCancelled: true,
	},
	StatusWork: {
		StatusCompleted: true,
		StatusError:     true,
		StatusCancelled: true,
		StatusWaiting:   true,
	},
}

// CanTransition reports whether from->to is a legal status transition.
func CanTransition(from, to TaskStatus) bool {
	next, ok := allowedTransitions[from]
	return ok && next[to]
}

// Task is a persisted row.
type Task struct {
	ID          string
	Client      string
	Status      TaskStatus
	TimeToStart time.Time
	Task        string // registered handler name, see tasks.TaskArgs.Function
	TaskArgs    string
	TaskKwargs  string
	Lifetime    int
	Hard        bool
}

// Client is a persisted client row.
type Client struct {
	Name          string
	EnableOverdue bool
}

var (
	// ErrDuplicateTaskID is returned by InsertTask when id already exists.
	ErrDuplicateTaskID = errors.New("store: duplicate task id")
	// ErrNotFound is returned by UpdateStatus when id does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrIllegalTransition is returned by UpdateStatus when the requested
	// status change violates invariant I2.
	ErrIllegalTransition = errors.New("store: illegal status transition")
)

// Store is the TaskStore implementation.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite-backed store at dsn and
// runs schema setup.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite3: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY storms under the
	// service's single-writer discipline (no
	// horizontal scaling, single-writer to the task table assumed).
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS client (
			name TEXT PRIMARY KEY,
			enable_overdue INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS task (
			id TEXT PRIMARY KEY,
			client TEXT NOT NULL REFERENCES client(name),
			status TEXT NOT NULL,
			time_to_start DATETIME NOT NULL,
			task TEXT NOT NULL,
			task_args TEXT,
			task_kwargs TEXT,
			lifetime INTEGER NOT NULL,
			hard INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_status ON task(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: schema migration: %w", err)
		}
	}
	return nil
}

// retryOnBusy retries f while it fails with SQLITE_BUSY/SQLITE_LOCKED,
// using bounded exponential backoff with jitter, mirroring the reference
// corpus's sqlite store idiom. Most other errors are returned immediately.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const base = 10 * time.Millisecond
	const cap = 200 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := base << uint(attempt)
		if delay > cap {
			delay = cap
		}
		delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// InsertTask atomically inserts row, write-ahead of scheduling (invariant
// I1). Fails with ErrDuplicateTaskID on a primary-key conflict.
func (s *Store) InsertTask(ctx context.Context, t Task) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO task (id, client, status, time_to_start, task, task_args, task_kwargs, lifetime, hard)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
		`, t.ID, t.Client, string(t.Status), t.TimeToStart, t.Task, t.TaskArgs, t.TaskKwargs, t.Lifetime, t.Hard)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return ErrDuplicateTaskID
			}
			return fmt.Errorf("store: insert task: %w", err)
		}
		return nil
	})
}

// UpdateStatus atomically transitions a task's status, enforcing invariant
// I2 via a compare-and-swap on the current status: service.Core's fire
// transitions WAITING→WORK exactly once under the store's atomicity.
func (s *Store) UpdateStatus(ctx context.Context, id string, to TaskStatus) error {
	return retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin update status: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var current TaskStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM task WHERE id = ?;`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("store: select task status: %w", err)
		}
		if !CanTransition(current, to) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, to)
		}

		res, err := tx.ExecContext(ctx, `UPDATE task SET status = ? WHERE id = ? AND status = ?;`, string(to), id, string(current))
		if err != nil {
			return fmt.Errorf("store: update task status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: rows affected: %w", err)
		}
		if affected != 1 {
			return ErrIllegalTransition
		}
		return tx.Commit()
	})
}

// GetUnfulfilled returns every row with status in {WAITING, WORK}, used
// on startup to re-arm or reclassify in-flight tasks.
func (s *Store) GetUnfulfilled(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client, status, time_to_start, task, task_args, task_kwargs, lifetime, hard
		FROM task WHERE status IN (?, ?);
	`, string(StatusWaiting), string(StatusWork))
	if err != nil {
		return nil, fmt.Errorf("store: query unfulfilled: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		var (
			t        Task
			status   string
			hard     int
			args     sql.NullString
			kwargs   sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Client, &status, &t.TimeToStart, &t.Task, &args, &kwargs, &t.Lifetime, &hard); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		t.Status = TaskStatus(status)
		t.Hard = hard != 0
		t.TaskArgs = args.String
		t.TaskKwargs = kwargs.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: task rows: %w", err)
	}
	return out, nil
}

// AddClient upserts a client row, idempotent under repeated registration
// of the same client name (see DESIGN.md for the re-initialization policy
// this decides on).
func (s *Store) AddClient(ctx context.Context, c Client) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO client (name, enable_overdue) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET enable_overdue = excluded.enable_overdue;
		`, c.Name, c.EnableOverdue)
		if err != nil {
			return fmt.Errorf("store: add client: %w", err)
		}
		return nil
	})
}

// GetClients returns every persisted client row.
func (s *Store) GetClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, enable_overdue FROM client;`)
	if err != nil {
		return nil, fmt.Errorf("store: query clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		var overdue int
		if err := rows.Scan(&c.Name, &overdue); err != nil {
			return nil, fmt.Errorf("store: scan client: %w", err)
		}
		c.EnableOverdue = overdue != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: client rows: %w", err)
	}
	return out, nil
}
