package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/normanking/cortexvoice/internal/scheduler"
)

const metaLastTaskID = "last_task_id"

var _ scheduler.Store = (*Store)(nil)

// SaveTask inserts or replaces a scheduled task and raises the ID
// high-water mark to its ID in the same transaction.
func (s *Store) SaveTask(ctx context.Context, t scheduler.Task) error {
	query := `
		INSERT INTO scheduled_tasks (id, kind, due_at, message, triggered, triggered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			due_at = excluded.due_at,
			message = excluded.message,
			triggered = excluded.triggered,
			triggered_at = excluded.triggered_at
	`
	var triggeredAt sql.NullTime
	if !t.TriggeredAt.IsZero() {
		triggeredAt = sql.NullTime{Time: t.TriggeredAt, Valid: true}
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			t.ID, string(t.Kind), t.DueAt, t.Message, t.Triggered, triggeredAt, t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save task %d: %w", t.ID, err)
		}

		mark := `
			INSERT INTO scheduler_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = CAST(MAX(CAST(value AS INTEGER), CAST(excluded.value AS INTEGER)) AS TEXT)
		`
		if _, err := tx.ExecContext(ctx, mark, metaLastTaskID, strconv.FormatInt(t.ID, 10)); err != nil {
			return fmt.Errorf("raise last task id: %w", err)
		}
		return nil
	})
}

// DeleteTask removes a task. Deleting a missing task is not an error.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// LoadTasks returns every stored task ordered by ID.
func (s *Store) LoadTasks(ctx context.Context) ([]scheduler.Task, error) {
	query := `
		SELECT id, kind, due_at, message, triggered, triggered_at, created_at
		FROM scheduled_tasks
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []scheduler.Task
	for rows.Next() {
		var (
			t           scheduler.Task
			kind        string
			triggeredAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &kind, &t.DueAt, &t.Message, &t.Triggered, &triggeredAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.Kind, err = scheduler.ParseKind(kind); err != nil {
			s.log.Warn().Int64("task_id", t.ID).Str("kind", kind).Msg("skipping stored task with unknown kind")
			continue
		}
		if triggeredAt.Valid {
			t.TriggeredAt = triggeredAt.Time
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// LastTaskID returns the highest task ID ever issued. It never reports less
// than the largest stored ID, so a lost meta row cannot cause ID reuse.
func (s *Store) LastTaskID(ctx context.Context) (int64, error) {
	var stored int64
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM scheduler_meta WHERE key = ?`, metaLastTaskID).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("query last task id: %w", err)
	default:
		if stored, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, fmt.Errorf("parse last task id %q: %w", raw, err)
		}
	}

	var maxID int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM scheduled_tasks`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("query max task id: %w", err)
	}
	return max(stored, maxID), nil
}

// SetLastTaskID records the task ID high-water mark.
func (s *Store) SetLastTaskID(ctx context.Context, id int64) error {
	query := `
		INSERT INTO scheduler_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, metaLastTaskID, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("set last task id: %w", err)
	}
	return nil
}
