package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Todo is one entry on the spoken to-do list.
type Todo struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// AddTodo appends a todo and returns it with its assigned ID.
func (s *Store) AddTodo(ctx context.Context, description string, now time.Time) (Todo, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Todo{}, fmt.Errorf("add todo: empty description")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (description, completed, created_at) VALUES (?, 0, ?)`,
		description, now,
	)
	if err != nil {
		return Todo{}, fmt.Errorf("add todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Todo{}, fmt.Errorf("add todo: %w", err)
	}
	return Todo{ID: id, Description: description, CreatedAt: now}, nil
}

// ListTodos returns every todo in creation order.
func (s *Store) ListTodos(ctx context.Context) ([]Todo, error) {
	query := `
		SELECT id, description, completed, created_at, completed_at
		FROM todos
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	var todos []Todo
	for rows.Next() {
		var (
			t           Todo
			completedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.Description, &t.Completed, &t.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		if completedAt.Valid {
			t.CompletedAt = completedAt.Time
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return todos, nil
}

// CompleteTodo marks a todo done.
func (s *Store) CompleteTodo(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE todos SET completed = 1, completed_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("complete todo %d: %w", id, err)
	}
	return expectRow(res, "todo", id)
}

// DeleteTodo removes a todo.
func (s *Store) DeleteTodo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	return expectRow(res, "todo", id)
}

func expectRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
