package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the type of a scheduled task.
type Kind string

const (
	KindAlarm    Kind = "alarm"
	KindReminder Kind = "reminder"
	KindTimer    Kind = "timer"
)

// ParseKind maps a spoken or stored kind onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAlarm, KindReminder, KindTimer:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidTask, s)
	}
}

// Task is a time-based trigger owned by the Scheduler.
type Task struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	DueAt       time.Time `json:"due_at"`
	Message     string    `json:"message"`
	Triggered   bool      `json:"triggered"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Retained reports whether the task stays recorded after it triggers.
// Timers are removed; alarms and reminders are kept for history.
func (t Task) Retained() bool {
	return t.Kind != KindTimer
}

// Store persists tasks. Implemented by data.Store.
type Store interface {
	SaveTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id int64) error
	LoadTasks(ctx context.Context) ([]Task, error)
	// LastTaskID returns the highest ID ever issued so IDs stay monotonic
	// after retained tasks are deleted.
	LastTaskID(ctx context.Context) (int64, error)
	SetLastTaskID(ctx context.Context, id int64) error
}

// Notifier receives each task exactly once when it triggers. It is called
// without the scheduler lock held.
type Notifier func(Task)

var (
	// ErrInvalidTask is returned for a task that cannot be scheduled.
	ErrInvalidTask = errors.New("invalid task")
	// ErrPersistence marks a store write that failed; the task is kept in memory.
	ErrPersistence = errors.New("task persistence failed")
)
