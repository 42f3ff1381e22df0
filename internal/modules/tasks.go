// Package modules holds the handlers the router dispatches to.
package modules

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/data"
	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/router"
	"github.com/normanking/cortexvoice/internal/scheduler"
)

// MaxTimer is the longest timer accepted.
const MaxTimer = 24 * time.Hour

// DefaultReminderDelay is used for a reminder with no time or duration.
const DefaultReminderDelay = time.Hour

// Scheduler is the part of scheduler.Scheduler the task module drives.
type Scheduler interface {
	Schedule(kind scheduler.Kind, due time.Time, message string) (int64, error)
	Cancel(id int64) bool
	Pending() []scheduler.Task
}

// TodoStore persists the to-do list. Implemented by data.Store.
type TodoStore interface {
	AddTodo(ctx context.Context, description string, now time.Time) (data.Todo, error)
	ListTodos(ctx context.Context) ([]data.Todo, error)
	CompleteTodo(ctx context.Context, id int64, now time.Time) error
	DeleteTodo(ctx context.Context, id int64) error
}

// TaskModule handles alarms, reminders, timers and the to-do list.
type TaskModule struct {
	sched Scheduler
	todos TodoStore
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a module.
type Option func(*options)

type options struct {
	now func() time.Time
	log zerolog.Logger
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the module logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTaskModule creates a TaskModule. todos may be nil, in which case the
// to-do intents are not registered.
func NewTaskModule(sched Scheduler, todos TodoStore, opts ...Option) *TaskModule {
	o := buildOptions(opts)
	return &TaskModule{sched: sched, todos: todos, now: o.now, log: o.log}
}

// Register binds the module's intents on r.
func (m *TaskModule) Register(r *router.Router) {
	r.RegisterFunc(m.SetAlarm, intent.SetAlarm)
	r.RegisterFunc(m.SetReminder, intent.SetReminder)
	r.RegisterFunc(m.SetTimer, intent.SetTimer)
	r.RegisterFunc(m.CancelTask, intent.CancelTask)
	if m.todos == nil {
		return
	}
	r.RegisterFunc(m.CreateTodo, intent.CreateTodo)
	r.RegisterFunc(m.ListTodos, intent.ListTodos)
	r.RegisterFunc(m.CompleteTodo, intent.CompleteTodo)
	r.RegisterFunc(m.DeleteTodo, intent.DeleteTodo)
}

// SetAlarm schedules an alarm at the next occurrence of the spoken time.
func (m *TaskModule) SetAlarm(_ context.Context, es intent.EntitySet) (string, error) {
	clock, ok := es.Clock()
	if !ok {
		return "What time for the alarm?", nil
	}
	if !validClock(clock) {
		return "That isn't a valid time.", nil
	}

	now := m.now()
	due := nextAfter(clock, now)
	if _, err := m.sched.Schedule(scheduler.KindAlarm, due, ""); err != nil {
		return "", fmt.Errorf("schedule alarm: %w", err)
	}
	return fmt.Sprintf("Alarm set for %s.", due.Format("03:04 PM")), nil
}

// SetReminder schedules a reminder at a spoken time, after a spoken
// duration, or an hour from now.
func (m *TaskModule) SetReminder(_ context.Context, es intent.EntitySet) (string, error) {
	task, _ := es.Str(intent.EntityTask)
	task = strings.TrimSpace(task)
	if task == "" {
		return "What should I remind you about?", nil
	}

	now := m.now()
	due := now.Add(DefaultReminderDelay)
	if clock, ok := es.Clock(); ok {
		if !validClock(clock) {
			return "That isn't a valid time.", nil
		}
		due = nextAfter(clock, now)
	} else if d, ok := es.Duration(intent.EntityDuration); ok && d > 0 {
		due = now.Add(d)
	}

	if _, err := m.sched.Schedule(scheduler.KindReminder, due, task); err != nil {
		return "", fmt.Errorf("schedule reminder: %w", err)
	}
	return fmt.Sprintf("Reminder set: %s at %s.", task, due.Format("03:04 PM")), nil
}

// SetTimer starts a countdown of up to MaxTimer.
func (m *TaskModule) SetTimer(_ context.Context, es intent.EntitySet) (string, error) {
	d, ok := es.Duration(intent.EntityDuration)
	if !ok || d <= 0 {
		return "How long for the timer?", nil
	}
	if d > MaxTimer {
		return "Timers can run for at most 24 hours.", nil
	}

	if _, err := m.sched.Schedule(scheduler.KindTimer, m.now().Add(d), ""); err != nil {
		return "", fmt.Errorf("schedule timer: %w", err)
	}
	return fmt.Sprintf("Timer set for %s.", SpokenDuration(d)), nil
}

// CancelTask cancels a task by ID, or the newest pending task of a kind.
func (m *TaskModule) CancelTask(_ context.Context, es intent.EntitySet) (string, error) {
	if id, ok := es.Int(intent.EntityTaskID); ok {
		if m.sched.Cancel(int64(id)) {
			return fmt.Sprintf("Cancelled task %d.", id), nil
		}
		return fmt.Sprintf("There's no active task %d.", id), nil
	}

	raw, ok := es.Str(intent.EntityKind)
	if !ok {
		return "Which alarm, reminder or timer should I cancel?", nil
	}
	kind, err := scheduler.ParseKind(raw)
	if err != nil {
		return "Which alarm, reminder or timer should I cancel?", nil
	}

	pending := m.sched.Pending()
	// newest first
	slices.SortFunc(pending, func(a, b scheduler.Task) int { return cmp.Compare(b.ID, a.ID) })
	for _, t := range pending {
		if t.Kind == kind && m.sched.Cancel(t.ID) {
			return fmt.Sprintf("Cancelled your %s.", kind), nil
		}
	}
	return fmt.Sprintf("You have no active %ss.", kind), nil
}

// CreateTodo adds an entry to the to-do list.
func (m *TaskModule) CreateTodo(ctx context.Context, es intent.EntitySet) (string, error) {
	task, _ := es.Str(intent.EntityTask)
	task = strings.TrimSpace(task)
	if task == "" {
		return "What task should I add?", nil
	}
	if _, err := m.todos.AddTodo(ctx, task, m.now()); err != nil {
		return "", err
	}
	return "Added task: " + task, nil
}

// ListTodos reads out the pending entries. Numbers are positions in the
// full list so they stay valid for complete and delete.
func (m *TaskModule) ListTodos(ctx context.Context, _ intent.EntitySet) (string, error) {
	todos, err := m.todos.ListTodos(ctx)
	if err != nil {
		return "", err
	}
	if len(todos) == 0 {
		return "No tasks yet.", nil
	}

	var lines []string
	for i, t := range todos {
		if !t.Completed {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, t.Description))
		}
	}
	if len(lines) == 0 {
		return "No pending tasks!", nil
	}
	header := fmt.Sprintf("You have %d tasks:", len(lines))
	if len(lines) == 1 {
		header = "You have 1 task:"
	}
	return header + "\n" + strings.Join(lines, "\n"), nil
}

// CompleteTodo marks an entry done by number or by name.
func (m *TaskModule) CompleteTodo(ctx context.Context, es intent.EntitySet) (string, error) {
	t, reply, err := m.findTodo(ctx, es, "Which task number should I mark complete?")
	if reply != "" || err != nil {
		return reply, err
	}
	if t.Completed {
		return "Task already completed.", nil
	}
	if err := m.todos.CompleteTodo(ctx, t.ID, m.now()); err != nil {
		return "", err
	}
	return "Marked task complete: " + t.Description, nil
}

// DeleteTodo removes an entry by number or by name.
func (m *TaskModule) DeleteTodo(ctx context.Context, es intent.EntitySet) (string, error) {
	t, reply, err := m.findTodo(ctx, es, "Which task number should I delete?")
	if reply != "" || err != nil {
		return reply, err
	}
	if err := m.todos.DeleteTodo(ctx, t.ID); err != nil {
		return "", err
	}
	return "Deleted task: " + t.Description, nil
}

// findTodo resolves task_number (1-based) or a task name. A non-empty reply
// means nothing was found and the reply should be spoken instead.
func (m *TaskModule) findTodo(ctx context.Context, es intent.EntitySet, ask string) (data.Todo, string, error) {
	n, byNumber := es.Int(intent.EntityTaskNumber)
	name, byName := es.Str(intent.EntityTask)
	if !byNumber && (!byName || strings.TrimSpace(name) == "") {
		return data.Todo{}, ask, nil
	}

	todos, err := m.todos.ListTodos(ctx)
	if err != nil {
		return data.Todo{}, "", err
	}

	if byNumber {
		if n < 1 || n > len(todos) {
			return data.Todo{}, "Invalid task number.", nil
		}
		return todos[n-1], "", nil
	}

	name = strings.ToLower(strings.TrimSpace(name))
	// prefer a pending entry when names repeat
	for _, pendingOnly := range []bool{true, false} {
		for _, t := range todos {
			if pendingOnly && t.Completed {
				continue
			}
			if strings.Contains(strings.ToLower(t.Description), name) {
				return t, "", nil
			}
		}
	}
	return data.Todo{}, fmt.Sprintf("I couldn't find a task called %s.", name), nil
}

func validClock(t intent.TimeOfDay) bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// nextAfter is the first instant strictly after now at the wall-clock time.
func nextAfter(t intent.TimeOfDay, now time.Time) time.Time {
	due := t.Next(now)
	if !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due
}

// SpokenDuration renders d as "1 hour 30 minutes" or "45 seconds".
func SpokenDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)

	var parts []string
	add := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n == 1 {
			parts = append(parts, "1 "+unit)
			return
		}
		parts = append(parts, strconv.Itoa(n)+" "+unit+"s")
	}
	add(h, "hour")
	add(mins, "minute")
	add(sec, "second")
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, " ")
}
