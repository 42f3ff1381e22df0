// Package scheduler runs alarms, reminders and timers in the background.
//
// All reads and writes of the task set go through one mutex. A periodic cron
// scan and per-timer countdowns share the same trigger routine, which marks
// a task triggered and persists it under the lock, then calls the notifier
// after the lock is released. Nothing triggers before Start, so a loaded
// scheduler can be inspected or edited without consuming due tasks.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/metrics"
)

// Config configures the Scheduler.
type Config struct {
	// ScanInterval is the period of the due-task scan (default: 30s)
	ScanInterval time.Duration
	// MarkerPath records task IDs whose last change never reached the store.
	// Empty disables the marker.
	MarkerPath string
}

// DefaultConfig returns default scheduler settings.
func DefaultConfig() Config {
	return Config{ScanInterval: 30 * time.Second}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStore persists tasks through st.
func WithStore(st Store) Option {
	return func(s *Scheduler) { s.store = st }
}

// WithNotifier sets the callback for triggered tasks.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notify = n }
}

// WithLogger sets the scheduler's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithBus publishes task events.
func WithBus(b *bus.EventBus) Option {
	return func(s *Scheduler) { s.bus = b }
}

// WithClock overrides the clock used for due checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler owns the task set.
type Scheduler struct {
	mu       sync.Mutex
	tasks    map[int64]*Task
	lastID   int64
	unsynced map[int64]bool // saves to retry
	deletes  map[int64]bool // deletes to retry
	timers   map[int64]*time.Timer
	lost     []int64

	store  Store
	notify Notifier
	bus    *bus.EventBus
	log    zerolog.Logger
	now    func() time.Time
	config Config

	cron    *cron.Cron
	stopped chan struct{}
}

// New creates a Scheduler. Call Load to restore persisted tasks and Start to
// begin scanning.
func New(config Config, opts ...Option) *Scheduler {
	if config.ScanInterval <= 0 {
		config.ScanInterval = 30 * time.Second
	}
	s := &Scheduler{
		tasks:    make(map[int64]*Task),
		unsynced: make(map[int64]bool),
		deletes:  make(map[int64]bool),
		timers:   make(map[int64]*time.Timer),
		log:      zerolog.Nop(),
		now:      time.Now,
		config:   config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier replaces the notifier.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = n
}

// Load restores tasks from the store and reports tasks a previous run could
// not persist. Untriggered timers are re-armed by Start.
func (s *Scheduler) Load(ctx context.Context) error {
	lost := s.readMarker()
	if len(lost) > 0 {
		s.log.Warn().Ints64("task_ids", lost).Msg("tasks from the previous run were never persisted and may be lost")
	}

	if s.store == nil {
		s.mu.Lock()
		s.lost = lost
		s.mu.Unlock()
		return nil
	}

	tasks, err := s.store.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	lastID, err := s.store.LastTaskID(ctx)
	if err != nil {
		return fmt.Errorf("load last task id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = lost
	s.lastID = max(s.lastID, lastID)
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
		s.lastID = max(s.lastID, t.ID)
	}
	s.log.Info().Int("tasks", len(tasks)).Int64("last_id", s.lastID).Msg("scheduled tasks loaded")
	return nil
}

// Lost returns task IDs reported as unpersisted by the previous run.
func (s *Scheduler) Lost() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lost)
}

// Schedule adds a task and returns its ID. A persistence failure is logged
// and the task still runs from memory.
func (s *Scheduler) Schedule(kind Kind, due time.Time, message string) (int64, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return 0, err
	}
	if due.IsZero() {
		return 0, fmt.Errorf("%w: missing due time", ErrInvalidTask)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	t := &Task{
		ID:        s.lastID,
		Kind:      kind,
		DueAt:     due,
		Message:   message,
		CreatedAt: s.now(),
	}
	s.tasks[t.ID] = t
	s.saveLocked(*t)
	if kind == KindTimer && s.cron != nil {
		s.armLocked(*t)
	}

	metrics.TasksScheduled.WithLabelValues(string(kind)).Inc()
	s.bus.Emit(bus.EventTypeTaskScheduled, map[string]any{
		"task_id": t.ID,
		"kind":    string(kind),
		"due_at":  due,
	})
	s.log.Info().Int64("task_id", t.ID).Str("kind", string(kind)).Time("due_at", due).Msg("task scheduled")
	return t.ID, nil
}

// Cancel removes an untriggered task. It returns true once per task; a
// triggered, already cancelled or unknown ID returns false.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Triggered {
		return false
	}
	delete(s.tasks, id)
	s.disarmLocked(id)
	s.deleteLocked(id)

	s.bus.Emit(bus.EventTypeTaskCancelled, map[string]any{"task_id": id, "kind": string(t.Kind)})
	s.log.Info().Int64("task_id", id).Msg("task cancelled")
	return true
}

// Scan triggers every untriggered task whose due time has passed, retries
// failed writes, and returns the tasks it triggered.
func (s *Scheduler) Scan() []Task {
	s.mu.Lock()
	now := s.now()
	s.retryLocked()

	var fired []Task
	for _, t := range s.tasks {
		if !t.Triggered && !now.Before(t.DueAt) {
			fired = append(fired, s.triggerLocked(t, now))
		}
	}
	notify := s.notify
	s.mu.Unlock()

	slices.SortFunc(fired, func(a, b Task) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	s.deliver(notify, fired)
	return fired
}

// fire is the countdown path for a single timer.
func (s *Scheduler) fire(id int64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.Triggered {
		s.mu.Unlock()
		return
	}
	fired := s.triggerLocked(t, s.now())
	notify := s.notify
	s.mu.Unlock()

	s.deliver(notify, []Task{fired})
}

// triggerLocked marks t triggered and commits it: timers are deleted,
// alarms and reminders saved. Caller holds s.mu.
func (s *Scheduler) triggerLocked(t *Task, now time.Time) Task {
	t.Triggered = true
	t.TriggeredAt = now
	s.disarmLocked(t.ID)

	if t.Retained() {
		s.saveLocked(*t)
	} else {
		delete(s.tasks, t.ID)
		s.deleteLocked(t.ID)
	}
	return *t
}

func (s *Scheduler) deliver(notify Notifier, fired []Task) {
	for _, t := range fired {
		metrics.TasksTriggered.WithLabelValues(string(t.Kind)).Inc()
		s.bus.Emit(bus.EventTypeTaskTriggered, map[string]any{
			"task_id": t.ID,
			"kind":    string(t.Kind),
			"message": t.Message,
		})
		s.log.Info().Int64("task_id", t.ID).Str("kind", string(t.Kind)).Msg("task triggered")
		if notify != nil {
			notify(t)
		}
	}
}

func (s *Scheduler) armLocked(t Task) {
	id := t.ID
	if _, ok := s.timers[id]; ok {
		return
	}
	d := max(t.DueAt.Sub(s.now()), 0)
	s.timers[id] = time.AfterFunc(d, func() { s.fire(id) })
}

func (s *Scheduler) disarmLocked(id int64) {
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Persistence helpers. Caller holds s.mu.

func (s *Scheduler) saveLocked(t Task) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.store.SaveTask(ctx, t)
	if err == nil {
		err = s.store.SetLastTaskID(ctx, s.lastID)
	}
	if err != nil {
		s.persistFailedLocked(t.ID, err)
		s.unsynced[t.ID] = true
		return
	}
	delete(s.unsynced, t.ID)
}

func (s *Scheduler) deleteLocked(id int64) {
	delete(s.unsynced, id)
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.DeleteTask(ctx, id); err != nil {
		s.persistFailedLocked(id, err)
		s.deletes[id] = true
		return
	}
	delete(s.deletes, id)
}

func (s *Scheduler) persistFailedLocked(id int64, err error) {
	err = fmt.Errorf("%w: %w", ErrPersistence, err)
	metrics.PersistenceFailures.Inc()
	s.bus.Emit(bus.EventTypePersistFailed, map[string]any{"task_id": id, "error": err.Error()})
	s.log.Warn().Err(err).Int64("task_id", id).Msg("task kept in memory only")
}

func (s *Scheduler) retryLocked() {
	for id := range s.deletes {
		s.deleteLocked(id)
	}
	for id := range s.unsynced {
		if t, ok := s.tasks[id]; ok {
			s.saveLocked(*t)
		} else {
			delete(s.unsynced, id)
		}
	}
}

// Unsynced returns IDs whose latest state has not reached the store.
func (s *Scheduler) Unsynced() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsyncedLocked()
}

func (s *Scheduler) unsyncedLocked() []int64 {
	ids := slices.Collect(maps.Keys(s.unsynced))
	for id := range s.deletes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Get returns a copy of the task with id.
func (s *Scheduler) Get(id int64) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns copies of all recorded tasks ordered by ID.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b Task) int { return int(a.ID - b.ID) })
	return out
}

// Pending returns untriggered tasks ordered by due time.
func (s *Scheduler) Pending() []Task {
	var out []Task
	for _, t := range s.Tasks() {
		if !t.Triggered {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Task) int { return a.DueAt.Compare(b.DueAt) })
	return out
}

// Start arms countdowns for pending timers, scans once immediately, then
// every ScanInterval until ctx is done or Stop is called. Set the notifier
// before calling Start; overdue tasks are delivered right away.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := cron.PrintfLogger(&s.log)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	spec := "@every " + s.config.ScanInterval.String()
	if _, err := c.AddFunc(spec, func() { s.Scan() }); err != nil {
		return fmt.Errorf("schedule scan %q: %w", spec, err)
	}

	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.cron = c
	s.stopped = make(chan struct{})
	stopped := s.stopped
	if s.notify == nil {
		s.log.Warn().Msg("scheduler started without a notifier")
	}
	for _, t := range s.tasks {
		if t.Kind == KindTimer && !t.Triggered {
			s.armLocked(*t)
		}
	}
	s.mu.Unlock()

	s.Scan()
	c.Start()
	s.log.Info().Dur("interval", s.config.ScanInterval).Msg("scheduler started")

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}()
	return nil
}

// Stop halts scanning and countdowns, waits for a running scan, and writes
// the unsynced marker when some task never reached the store.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
	for id := range s.timers {
		s.disarmLocked(id)
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	s.mu.Lock()
	ids := s.unsyncedLocked()
	s.mu.Unlock()
	s.writeMarker(ids)
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) writeMarker(ids []int64) {
	path := s.config.MarkerPath
	if path == "" {
		return
	}
	if len(ids) == 0 {
		os.Remove(path)
		return
	}
	data, err := json.Marshal(ids)
	if err == nil {
		if err = os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			err = os.WriteFile(path, data, 0644)
		}
	}
	if err != nil {
		s.log.Error().Err(err).Ints64("task_ids", ids).Msg("failed to write unsynced task marker")
	}
}

func (s *Scheduler) readMarker() []int64 {
	path := s.config.MarkerPath
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("unreadable unsynced task marker")
	}
	os.Remove(path)
	return ids
}
