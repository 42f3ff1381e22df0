package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexvoice/internal/conversation"
	"github.com/normanking/cortexvoice/internal/intent"
	"github.com/normanking/cortexvoice/internal/scheduler"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// ============================================================================
// DATABASE
// ============================================================================

func TestNewDB(t *testing.T) {
	t.Run("creates database in valid directory", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewDB(dir)
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(filepath.Join(dir, FileName))
		assert.NoError(t, err)
		assert.NoError(t, store.Health(context.Background()))
	})

	t.Run("creates nested directory structure", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "deep", "nested", "cortexvoice")
		store, err := NewDB(dir)
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})

	t.Run("idempotent migrations", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewDB(dir)
		require.NoError(t, err)
		require.NoError(t, first.Close())

		second, err := NewDB(dir)
		require.NoError(t, err)
		defer second.Close()
		assert.NoError(t, second.Migrate())
		assert.NoError(t, second.Health(context.Background()))
	})
}

func TestCloseWithoutDB(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}

func TestSplitSQL(t *testing.T) {
	stmts := splitSQL(`
-- comment
CREATE TABLE a (x TEXT DEFAULT 'a;b');
CREATE INDEX i ON a(x);
SELECT 1`)

	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x TEXT DEFAULT 'a;b');", stmts[0])
	assert.Equal(t, "CREATE INDEX i ON a(x);", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

// ============================================================================
// SCHEDULED TASKS
// ============================================================================

func TestTasks_SaveLoadDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	alarm := scheduler.Task{ID: 1, Kind: scheduler.KindAlarm, DueAt: now.Add(time.Hour), CreatedAt: now}
	reminder := scheduler.Task{ID: 2, Kind: scheduler.KindReminder, DueAt: now.Add(2 * time.Hour), Message: "call mom", CreatedAt: now}
	require.NoError(t, store.SaveTask(ctx, alarm))
	require.NoError(t, store.SaveTask(ctx, reminder))

	// upsert marks the alarm triggered
	alarm.Triggered = true
	alarm.TriggeredAt = now.Add(time.Hour)
	require.NoError(t, store.SaveTask(ctx, alarm))

	tasks, err := store.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, int64(1), tasks[0].ID)
	assert.Equal(t, scheduler.KindAlarm, tasks[0].Kind)
	assert.True(t, tasks[0].Triggered)
	assert.True(t, alarm.TriggeredAt.Equal(tasks[0].TriggeredAt))
	assert.True(t, alarm.DueAt.Equal(tasks[0].DueAt))

	assert.Equal(t, "call mom", tasks[1].Message)
	assert.False(t, tasks[1].Triggered)
	assert.True(t, tasks[1].TriggeredAt.IsZero())

	require.NoError(t, store.DeleteTask(ctx, 2))
	require.NoError(t, store.DeleteTask(ctx, 99))

	tasks, err = store.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTasks_LastTaskID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.LastTaskID(ctx)
	require.NoError(t, err)
	assert.Zero(t, id)

	require.NoError(t, store.SetLastTaskID(ctx, 7))
	id, err = store.LastTaskID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	// a stored task above the mark wins
	require.NoError(t, store.SaveTask(ctx, scheduler.Task{
		ID: 12, Kind: scheduler.KindTimer, DueAt: time.Now(), CreatedAt: time.Now(),
	}))
	id, err = store.LastTaskID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	// saving raised the mark, so deleting the task keeps the ID retired
	require.NoError(t, store.DeleteTask(ctx, 12))
	require.NoError(t, store.SaveTask(ctx, scheduler.Task{
		ID: 3, Kind: scheduler.KindAlarm, DueAt: time.Now(), CreatedAt: time.Now(),
	}))
	id, err = store.LastTaskID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestTasks_IDsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	due := time.Now().Add(time.Hour)

	store, err := NewDB(dir)
	require.NoError(t, err)
	s1 := scheduler.New(scheduler.DefaultConfig(), scheduler.WithStore(store))
	require.NoError(t, s1.Load(ctx))
	first, err := s1.Schedule(scheduler.KindReminder, due, "stretch")
	require.NoError(t, err)
	second, err := s1.Schedule(scheduler.KindReminder, due, "water")
	require.NoError(t, err)
	require.True(t, s1.Cancel(second))
	require.NoError(t, store.Close())

	store, err = NewDB(dir)
	require.NoError(t, err)
	defer store.Close()
	s2 := scheduler.New(scheduler.DefaultConfig(), scheduler.WithStore(store))
	require.NoError(t, s2.Load(ctx))

	got, ok := s2.Get(first)
	require.True(t, ok)
	assert.Equal(t, "stretch", got.Message)

	third, err := s2.Schedule(scheduler.KindAlarm, due, "")
	require.NoError(t, err)
	assert.Greater(t, third, second, "cancelled IDs are never reissued")
}

// ============================================================================
// CONVERSATION HISTORY
// ============================================================================

func exchange(id, text string, at time.Time) conversation.Exchange {
	return conversation.Exchange{
		ID:        id,
		Timestamp: at,
		Text:      text,
		Intent:    intent.OpenApp,
		Entities:  intent.EntitySet{intent.EntityAppName: intent.StringValue("chrome")},
		Response:  "Opening chrome.",
	}
}

func TestHistory_SaveLoadTrim(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.SaveExchange(ctx, exchange(id, "open chrome "+id, base.Add(time.Duration(i)*time.Minute))))
	}
	// duplicate IDs are ignored
	require.NoError(t, store.SaveExchange(ctx, exchange("a", "duplicate", base)))

	all, err := store.LoadExchanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "open chrome a", all[0].Text)
	assert.Equal(t, intent.OpenApp, all[0].Intent)
	app, ok := all[0].Entities.Str(intent.EntityAppName)
	assert.True(t, ok)
	assert.Equal(t, "chrome", app)

	recent, err := store.LoadExchanges(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "d", recent[1].ID)

	require.NoError(t, store.TrimExchanges(ctx, 3))
	all, err = store.LoadExchanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ID)

	require.NoError(t, store.ClearExchanges(ctx))
	all, err = store.LoadExchanges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHistory_ManagerRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	m1 := conversation.NewManager(conversation.Config{MaxHistory: 2}, conversation.WithStore(store))
	ex := intent.NewExtractor(intent.WithClock(func() time.Time { return now }))
	m1.AddExchange(ex.Parse("open chrome"), "Opening chrome.")
	m1.AddExchange(ex.Parse("what time is it"), "It's 9:00 AM.")
	m1.AddExchange(ex.Parse("open spotify"), "Opening spotify.")

	m2 := conversation.NewManager(conversation.Config{MaxHistory: 2}, conversation.WithStore(store))
	require.NoError(t, m2.Load(ctx))

	history := m2.History()
	require.Len(t, history, 2)
	assert.Equal(t, "what time is it", history[0].Text)
	assert.Equal(t, "open spotify", history[1].Text)

	app, ok := m2.GetContext(conversation.KeyLastApp)
	require.True(t, ok)
	assert.Equal(t, "spotify", app.Str)
}

// ============================================================================
// TODOS
// ============================================================================

func TestTodos(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	milk, err := store.AddTodo(ctx, "  buy milk ", now)
	require.NoError(t, err)
	assert.Equal(t, "buy milk", milk.Description)
	bills, err := store.AddTodo(ctx, "pay bills", now.Add(time.Minute))
	require.NoError(t, err)

	_, err = store.AddTodo(ctx, "   ", now)
	assert.Error(t, err)

	require.NoError(t, store.CompleteTodo(ctx, milk.ID, now.Add(time.Hour)))

	todos, err := store.ListTodos(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.True(t, todos[0].Completed)
	assert.True(t, now.Add(time.Hour).Equal(todos[0].CompletedAt))
	assert.False(t, todos[1].Completed)
	assert.Equal(t, bills.ID, todos[1].ID)

	require.NoError(t, store.DeleteTodo(ctx, bills.ID))
	assert.ErrorIs(t, store.DeleteTodo(ctx, bills.ID), ErrNotFound)
	assert.ErrorIs(t, store.CompleteTodo(ctx, 404, now), ErrNotFound)
}
