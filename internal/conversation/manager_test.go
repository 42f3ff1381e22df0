package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/normanking/cortexvoice/internal/intent"
)

// memStore is an in-memory HistoryStore.
type memStore struct {
	mu        sync.Mutex
	exchanges []Exchange
	failSave  bool
}

func (s *memStore) SaveExchange(_ context.Context, ex Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	s.exchanges = append(s.exchanges, ex)
	return nil
}

func (s *memStore) LoadExchanges(_ context.Context, limit int) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := max(len(s.exchanges)-limit, 0)
	return append([]Exchange(nil), s.exchanges[start:]...), nil
}

func (s *memStore) TrimExchanges(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.exchanges) > keep {
		s.exchanges = s.exchanges[len(s.exchanges)-keep:]
	}
	return nil
}

func (s *memStore) ClearExchanges(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = nil
	return nil
}

func cmd(text string, in intent.Intent, es intent.EntitySet) intent.Command {
	return intent.NewCommand(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), text, in, es)
}

// ═══════════════════════════════════════════════════════════════════════════
// Context store
// ═══════════════════════════════════════════════════════════════════════════

func TestAddExchange_UpdatesContext(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.AddExchange(cmd("open chrome", intent.OpenApp, intent.EntitySet{
		intent.EntityAppName: intent.StringValue("chrome"),
	}), "Opening chrome.")
	m.AddExchange(cmd("message john saying hi", intent.SendWhatsApp, intent.EntitySet{
		intent.EntityRecipient: intent.StringValue("john"),
		intent.EntityMessage:   intent.StringValue("hi"),
	}), "Sent.")
	m.AddExchange(cmd("set an alarm for 7:30 am", intent.SetAlarm, intent.EntitySet{
		intent.EntityHour:   intent.IntValue(7),
		intent.EntityMinute: intent.IntValue(30),
	}), "Alarm set.")

	v, ok := m.GetContext(KeyLastApp)
	require.True(t, ok)
	assert.Equal(t, "chrome", v.Str)

	v, ok = m.GetContext(KeyLastRecipient)
	require.True(t, ok)
	assert.Equal(t, "john", v.Str)

	v, ok = m.GetContext(KeyLastAlarmTime)
	require.True(t, ok)
	assert.Equal(t, intent.ClockValue(7, 30), v)

	v, ok = m.GetContext(KeyLastTaskKind)
	require.True(t, ok)
	assert.Equal(t, "alarm", v.Str)

	_, ok = m.GetContext(KeyLastSearchQuery)
	assert.False(t, ok)

	assert.Len(t, m.ContextEntries(), 5)
}

func TestAddExchange_LastWriteWins(t *testing.T) {
	m := NewManager(DefaultConfig())

	for _, app := range []string{"chrome", "spotify", "notepad"} {
		m.AddExchange(cmd("open "+app, intent.OpenApp, intent.EntitySet{
			intent.EntityAppName: intent.StringValue(app),
		}), "ok")
	}

	v, ok := m.GetContext(KeyLastApp)
	require.True(t, ok)
	assert.Equal(t, "notepad", v.Str)
	assert.Len(t, m.ContextEntries(), 1)
}

func TestAddExchange_DoesNotAliasEntities(t *testing.T) {
	m := NewManager(DefaultConfig())
	es := intent.EntitySet{intent.EntityAppName: intent.StringValue("chrome")}

	ex := m.AddExchange(cmd("open chrome", intent.OpenApp, es), "ok")
	es[intent.EntityAppName] = intent.StringValue("firefox")

	assert.Equal(t, "chrome", ex.Entities[intent.EntityAppName].Str)
	assert.Equal(t, "chrome", m.History()[0].Entities[intent.EntityAppName].Str)
	assert.NotEmpty(t, ex.ID)
}

// ═══════════════════════════════════════════════════════════════════════════
// Pronouns and follow-ups
// ═══════════════════════════════════════════════════════════════════════════

func TestResolvePronounReference_CloseIt(t *testing.T) {
	m := NewManager(DefaultConfig())
	ex := intent.NewExtractor()

	in, es := ex.Process("open chrome")
	m.AddExchange(cmd("open chrome", in, es), "Opening chrome.")

	in, es = ex.Process("close it")
	require.Equal(t, intent.CloseApp, in)
	require.Empty(t, es)

	resolved := m.ResolvePronounReference("close it", in, es)
	assert.Equal(t, intent.EntitySet{intent.EntityAppName: intent.StringValue("chrome")}, resolved)
	assert.Empty(t, es, "input set must not be modified")
}

func TestResolvePronounReference(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.AddExchange(cmd("search for go generics", intent.Search, intent.EntitySet{
		intent.EntityQuery: intent.StringValue("go generics"),
	}), "Searching.")
	m.AddExchange(cmd("email sarah saying hi", intent.SendEmail, intent.EntitySet{
		intent.EntityRecipient: intent.StringValue("sarah"),
	}), "Sent.")

	tests := []struct {
		name string
		text string
		in   intent.Intent
		es   intent.EntitySet
		want intent.EntitySet
	}{
		{
			name: "search pronoun uses last query",
			text: "look that up on wikipedia",
			in:   intent.Wikipedia,
			es:   intent.EntitySet{},
			want: intent.EntitySet{intent.EntityQuery: intent.StringValue("go generics")},
		},
		{
			name: "messaging pronoun uses last recipient",
			text: "send her a message saying bye",
			in:   intent.SendWhatsApp,
			es:   intent.EntitySet{intent.EntityMessage: intent.StringValue("bye")},
			want: intent.EntitySet{
				intent.EntityMessage:   intent.StringValue("bye"),
				intent.EntityRecipient: intent.StringValue("sarah"),
			},
		},
		{
			name: "explicit referent wins",
			text: "email him saying hi",
			in:   intent.SendEmail,
			es:   intent.EntitySet{intent.EntityRecipient: intent.StringValue("bob")},
			want: intent.EntitySet{intent.EntityRecipient: intent.StringValue("bob")},
		},
		{
			name: "no pronoun, nothing filled",
			text: "open",
			in:   intent.OpenApp,
			es:   intent.EntitySet{},
			want: intent.EntitySet{},
		},
		{
			name: "no context for key",
			text: "close it",
			in:   intent.CloseApp,
			es:   intent.EntitySet{},
			want: intent.EntitySet{},
		},
		{
			name: "wrong pronoun for slot",
			text: "search for him",
			in:   intent.Search,
			es:   intent.EntitySet{},
			want: intent.EntitySet{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.ResolvePronounReference(tt.text, tt.in, tt.es))
		})
	}
}

func TestIsFollowUp(t *testing.T) {
	m := NewManager(DefaultConfig())
	assert.False(t, m.IsFollowUp(cmd("close it", intent.CloseApp, nil)), "no history")

	m.AddExchange(cmd("open chrome", intent.OpenApp, intent.EntitySet{
		intent.EntityAppName: intent.StringValue("chrome"),
	}), "ok")

	assert.True(t, m.IsFollowUp(cmd("close it", intent.CloseApp, nil)))
	assert.True(t, m.IsFollowUp(cmd("take a screenshot", intent.Screenshot, nil)))
	assert.False(t, m.IsFollowUp(cmd("close spotify", intent.CloseApp, intent.EntitySet{
		intent.EntityAppName: intent.StringValue("spotify"),
	})), "explicit subject")
	assert.False(t, m.IsFollowUp(cmd("search for it", intent.Search, nil)), "different family")
	assert.False(t, m.IsFollowUp(cmd("blah", intent.Unknown, nil)))
}

func TestResolveFollowUp(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.AddExchange(cmd("open chrome", intent.OpenApp, intent.EntitySet{
		intent.EntityAppName: intent.StringValue("chrome"),
	}), "ok")

	closeCmd := cmd("close", intent.CloseApp, intent.EntitySet{})
	es := m.ResolveFollowUp(closeCmd)
	app, ok := es.Str(intent.EntityAppName)
	require.True(t, ok)
	assert.Equal(t, "chrome", app)
	assert.Empty(t, closeCmd.Entities, "input untouched")

	// explicit subjects and other families are left alone
	es = m.ResolveFollowUp(cmd("close spotify", intent.CloseApp, intent.EntitySet{
		intent.EntityAppName: intent.StringValue("spotify"),
	}))
	app, _ = es.Str(intent.EntityAppName)
	assert.Equal(t, "spotify", app)
	assert.Empty(t, m.ResolveFollowUp(cmd("search", intent.Search, nil)))

	// same family, but no context slot for the subject
	assert.Empty(t, m.ResolveFollowUp(cmd("type", intent.TypeText, nil)))
}

// ═══════════════════════════════════════════════════════════════════════════
// History
// ═══════════════════════════════════════════════════════════════════════════

func TestHistory_EvictsOldest(t *testing.T) {
	m := NewManager(Config{MaxHistory: 3})
	for i := range 4 {
		m.AddExchange(cmd(fmt.Sprintf("cmd %d", i), intent.Time, nil), "ok")
	}

	h := m.History()
	require.Len(t, h, 3)
	assert.Equal(t, "cmd 1", h[0].Text)
	assert.Equal(t, "cmd 3", h[2].Text)

	recent := m.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "cmd 2", recent[0].Text)
	assert.Len(t, m.Recent(10), 3)
	assert.Empty(t, m.Recent(0))
	assert.NotPanics(t, func() { assert.Empty(t, m.Recent(-1)) })
}

func TestSummary(t *testing.T) {
	m := NewManager(DefaultConfig())
	assert.Equal(t, "No conversation history.", m.Summary().String())

	for _, in := range []intent.Intent{intent.Time, intent.Time, intent.Date, intent.Greeting, intent.Time, intent.Date} {
		m.AddExchange(cmd(string(in), in, nil), "ok")
	}

	before := m.History()
	s := m.Summary()
	assert.Equal(t, 6, s.Total)
	require.Len(t, s.TopIntents, 3)
	assert.Equal(t, IntentCount{intent.Time, 3}, s.TopIntents[0])
	assert.Equal(t, IntentCount{intent.Date, 2}, s.TopIntents[1])
	assert.Equal(t, "6 exchanges. Most common: time (3), date (2), greeting (1).", s.String())
	assert.Equal(t, before, m.History(), "summary must not mutate history")
}

func TestPersistence(t *testing.T) {
	store := &memStore{}
	m := NewManager(Config{MaxHistory: 2}, WithStore(store))

	m.AddExchange(cmd("open chrome", intent.OpenApp, intent.EntitySet{
		intent.EntityAppName: intent.StringValue("chrome"),
	}), "ok")
	m.AddExchange(cmd("what time is it", intent.Time, nil), "It's 9 AM.")
	m.AddExchange(cmd("thanks", intent.Thanks, nil), "You're welcome!")
	assert.Len(t, store.exchanges, 2)

	restored := NewManager(Config{MaxHistory: 2}, WithStore(store))
	require.NoError(t, restored.Load(context.Background()))
	assert.Equal(t, m.History(), restored.History())

	require.NoError(t, restored.ClearHistory(context.Background()))
	assert.Zero(t, restored.Len())
	assert.Empty(t, store.exchanges)
}

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	store := &memStore{failSave: true}
	m := NewManager(DefaultConfig(), WithStore(store))

	ex := m.AddExchange(cmd("hello", intent.Greeting, nil), "Hello!")
	assert.Equal(t, "Hello!", ex.Response)
	assert.Equal(t, 1, m.Len())
}

func TestClearContext(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.AddExchange(cmd("open chrome", intent.OpenApp, intent.EntitySet{
		intent.EntityAppName: intent.StringValue("chrome"),
	}), "ok")
	m.ClearContext()

	_, ok := m.GetContext(KeyLastApp)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

// TestPropertyHistoryEviction verifies that appending N+k exchanges to a
// history capped at N keeps the N most recent in insertion order.
func TestPropertyHistoryEviction(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(rt, "capacity")
		extra := rapid.IntRange(0, 30).Draw(rt, "extra")
		total := capacity + extra

		m := NewManager(Config{MaxHistory: capacity})
		for i := range total {
			m.AddExchange(cmd(fmt.Sprint(i), intent.Time, nil), "ok")
		}

		h := m.History()
		if len(h) != capacity {
			rt.Fatalf("len = %d, want %d", len(h), capacity)
		}
		for i, ex := range h {
			if want := fmt.Sprint(total - capacity + i); ex.Text != want {
				rt.Fatalf("history[%d] = %q, want %q", i, ex.Text, want)
			}
		}
	})
}
