// Package conversation tracks conversational context across turns.
//
// The Manager keeps a bounded, append-only history of exchanges and a small
// keyed context store (last app, last recipient, ...) that is written only by
// AddExchange and read when resolving pronouns and follow-ups.
package conversation

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/intent"
)

// ContextKey is one of the fixed context vocabulary keys.
type ContextKey string

const (
	KeyLastApp         ContextKey = "last_app"
	KeyLastRecipient   ContextKey = "last_recipient"
	KeyLastMessage     ContextKey = "last_message"
	KeyLastSearchQuery ContextKey = "last_search_query"
	KeyLastAlarmTime   ContextKey = "last_alarm_time"
	KeyLastTaskKind    ContextKey = "last_task_kind"
)

// Exchange is one recorded command/response turn. Never mutated after append.
type Exchange struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Text      string           `json:"text"`
	Intent    intent.Intent    `json:"intent"`
	Entities  intent.EntitySet `json:"entities"`
	Response  string           `json:"response"`
}

// ContextEntry is the latest value written under a key.
type ContextEntry struct {
	Key       ContextKey   `json:"key"`
	Value     intent.Value `json:"value"`
	Timestamp time.Time    `json:"timestamp"`
}

// HistoryStore persists exchanges. Implemented by data.Store.
type HistoryStore interface {
	SaveExchange(ctx context.Context, ex Exchange) error
	LoadExchanges(ctx context.Context, limit int) ([]Exchange, error)
	TrimExchanges(ctx context.Context, keep int) error
	ClearExchanges(ctx context.Context) error
}

// Config configures the Manager.
type Config struct {
	// MaxHistory is the number of exchanges retained (default: 50)
	MaxHistory int
}

// DefaultConfig returns the default retention.
func DefaultConfig() Config {
	return Config{MaxHistory: 50}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore persists history through s.
func WithStore(s HistoryStore) Option {
	return func(m *Manager) { m.store = s }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the clock used to stamp context entries.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is the context store plus bounded history.
type Manager struct {
	mu        sync.RWMutex
	exchanges []Exchange
	entries   map[ContextKey]ContextEntry
	config    Config

	store HistoryStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewManager creates a Manager with the given config.
func NewManager(config Config, opts ...Option) *Manager {
	if config.MaxHistory <= 0 {
		config.MaxHistory = 50
	}
	m := &Manager{
		exchanges: make([]Exchange, 0, config.MaxHistory),
		entries:   make(map[ContextKey]ContextEntry),
		config:    config,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores persisted history and replays it into the context store.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	exchanges, err := m.store.LoadExchanges(ctx, m.config.MaxHistory)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = m.exchanges[:0]
	for _, ex := range exchanges {
		m.appendLocked(ex)
	}
	m.log.Debug().Int("exchanges", len(exchanges)).Msg("conversation history loaded")
	return nil
}

// AddExchange records cmd and its response, evicting the oldest exchange
// when the history is full, and updates the context keys the intent writes.
func (m *Manager) AddExchange(cmd intent.Command, response string) Exchange {
	ex := Exchange{
		ID:        uuid.NewString(),
		Timestamp: cmd.Timestamp,
		Text:      cmd.Text,
		Intent:    cmd.Intent,
		Entities:  cmd.Entities.Clone(),
		Response:  response,
	}
	if ex.Timestamp.IsZero() {
		ex.Timestamp = m.now()
	}

	m.mu.Lock()
	m.appendLocked(ex)
	m.mu.Unlock()

	m.persist(ex)
	return ex
}

func (m *Manager) appendLocked(ex Exchange) {
	m.exchanges = append(m.exchanges, ex)
	if len(m.exchanges) > m.config.MaxHistory {
		m.exchanges = slices.Clone(m.exchanges[len(m.exchanges)-m.config.MaxHistory:])
	}
	for _, entry := range contextUpdates(ex) {
		m.entries[entry.Key] = entry
	}
}

func (m *Manager) persist(ex Exchange) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.SaveExchange(ctx, ex); err != nil {
		m.log.Warn().Err(err).Str("exchange_id", ex.ID).Msg("failed to persist exchange")
		return
	}
	if err := m.store.TrimExchanges(ctx, m.config.MaxHistory); err != nil {
		m.log.Warn().Err(err).Msg("failed to trim persisted history")
	}
}

// contextUpdates lists the context entries an exchange writes.
func contextUpdates(ex Exchange) []ContextEntry {
	var out []ContextEntry
	set := func(key ContextKey, v intent.Value) {
		out = append(out, ContextEntry{Key: key, Value: v, Timestamp: ex.Timestamp})
	}
	es := ex.Entities

	switch ex.Intent {
	case intent.OpenApp, intent.CloseApp:
		if v, ok := es[intent.EntityAppName]; ok {
			set(KeyLastApp, v)
		}
	case intent.SendEmail, intent.SendWhatsApp:
		if v, ok := es[intent.EntityRecipient]; ok {
			set(KeyLastRecipient, v)
		}
		if v, ok := es[intent.EntityMessage]; ok {
			set(KeyLastMessage, v)
		}
	case intent.Search, intent.Wikipedia:
		if v, ok := es[intent.EntityQuery]; ok {
			set(KeyLastSearchQuery, v)
		}
	case intent.SetAlarm, intent.SetReminder:
		if t, ok := es.Clock(); ok {
			set(KeyLastAlarmTime, intent.ClockValue(t.Hour, t.Minute))
		}
		set(KeyLastTaskKind, intent.StringValue(taskKind(ex.Intent)))
	case intent.SetTimer:
		set(KeyLastTaskKind, intent.StringValue(taskKind(ex.Intent)))
	case intent.CancelTask:
		if v, ok := es[intent.EntityKind]; ok {
			set(KeyLastTaskKind, v)
		}
	}
	return out
}

func taskKind(in intent.Intent) string {
	switch in {
	case intent.SetAlarm:
		return "alarm"
	case intent.SetReminder:
		return "reminder"
	default:
		return "timer"
	}
}

// GetContext returns the value stored under key.
func (m *Manager) GetContext(key ContextKey) (intent.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return entry.Value, ok
}

// ContextEntries returns a snapshot of the context store sorted by key.
func (m *Manager) ContextEntries() []ContextEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ContextEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b ContextEntry) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// pronounSlot says which entity a pronoun stands for under which intents.
type pronounSlot struct {
	pronouns []string
	intents  []intent.Intent
	entity   string
	key      ContextKey
}

var pronounSlots = []pronounSlot{
	{[]string{"it", "that", "this"}, []intent.Intent{intent.OpenApp, intent.CloseApp}, intent.EntityAppName, KeyLastApp},
	{[]string{"it", "that", "this"}, []intent.Intent{intent.Search, intent.Wikipedia}, intent.EntityQuery, KeyLastSearchQuery},
	{[]string{"him", "her", "them"}, []intent.Intent{intent.SendEmail, intent.SendWhatsApp}, intent.EntityRecipient, KeyLastRecipient},
}

// ResolvePronounReference fills a missing referent from context when text
// contains a bare pronoun. The input set is never modified.
func (m *Manager) ResolvePronounReference(text string, in intent.Intent, es intent.EntitySet) intent.EntitySet {
	out := es.Clone()
	words := strings.Fields(intent.Normalize(text))

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, slot := range pronounSlots {
		if !slices.Contains(slot.intents, in) || out.Has(slot.entity) {
			continue
		}
		if !slices.ContainsFunc(words, func(w string) bool { return slices.Contains(slot.pronouns, w) }) {
			continue
		}
		if entry, ok := m.entries[slot.key]; ok {
			out[slot.entity] = entry.Value
		}
	}
	return out
}

// IsFollowUp reports whether cmd omits its subject entity while the previous
// exchange belongs to the same intent family. Unknown never follows up.
func (m *Manager) IsFollowUp(cmd intent.Command) bool {
	if cmd.Intent == intent.Unknown {
		return false
	}
	if key := cmd.Intent.SubjectKey(); key != "" && cmd.Entities.Has(key) {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.exchanges) == 0 {
		return false
	}
	last := m.exchanges[len(m.exchanges)-1]
	return last.Intent.Family() == cmd.Intent.Family()
}

// ResolveFollowUp fills the missing subject of a follow-up command ("close"
// right after "open chrome") from context. Other commands come back
// unchanged. The input set is never modified.
func (m *Manager) ResolveFollowUp(cmd intent.Command) intent.EntitySet {
	out := cmd.Entities.Clone()
	if !m.IsFollowUp(cmd) {
		return out
	}
	subject := cmd.Intent.SubjectKey()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, slot := range pronounSlots {
		if slot.entity != subject || !slices.Contains(slot.intents, cmd.Intent) {
			continue
		}
		if entry, ok := m.entries[slot.key]; ok {
			out[subject] = entry.Value
		}
		break
	}
	return out
}

// History returns a copy of all retained exchanges, oldest first.
func (m *Manager) History() []Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.exchanges)
}

// Recent returns up to n most recent exchanges, oldest first. n <= 0
// returns none.
func (m *Manager) Recent(n int) []Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n = min(max(n, 0), len(m.exchanges))
	start := len(m.exchanges) - n
	return slices.Clone(m.exchanges[start:])
}

// Len returns the number of retained exchanges.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exchanges)
}

// ClearContext forgets every context entry; history is kept.
func (m *Manager) ClearContext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[ContextKey]ContextEntry)
}

// ClearHistory drops retained and persisted exchanges.
func (m *Manager) ClearHistory(ctx context.Context) error {
	m.mu.Lock()
	m.exchanges = make([]Exchange, 0, m.config.MaxHistory)
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	return m.store.ClearExchanges(ctx)
}
