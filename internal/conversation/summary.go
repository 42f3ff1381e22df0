package conversation

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/normanking/cortexvoice/internal/intent"
)

// IntentCount is how often an intent occurs in the history.
type IntentCount struct {
	Intent intent.Intent `json:"intent"`
	Count  int           `json:"count"`
}

// Summary describes the retained history.
type Summary struct {
	Total      int           `json:"total"`
	TopIntents []IntentCount `json:"top_intents"`
	First      time.Time     `json:"first,omitempty"`
	Last       time.Time     `json:"last,omitempty"`
}

const summaryTopN = 5

// Summary counts intents over a snapshot of the history.
func (m *Manager) Summary() Summary {
	history := m.History()
	s := Summary{Total: len(history)}
	if len(history) == 0 {
		return s
	}
	s.First = history[0].Timestamp
	s.Last = history[len(history)-1].Timestamp

	counts := make(map[intent.Intent]int)
	for _, ex := range history {
		counts[ex.Intent]++
	}
	for in, n := range counts {
		s.TopIntents = append(s.TopIntents, IntentCount{Intent: in, Count: n})
	}
	slices.SortFunc(s.TopIntents, func(a, b IntentCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Intent, b.Intent)
	})
	if len(s.TopIntents) > summaryTopN {
		s.TopIntents = s.TopIntents[:summaryTopN]
	}
	return s
}

func (s Summary) String() string {
	if s.Total == 0 {
		return "No conversation history."
	}
	parts := make([]string, len(s.TopIntents))
	for i, ic := range s.TopIntents {
		parts[i] = fmt.Sprintf("%s (%d)", ic.Intent, ic.Count)
	}
	return fmt.Sprintf("%d exchanges. Most common: %s.", s.Total, strings.Join(parts, ", "))
}
