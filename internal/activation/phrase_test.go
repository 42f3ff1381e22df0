package activation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPhraseMatcher_Match(t *testing.T) {
	wake := NewPhraseMatcher("hey strom", 0.5)

	tests := []struct {
		heard string
		want  bool
	}{
		{"hey strom", true},
		{"Hey, Strom!", true},
		{"okay hey strom what time is it", true},
		{"hey storm", true},
		{"hay strom", true},
		{"strom", true},
		{"hey", true},
		{"hello there", false},
		{"what time is it", false},
		{"they are here", false},
		{"play music from spotify", false},
		{"strong coffee please", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.heard, func(t *testing.T) {
			assert.Equal(t, tt.want, wake.Match(tt.heard))
		})
	}
}

func TestPhraseMatcher_Strict(t *testing.T) {
	strict := NewPhraseMatcher("hey strom", 0)

	assert.True(t, strict.Match("hey strom"))
	assert.True(t, strict.Match("strom hey"))
	assert.False(t, strict.Match("hey storm"))
	assert.False(t, strict.Match("strom"))
}

func TestPhraseMatcher_ShortWordsNeedExactMatch(t *testing.T) {
	stop := NewPhraseMatcher("stop strom", 0.5)

	assert.False(t, stop.Match("remind me to call mom"))
	assert.False(t, stop.Match("send an email to john"))
	assert.False(t, stop.Match("go to the top"))
	assert.False(t, stop.Match("play music from spotify"))
	assert.True(t, stop.Match("stop storm"))
	assert.True(t, stop.Match("stop"))
}

func TestPhraseMatcher_Whole(t *testing.T) {
	stop := NewPhraseMatcher("stop strom", 0.5)

	tests := []struct {
		heard string
		want  bool
	}{
		{"stop strom", true},
		{"stop", true},
		{"please stop", true},
		{"okay stop strom now", true},
		{"stop the music and open spotify", false},
		{"don't stop me now", false},
		{"what time is it", false},
	}

	for _, tt := range tests {
		t.Run(tt.heard, func(t *testing.T) {
			assert.Equal(t, tt.want, stop.Whole(tt.heard))
		})
	}
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, distance("strom", "strom"))
	assert.Equal(t, 1, distance("strom", "storm"))
	assert.Equal(t, 2, distance("strom", "from"))
	assert.Equal(t, 2, distance("strom", "strong"))
}

func TestPhraseMatcher_WakeVersusStop(t *testing.T) {
	wake := NewPhraseMatcher("hey strom", 0.5)
	stop := NewPhraseMatcher("stop strom", 0.5)

	// each phrase scores higher on itself than on the other
	assert.Greater(t, wake.Score("hey strom"), stop.Score("hey strom"))
	assert.Greater(t, stop.Score("stop strom"), wake.Score("stop strom"))
	assert.Greater(t, stop.Score("stop storm"), wake.Score("stop storm"))
}

func TestPhraseMatcher_Remainder(t *testing.T) {
	wake := NewPhraseMatcher("hey strom", 0.5)

	rest, ok := wake.Remainder("Hey Strom, set a timer for 5 minutes.")
	assert.True(t, ok)
	assert.Equal(t, "set a timer for 5 minutes", rest)

	rest, ok = wake.Remainder("hey storm open chrome")
	assert.True(t, ok)
	assert.Equal(t, "open chrome", rest)

	rest, ok = wake.Remainder("hey strom")
	assert.True(t, ok)
	assert.Empty(t, rest)

	_, ok = wake.Remainder("good morning")
	assert.False(t, ok)
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROPERTIES
// ═══════════════════════════════════════════════════════════════════════════════

var letters = []rune("abcdefghijklmnopqrstuvwxyz")

func wordGen(minLen int) *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		rs := rapid.SliceOfN(rapid.SampledFrom(letters), minLen, 10).Draw(t, "letters")
		return string(rs)
	})
}

// substitute replaces up to n letters of w with letters outside the
// phrase alphabet.
func substitute(t *rapid.T, w string, n int) string {
	rs := []rune(w)
	for range n {
		i := rapid.IntRange(0, len(rs)-1).Draw(t, "pos")
		rs[i] = rapid.SampledFrom([]rune("0123456789")).Draw(t, "digit")
	}
	return string(rs)
}

func TestPropertyWakeVariantsWithinTolerance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(wordGen(2), 1, 4).Draw(rt, "words")
		tolerance := rapid.SampledFrom([]float64{0, 0.25, 0.5}).Draw(rt, "tolerance")
		m := NewPhraseMatcher(strings.Join(words, " "), tolerance)

		heard := make([]string, len(words))
		for i, w := range words {
			limit := 0
			if len(w) >= minFuzzyLen {
				limit = editLimit(len(w), tolerance)
			}
			edits := rapid.IntRange(0, limit).Draw(rt, "edits")
			heard[i] = substitute(rt, w, edits)
		}
		if !m.Match(strings.Join(heard, " ")) {
			rt.Fatalf("%q with tolerance %.2f rejected %q", m.Phrase, tolerance, heard)
		}
	})
}

func TestPropertyUnrelatedTextRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(wordGen(3), 1, 4).Draw(rt, "words")
		tolerance := rapid.SampledFrom([]float64{0, 0.25, 0.5}).Draw(rt, "tolerance")
		m := NewPhraseMatcher(strings.Join(words, " "), tolerance)

		// digits share no characters with the phrase, so every word is at
		// least len(word) edits away
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		var heard []string
		for range n {
			heard = append(heard, strings.Repeat("7", rapid.IntRange(1, 10).Draw(rt, "len")))
		}
		if m.Match(strings.Join(heard, " ")) {
			rt.Fatalf("%q accepted unrelated %q", m.Phrase, heard)
		}
	})
}
