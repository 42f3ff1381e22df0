package activation

import (
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/normanking/cortexvoice/internal/intent"
)

// minFuzzyLen is the shortest word that may match with edits. Shorter
// words ("to", "hey") must be heard verbatim.
const minFuzzyLen = 4

// PhraseMatcher accepts a wake or stop phrase in noisy transcripts.
//
// A heard text matches when it contains the phrase outright, or when at
// least (1 - Tolerance) of the phrase's words are present. A phrase word is
// present when some distinct heard word equals it, or when both words have
// at least minFuzzyLen letters and are within floor(n*Tolerance/2) edits,
// n being the longer length. An adjacent swap counts as one edit.
// Tolerance 0 demands every word verbatim.
type PhraseMatcher struct {
	Phrase    string
	Tolerance float64
	words     []string
}

// NewPhraseMatcher creates a matcher. Tolerance is clamped to [0, 1].
func NewPhraseMatcher(phrase string, tolerance float64) *PhraseMatcher {
	tolerance = min(max(tolerance, 0), 1)
	norm := intent.Normalize(phrase)
	return &PhraseMatcher{
		Phrase:    norm,
		Tolerance: tolerance,
		words:     strings.Fields(norm),
	}
}

// Match reports whether text contains the phrase within tolerance.
func (p *PhraseMatcher) Match(text string) bool {
	n, _ := p.pairs(strings.Fields(intent.Normalize(text)))
	return p.accepts(n)
}

// Whole reports whether text matches and consists mostly of the phrase: at
// least half of the heard words are phrase words. "stop strom" and "please
// stop" qualify, "send an email to john" does not.
func (p *PhraseMatcher) Whole(text string) bool {
	heard := strings.Fields(intent.Normalize(text))
	n, _ := p.pairs(heard)
	return p.accepts(n) && 2*n >= len(heard)
}

// Score is the fraction of phrase words heard in text, in [0, 1].
func (p *PhraseMatcher) Score(text string) float64 {
	n, _ := p.pairs(strings.Fields(intent.Normalize(text)))
	return p.fraction(n)
}

// Remainder returns the words spoken after the phrase, so "hey strom what
// time is it" carries its command inline. ok is false when text does not
// match.
func (p *PhraseMatcher) Remainder(text string) (rest string, ok bool) {
	heard := strings.Fields(intent.Normalize(text))
	n, last := p.pairs(heard)
	if !p.accepts(n) {
		return "", false
	}
	return strings.Join(heard[last+1:], " "), true
}

func (p *PhraseMatcher) accepts(n int) bool {
	if len(p.words) == 0 || n == 0 {
		return false
	}
	const epsilon = 1e-9
	return p.fraction(n) >= 1-p.Tolerance-epsilon
}

func (p *PhraseMatcher) fraction(n int) float64 {
	if len(p.words) == 0 {
		return 0
	}
	return float64(n) / float64(len(p.words))
}

// pairs pairs phrase words with distinct heard words within tolerance,
// maximizing the number of pairs, and returns that number and the index of
// the last heard word used (-1 when none).
func (p *PhraseMatcher) pairs(heard []string) (int, int) {
	if len(p.words) == 0 || len(heard) == 0 {
		return 0, -1
	}
	// the literal phrase wins outright
	if start := indexPhrase(heard, p.words); start >= 0 {
		return len(p.words), start + len(p.words) - 1
	}

	candidates := make([][]int, len(p.words))
	for wi, w := range p.words {
		dist := make(map[int]int)
		for hi, h := range heard {
			if d, ok := p.near(w, h); ok {
				candidates[wi] = append(candidates[wi], hi)
				dist[hi] = d
			}
		}
		slices.SortStableFunc(candidates[wi], func(a, b int) int { return dist[a] - dist[b] })
	}

	owner := make([]int, len(heard))
	for i := range owner {
		owner[i] = -1
	}
	var assign func(wi int, seen []bool) bool
	assign = func(wi int, seen []bool) bool {
		for _, hi := range candidates[wi] {
			if seen[hi] {
				continue
			}
			seen[hi] = true
			if owner[hi] < 0 || assign(owner[hi], seen) {
				owner[hi] = wi
				return true
			}
		}
		return false
	}

	n := 0
	for wi := range p.words {
		if assign(wi, make([]bool, len(heard))) {
			n++
		}
	}
	last := -1
	for hi, wi := range owner {
		if wi >= 0 {
			last = hi
		}
	}
	return n, last
}

// near reports whether heard word h passes for phrase word w, and at what
// distance.
func (p *PhraseMatcher) near(w, h string) (int, bool) {
	if w == h {
		return 0, true
	}
	if len(w) < minFuzzyLen || len(h) < minFuzzyLen {
		return 0, false
	}
	d := distance(w, h)
	return d, d <= editLimit(max(len(w), len(h)), p.Tolerance)
}

func editLimit(n int, tolerance float64) int {
	return int(float64(n) * tolerance / 2)
}

// distance is the Levenshtein distance, except that a single swap of
// adjacent letters ("storm" for "strom") counts as one edit.
func distance(a, b string) int {
	if len(a) == len(b) {
		var diff []int
		for i := range len(a) {
			if a[i] != b[i] {
				diff = append(diff, i)
			}
		}
		if len(diff) == 2 && diff[1] == diff[0]+1 && a[diff[0]] == b[diff[1]] && a[diff[1]] == b[diff[0]] {
			return 1
		}
	}
	return levenshtein.ComputeDistance(a, b)
}

func indexPhrase(heard, phrase []string) int {
	for i := 0; i+len(phrase) <= len(heard); i++ {
		if slices.Equal(heard[i:i+len(phrase)], phrase) {
			return i
		}
	}
	return -1
}
