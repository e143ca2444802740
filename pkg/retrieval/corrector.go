package retrieval

import (
	"strings"
	"sync/atomic"

	"github.com/vitrine/vitrine/pkg/intent"
)

const (
	// DefaultCorrectionThreshold is the minimum similarity for a replacement.
	DefaultCorrectionThreshold = 0.72
	// minCorrectableLen keeps short tokens such as sizes and articles intact.
	minCorrectableLen = 3
)

type vocabEntry struct {
	term  string
	chars map[rune]struct{}
}

type correctorState struct {
	threshold float64
	vocab     []vocabEntry
	known     map[string]struct{}
}

// Corrector replaces misspelled tokens with the nearest vocabulary term by
// Jaccard similarity over character sets. The vocabulary and threshold can
// be swapped at runtime.
type Corrector struct {
	state atomic.Pointer[correctorState]
}

// NewCorrector builds a corrector. A non-positive threshold selects the default.
func NewCorrector(vocabulary []string, threshold float64) *Corrector {
	c := &Corrector{}
	c.Update(vocabulary, threshold)
	return c
}

// Update replaces the vocabulary and threshold.
func (c *Corrector) Update(vocabulary []string, threshold float64) {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultCorrectionThreshold
	}
	st := &correctorState{threshold: threshold, known: make(map[string]struct{})}
	for _, raw := range vocabulary {
		term := intent.Normalize(raw)
		if term == "" || strings.Contains(term, " ") {
			continue
		}
		if _, dup := st.known[term]; dup {
			continue
		}
		st.known[term] = struct{}{}
		st.vocab = append(st.vocab, vocabEntry{term: term, chars: charSet(term)})
	}
	c.state.Store(st)
}

// Threshold returns the active similarity threshold.
func (c *Corrector) Threshold() float64 {
	return c.state.Load().threshold
}

// Vocabulary returns the active vocabulary in order.
func (c *Corrector) Vocabulary() []string {
	st := c.state.Load()
	out := make([]string, len(st.vocab))
	for i, v := range st.vocab {
		out[i] = v.term
	}
	return out
}

// Correct normalizes term and replaces each token whose best vocabulary
// match reaches the threshold. Other tokens are kept unchanged.
func (c *Corrector) Correct(term string) string {
	toks := intent.Tokens(term)
	for i, tok := range toks {
		if best, ok := c.CorrectToken(tok); ok {
			toks[i] = best
		}
	}
	return strings.Join(toks, " ")
}

// CorrectToken returns the replacement for a single normalized token and
// whether one was found.
func (c *Corrector) CorrectToken(tok string) (string, bool) {
	st := c.state.Load()
	if len([]rune(tok)) < minCorrectableLen {
		return "", false
	}
	if _, ok := st.known[tok]; ok {
		return "", false
	}

	chars := charSet(tok)
	best, bestScore, bestGap := "", 0.0, 0
	for _, v := range st.vocab {
		score := jaccard(chars, v.chars)
		gap := lenGap(tok, v.term)
		// Ties go to the closer length, then to vocabulary order.
		if score > bestScore || (score == bestScore && best != "" && gap < bestGap) {
			best, bestScore, bestGap = v.term, score, gap
		}
	}
	if best == "" || bestScore < st.threshold {
		return "", false
	}
	return best, true
}

// Similarity is the Jaccard index of the character sets of a and b.
func Similarity(a, b string) float64 {
	return jaccard(charSet(a), charSet(b))
}

func charSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func jaccard(a, b map[rune]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for r := range a {
		if _, ok := b[r]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func lenGap(a, b string) int {
	d := len([]rune(a)) - len([]rune(b))
	if d < 0 {
		return -d
	}
	return d
}
