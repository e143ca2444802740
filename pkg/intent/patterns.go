package intent

import "strings"

// Category names used by the default pattern table.
const (
	Personal   = "personal"
	Deictic    = "deictic"
	Evaluative = "evaluative"
)

// PatternCategory is a named set of phrases. A phrase matches when it occurs
// in the normalized utterance on word boundaries.
type PatternCategory struct {
	Name    string
	Phrases []string
	// Excludes lists the categories this one suppresses when it matches.
	Excludes []string
}

// PatternTable is an ordered list of categories. Order is precedence:
// a matching category can only suppress categories listed after it.
type PatternTable struct {
	categories []PatternCategory
}

// NewPatternTable normalizes every phrase once so matching stays a plain
// substring test.
func NewPatternTable(categories ...PatternCategory) *PatternTable {
	t := &PatternTable{categories: make([]PatternCategory, 0, len(categories))}
	for _, c := range categories {
		phrases := make([]string, 0, len(c.Phrases))
		for _, p := range c.Phrases {
			if n := Normalize(p); n != "" {
				phrases = append(phrases, n)
			}
		}
		t.categories = append(t.categories, PatternCategory{
			Name:     c.Name,
			Phrases:  phrases,
			Excludes: append([]string(nil), c.Excludes...),
		})
	}
	return t
}

// Categories returns a copy of the table in precedence order.
func (t *PatternTable) Categories() []PatternCategory {
	out := make([]PatternCategory, len(t.categories))
	copy(out, t.categories)
	return out
}

// Classification is the outcome of matching one utterance.
type Classification struct {
	// Matched holds the categories that survived exclusion, in table order.
	Matched []string
	// Suppressed holds categories that matched but were excluded.
	Suppressed []string
	// Phrases maps each raw match to the phrase that triggered it.
	Phrases map[string]string
}

// Has reports whether category survived exclusion.
func (c Classification) Has(category string) bool {
	for _, m := range c.Matched {
		if m == category {
			return true
		}
	}
	return false
}

// Referential reports whether the utterance points at a shown product.
func (c Classification) Referential() bool {
	return c.Has(Deictic) || c.Has(Evaluative)
}

// Classify matches utterance against every category and applies exclusions.
func (t *PatternTable) Classify(utterance string) Classification {
	padded := " " + Normalize(utterance) + " "
	result := Classification{Phrases: make(map[string]string)}

	excluded := make(map[string]bool)
	for _, c := range t.categories {
		phrase, ok := matchPhrase(padded, c.Phrases)
		if !ok {
			continue
		}
		result.Phrases[c.Name] = phrase
		if excluded[c.Name] {
			result.Suppressed = append(result.Suppressed, c.Name)
			continue
		}
		result.Matched = append(result.Matched, c.Name)
		for _, e := range c.Excludes {
			excluded[e] = true
		}
	}
	return result
}

// Strip removes every phrase of the named category from the normalized
// utterance and returns what is left.
func (t *PatternTable) Strip(utterance, category string) string {
	padded := " " + Normalize(utterance) + " "
	for _, c := range t.categories {
		if c.Name != category {
			continue
		}
		for _, p := range c.Phrases {
			for strings.Contains(padded, " "+p+" ") {
				padded = strings.Replace(padded, " "+p+" ", " ", 1)
			}
		}
	}
	return strings.Join(strings.Fields(padded), " ")
}

func matchPhrase(padded string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return p, true
		}
	}
	return "", false
}

// DefaultPatterns is the pt-BR/en table: small talk first, then deixis,
// then evaluative questions about a shown item.
func DefaultPatterns() *PatternTable {
	return NewPatternTable(
		PatternCategory{
			Name: Personal,
			Phrases: []string{
				"oi", "ola", "opa", "bom dia", "boa tarde", "boa noite", "tudo bem", "tudo bom",
				"como vai", "como voce esta", "quem e voce", "qual seu nome",
				"qual o seu nome", "voce e um robo", "voce e humano", "obrigado", "obrigada",
				"valeu", "tchau", "ate mais",
				"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
				"how are you", "who are you", "what is your name", "are you a bot",
				"thanks", "thank you", "bye",
			},
			Excludes: []string{Deictic, Evaluative},
		},
		PatternCategory{
			Name: Deictic,
			Phrases: []string{
				"esse", "essa", "este", "isso", "isto", "aquele", "aquela", "aquilo",
				"nele", "nela", "dele", "dela", "o primeiro", "a primeira", "o segundo",
				"a segunda", "o terceiro", "a terceira", "o ultimo", "a ultima",
				"this", "that", "this one", "that one", "it", "the first", "the second",
				"the last",
			},
		},
		PatternCategory{
			Name: Evaluative,
			Phrases: []string{
				"vale a pena", "compensa", "presta", "e bom", "e boa", "e confiavel",
				"recomenda", "recomendaria", "tem garantia", "e original",
				"worth it", "is it good", "any good", "should i buy", "is it reliable",
			},
		},
	)
}
