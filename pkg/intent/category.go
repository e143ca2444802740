package intent

import "strings"

// CategoryTable maps keywords to catalog categories.
type CategoryTable struct {
	byKeyword map[string]string
	phrases   []categoryPhrase
}

type categoryPhrase struct {
	phrase   string
	category string
}

// NewCategoryTable builds a table from category -> keywords. Multi-word
// keywords are matched as phrases before single tokens.
func NewCategoryTable(entries map[string][]string) *CategoryTable {
	t := &CategoryTable{byKeyword: make(map[string]string)}
	for category, keywords := range entries {
		cat := Normalize(category)
		for _, kw := range keywords {
			n := Normalize(kw)
			if n == "" {
				continue
			}
			if strings.Contains(n, " ") {
				t.phrases = append(t.phrases, categoryPhrase{phrase: n, category: cat})
				continue
			}
			t.byKeyword[n] = cat
		}
	}
	return t
}

// InferCategory returns the category of the first keyword found in the
// utterance, or "" when none matches.
func (t *CategoryTable) InferCategory(utterance string) string {
	norm := Normalize(utterance)
	if norm == "" {
		return ""
	}

	padded := " " + norm + " "
	best, bestAt := "", len(padded)
	for _, p := range t.phrases {
		if i := strings.Index(padded, " "+p.phrase+" "); i >= 0 && i < bestAt {
			best, bestAt = p.category, i
		}
	}

	offset := 0
	for _, tok := range strings.Fields(norm) {
		if offset >= bestAt {
			break
		}
		if cat, ok := t.byKeyword[tok]; ok {
			return cat
		}
		offset += len(tok) + 1
	}
	return best
}

// SameCategory compares two category labels after normalization.
func SameCategory(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// DefaultCategories is the keyword table for the marketplace catalog.
func DefaultCategories() *CategoryTable {
	return NewCategoryTable(map[string][]string{
		"celulares":        {"celular", "celulares", "smartphone", "iphone", "samsung", "galaxy", "xiaomi", "motorola", "redmi"},
		"informatica":      {"notebook", "laptop", "computador", "monitor", "teclado", "mouse", "impressora", "tablet", "ipad"},
		"drones":           {"drone", "drones", "quadricoptero", "dji"},
		"cameras":          {"camera", "cameras", "gopro", "filmadora"},
		"audio":            {"fone", "fones", "headset", "headphone", "caixa de som", "soundbar"},
		"tv":               {"tv", "televisao", "smart tv", "televisor"},
		"games":            {"playstation", "ps5", "xbox", "nintendo", "console", "videogame"},
		"eletrodomesticos": {"geladeira", "fogao", "cafeteira", "liquidificador", "microondas", "air fryer"},
		"esporte":          {"bicicleta", "bike", "tenis", "esteira"},
		"acessorios":       {"relogio", "smartwatch", "mochila", "perfume"},
		"moveis":           {"cadeira", "mesa", "sofa"},
	})
}
