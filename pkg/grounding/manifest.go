// Package grounding builds the per-turn manifest of retrieved products and
// enforces that generated answers only cite entries from it.
package grounding

import (
	"encoding/json"
	"strings"

	"github.com/vitrine/vitrine/pkg/catalog"
)

// MaxManifestEntries caps the manifest handed to generation.
const MaxManifestEntries = 8

// Entry is one product the generator may cite.
type Entry struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Store string  `json:"store"`
	Price float64 `json:"price"`
	Image string  `json:"image,omitempty"`
	Link  string  `json:"link,omitempty"`
}

// Manifest is the allow-list for one turn. The zero value is an empty manifest.
type Manifest struct {
	entries []Entry
	index   map[string]int
}

// NewManifest keeps the first max valid candidates with distinct ids.
// max <= 0 or above MaxManifestEntries selects MaxManifestEntries.
func NewManifest(candidates []catalog.Candidate, max int) Manifest {
	if max <= 0 || max > MaxManifestEntries {
		max = MaxManifestEntries
	}
	m := Manifest{index: make(map[string]int, max)}
	for _, c := range candidates {
		if len(m.entries) == max {
			break
		}
		if !c.Valid() {
			continue
		}
		id := strings.TrimSpace(c.ID)
		if _, dup := m.index[id]; dup {
			continue
		}
		m.index[id] = len(m.entries)
		m.entries = append(m.entries, Entry{
			ID:    id,
			Title: strings.TrimSpace(c.Title),
			Store: storeLabel(c),
			Price: c.Price,
			Image: c.ImageURL,
			Link:  c.URL,
		})
	}
	return m
}

func storeLabel(c catalog.Candidate) string {
	if s := strings.TrimSpace(c.Store); s != "" {
		return s
	}
	return strings.TrimSpace(c.StoreSlug)
}

// Len returns the number of entries.
func (m Manifest) Len() int { return len(m.entries) }

// Empty reports whether the manifest has no entries.
func (m Manifest) Empty() bool { return len(m.entries) == 0 }

// Entries returns a copy of the entries in rank order.
func (m Manifest) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// IDs returns the entry ids in rank order.
func (m Manifest) IDs() []string {
	ids := make([]string, len(m.entries))
	for i, e := range m.entries {
		ids[i] = e.ID
	}
	return ids
}

// Lookup returns the entry for id.
func (m Manifest) Lookup(id string) (Entry, bool) {
	i, ok := m.index[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

// Contains reports whether id is in the manifest.
func (m Manifest) Contains(id string) bool {
	_, ok := m.Lookup(id)
	return ok
}

// MarshalJSON encodes the manifest as its entry list.
func (m Manifest) MarshalJSON() ([]byte, error) {
	if m.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.entries)
}
