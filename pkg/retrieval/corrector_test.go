package retrieval

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testVocabulary = []string{"iphone", "samsung", "drone", "notebook", "camera", "fone", "televisão"}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"iphoen", "iphone", 1},
		{"abc", "abd", 0.5},
		{"xyz", "abc", 0},
		{"", "", 1},
		{"notbook", "notebook", 5.0 / 6.0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCorrector_CorrectToken(t *testing.T) {
	c := NewCorrector(testVocabulary, 0)

	tests := []struct {
		token   string
		want    string
		changed bool
	}{
		{"iphoen", "iphone", true},
		{"samsumg", "samsung", true},
		{"dorne", "drone", true},
		{"notbook", "notebook", true},
		{"televisao", "", false}, // already known after folding
		{"xyzzy", "", false},
		{"tv", "", false}, // too short
		{"iphone", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := c.CorrectToken(tt.token)
			if ok != tt.changed || got != tt.want {
				t.Errorf("CorrectToken(%q) = (%q, %v), want (%q, %v)", tt.token, got, ok, tt.want, tt.changed)
			}
		})
	}
}

func TestCorrector_Threshold(t *testing.T) {
	// "abd" vs "abc" scores 0.5.
	strict := NewCorrector([]string{"abc"}, 0.72)
	if _, ok := strict.CorrectToken("abd"); ok {
		t.Error("below-threshold token must be left unchanged")
	}

	loose := NewCorrector([]string{"abc"}, 0.5)
	if got, ok := loose.CorrectToken("abd"); !ok || got != "abc" {
		t.Errorf("at-threshold token must be replaced, got (%q, %v)", got, ok)
	}

	if NewCorrector(nil, 0).Threshold() != DefaultCorrectionThreshold {
		t.Error("zero threshold must select the default")
	}
	if NewCorrector(nil, 3).Threshold() != DefaultCorrectionThreshold {
		t.Error("threshold above 1 must select the default")
	}
}

func TestCorrector_Correct(t *testing.T) {
	c := NewCorrector(testVocabulary, DefaultCorrectionThreshold)

	if got := c.Correct("Iphoen 128gb"); got != "iphone 128gb" {
		t.Errorf("Correct() = %q", got)
	}
	if got := c.Correct("xyzzy"); got != "xyzzy" {
		t.Errorf("Correct() = %q, want unchanged", got)
	}
}

func TestCorrector_ShortTokensAreNeverReplaced(t *testing.T) {
	// "vt" and "tv" share every character, so only the length floor keeps it.
	c := NewCorrector([]string{"tv", "gb", "drone"}, 0.5)

	for _, tok := range []string{"vt", "bg", "a", "dr"} {
		if got, ok := c.CorrectToken(tok); ok {
			t.Errorf("CorrectToken(%q) = %q, want unchanged", tok, got)
		}
	}
	if got := c.Correct("vt bg dorne"); got != "vt bg drone" {
		t.Errorf("Correct() = %q", got)
	}
}

func TestCorrector_TieBreaksOnLength(t *testing.T) {
	c := NewCorrector([]string{"abcdd", "abcd"}, 0.5)
	got, ok := c.CorrectToken("abdc")
	if !ok {
		t.Fatal("expected a correction")
	}
	// Both share the same character set; "abcd" is closer in length.
	if got != "abcd" {
		t.Errorf("got %q, want abcd", got)
	}
}

func TestCorrector_Update(t *testing.T) {
	c := NewCorrector([]string{"drone"}, 0.72)
	c.Update([]string{"Câmera", "camera", "caixa de som", ""}, 0.8)

	if diff := cmp.Diff([]string{"camera"}, c.Vocabulary()); diff != "" {
		t.Errorf("vocabulary mismatch (-want +got):\n%s", diff)
	}
	if c.Threshold() != 0.8 {
		t.Errorf("threshold = %v", c.Threshold())
	}
	if _, ok := c.CorrectToken("dorne"); ok {
		t.Error("old vocabulary must be gone after Update")
	}
}
