package ranking

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/catalog/catalogtest"
)

func ids(cs []catalog.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func interleave(lists ...[]catalog.Candidate) []catalog.Candidate {
	var out []catalog.Candidate
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func TestRank_SingleStoreUncapped(t *testing.T) {
	in := catalogtest.Products("a", "loja-a", 10)
	got := New().Rank(in)

	if len(got.Window) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(got.Window))
	}
	if got.Stores != 1 || got.PerStoreCap != 8 || got.Backfilled != 0 {
		t.Errorf("unexpected stats: stores=%d cap=%d backfilled=%d", got.Stores, got.PerStoreCap, got.Backfilled)
	}
	if diff := cmp.Diff([]string{"a-1", "a-2", "a-3"}, ids(got.Top)); diff != "" {
		t.Errorf("top mismatch (-want +got):\n%s", diff)
	}
	if len(got.All) != 10 {
		t.Errorf("expected all 10, got %d", len(got.All))
	}
}

func TestRank_DiversityCap(t *testing.T) {
	in := interleave(
		catalogtest.Products("a", "loja-a", 5),
		catalogtest.Products("b", "loja-b", 5),
		catalogtest.Products("c", "loja-c", 5),
		catalogtest.Products("d", "loja-d", 5),
	)
	got := New().Rank(in)

	want := []string{"a-1", "a-2", "b-1", "b-2", "c-1", "c-2", "d-1", "d-2"}
	if diff := cmp.Diff(want, ids(got.Window)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	if got.Backfilled != 0 {
		t.Errorf("expected no backfill, got %d", got.Backfilled)
	}
}

func TestRank_BackfillWhenCapLeavesGaps(t *testing.T) {
	in := interleave(
		catalogtest.Products("a", "loja-a", 6),
		catalogtest.Products("b", "loja-b", 1),
	)
	got := New().Rank(in)

	// a-1, a-2, b-1 pass the cap; a-3..a-6 backfill in order.
	want := []string{"a-1", "a-2", "b-1", "a-3", "a-4", "a-5", "a-6"}
	if diff := cmp.Diff(want, ids(got.Window)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	if got.Backfilled != 4 {
		t.Errorf("expected 4 backfilled, got %d", got.Backfilled)
	}
}

func TestRank_StoreKeyUsesSlug(t *testing.T) {
	a := catalogtest.Product("x-1", "Loja A")
	b := catalogtest.Product("x-2", "loja a")
	c := catalogtest.Product("x-3", "Outra")
	c.StoreSlug = "loja a"
	got := New().Rank([]catalog.Candidate{a, b, c})
	if got.Stores != 1 {
		t.Errorf("expected store names and slugs to collapse, got %d stores", got.Stores)
	}
}

func TestRank_DropsInvalidAndDuplicates(t *testing.T) {
	in := []catalog.Candidate{
		catalogtest.Product("p-1", "loja-a"),
		{ID: "bad", Title: "sem loja"},
		catalogtest.Product("p-1", "loja-b"),
		catalogtest.Product("p-2", "loja-b"),
	}
	got := New().Rank(in)
	if diff := cmp.Diff([]string{"p-1", "p-2"}, ids(got.All)); diff != "" {
		t.Errorf("all mismatch (-want +got):\n%s", diff)
	}
}

func TestRank_Empty(t *testing.T) {
	got := New().Rank(nil)
	if len(got.Window) != 0 || len(got.Top) != 0 || len(got.All) != 0 {
		t.Errorf("expected empty ranking, got %+v", got)
	}
}

func TestRank_Options(t *testing.T) {
	r := New(WithTopN(4), WithTopK(6), WithPerStoreCap(1))
	if r.TopN() != 4 {
		t.Errorf("TopN = %d", r.TopN())
	}
	got := r.Rank(interleave(catalogtest.Products("a", "loja-a", 3), catalogtest.Products("b", "loja-b", 3)))
	if diff := cmp.Diff([]string{"a-1", "b-1", "a-2", "a-3"}, ids(got.Window)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	if len(got.Top) != 4 {
		t.Errorf("top must be clamped to the window, got %d", len(got.Top))
	}
}

// For random inputs with two or more stores, no store exceeds the cap in the
// window unless backfill happened.
func TestRank_DiversityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := New()
	for iter := 0; iter < 500; iter++ {
		n := rng.Intn(20)
		stores := 1 + rng.Intn(5)
		in := make([]catalog.Candidate, 0, n)
		for i := 0; i < n; i++ {
			in = append(in, catalogtest.Product(fmt.Sprintf("p-%d", i), fmt.Sprintf("loja-%d", rng.Intn(stores))))
		}
		got := r.Rank(in)

		wantLen := min(8, len(got.All))
		if len(got.Window) != wantLen {
			t.Fatalf("iter %d: window has %d entries, want %d", iter, len(got.Window), wantLen)
		}
		if got.Stores < 2 || got.Backfilled > 0 {
			continue
		}
		counts := map[string]int{}
		for _, c := range got.Window {
			counts[c.StoreKey()]++
			if counts[c.StoreKey()] > 2 {
				t.Fatalf("iter %d: store %s has %d entries without backfill", iter, c.StoreKey(), counts[c.StoreKey()])
			}
		}
	}
}

func TestMerge_FreshFirstDedupByID(t *testing.T) {
	fresh := []catalog.Candidate{catalogtest.Product("f-1", "loja-a"), catalogtest.Product("s-2", "loja-a")}
	seed := []catalog.Candidate{catalogtest.Product("s-1", "loja-b"), catalogtest.Product("s-2", "loja-b")}

	got := Merge(fresh, seed)
	if diff := cmp.Diff([]string{"f-1", "s-2", "s-1"}, ids(got)); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
	if got[1].Store != "loja-a" {
		t.Error("fresh entry must win over the seed copy")
	}
}
