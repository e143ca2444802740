package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("PutGet", s.TestPutGet)
	t.Run("Replace", s.TestReplace)
	t.Run("NotFound", s.TestNotFound)
	t.Run("InvalidRecord", s.TestInvalidRecord)
	t.Run("ListOrderAndPagination", s.TestListOrderAndPagination)
	t.Run("ConcurrentSessions", s.TestConcurrentSessions)
	t.Run("Ping", s.TestPing)
}

func record(id string, payload string, at time.Time) *Record {
	return &Record{SessionID: id, Data: json.RawMessage(payload), UpdatedAt: at}
}

// TestPutGet tests a basic round trip.
func (s *StorageTestSuite) TestPutGet(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.Put(ctx, record("sess-1", `{"messages":[{"role":"user","content":"oi"}]}`, at)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("expected session id sess-1, got %s", got.SessionID)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("expected updated_at %v, got %v", at, got.UpdatedAt)
	}

	var decoded map[string]any
	if err := json.Unmarshal(got.Data, &decoded); err != nil {
		t.Fatalf("stored data is not JSON: %v", err)
	}
	if _, ok := decoded["messages"]; !ok {
		t.Errorf("expected messages key in %s", string(got.Data))
	}
}

// TestReplace verifies Put overwrites instead of merging.
func (s *StorageTestSuite) TestReplace(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.Put(ctx, record("sess-1", `{"a":1}`, now)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, record("sess-1", `{"b":2}`, now.Add(time.Second))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(got.Data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["a"]; ok {
		t.Errorf("expected record to be replaced, got %s", string(got.Data))
	}

	_, total, err := store.List(ctx, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 session, got %d", total)
	}
}

// TestNotFound verifies the typed error for unknown sessions.
func (s *StorageTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.SessionID != "missing" {
		t.Errorf("expected session id 'missing', got %s", nf.SessionID)
	}
}

// TestInvalidRecord verifies validation happens before any write.
func (s *StorageTestSuite) TestInvalidRecord(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	var inv *InvalidRecordError
	if err := store.Put(ctx, record("", `{}`, time.Now())); !errors.As(err, &inv) {
		t.Errorf("expected InvalidRecordError for empty id, got %v", err)
	}
	if err := store.Put(ctx, record("sess-x", `{broken`, time.Now())); !errors.As(err, &inv) {
		t.Errorf("expected InvalidRecordError for bad JSON, got %v", err)
	}
	if _, err := store.Get(ctx, "sess-x"); err == nil {
		t.Error("invalid record must not be stored")
	}
}

// TestListOrderAndPagination checks most-recent-first ordering and paging.
func (s *StorageTestSuite) TestListOrderAndPagination(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("sess-%d", i)
		if err := store.Put(ctx, record(id, `{}`, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}

	ids, total, err := store.List(ctx, &ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(ids) != 2 || ids[0] != "sess-4" || ids[1] != "sess-3" {
		t.Errorf("unexpected first page %v", ids)
	}

	ids, _, err = store.List(ctx, &ListFilter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sess-0" {
		t.Errorf("unexpected last page %v", ids)
	}

	ids, _, err = store.List(ctx, &ListFilter{Offset: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty page past the end, got %v", ids)
	}
}

// TestConcurrentSessions writes many sessions in parallel.
func (s *StorageTestSuite) TestConcurrentSessions(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", i)
			if err := store.Put(ctx, record(id, fmt.Sprintf(`{"n":%d}`, i), time.Now())); err != nil {
				errs <- err
				return
			}
			if _, err := store.Get(ctx, id); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	_, total, err := store.List(ctx, &ListFilter{Limit: 100})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != n {
		t.Errorf("expected %d sessions, got %d", n, total)
	}
}

// TestPing checks the health probe.
func (s *StorageTestSuite) TestPing(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
