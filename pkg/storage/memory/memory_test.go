package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/vitrine/vitrine/pkg/storage"
)

func TestMemoryStorageSuite(t *testing.T) {
	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Storage {
			return NewMemoryStorage()
		},
	}
	suite.RunAllTests(t)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	m := NewMemoryStorage()
	ctx := context.Background()

	rec := &storage.Record{SessionID: "s", Data: json.RawMessage(`{"a":1}`), UpdatedAt: time.Now()}
	if err := m.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	rec.Data[2] = 'X'

	got, err := m.Get(ctx, "s")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != `{"a":1}` {
		t.Errorf("stored record was aliased: %s", string(got.Data))
	}

	got.Data[2] = 'Y'
	again, _ := m.Get(ctx, "s")
	if string(again.Data) != `{"a":1}` {
		t.Errorf("returned record was aliased: %s", string(again.Data))
	}
}
