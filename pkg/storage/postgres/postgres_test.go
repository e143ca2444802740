package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/vitrine/vitrine/pkg/storage"
)

// TestPostgresStorageSuite runs against a real database when
// VITRINE_TEST_POSTGRES_DSN is set. Each run starts from an empty table.
func TestPostgresStorageSuite(t *testing.T) {
	dsn := os.Getenv("VITRINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VITRINE_TEST_POSTGRES_DSN not set")
	}

	suite := &storage.StorageTestSuite{
		NewStorage: func(t *testing.T) storage.Storage {
			ctx := context.Background()
			s, err := New(ctx, dsn)
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			if _, err := s.pool.Exec(ctx, `TRUNCATE vitrine_sessions`); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			return s
		},
	}
	suite.RunAllTests(t)
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://%zz")
	if err == nil {
		t.Fatal("expected error for malformed DSN")
	}
	if _, ok := err.(*storage.StorageUnavailableError); !ok {
		t.Errorf("expected StorageUnavailableError, got %T", err)
	}
}
