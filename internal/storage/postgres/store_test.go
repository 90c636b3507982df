package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"sitewatch/internal/logger"
	"sitewatch/internal/storage"
)

func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SITEWATCH_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("SITEWATCH_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := "test:" + uuid.NewString()
	t.Cleanup(func() { s.Delete(ctx, key) })

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Delete(ctx, key); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on delete, got %v", err)
		}
	})

	t.Run("put get overwrite", func(t *testing.T) {
		if err := s.Put(ctx, key, []byte("v1")); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, key, []byte("v2")); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, key)
		if err != nil || string(got) != "v2" {
			t.Fatalf("Get = %q, %v", got, err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, key); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}
