package cachestore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStorage(t *testing.T) {
	testStorageContract(t, func(t *testing.T) Storage {
		s, err := OpenSQLiteStorage(filepath.Join(t.TempDir(), "shell.sqlite"))
		if err != nil {
			t.Fatalf("OpenSQLiteStorage failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStorage_EmptyStore(t *testing.T) {
	s, err := OpenSQLiteStorage(filepath.Join(t.TempDir(), "shell.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLiteStorage failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Populate(ctx, "empty", nil); err != nil {
		t.Fatalf("Populate with no entries failed: %v", err)
	}
	ok, err := s.Has(ctx, "empty")
	if err != nil || !ok {
		t.Errorf("Has(empty) = %v, %v; want true", ok, err)
	}
}
