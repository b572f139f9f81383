package cachestore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// testStorageContract runs the behaviour every Storage backend must share.
func testStorageContract(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Helper()

	t.Run("populate_and_match", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		root := testEntry("/", "<html>shell</html>")
		css := testEntry("/styles.css", "body{}")
		if err := s.Populate(ctx, "fairway-shell-v1", []*Entry{root, css}); err != nil {
			t.Fatalf("Populate failed: %v", err)
		}

		got, err := s.Match(ctx, "fairway-shell-v1", root.Key())
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if string(got.Data) != "<html>shell</html>" {
			t.Errorf("Data = %q", got.Data)
		}
		if got.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d", got.StatusCode)
		}
		if got.Headers.Get("Content-Type") != "text/html" {
			t.Errorf("Content-Type = %q", got.Headers.Get("Content-Type"))
		}

		ok, err := s.Has(ctx, "fairway-shell-v1")
		if err != nil || !ok {
			t.Errorf("Has() = %v, %v; want true", ok, err)
		}
	})

	t.Run("match_miss", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		if _, err := s.Match(ctx, "missing", Key("GET", "https://fairway.example/")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Match on missing store = %v, want ErrNotFound", err)
		}

		if err := s.Populate(ctx, "fairway-shell-v1", []*Entry{testEntry("/", "x")}); err != nil {
			t.Fatalf("Populate failed: %v", err)
		}
		if _, err := s.Match(ctx, "fairway-shell-v1", Key("GET", "https://fairway.example/nope.js")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Match on missing key = %v, want ErrNotFound", err)
		}
	})

	t.Run("populate_replaces", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		if err := s.Populate(ctx, "fairway-shell-v1", []*Entry{testEntry("/old.js", "old")}); err != nil {
			t.Fatalf("Populate failed: %v", err)
		}
		if err := s.Populate(ctx, "fairway-shell-v1", []*Entry{testEntry("/new.js", "new")}); err != nil {
			t.Fatalf("second Populate failed: %v", err)
		}

		if _, err := s.Match(ctx, "fairway-shell-v1", testEntry("/old.js", "").Key()); !errors.Is(err, ErrNotFound) {
			t.Errorf("old entry survived re-populate: %v", err)
		}
		if _, err := s.Match(ctx, "fairway-shell-v1", testEntry("/new.js", "").Key()); err != nil {
			t.Errorf("new entry missing: %v", err)
		}
	})

	t.Run("populate_nil_entry_writes_nothing", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		err := s.Populate(ctx, "fairway-shell-v2", []*Entry{testEntry("/", "x"), nil})
		if err == nil {
			t.Fatal("Populate with nil entry should fail")
		}

		ok, err := s.Has(ctx, "fairway-shell-v2")
		if err != nil {
			t.Fatalf("Has failed: %v", err)
		}
		if ok {
			t.Error("failed Populate must not create the store")
		}
	})

	t.Run("populate_empty_name", func(t *testing.T) {
		s := newStorage(t)
		if err := s.Populate(context.Background(), "", nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Populate(\"\") = %v, want ErrInvalidName", err)
		}
	})

	t.Run("names_and_delete", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		for _, name := range []string{"fairway-shell-v2", "fairway-shell-v1", "other"} {
			if err := s.Populate(ctx, name, []*Entry{testEntry("/", name)}); err != nil {
				t.Fatalf("Populate(%s) failed: %v", name, err)
			}
		}

		names, err := s.Names(ctx)
		if err != nil {
			t.Fatalf("Names failed: %v", err)
		}
		want := []string{"fairway-shell-v1", "fairway-shell-v2", "other"}
		if len(names) != len(want) {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
			}
		}

		existed, err := s.Delete(ctx, "fairway-shell-v1")
		if err != nil || !existed {
			t.Errorf("Delete() = %v, %v; want true", existed, err)
		}
		existed, err = s.Delete(ctx, "fairway-shell-v1")
		if err != nil || existed {
			t.Errorf("second Delete() = %v, %v; want false", existed, err)
		}

		if _, err := s.Match(ctx, "fairway-shell-v1", testEntry("/", "").Key()); !errors.Is(err, ErrNotFound) {
			t.Errorf("Match after Delete = %v, want ErrNotFound", err)
		}

		names, _ = s.Names(ctx)
		if len(names) != 2 {
			t.Errorf("Names() after Delete = %v", names)
		}
	})
}

func testEntry(path, body string) *Entry {
	return &Entry{
		Method:     http.MethodGet,
		URL:        "https://fairway.example" + path,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Data:       []byte(body),
		CachedAt:   time.Now(),
	}
}
