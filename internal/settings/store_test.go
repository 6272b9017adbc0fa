package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/toxguard/internal/model"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates the database in a new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "nested", "settings")
		s, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if s.Path() != filepath.Join(dir, FileName) {
			t.Errorf("unexpected path %q", s.Path())
		}
	})

	t.Run("fails without CreateIfNotExists when the database is missing", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		s, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		if err := s.Set(context.Background(), "k", "v"); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		_ = s.Close()

		s, err = Open(dir, Options{EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen store: %v", err)
		}
		defer s.Close()
		got, ok, err := s.Get(context.Background(), "k")
		if err != nil || !ok || got != `"v"` {
			t.Errorf("Get() = %q, %v, %v", got, ok, err)
		}
	})
}

func TestStoreThreshold(t *testing.T) {
	t.Parallel()

	t.Run("defaults when unset", func(t *testing.T) {
		t.Parallel()

		got, err := setupStore(t).Threshold(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != model.DefaultThreshold {
			t.Errorf("expected %v, got %v", model.DefaultThreshold, got)
		}
	})

	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "stores a number", input: "0.8", want: 0.8},
		{name: "trims whitespace", input: " 0.25 ", want: 0.25},
		{name: "falls back on text", input: "high", want: model.DefaultThreshold},
		{name: "falls back on NaN", input: "NaN", want: model.DefaultThreshold},
		{name: "falls back on empty input", input: "", want: model.DefaultThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setupStore(t)
			ctx := context.Background()
			saved, err := s.SetThreshold(ctx, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := s.Threshold(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if saved != tt.want || got != tt.want {
				t.Errorf("saved %v, read %v, want %v", saved, got, tt.want)
			}
		})
	}

	t.Run("rejects numbers out of range", func(t *testing.T) {
		t.Parallel()

		s := setupStore(t)
		if _, err := s.SetThreshold(context.Background(), "1.5"); !errors.Is(err, model.ErrInvalidThreshold) {
			t.Errorf("expected ErrInvalidThreshold, got %v", err)
		}
		if _, ok, _ := s.Get(context.Background(), KeyThreshold); ok {
			t.Error("expected nothing to be stored")
		}
	})

	t.Run("reports corrupt values", func(t *testing.T) {
		t.Parallel()

		s := setupStore(t)
		if err := s.Set(context.Background(), KeyThreshold, "not a number"); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if _, err := s.Threshold(context.Background()); !errors.Is(err, ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})
}

func TestStoreKeywords(t *testing.T) {
	t.Parallel()

	t.Run("stores trimmed non-empty lines", func(t *testing.T) {
		t.Parallel()

		s := setupStore(t)
		ctx := context.Background()
		if _, err := s.SetKeywords(ctx, "  idiot \r\n\n moron\n   \nloser"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := s.Keywords(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"idiot", "moron", "loser"}, got); diff != "" {
			t.Errorf("keywords mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("returns nil when unset", func(t *testing.T) {
		t.Parallel()

		got, err := setupStore(t).Keywords(context.Background())
		if err != nil || got != nil {
			t.Errorf("Keywords() = %v, %v", got, err)
		}
	})
}

func TestStoreClear(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()
	if _, err := s.SetThreshold(ctx, "0.7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.SetKeywords(ctx, "a\nb"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
		if e.UpdatedAt.IsZero() {
			t.Errorf("expected %s to have an update time", e.Key)
		}
	}
	if diff := cmp.Diff([]string{KeyKeywordList, KeyThreshold}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err = s.List(ctx)
	if err != nil || len(entries) != 0 {
		t.Errorf("expected no settings, got %v (err %v)", entries, err)
	}
	if got, _ := s.Threshold(ctx); got != model.DefaultThreshold {
		t.Errorf("expected default threshold after clear, got %v", got)
	}
}

type fakeTarget struct {
	threshold float64
	words     []string
	setWords  bool
}

func (f *fakeTarget) SetThreshold(t float64) error {
	f.threshold = t
	return nil
}

func (f *fakeTarget) SetKeywords(words []string) bool {
	f.words = words
	f.setWords = true
	return true
}

func TestStoreApply(t *testing.T) {
	t.Parallel()

	t.Run("pushes stored values", func(t *testing.T) {
		t.Parallel()

		s := setupStore(t)
		ctx := context.Background()
		if _, err := s.SetThreshold(ctx, "0.9"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.SetKeywords(ctx, "jerk"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		target := &fakeTarget{}
		if err := s.Apply(ctx, target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if target.threshold != 0.9 || !cmp.Equal(target.words, []string{"jerk"}) {
			t.Errorf("unexpected target: %+v", target)
		}
	})

	t.Run("keeps keywords when none are stored", func(t *testing.T) {
		t.Parallel()

		target := &fakeTarget{}
		if err := setupStore(t).Apply(context.Background(), target); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if target.setWords || target.threshold != model.DefaultThreshold {
			t.Errorf("unexpected target: %+v", target)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	if parseTimestamp("2026-01-02 03:04:05").IsZero() {
		t.Error("expected the SQLite format to parse")
	}
	if !parseTimestamp("yesterday").IsZero() {
		t.Error("expected unknown formats to yield the zero time")
	}
}
