package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/toxguard/internal/settings"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestSettingsCmd(t *testing.T) {
	t.Parallel()

	t.Run("get reports an empty store", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		out, err := execute(t, nil, "settings", "get", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No settings saved.") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("set threshold is listed by get", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		out, err := execute(t, nil, "settings", "set", "threshold", "0.3", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Threshold saved: 0.30") {
			t.Errorf("unexpected output: %q", out)
		}

		out, err = execute(t, nil, "settings", "get", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "KEY") || !strings.Contains(out, settings.KeyThreshold) || !strings.Contains(out, "0.3") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("set threshold rejects values outside the range", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		if _, err := execute(t, nil, "settings", "set", "threshold", "1.5", "--data-dir", dir); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("set threshold stores the default for text", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		out, err := execute(t, nil, "settings", "set", "threshold", "high", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Threshold saved: 0.50") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("set keywords reads arguments", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		out, err := execute(t, nil, "settings", "set", "keywords", "idiot", " shut up ", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "2 keyword(s) saved") {
			t.Errorf("unexpected output: %q", out)
		}
		assertKeywords(t, dir, []string{"idiot", "shut up"})
	})

	t.Run("set keywords reads standard input", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		stdin := strings.NewReader("idiot\r\n\n  moron  \nhate you\n")
		if _, err := execute(t, stdin, "settings", "set", "keywords", "--data-dir", dir); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertKeywords(t, dir, []string{"idiot", "moron", "hate you"})
	})

	t.Run("clear removes every setting", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		if _, err := execute(t, nil, "settings", "set", "threshold", "0.7", "--data-dir", dir); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, err := execute(t, nil, "settings", "clear", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Settings cleared.") {
			t.Errorf("unexpected output: %q", out)
		}
		out, err = execute(t, nil, "settings", "get", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No settings saved.") {
			t.Errorf("unexpected output: %q", out)
		}
	})
}

func assertKeywords(t *testing.T, dir string, want []string) {
	t.Helper()
	store, err := settings.Open(dir, settings.Options{})
	if err != nil {
		t.Fatalf("failed to open settings: %v", err)
	}
	defer store.Close()

	got, err := store.Keywords(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}
