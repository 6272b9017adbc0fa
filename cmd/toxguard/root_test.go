package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "toxguard" {
			t.Errorf("expected use 'toxguard', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions and version", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has persistent flags", func(t *testing.T) {
		t.Parallel()
		verbose := cmd.PersistentFlags().Lookup("verbose")
		if verbose == nil {
			t.Fatal("expected verbose flag")
		}
		if verbose.Shorthand != "v" || verbose.DefValue != "false" {
			t.Errorf("unexpected verbose flag: -%s default %s", verbose.Shorthand, verbose.DefValue)
		}
		for _, name := range []string{"log-json", "config", "data-dir"} {
			if cmd.PersistentFlags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		names := map[string]bool{}
		for _, sub := range cmd.Commands() {
			names[sub.Name()] = true
		}
		for _, want := range []string{"scan", "serve", "popup", "settings", "init", "version"} {
			if !names[want] {
				t.Errorf("expected %s subcommand", want)
			}
		}
	})
}

func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("reads the inherited flag", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		cmd, _, err := root.Find([]string{"version"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cmd.ParseFlags([]string{"-v"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !getVerboseFlag(cmd) {
			t.Error("expected verbose to be true")
		}
	})

	t.Run("is false without the flag", func(t *testing.T) {
		t.Parallel()
		if getVerboseFlag(NewVersionCmd()) {
			t.Error("expected verbose to be false")
		}
	})
}

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	t.Run("writes JSON logs with --log-json", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		cmd, _, err := root.Find([]string{"version"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := cmd.ParseFlags([]string{"--log-json"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var buf bytes.Buffer
		logger := setupLogger(cmd, &buf)
		logger.Warn("hello", "api_token", "abc")

		out := buf.String()
		if !strings.HasPrefix(out, "{") {
			t.Errorf("expected JSON output, got %q", out)
		}
		if strings.Contains(out, "abc") {
			t.Errorf("expected the token to be redacted, got %q", out)
		}
	})
}

func TestSignalContext(t *testing.T) {
	t.Parallel()

	t.Run("is cancelled with its parent", func(t *testing.T) {
		t.Parallel()
		parent, cancelParent := context.WithCancel(context.Background())
		ctx, cancel := signalContext(parent, discardLogger())
		defer cancel()

		cancelParent()
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("expected the context to be cancelled")
		}
	})
}
