package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/toxguard/internal/cloak"
	"github.com/nao1215/toxguard/internal/config"
	"github.com/nao1215/toxguard/internal/fetch"
	"github.com/nao1215/toxguard/internal/page"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testPages = map[string]string{
	"https://example.com/thread/1": `<p>you are an idiot and everyone knows it</p>` +
		`<p>thanks for the detailed answer</p>` +
		`<p>shut up, nobody asked you</p>`,
	"https://example.com/thread/2": `<p>thanks for the detailed answer</p><p>see you next week</p>`,
}

var errPageNotFound = errors.New("page not found")

func testLoader() fetch.Loader {
	return fetch.LoaderFunc(func(_ context.Context, target string) (*page.Document, error) {
		src, ok := testPages[target]
		if !ok {
			return nil, errPageNotFound
		}
		return page.ParseString(src, target)
	})
}

func testScanConfig(t *testing.T, targets ...string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.BatchPause = 0
	cfg.Concurrency = 2
	cfg.Targets = targets
	return cfg
}

// TestNewScanCmd tests the scan command creation.
func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "scan [url|file]..." {
			t.Errorf("expected use 'scan [url|file]...', got %q", cmd.Use)
		}
	})

	t.Run("has shorthand flags", func(t *testing.T) {
		t.Parallel()
		shorthands := map[string]string{
			"backend":      "B",
			"timeout":      "t",
			"external-tor": "e",
			"tor-timeout":  "T",
			"concurrency":  "n",
			"json":         "j",
			"markdown":     "m",
			"output":       "o",
			"save-dir":     "d",
		}
		for name, short := range shorthands {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				t.Errorf("expected %s flag", name)
				continue
			}
			if flag.Shorthand != short {
				t.Errorf("expected shorthand %q for %s, got %q", short, name, flag.Shorthand)
			}
		}
	})

	t.Run("has classifier flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"threshold", "keywords", "endpoint", "model-dir", "genai-model", "fallback", "cache-size"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})
}

func TestRunScanCmdRequiresTargets(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "")
	_, err := execute(t, nil, "scan", "--config", path, "--data-dir", t.TempDir())
	if !errors.Is(err, config.ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
}

func TestRunScan(t *testing.T) {
	t.Parallel()

	t.Run("prints progress and a text report", func(t *testing.T) {
		t.Parallel()
		cfg := testScanConfig(t, "https://example.com/thread/1", "https://example.com/thread/2")

		var progress, rep bytes.Buffer
		err := runScan(context.Background(), cfg, scanOutput{progress: &progress, report: &rep}, discardLogger(), testLoader())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, want := range []string{
			"https://example.com/thread/1: done, 2 hit(s)",
			"https://example.com/thread/2: done, 0 hit(s)",
		} {
			if !strings.Contains(progress.String(), want) {
				t.Errorf("expected progress to contain %q, got %q", want, progress.String())
			}
		}
		out := rep.String()
		for _, want := range []string{"TOXGUARD REPORT", "Classifier: keyword", "2 page(s): 2 done, 0 aborted, 0 failed"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected report to contain %q, got %q", want, out)
			}
		}
		if strings.Contains(out, "idiot") {
			t.Errorf("expected no excerpts without --show-matches, got %q", out)
		}
	})

	t.Run("writes a JSON report file", func(t *testing.T) {
		t.Parallel()
		cfg := testScanConfig(t, "https://example.com/thread/1", "https://example.com/missing")
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "out", "report.json")

		var rep bytes.Buffer
		err := runScan(context.Background(), cfg, scanOutput{progress: io.Discard, report: &rep}, discardLogger(), testLoader())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rep.Len() != 0 {
			t.Errorf("expected the report in the file only, got %q", rep.String())
		}

		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		var got struct {
			Backend string `json:"backend"`
			Pages   []struct {
				URL   string `json:"url"`
				State string `json:"state"`
				Hits  int    `json:"hits"`
			} `json:"pages"`
			Totals struct {
				Pages  int `json:"pages"`
				Done   int `json:"done"`
				Failed int `json:"failed"`
				Hits   int `json:"hits"`
			} `json:"totals"`
		}
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid JSON report: %v", err)
		}
		if got.Backend != "keyword" {
			t.Errorf("expected backend keyword, got %q", got.Backend)
		}
		if got.Totals.Pages != 2 || got.Totals.Done != 1 || got.Totals.Failed != 1 || got.Totals.Hits != 2 {
			t.Errorf("unexpected totals: %+v", got.Totals)
		}
		if len(got.Pages) != 2 || got.Pages[0].URL != "https://example.com/thread/1" || got.Pages[1].State != "error" {
			t.Errorf("unexpected pages: %+v", got.Pages)
		}
	})

	t.Run("saves the cloaked HTML", func(t *testing.T) {
		t.Parallel()
		cfg := testScanConfig(t, "https://example.com/thread/1")
		cfg.OutputDir = filepath.Join(t.TempDir(), "cloaked")

		err := runScan(context.Background(), cfg, scanOutput{progress: io.Discard, report: io.Discard}, discardLogger(), testLoader())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entries, err := os.ReadDir(cfg.OutputDir)
		if err != nil {
			t.Fatalf("failed to read output dir: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected one saved page, got %d", len(entries))
		}
		html, err := os.ReadFile(filepath.Join(cfg.OutputDir, entries[0].Name()))
		if err != nil {
			t.Fatalf("failed to read saved page: %v", err)
		}
		if n := strings.Count(string(html), cloak.IDAttr); n != 2 {
			t.Errorf("expected 2 cloaked fragments, got %d", n)
		}
	})

	t.Run("lists matches with show matches", func(t *testing.T) {
		t.Parallel()
		cfg := testScanConfig(t, "https://example.com/thread/1")
		cfg.MarkdownReport = true

		var rep bytes.Buffer
		out := scanOutput{progress: io.Discard, report: &rep, showMatches: true}
		if err := runScan(context.Background(), cfg, out, discardLogger(), testLoader()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(rep.String(), "# Toxguard Report") || !strings.Contains(rep.String(), "idiot") {
			t.Errorf("expected a markdown report with excerpts, got %q", rep.String())
		}
	})

	t.Run("scans files given as paths", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "saved.html")
		if err := os.WriteFile(path, []byte(testPages["https://example.com/thread/1"]), 0o600); err != nil {
			t.Fatalf("failed to write page: %v", err)
		}
		cfg := testScanConfig(t, path)

		var progress bytes.Buffer
		loader := &fetch.Router{File: fetch.FileLoader{}}
		if err := runScan(context.Background(), cfg, scanOutput{progress: &progress, report: io.Discard}, discardLogger(), loader); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(progress.String(), "done, 2 hit(s)") {
			t.Errorf("unexpected progress: %q", progress.String())
		}
	})
}

func TestNormalizeTarget(t *testing.T) {
	t.Parallel()

	t.Run("keeps URLs", func(t *testing.T) {
		t.Parallel()
		for _, u := range []string{"https://example.com/a", "file:///tmp/a.html", "http://abc.onion/"} {
			if got := normalizeTarget(u); got != u {
				t.Errorf("normalizeTarget(%q) = %q", u, got)
			}
		}
	})

	t.Run("turns paths into file URLs", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "page.html")
		want, err := fetch.FileURL(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := normalizeTarget(path); got != want {
			t.Errorf("normalizeTarget(%q) = %q, want %q", path, got, want)
		}
	})
}

func TestOutputFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		url    string
		unitID int
		want   string
	}{
		{name: "web page", url: "https://example.com/thread/42", unitID: 3, want: "example.com_thread_42-3.html"},
		{name: "file keeps its base name", url: "file:///tmp/saved/page.html", unitID: 1, want: "page-1.html"},
		{name: "host only", url: "https://example.com/", unitID: 2, want: "example.com-2.html"},
		{name: "query characters are replaced", url: "https://example.com/a?b=c", unitID: 4, want: "example.com_a-4.html"},
		{name: "empty falls back", url: "", unitID: 5, want: "page-5.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, outputFileName(tt.url, tt.unitID)); diff != "" {
				t.Errorf("outputFileName mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
