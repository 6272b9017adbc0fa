package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/toxguard/internal/browser"
	"github.com/nao1215/toxguard/internal/config"
	"github.com/nao1215/toxguard/internal/fetch"
	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/page"
	"github.com/nao1215/toxguard/internal/pipeline"
	"github.com/nao1215/toxguard/internal/report"
	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url|file]...",
		Short: "Scan web pages for toxic text",
		Long: `Scan loads every target into its own tab, runs the toxicity scan on it
and reports how many fragments were cloaked.

Targets are http(s) URLs, file:// URLs or paths to saved HTML files.

Examples:
  # Scan a page and print a text report
  toxguard scan https://example.com/thread/42

  # Scan saved pages and keep the cloaked HTML
  toxguard scan --save-dir cloaked/ saved/*.html

  # Render JavaScript before scanning, with a stricter threshold
  toxguard scan --render --threshold 0.3 https://example.com

  # Use a remote classifier, failing instead of falling back to keywords
  toxguard scan -B http --endpoint http://localhost:8080/classify --fallback fail https://example.com

  # Markdown report rendered for the terminal
  toxguard scan --markdown --pretty https://example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	addClassifierFlags(cmd)
	addLoaderFlags(cmd)
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of pages scanned at once")

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().Bool("pretty", false,
		"Render the Markdown report for the terminal")
	cmd.Flags().Bool("show-matches", false,
		"List the cloaked fragments in the report (shows the toxic text)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().StringP("save-dir", "d", "",
		"Write the cloaked HTML of every page into this directory")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(cmd, cmd.ErrOrStderr())
	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	cfg, err := buildConfig(ctx, cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateScan(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	showMatches, err := cmd.Flags().GetBool("show-matches")
	if err != nil {
		return err
	}

	return runScan(ctx, cfg, scanOutput{
		progress:    cmd.OutOrStdout(),
		report:      cmd.OutOrStdout(),
		showMatches: showMatches,
	}, logger, nil)
}

// scanOutput is where a scan writes.
type scanOutput struct {
	// progress receives one line per finished page.
	progress io.Writer

	// report receives the report unless cfg.ReportFile is set.
	report io.Writer

	showMatches bool
}

// runScan scans cfg.Targets and writes the report. loader replaces the
// configured loaders when not nil.
func runScan(ctx context.Context, cfg *config.Config, out scanOutput, logger *slog.Logger, loader fetch.Loader) error {
	targets := make([]string, len(cfg.Targets))
	for i, target := range cfg.Targets {
		targets[i] = normalizeTarget(target)
	}

	logger.Info("starting scan",
		"targets", len(targets),
		"backend", cfg.Backend,
		"concurrency", cfg.Concurrency,
	)

	var hostOpts []browser.Option
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		hostOpts = append(hostOpts, browser.WithScanHook(saveCloaked(cfg.OutputDir, logger)))
	}

	s, err := openStack(ctx, cfg, logger, loader, hostOpts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			logger.Error("failed to shut down", "error", err)
		}
	}()

	startTime := time.Now()
	var mu sync.Mutex
	bp := pipeline.NewBatchProcessor(
		func(ctx context.Context, target string, _ int) *model.ScanSummary {
			return s.host.ScanOne(ctx, target)
		},
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithBatchLogger(logger),
	)
	summaries := make([]*model.ScanSummary, len(targets))
	err = bp.ProcessBatchWithCallback(ctx, targets, func(summary *model.ScanSummary, index int) {
		mu.Lock()
		defer mu.Unlock()
		summaries[index] = summary
		fmt.Fprintf(out.progress, "[%d/%d] %s: %s, %d hit(s)\n",
			index+1, len(targets), summary.URL, summary.State, summary.Hits)
	})
	if err != nil {
		return err
	}
	logger.Info("scan completed", "elapsed", time.Since(startTime).Round(time.Millisecond))

	r := report.New(getVersion(), s.classifier.Threshold(), s.classifier.Name(), summaries)
	return writeReport(cfg, r, out)
}

// normalizeTarget turns plain paths into file:// URLs so the page URL is
// scannable. URLs are returned unchanged.
func normalizeTarget(target string) string {
	if u, err := url.Parse(target); err == nil && len(u.Scheme) > 1 {
		return target
	}
	fileURL, err := fetch.FileURL(target)
	if err != nil {
		return target
	}
	return fileURL
}

// saveCloaked returns a scan hook writing the cloaked HTML of every page
// into dir.
func saveCloaked(dir string, logger *slog.Logger) browser.ScanHook {
	return func(s *model.ScanSummary, doc *page.Document) {
		path := filepath.Join(dir, outputFileName(s.URL, s.UnitID))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			logger.Error("failed to save cloaked page", "url", s.URL, "error", err)
			return
		}
		defer f.Close()
		if err := doc.Render(f); err != nil {
			logger.Error("failed to save cloaked page", "url", s.URL, "error", err)
			return
		}
		logger.Debug("cloaked page saved", "url", s.URL, "path", path)
	}
}

// outputFileName derives a file name from a page URL. The unit id keeps
// names unique when two targets map to the same name.
func outputFileName(rawURL string, unitID int) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Host + u.Path
		if u.Scheme == "file" {
			name = filepath.Base(u.Path)
		}
	}
	name = strings.Trim(name, "/")
	name = strings.TrimSuffix(name, ".html")
	name = strings.TrimSuffix(name, ".htm")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		name = "page"
	}
	return fmt.Sprintf("%s-%d.html", name, unitID)
}

// writeReport writes r in the format selected by cfg, to cfg.ReportFile
// when set and to out.report otherwise.
func writeReport(cfg *config.Config, r *report.Report, out scanOutput) error {
	output := out.report
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// reports may list toxic excerpts, keep them private
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.Pretty:
		w = report.NewPrettyWriter(output,
			report.WithMarkdownOptions(report.WithMarkdownMatches(out.showMatches)))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output, report.WithMarkdownMatches(out.showMatches))
	default:
		w = report.NewSimpleWriter(output, report.WithMatches(out.showMatches))
	}
	if _, err := w.Write(r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
