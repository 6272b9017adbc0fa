package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/toxguard/internal/config"
	toxlog "github.com/nao1215/toxguard/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for toxguard.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toxguard",
		Short: "Find and cloak toxic text in web pages",
		Long: `toxguard scans web pages for toxic text and cloaks every fragment that
scores at or above the threshold behind a banner, one click away from being
revealed.

Pages can be scanned once with "toxguard scan", or kept open by
"toxguard serve" and driven from "toxguard popup".`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .toxguard in current or home directory)")
	cmd.PersistentFlags().String("data-dir", config.XDGDataDir(),
		"Directory of the settings database")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewPopupCmd())
	cmd.AddCommand(NewSettingsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the secure logger of a command and installs it as
// the slog default.
func setupLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	jsonLogs, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		jsonLogs = false
	}
	logger := toxlog.New(w, toxlog.Options{Verbose: getVerboseFlag(cmd), JSON: jsonLogs})
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
