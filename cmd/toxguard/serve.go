package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/toxguard/internal/config"
	"github.com/nao1215/toxguard/internal/fetch"
	"github.com/nao1215/toxguard/internal/settings"
	"github.com/nao1215/toxguard/internal/transport"
	"github.com/spf13/cobra"
)

// Paths served by `toxguard serve`.
const (
	websocketPath = "/ws"
	tabsPath      = "/tabs"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [url|file]...",
		Short: "Keep pages open and serve popups",
		Long: `Serve runs a long-lived host. Pages are opened in tabs, scanned
automatically on load and rescanned when they change.

Popups connect over a websocket at ` + websocketPath + `; scripts drive the tabs
through the JSON API at ` + tabsPath + `. The configuration file is watched and a
changed threshold or keyword list takes effect without a restart. SIGHUP
reloads the settings saved with "toxguard settings set".

Examples:
  # Serve on the default address and open a page
  toxguard serve https://example.com/thread/42

  # Open another page from a script
  curl -X POST -d '{"url":"https://example.com"}' http://127.0.0.1:7878/tabs

  # Connect a popup
  toxguard popup`,
		Args: cobra.ArbitraryArgs,
		RunE: runServeCmd,
	}

	addClassifierFlags(cmd)
	addLoaderFlags(cmd)
	cmd.Flags().StringP("listen", "l", config.DefaultListenAddress,
		"Address to listen on")

	return cmd
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(cmd, cmd.ErrOrStderr())
	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	cfg, err := buildConfig(ctx, cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (popup: ws://%s%s)\n",
		ln.Addr(), ln.Addr(), websocketPath)
	return serve(ctx, cfg, ln, logger, nil)
}

// serve runs the host on ln until ctx is cancelled. loader replaces the
// configured loaders when not nil.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener, logger *slog.Logger, loader fetch.Loader) error {
	s, err := openStack(ctx, cfg, logger, loader)
	if err != nil {
		_ = ln.Close() //nolint:errcheck // already failing
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			logger.Error("failed to shut down", "error", err)
		}
	}()

	if cfg.ConfigFilePath != "" {
		w, err := config.NewWatcher(cfg.ConfigFilePath,
			config.LiveUpdate(s.classifier, logger),
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := w.Stop(); err != nil {
				logger.Debug("failed to stop configuration watcher", "error", err)
			}
		}()
	}

	stopReload := reloadSettingsOnHangup(ctx, cfg.DataDir, s, logger)
	defer stopReload()

	for _, target := range cfg.Targets {
		if _, err := s.host.OpenTab(ctx, normalizeTarget(target)); err != nil {
			logger.Warn("failed to load page", "url", target, "error", err)
		}
	}

	ws := transport.NewServer(s.bus, transport.WithServerLogger(logger))
	defer ws.Close()

	mux := http.NewServeMux()
	mux.Handle(websocketPath, ws)
	api := newTabAPI(s.host, logger)
	mux.Handle(tabsPath, api)
	mux.Handle(tabsPath+"/", api)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("serving", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// websocket connections are hijacked, Shutdown does not wait for them
	ws.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// reloadSettingsOnHangup applies the stored settings to the running
// classifier on every SIGHUP.
func reloadSettingsOnHangup(ctx context.Context, dataDir string, s *stack, logger *slog.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-sigCh:
				if err := reloadSettings(ctx, dataDir, s); err != nil {
					logger.Warn("failed to reload settings", "error", err)
					continue
				}
				logger.Info("settings reloaded", "threshold", s.classifier.Threshold())
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(stopCh)
		<-done
	}
}

func reloadSettings(ctx context.Context, dataDir string, s *stack) error {
	store, err := settings.Open(dataDir, settings.Options{})
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Apply(ctx, s.classifier)
}
