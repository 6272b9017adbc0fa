package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/toxguard/internal/browser"
	"github.com/nao1215/toxguard/internal/classifier"
	"github.com/nao1215/toxguard/internal/config"
	"github.com/nao1215/toxguard/internal/executor"
	"github.com/nao1215/toxguard/internal/fetch"
	"github.com/nao1215/toxguard/internal/pipeline"
	"github.com/nao1215/toxguard/internal/transport"
)

// stack holds the components shared by scan and serve: the classifier,
// the page loaders, the bus and the host with its orchestrator.
type stack struct {
	classifier *classifier.Adapter
	bus        *transport.Bus
	host       *browser.Host
	logger     *slog.Logger

	closers []func() error
}

// openStack builds the stack described by cfg. loader replaces the
// configured loaders when not nil.
func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, loader fetch.Loader, opts ...browser.Option) (*stack, error) {
	s := &stack{logger: logger}

	copts := cfg.ClassifierOptions()
	copts.Logger = logger
	adapter, err := classifier.Open(ctx, copts)
	if err != nil {
		return nil, fmt.Errorf("failed to open classifier: %w", err)
	}
	s.classifier = adapter
	logger.Info("classifier ready", "backend", adapter.Name(), "threshold", adapter.Threshold())

	if loader == nil {
		loader, err = s.openLoaders(ctx, cfg)
		if err != nil {
			return nil, errors.Join(err, s.closeAll())
		}
	}

	s.bus = transport.NewBus(transport.WithLogger(logger))
	hostOpts := append([]browser.Option{
		browser.WithLogger(logger),
		browser.WithExecutorOptions(executor.WithEngineOptions(
			pipeline.WithBatchSize(cfg.BatchSize),
			pipeline.WithBatchPause(cfg.BatchPause),
		)),
	}, opts...)
	host, err := browser.New(s.bus, loader, adapter, hostOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to start host: %w", err), s.closeAll())
	}
	s.host = host
	return s, nil
}

// openLoaders routes files to the file loader, web pages to HTTP or a
// headless browser, and .onion pages through Tor when enabled.
func (s *stack) openLoaders(ctx context.Context, cfg *config.Config) (fetch.Loader, error) {
	httpOpts := []fetch.HTTPOption{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
	}
	router := &fetch.Router{File: fetch.FileLoader{}}

	if cfg.Render {
		rod := fetch.NewRodLoader(fetch.WithNavigationTimeout(cfg.Timeout))
		s.closers = append(s.closers, rod.Close)
		router.Web = rod
	} else {
		web, err := fetch.NewHTTPLoader(httpOpts...)
		if err != nil {
			return nil, err
		}
		router.Web = web
	}

	switch {
	case cfg.UseExternalTor:
		onion, err := fetch.NewHTTPLoader(append(httpOpts, fetch.WithSOCKS5(cfg.TorProxyAddress))...)
		if err != nil {
			return nil, err
		}
		router.Onion = onion
	case cfg.UseTor:
		s.logger.Info("starting embedded Tor daemon (this may take a few minutes)...")
		tor := fetch.NewEmbeddedTor(fetch.WithTorStartupTimeout(cfg.TorStartupTimeout))
		if err := tor.Start(ctx); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, tor.Stop)
		onion, err := tor.Loader(httpOpts...)
		if err != nil {
			return nil, err
		}
		router.Onion = onion
	}
	return router, nil
}

// Close shuts the host down and releases the loaders.
func (s *stack) Close(ctx context.Context) error {
	var errs []error
	if s.host != nil {
		errs = append(errs, s.host.Close(ctx))
	}
	errs = append(errs, s.closeAll())
	return errors.Join(errs...)
}

func (s *stack) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
