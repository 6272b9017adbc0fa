package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nao1215/toxguard/internal/config"
	"github.com/nao1215/toxguard/internal/settings"
	"github.com/spf13/cobra"
)

// Environment variables read when the matching option is empty.
const (
	envGenAIKey = "GEMINI_API_KEY"
	envAPIToken = "TOXGUARD_API_TOKEN"
)

// addClassifierFlags registers the flags shared by scan and serve that
// choose and tune the classifier.
func addClassifierFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("threshold", config.DefaultThreshold,
		"Toxicity score at or above which a fragment is cloaked (0 to 1)")
	cmd.Flags().StringSlice("keywords", nil,
		"Keywords of the keyword backend (replaces the built-in list)")
	cmd.Flags().StringP("backend", "B", config.DefaultBackend,
		"Classifier backend: keyword, http, bayes or genai")
	cmd.Flags().String("endpoint", "",
		"Inference endpoint of the http backend")
	cmd.Flags().String("model-dir", "",
		"Model directory of the bayes backend")
	cmd.Flags().String("genai-model", "",
		"Embedding model of the genai backend")
	cmd.Flags().String("fallback", config.DefaultFallback,
		"What to do when the backend is not usable: keyword or fail")
	cmd.Flags().Int("cache-size", config.DefaultCacheSize,
		"Number of cached verdicts (0 disables the cache)")
}

// addLoaderFlags registers the flags shared by scan and serve that control
// page loading and the scan engine.
func addLoaderFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch-size", config.DefaultBatchSize,
		"Fragments sent to the classifier per call")
	cmd.Flags().Duration("batch-pause", config.DefaultBatchPause,
		"Pause between two batches of one run")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for loading one page")
	cmd.Flags().Bool("render", false,
		"Load pages in a headless browser so script generated text is scanned")
	cmd.Flags().Bool("tor", false,
		"Load .onion pages through an embedded Tor daemon")
	cmd.Flags().StringP("external-tor", "e", "",
		"Load .onion pages through the Tor proxy at this address (e.g., 127.0.0.1:9050)")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with HTTP requests")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum bytes read per page")
}

// buildConfig creates the configuration of cmd: defaults, then the
// configuration file, then stored settings, then the flags set on the
// command line.
func buildConfig(ctx context.Context, cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	fs := cmd.Flags()

	if dir, err := fs.GetString("data-dir"); err == nil && dir != "" {
		cfg.DataDir = dir
	}

	// An explicit path must exist; without one a missing file is fine.
	explicit, err := fs.GetString("config")
	if err != nil {
		explicit = ""
	}
	configPath := config.FindConfigFile(explicit)
	switch {
	case configPath != "":
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		f.ApplyTo(cfg)
		cfg.ConfigFilePath = configPath
	case explicit != "":
		return nil, fmt.Errorf("configuration file not found: %s", explicit)
	}

	if err := applyStoredSettings(ctx, cfg); err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if cfg.GenAIKey == "" {
		cfg.GenAIKey = os.Getenv(envGenAIKey)
	}
	if cfg.APIToken == "" {
		cfg.APIToken = os.Getenv(envAPIToken)
	}
	cfg.Targets = args
	return cfg, nil
}

// applyStoredSettings copies the threshold and keyword list saved with
// `toxguard settings set` into cfg. A missing database is not an error.
func applyStoredSettings(ctx context.Context, cfg *config.Config) error {
	store, err := settings.Open(cfg.DataDir, settings.Options{})
	if errors.Is(err, settings.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	defer store.Close()

	if _, ok, err := store.Get(ctx, settings.KeyThreshold); err != nil {
		return err
	} else if ok {
		if cfg.Threshold, err = store.Threshold(ctx); err != nil {
			return err
		}
	}
	words, err := store.Keywords(ctx)
	if err != nil {
		return err
	}
	if words != nil {
		cfg.Keywords = words
	}
	return nil
}

// applyFlags copies the flags changed on the command line into cfg. Flags
// the command does not define are skipped.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	var errs []error
	set := func(name string, apply func() error) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			errs = append(errs, apply())
		}
	}

	set("threshold", func() (err error) { cfg.Threshold, err = fs.GetFloat64("threshold"); return })
	set("keywords", func() (err error) { cfg.Keywords, err = fs.GetStringSlice("keywords"); return })
	set("backend", func() (err error) { cfg.Backend, err = fs.GetString("backend"); return })
	set("endpoint", func() (err error) { cfg.Endpoint, err = fs.GetString("endpoint"); return })
	set("model-dir", func() (err error) { cfg.ModelDir, err = fs.GetString("model-dir"); return })
	set("genai-model", func() (err error) { cfg.GenAIModel, err = fs.GetString("genai-model"); return })
	set("fallback", func() (err error) { cfg.Fallback, err = fs.GetString("fallback"); return })
	set("cache-size", func() (err error) { cfg.CacheSize, err = fs.GetInt("cache-size"); return })

	set("batch-size", func() (err error) { cfg.BatchSize, err = fs.GetInt("batch-size"); return })
	set("batch-pause", func() (err error) { cfg.BatchPause, err = fs.GetDuration("batch-pause"); return })
	set("concurrency", func() (err error) { cfg.Concurrency, err = fs.GetInt("concurrency"); return })
	set("timeout", func() (err error) { cfg.Timeout, err = fs.GetDuration("timeout"); return })
	set("render", func() (err error) { cfg.Render, err = fs.GetBool("render"); return })
	set("tor", func() (err error) { cfg.UseTor, err = fs.GetBool("tor"); return })
	set("external-tor", func() error {
		addr, err := fs.GetString("external-tor")
		if addr != "" {
			cfg.UseTor = true
			cfg.UseExternalTor = true
			cfg.TorProxyAddress = addr
		}
		return err
	})
	set("tor-timeout", func() (err error) { cfg.TorStartupTimeout, err = fs.GetDuration("tor-timeout"); return })
	set("user-agent", func() (err error) { cfg.UserAgent, err = fs.GetString("user-agent"); return })
	set("max-body-size", func() (err error) { cfg.MaxBodySize, err = fs.GetInt64("max-body-size"); return })

	set("json", func() (err error) { cfg.JSONReport, err = fs.GetBool("json"); return })
	set("markdown", func() (err error) { cfg.MarkdownReport, err = fs.GetBool("markdown"); return })
	set("pretty", func() (err error) { cfg.Pretty, err = fs.GetBool("pretty"); return })
	set("output", func() (err error) { cfg.ReportFile, err = fs.GetString("output"); return })
	set("save-dir", func() (err error) { cfg.OutputDir, err = fs.GetString("save-dir"); return })

	set("listen", func() (err error) { cfg.ListenAddress, err = fs.GetString("listen"); return })

	cfg.Verbose = getVerboseFlag(cmd)
	return errors.Join(errs...)
}
