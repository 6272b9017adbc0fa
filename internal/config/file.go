package config

import "time"

// File is the structure of the .toxguard configuration file. Every field
// is optional; set fields override the defaults and are in turn
// overridden by command line flags.
type File struct {
	// Threshold is the toxicity threshold in [0, 1].
	Threshold *float64 `yaml:"threshold,omitempty"`

	// Keywords replaces the built-in keyword list.
	Keywords []string `yaml:"keywords,omitempty"`

	// Classifier selects and tunes the classifier backend.
	Classifier ClassifierFile `yaml:"classifier,omitempty"`

	// Scan tunes page loading and the scan engine.
	Scan ScanFile `yaml:"scan,omitempty"`

	// Serve configures `toxguard serve`.
	Serve ServeFile `yaml:"serve,omitempty"`
}

// ClassifierFile is the classifier section of the configuration file.
type ClassifierFile struct {
	Backend    string `yaml:"backend,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	ModelDir   string `yaml:"modelDir,omitempty"`
	GenAIModel string `yaml:"genaiModel,omitempty"`
	Fallback   string `yaml:"fallback,omitempty"`
	CacheSize  *int   `yaml:"cacheSize,omitempty"`
}

// ScanFile is the scan section of the configuration file.
type ScanFile struct {
	BatchSize   int            `yaml:"batchSize,omitempty"`
	BatchPause  *time.Duration `yaml:"batchPause,omitempty"`
	Concurrency int            `yaml:"concurrency,omitempty"`
	Timeout     time.Duration  `yaml:"timeout,omitempty"`
	Render      bool           `yaml:"render,omitempty"`
	UserAgent   string         `yaml:"userAgent,omitempty"`
	MaxBodySize int64          `yaml:"maxBodySize,omitempty"`
}

// ServeFile is the serve section of the configuration file.
type ServeFile struct {
	Listen string `yaml:"listen,omitempty"`
}

// ApplyTo copies the fields set in f onto cfg.
func (f *File) ApplyTo(cfg *Config) {
	if f == nil {
		return
	}
	if f.Threshold != nil {
		cfg.Threshold = *f.Threshold
	}
	if len(f.Keywords) > 0 {
		cfg.Keywords = append([]string(nil), f.Keywords...)
	}

	c := f.Classifier
	setString(&cfg.Backend, c.Backend)
	setString(&cfg.Endpoint, c.Endpoint)
	setString(&cfg.ModelDir, c.ModelDir)
	setString(&cfg.GenAIModel, c.GenAIModel)
	setString(&cfg.Fallback, c.Fallback)
	if c.CacheSize != nil {
		cfg.CacheSize = *c.CacheSize
	}

	s := f.Scan
	if s.BatchSize != 0 {
		cfg.BatchSize = s.BatchSize
	}
	if s.BatchPause != nil {
		cfg.BatchPause = *s.BatchPause
	}
	if s.Concurrency != 0 {
		cfg.Concurrency = s.Concurrency
	}
	if s.Timeout != 0 {
		cfg.Timeout = s.Timeout
	}
	if s.Render {
		cfg.Render = true
	}
	setString(&cfg.UserAgent, s.UserAgent)
	if s.MaxBodySize != 0 {
		cfg.MaxBodySize = s.MaxBodySize
	}

	setString(&cfg.ListenAddress, f.Serve.Listen)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
