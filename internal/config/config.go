package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/toxguard/internal/classifier"
	"github.com/nao1215/toxguard/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "toxguard"

	// DefaultThreshold is the toxicity score at or above which a fragment
	// is cloaked.
	DefaultThreshold = model.DefaultThreshold

	// DefaultBackend is keyword matching, which needs no model or network.
	DefaultBackend = classifier.BackendKeyword

	// DefaultFallback switches to keyword matching when the configured
	// backend fails its preflight.
	DefaultFallback = string(classifier.FallbackKeyword)

	// DefaultCacheSize is the number of verdicts kept by the classifier
	// cache. Repeated boilerplate (menus, footers) hits it on every page.
	DefaultCacheSize = 4096

	// DefaultBatchSize is the number of fragments sent to the classifier
	// in one call.
	DefaultBatchSize = 16

	// DefaultBatchPause is the pause between two batches of one run.
	DefaultBatchPause = 8 * time.Millisecond

	// DefaultConcurrency is the number of pages scanned at once by
	// `toxguard scan`.
	DefaultConcurrency = 4

	// DefaultTimeout bounds loading one page.
	DefaultTimeout = 30 * time.Second

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is the maximum time to wait for the
	// embedded Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent identifies toxguard in HTTP requests.
	DefaultUserAgent = "toxguard/1.0 (+https://github.com/nao1215/toxguard)"

	// DefaultMaxBodySize limits the response body read for one page.
	DefaultMaxBodySize = 8 * 1024 * 1024

	// DefaultListenAddress is where `toxguard serve` accepts popups.
	DefaultListenAddress = "127.0.0.1:7878"
)

// Config holds all options of one toxguard invocation. It is built from
// defaults, then the .toxguard file, then command line flags.
type Config struct {
	// Threshold is the toxicity threshold in [0, 1].
	Threshold float64

	// Keywords replaces the built-in keyword list when not empty.
	Keywords []string

	// Backend names the classifier backend: keyword, http, bayes or genai.
	Backend string

	// Endpoint is the inference URL of the http backend.
	Endpoint string

	// APIToken is sent as a bearer token to the http backend.
	APIToken string

	// ModelDir holds the files of the bayes backend.
	ModelDir string

	// GenAIKey is the API key of the genai backend. When empty the
	// GEMINI_API_KEY environment variable is used.
	GenAIKey string

	// GenAIModel is the embedding model of the genai backend.
	GenAIModel string

	// Fallback is the policy applied when the backend is not usable:
	// keyword or fail.
	Fallback string

	// CacheSize bounds the verdict cache; 0 disables it.
	CacheSize int

	// BatchSize is the number of fragments per classifier call.
	BatchSize int

	// BatchPause is the pause between batches.
	BatchPause time.Duration

	// Concurrency is the number of pages scanned at once.
	Concurrency int

	// Timeout bounds loading one page.
	Timeout time.Duration

	// Render loads pages in a headless browser so script generated text
	// is scanned.
	Render bool

	// UseTor routes .onion pages through Tor.
	UseTor bool

	// UseExternalTor uses the proxy at TorProxyAddress instead of an
	// embedded daemon.
	UseExternalTor bool

	// TorProxyAddress is the SOCKS5 address of an external Tor.
	TorProxyAddress string

	// TorStartupTimeout bounds the embedded daemon bootstrap.
	TorStartupTimeout time.Duration

	// UserAgent is sent with HTTP requests.
	UserAgent string

	// MaxBodySize caps the bytes read per page.
	MaxBodySize int64

	// Verbose enables debug logging.
	Verbose bool

	// JSONReport and MarkdownReport select the report format; the default
	// is plain text. They are mutually exclusive.
	JSONReport     bool
	MarkdownReport bool

	// Pretty renders the markdown report for the terminal.
	Pretty bool

	// ReportFile receives the report instead of stdout.
	ReportFile string

	// OutputDir receives the cloaked HTML of every scanned page.
	OutputDir string

	// Targets are the URLs or paths to scan.
	Targets []string

	// ConfigFilePath is the .toxguard file; empty means search for one.
	ConfigFilePath string

	// DataDir holds the settings database.
	DataDir string

	// ListenAddress is the websocket address of `toxguard serve`.
	ListenAddress string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Threshold:         DefaultThreshold,
		Backend:           DefaultBackend,
		Fallback:          DefaultFallback,
		CacheSize:         DefaultCacheSize,
		BatchSize:         DefaultBatchSize,
		BatchPause:        DefaultBatchPause,
		Concurrency:       DefaultConcurrency,
		Timeout:           DefaultTimeout,
		TorProxyAddress:   DefaultTorProxyAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		DataDir:           XDGDataDir(),
		ListenAddress:     DefaultListenAddress,
	}
}

// XDGDataDir returns the XDG data directory for toxguard.
// On Linux: ~/.local/share/toxguard
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for toxguard.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for toxguard.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// ClassifierOptions converts the classifier part of c.
func (c *Config) ClassifierOptions() classifier.Options {
	return classifier.Options{
		Backend:    c.Backend,
		Endpoint:   c.Endpoint,
		APIToken:   c.APIToken,
		ModelDir:   c.ModelDir,
		GenAIKey:   c.GenAIKey,
		GenAIModel: c.GenAIModel,
		Keywords:   c.Keywords,
		Threshold:  c.Threshold,
		Fallback:   classifier.FallbackPolicy(c.Fallback),
		CacheSize:  c.CacheSize,
	}
}

// Validate checks every option except Targets and returns the first
// problem found.
func (c *Config) Validate() error {
	if err := model.ValidateThreshold(c.Threshold); err != nil {
		return ErrInvalidThreshold
	}

	switch c.Backend {
	case classifier.BackendKeyword, classifier.BackendGenAI:
	case classifier.BackendHTTP:
		if c.Endpoint == "" {
			return ErrMissingEndpoint
		}
	case classifier.BackendBayes:
		if c.ModelDir == "" {
			return ErrMissingModelDir
		}
	default:
		return ErrUnknownBackend
	}

	if _, err := classifier.ParseFallbackPolicy(c.Fallback); err != nil {
		return ErrUnknownFallback
	}
	if c.CacheSize < 0 {
		return ErrInvalidCacheSize
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.BatchPause < 0 {
		return ErrInvalidBatchPause
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

// ValidateScan is Validate plus the checks of `toxguard scan`.
func (c *Config) ValidateScan() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.Validate()
}
