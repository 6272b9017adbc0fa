package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// secretKeys are attribute keys whose values are always masked.
var secretKeys = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-goog-api-key":      true,
	"proxy-authorization": true,

	"password":     true,
	"secret":       true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"api-key":      true,
	"api_token":    true,
	"genai_key":    true,
	"access_token": true,
	"private_key":  true,

	"session":    true,
	"session_id": true,
	"sid":        true,

	"credential":  true,
	"credentials": true,
	"auth":        true,
}

// contentKeys are attribute keys that carry text taken from a scanned page.
// Their values are replaced by their length unless Options.ShowContent is
// set, so logs shared in a bug report do not repeat what the user was
// shielded from.
var contentKeys = map[string]bool{
	"text":     true,
	"fragment": true,
	"original": true,
	"snippet":  true,
	"html":     true,
	"body":     true,
}

// secretPatterns match values that are masked regardless of their key.
var secretPatterns = []*regexp.Regexp{
	// JWT
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	// Google API keys, as used by the genai backend
	regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`),
	// Hugging Face tokens
	regexp.MustCompile(`^hf_[A-Za-z0-9]{30,}$`),
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// MaskValue replaces secret values.
const MaskValue = "***REDACTED***"

// Options configures a logger built by New.
type Options struct {
	// Verbose lowers the level from Warn to Debug.
	Verbose bool

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// ShowContent keeps page text in the log. Secrets are masked either way.
	ShowContent bool
}

// SecureHandler wraps an slog.Handler and masks secrets and page text in
// every attribute before the record reaches it.
type SecureHandler struct {
	handler     slog.Handler
	showContent bool
}

// NewSecureHandler wraps handler. A nil handler means slog.Default's.
func NewSecureHandler(handler slog.Handler, showContent bool) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler, showContent: showContent}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = h.sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitized), showContent: h.showContent}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name), showContent: h.showContent}
}

func (h *SecureHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitized := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			sanitized[i] = h.sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitized...)}
	}

	key := strings.ToLower(a.Key)
	if secretKeys[key] || containsSecretKeyword(key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}
	v := a.Value.String()
	if isSecretValue(v) {
		return slog.String(a.Key, MaskValue)
	}
	if contentKeys[key] && !h.showContent {
		return slog.String(a.Key, contentSummary(v))
	}
	return a
}

// containsSecretKeyword leaves out the bare word "key", which matches
// harmless names such as cache_key or keyboard.
func containsSecretKeyword(key string) bool {
	for _, keyword := range []string{"password", "passwd", "secret", "token", "auth", "credential", "private"} {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

func isSecretValue(value string) bool {
	for _, pattern := range secretPatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

func contentSummary(v string) string {
	return fmt.Sprintf("[%d chars]", len([]rune(v)))
}

// New returns a logger that writes to w through a SecureHandler.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, ho)
	} else {
		handler = slog.NewTextHandler(w, ho)
	}
	return slog.New(NewSecureHandler(handler, opts.ShowContent))
}

// NewSecureLogger returns a text logger at Debug when verbose and Warn
// otherwise.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return New(w, Options{Verbose: verbose})
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return New(w, Options{Verbose: verbose, JSON: true})
}
