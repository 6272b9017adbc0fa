package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/nao1215/toxguard/internal/page"
)

// RodLoader renders pages in a headless Chrome so text produced by
// scripts is part of the document. The browser is started on first use.
type RodLoader struct {
	controlURL string
	timeout    time.Duration
	settle     time.Duration

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	launched bool
}

// RodOption configures a RodLoader.
type RodOption func(*RodLoader)

// WithControlURL connects to a running browser instead of launching one.
func WithControlURL(u string) RodOption {
	return func(l *RodLoader) {
		l.controlURL = u
	}
}

// WithNavigationTimeout bounds navigation and load.
func WithNavigationTimeout(d time.Duration) RodOption {
	return func(l *RodLoader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithSettleTime waits for the DOM to stay unchanged this long before the
// HTML is captured.
func WithSettleTime(d time.Duration) RodOption {
	return func(l *RodLoader) {
		if d >= 0 {
			l.settle = d
		}
	}
}

// NewRodLoader creates a loader. No browser is started yet.
func NewRodLoader(opts ...RodOption) *RodLoader {
	l := &RodLoader{
		timeout: DefaultTimeout,
		settle:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load navigates a new page to target and returns its rendered HTML.
func (l *RodLoader) Load(ctx context.Context, target string) (*page.Document, error) {
	browser, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}

	p, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		_ = p.Close() //nolint:errcheck // page is discarded
	}()

	tp := p.Timeout(l.timeout)
	if err := tp.Navigate(target); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", target, err)
	}
	if err := tp.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", target, err)
	}
	if l.settle > 0 {
		_ = tp.WaitStable(l.settle) //nolint:errcheck // a busy page is captured as is
	}

	src, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read HTML of %s: %w", target, err)
	}
	final := target
	if info, err := p.Info(); err == nil && info.URL != "" {
		final = info.URL
	}
	return page.Parse(strings.NewReader(src), final)
}

func (l *RodLoader) connect(ctx context.Context) (*rod.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return l.browser, nil
	}

	controlURL := l.controlURL
	if controlURL == "" {
		l.launch = launcher.New().Headless(true)
		u, err := l.launch.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
		l.launched = true
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	l.browser = browser
	return l.browser, nil
}

// Close shuts down the browser if this loader launched it.
func (l *RodLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.launched && l.launch != nil {
		l.launch.Kill()
		l.launch = nil
	}
	return err
}
