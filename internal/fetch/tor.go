package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout is how long the embedded Tor daemon may take to
// bootstrap.
const DefaultTorStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon so .onion pages can be loaded
// without a system Tor installation. Bootstrapping takes one to three
// minutes.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
}

// TorOption configures an EmbeddedTor.
type TorOption func(*EmbeddedTor)

// WithTorStartupTimeout sets the bootstrap timeout.
func WithTorStartupTimeout(d time.Duration) TorOption {
	return func(e *EmbeddedTor) {
		if d > 0 {
			e.startupTimeout = d
		}
	}
}

// NewEmbeddedTor creates a manager; Start launches the daemon.
func NewEmbeddedTor(opts ...TorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: DefaultTorStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	cfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(cfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return err
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	return nil
}

// Stop shuts the daemon down. It is safe on a stopped instance.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	return err
}

// IsRunning reports whether the daemon is up.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// SocksAddr returns the SOCKS5 address of the running daemon.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// Loader returns an HTTPLoader that routes through the daemon.
func (e *EmbeddedTor) Loader(opts ...HTTPOption) (*HTTPLoader, error) {
	if !e.IsRunning() {
		return nil, ErrTorNotRunning
	}
	return NewHTTPLoader(append(opts, WithSOCKS5(e.socksAddr))...)
}
