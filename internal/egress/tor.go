package egress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds the daemon bootstrap.
const DefaultTorStartupTimeout = 3 * time.Minute

// Tor manages an embedded Tor daemon. Bootstrapping takes one to three
// minutes: the daemon fetches directory information and builds circuits
// before its SOCKS port accepts connections.
type Tor struct {
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
	logger         *slog.Logger
}

// TorOption configures a Tor instance.
type TorOption func(*Tor)

// WithStartupTimeout sets the maximum time to wait for bootstrap.
func WithStartupTimeout(timeout time.Duration) TorOption {
	return func(t *Tor) {
		t.startupTimeout = timeout
	}
}

// WithLogger sets the logger for daemon lifecycle messages.
func WithLogger(logger *slog.Logger) TorOption {
	return func(t *Tor) {
		t.logger = logger
	}
}

// NewTor creates a daemon manager. Call Start to launch it.
func NewTor(opts ...TorOption) *Tor {
	t := &Tor{
		startupTimeout: DefaultTorStartupTimeout,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout elapses.
func (t *Tor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(t.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("create Tor launch config: %w", err)
	}

	t.logger.Info("starting embedded Tor", "timeout", t.startupTimeout)
	started := time.Now()

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("start embedded Tor daemon: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return err
	}

	t.process = process
	t.socksAddr = process.SocksAddr()
	t.logger.Info("embedded Tor ready", "socks", t.socksAddr, "elapsed", time.Since(started).Round(time.Second))
	return nil
}

// Stop shuts the daemon down. Safe to call repeatedly or before Start.
func (t *Tor) Stop() error {
	if t.process == nil {
		return nil
	}
	err := t.process.Stop()
	t.process = nil
	t.socksAddr = ""
	return err
}

// SocksAddr returns the daemon's SOCKS5 host:port, or "" when stopped.
func (t *Tor) SocksAddr() string {
	return t.socksAddr
}

// IsRunning reports whether the daemon is up.
func (t *Tor) IsRunning() bool {
	return t.process != nil
}

// Proxy returns a Proxy bound to the daemon's SOCKS port.
func (t *Tor) Proxy() (*Proxy, error) {
	if !t.IsRunning() {
		return nil, ErrTorNotRunning
	}
	return NewProxy(t.socksAddr)
}
