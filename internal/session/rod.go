package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/gunestv/dizicrawl/internal/model"
)

// Defaults for RodSolver.
const (
	DefaultSolveTimeout = 90 * time.Second
	DefaultAttempts     = 3
	DefaultSettleDelay  = 5 * time.Second
	DefaultPollInterval = 6 * time.Second
)

// tabPresses moves focus from the body to the challenge checkbox.
const tabPresses = 5

// challengePage is the part of a browser page the solving loop needs.
type challengePage interface {
	Title() (string, error)
	Nudge(ctx context.Context) error
	Cookies() (map[string]string, error)
	UserAgent() (string, error)
}

// RodSolver solves the challenge in a Chromium instance driven by go-rod.
type RodSolver struct {
	target       string
	detector     Detector
	headless     bool
	bin          string
	proxy        string
	userAgent    string
	attempts     int
	timeout      time.Duration
	settleDelay  time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// RodOption configures a RodSolver.
type RodOption func(*RodSolver)

// WithHeadless toggles headless mode. Some challenges only clear with a
// visible window.
func WithHeadless(headless bool) RodOption {
	return func(s *RodSolver) { s.headless = headless }
}

// WithBrowserBin uses an explicit browser binary instead of the one rod
// finds or downloads.
func WithBrowserBin(bin string) RodOption {
	return func(s *RodSolver) { s.bin = bin }
}

// WithProxy routes the browser through a proxy URL such as
// socks5://127.0.0.1:9050. The transport must use the same egress.
func WithProxy(proxyURL string) RodOption {
	return func(s *RodSolver) { s.proxy = proxyURL }
}

// WithUserAgent overrides the browser user agent.
func WithUserAgent(ua string) RodOption {
	return func(s *RodSolver) { s.userAgent = ua }
}

// WithAttempts sets how many times the title is checked.
func WithAttempts(n int) RodOption {
	return func(s *RodSolver) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithTimeout bounds a whole Solve call.
func WithTimeout(d time.Duration) RodOption {
	return func(s *RodSolver) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMarkers sets the challenge title markers.
func WithMarkers(markers ...string) RodOption {
	return func(s *RodSolver) { s.detector = NewDetector(markers...) }
}

// WithDelays sets the wait after the first load and between checks.
func WithDelays(settle, poll time.Duration) RodOption {
	return func(s *RodSolver) {
		s.settleDelay = settle
		s.pollInterval = poll
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RodOption {
	return func(s *RodSolver) { s.logger = logger }
}

// NewRodSolver creates a solver that opens target, usually the listing
// page, to trigger and clear the challenge.
func NewRodSolver(target string, opts ...RodOption) *RodSolver {
	s := &RodSolver{
		target:       target,
		detector:     NewDetector(),
		headless:     true,
		attempts:     DefaultAttempts,
		timeout:      DefaultSolveTimeout,
		settleDelay:  DefaultSettleDelay,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve launches the browser, waits out the challenge and returns the
// resulting cookies and user agent.
func (s *RodSolver) Solve(ctx context.Context) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("solving challenge in browser", "url", s.target, "headless", s.headless)

	l := launcher.New().Context(ctx).Headless(s.headless)
	if s.bin != "" {
		l = l.Bin(s.bin)
	}
	if s.proxy != "" {
		l = l.Proxy(s.proxy)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, s.failure(ctx, fmt.Errorf("launch browser: %w", err))
	}
	defer l.Cleanup()
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, s.failure(ctx, fmt.Errorf("connect browser: %w", err))
	}
	defer browser.Close() //nolint:errcheck // process is killed anyway

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, s.failure(ctx, fmt.Errorf("open stealth page: %w", err))
	}
	if s.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.userAgent}); err != nil {
			s.logger.Warn("set user agent failed", "error", err)
		}
	}
	if err := page.Navigate(s.target); err != nil {
		return nil, s.failure(ctx, fmt.Errorf("navigate: %w", err))
	}
	if err := page.WaitLoad(); err != nil {
		s.logger.Debug("wait load failed, continuing", "error", err)
	}

	return s.await(ctx, &rodPage{page: page})
}

// await runs the check-and-nudge loop on a loaded page.
func (s *RodSolver) await(ctx context.Context, p challengePage) (*model.Session, error) {
	if err := sleep(ctx, s.settleDelay); err != nil {
		return nil, s.failure(ctx, err)
	}

	cleared := false
	for attempt := 1; attempt <= s.attempts; attempt++ {
		title, err := p.Title()
		if err != nil {
			return nil, s.failure(ctx, fmt.Errorf("read title: %w", err))
		}
		if !s.detector.IsChallengeTitle(title) {
			cleared = true
			break
		}

		s.logger.Info("challenge present, nudging page", "attempt", attempt, "of", s.attempts)
		if err := p.Nudge(ctx); err != nil {
			s.logger.Debug("nudge failed", "error", err)
		}
		if err := sleep(ctx, s.pollInterval); err != nil {
			return nil, s.failure(ctx, err)
		}
	}
	if !cleared {
		// Last nudge may have cleared it.
		title, err := p.Title()
		if err != nil || s.detector.IsChallengeTitle(title) {
			return nil, s.failure(ctx, fmt.Errorf("challenge still present after %d attempts (title %q)", s.attempts, title))
		}
	}

	cookies, err := p.Cookies()
	if err != nil {
		return nil, s.failure(ctx, fmt.Errorf("read cookies: %w", err))
	}
	if len(cookies) == 0 {
		return nil, model.ChallengeFailure(errors.New("challenge cleared but no cookies were set"))
	}
	ua, err := p.UserAgent()
	if err != nil || ua == "" {
		ua = s.userAgent
	}

	sess := model.NewSession(ua, cookies, s.now())
	s.logger.Info("challenge solved", "session", sess)
	return sess, nil
}

// failure reports cancellation as is and anything else as a challenge
// failure.
func (s *RodSolver) failure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return ctxErr
	}
	return model.ChallengeFailure(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rodPage adapts *rod.Page to challengePage.
type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Title() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

// Nudge focuses the body, tabs to the checkbox and presses it.
func (p *rodPage) Nudge(ctx context.Context) error {
	if body, err := p.page.Element("body"); err == nil {
		_ = body.Focus() //nolint:errcheck // focus is best effort
	}
	for range tabPresses {
		if err := p.page.Keyboard.Type(input.Tab); err != nil {
			return err
		}
		if err := sleep(ctx, 300*time.Millisecond); err != nil {
			return err
		}
	}
	if err := p.page.Keyboard.Type(input.Space); err != nil {
		return err
	}
	if err := sleep(ctx, time.Second); err != nil {
		return err
	}
	return p.page.Keyboard.Type(input.Enter)
}

func (p *rodPage) Cookies() (map[string]string, error) {
	cookies, err := p.page.Cookies(nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out, nil
}

func (p *rodPage) UserAgent() (string, error) {
	res, err := p.page.Eval("() => navigator.userAgent")
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}
