package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/gunestv/dizicrawl/internal/model"
	"github.com/gunestv/dizicrawl/internal/session"
)

// Defaults for PageFetcher.
const (
	DefaultTransportAttempts = 3
	DefaultRetryDelay        = 2 * time.Second
	maxRetryDelay            = 30 * time.Second
)

// Transport performs one classified exchange. *transport.HTTPTransport
// implements it.
type Transport interface {
	Fetch(ctx context.Context, url string, sess *model.Session) model.FetchOutcome
}

// PageFetcher fetches pages with session refresh and bounded retries.
// It is safe for concurrent use; the crawler itself is sequential.
type PageFetcher struct {
	transport  Transport
	solver     session.Solver
	attempts   int
	newBackOff func() backoff.BackOff
	logger     *slog.Logger

	mu   sync.Mutex
	sess *model.Session

	refreshes    singleflight.Group
	acquisitions atomic.Int64
}

// Option configures a PageFetcher.
type Option func(*PageFetcher)

// WithSession seeds the fetcher with an already acquired session.
func WithSession(sess *model.Session) Option {
	return func(f *PageFetcher) { f.sess = sess }
}

// WithTransportAttempts sets the total number of attempts for a fetch
// that keeps failing with a transport error.
func WithTransportAttempts(n int) Option {
	return func(f *PageFetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithRetryDelay sets the first delay of the exponential retry schedule.
// Zero retries immediately.
func WithRetryDelay(d time.Duration) Option {
	return func(f *PageFetcher) {
		if d <= 0 {
			f.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
			return
		}
		f.newBackOff = exponential(d)
	}
}

// WithBackOff replaces the retry schedule. newBackOff is called once per
// fetch.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *PageFetcher) { f.newBackOff = newBackOff }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *PageFetcher) { f.logger = logger }
}

// New creates a fetcher over t that acquires sessions from solver.
func New(t Transport, solver session.Solver, opts ...Option) *PageFetcher {
	f := &PageFetcher{
		transport:  t,
		solver:     solver,
		attempts:   DefaultTransportAttempts,
		newBackOff: exponential(DefaultRetryDelay),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func exponential(initial time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxRetryDelay
		// Attempts bound the loop, not elapsed time.
		b.MaxElapsedTime = 0
		return b
	}
}

// Session returns the session currently held, or nil.
func (f *PageFetcher) Session() *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

// Acquisitions returns how many sessions the solver has produced.
func (f *PageFetcher) Acquisitions() int {
	return int(f.acquisitions.Load())
}

// Bootstrap acquires a session unless one is already held.
func (f *PageFetcher) Bootstrap(ctx context.Context) error {
	_, err := f.current(ctx)
	return err
}

// Fetch fetches url. The error is non-nil only for a challenge failure
// or cancellation; the outcome then reflects the last exchange.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (model.FetchOutcome, error) {
	if err := ctx.Err(); err != nil {
		return model.TransportError(err), err
	}

	sess, err := f.current(ctx)
	if err != nil {
		return model.Blocked(), err
	}

	out, err := f.fetchWithRetry(ctx, url, sess)
	if err != nil || out.Kind != model.OutcomeBlocked {
		return out, err
	}

	f.logger.Warn("session rejected, refreshing", "url", url, "session_age", sess.Age(time.Now()).Round(time.Second))
	sess, err = f.refresh(ctx, sess)
	if err != nil {
		return model.Blocked(), err
	}

	out, err = f.fetchWithRetry(ctx, url, sess)
	if err == nil && out.Kind == model.OutcomeBlocked {
		f.logger.Warn("still blocked after refresh", "url", url)
	}
	return out, err
}

// fetchWithRetry repeats transport errors up to the attempt budget.
func (f *PageFetcher) fetchWithRetry(ctx context.Context, url string, sess *model.Session) (model.FetchOutcome, error) {
	b := backoff.WithMaxRetries(f.newBackOff(), uint64(f.attempts-1)) //nolint:gosec // attempts >= 1
	b.Reset()

	for attempt := 1; ; attempt++ {
		out := f.transport.Fetch(ctx, url, sess)
		if out.Kind != model.OutcomeTransportError {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			f.logger.Warn("transport retries exhausted", "url", url, "attempts", attempt, "error", out.Cause)
			return out, nil
		}
		f.logger.Debug("transport error, retrying", "url", url, "attempt", attempt, "wait", wait, "error", out.Cause)
		if err := sleep(ctx, wait); err != nil {
			return model.TransportError(err), err
		}
	}
}

// current returns the held session, acquiring one first if needed.
func (f *PageFetcher) current(ctx context.Context) (*model.Session, error) {
	if sess := f.Session(); sess != nil {
		return sess, nil
	}
	return f.refresh(ctx, nil)
}

// refresh replaces stale with a newly solved session. Concurrent callers
// holding the same stale session share one acquisition, and a caller
// whose stale session was already replaced gets the replacement.
func (f *PageFetcher) refresh(ctx context.Context, stale *model.Session) (*model.Session, error) {
	v, err, _ := f.refreshes.Do("session", func() (any, error) {
		f.mu.Lock()
		held := f.sess
		f.mu.Unlock()
		if held != nil && held != stale {
			return held, nil
		}

		sess, err := f.solver.Solve(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, err
			}
			return nil, model.ChallengeFailure(err)
		}
		f.acquisitions.Add(1)

		f.mu.Lock()
		f.sess = sess
		f.mu.Unlock()
		f.logger.Info("session acquired", "session", sess, "acquisitions", f.acquisitions.Load())
		return sess, nil
	})
	if err != nil {
		f.mu.Lock()
		if f.sess == stale {
			f.sess = nil
		}
		f.mu.Unlock()
		return nil, err
	}
	return v.(*model.Session), nil //nolint:forcetypeassert // only sessions are stored
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
