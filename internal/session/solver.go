package session

import (
	"context"
	"errors"
	"time"

	"github.com/gunestv/dizicrawl/internal/model"
)

// Solver acquires a fresh session. Implementations must return an error
// wrapping model.ErrChallengeFailure when no session could be obtained.
type Solver interface {
	Solve(ctx context.Context) (*model.Session, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context) (*model.Session, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context) (*model.Session, error) {
	return f(ctx)
}

// ErrNoCookie is the cause when a static solver has nothing to offer.
var ErrNoCookie = errors.New("no challenge cookie configured")

// StaticSolver returns the same operator-supplied credentials on every
// call. A refresh therefore cannot recover from a revoked cookie; the
// second Blocked ends the item or the walk as usual.
type StaticSolver struct {
	identity    string
	credentials map[string]string
	now         func() time.Time
}

// NewStaticSolver parses cookie ("a=b; c=d") for use with userAgent.
func NewStaticSolver(cookie, userAgent string) *StaticSolver {
	return &StaticSolver{
		identity:    userAgent,
		credentials: model.ParseCookieHeader(cookie),
		now:         time.Now,
	}
}

// Solve implements Solver.
func (s *StaticSolver) Solve(ctx context.Context) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.credentials) == 0 {
		return nil, model.ChallengeFailure(ErrNoCookie)
	}
	return model.NewSession(s.identity, s.credentials, s.now()), nil
}
