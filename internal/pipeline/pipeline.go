package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gunestv/dizicrawl/internal/catalog"
	"github.com/gunestv/dizicrawl/internal/model"
)

// ErrStop ends a job early without failing it.
var ErrStop = errors.New("stop pipeline")

// Job is one summary item travelling through the pipeline.
type Job struct {
	// Item is what the listing page said.
	Item model.SummaryItem

	// Update is true when the item is already in the catalog but
	// incomplete.
	Update bool

	// KnownChildren are the child URLs the catalog already holds.
	KnownChildren map[string]struct{}

	// Document is the fetched detail page.
	Document *model.Document

	// ChildPages are the pages that list the item's children. Empty means
	// the detail page lists them itself.
	ChildPages []string

	// Record is filled by the detail and children steps.
	Record *model.DetailRecord

	// Result is filled by the merge step.
	Result catalog.UpsertResult

	// Gaps collects non-fatal extraction gaps.
	Gaps []error

	// Performed lists the steps that completed, in order.
	Performed []string

	// Stopped is set when a step ended the job with ErrStop.
	Stopped bool

	// Err is the error of the failing step, if any.
	Err error
}

// AddGap records err when it is non-nil.
func (j *Job) AddGap(err error) {
	if err != nil {
		j.Gaps = append(j.Gaps, err)
	}
}

// Step is one stage of the item pipeline. Do returns ErrStop to end the
// job successfully, or any other error to fail it.
type Step interface {
	Do(ctx context.Context, job *Job) error
	Name() string
}

// StepFunc adapts a function to Step.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, job *Job) error
}

// Do calls Fn.
func (s StepFunc) Do(ctx context.Context, job *Job) error {
	return s.Fn(ctx, job)
}

// Name returns StepName.
func (s StepFunc) Name() string {
	return s.StepName
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing later steps after one fails. The
// first error is still recorded on the job.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps on job. Cancellation is checked before each
// step and returned as is. A step error is recorded on the job and
// returned unless the pipeline continues on error.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	var first error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Debug("pipeline cancelled", "step", step.Name(), "url", job.Item.CanonicalURL)
			return err
		}

		err := step.Do(ctx, job)
		switch {
		case errors.Is(err, ErrStop):
			job.Performed = append(job.Performed, step.Name())
			job.Stopped = true
			p.logger.Debug("pipeline stopped early", "step", step.Name(), "url", job.Item.CanonicalURL)
			return first
		case err != nil:
			p.logger.Debug("step failed", "step", step.Name(), "url", job.Item.CanonicalURL, "error", err)
			if job.Err == nil {
				job.Err = err
			}
			if first == nil {
				first = err
			}
			if !p.continueOnError {
				return err
			}
		default:
			job.Performed = append(job.Performed, step.Name())
		}
	}
	return first
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
