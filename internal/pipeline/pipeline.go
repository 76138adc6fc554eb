package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/sitemirror/internal/model"
)

// Step is one stage of a mirror run. Steps run in sequence, each one
// reading and extending the report left by the previous ones.
type Step interface {
	// Do executes the step. Problems confined to single files are recorded
	// in the report; only an error that makes the run meaningless is
	// returned.
	Do(ctx context.Context, report *model.MirrorReport) error

	// Name returns the step's name for logging.
	Name() string
}

// Finisher is implemented by steps that work on local files only. They
// still run after the context is canceled, so that an interrupted crawl
// leaves a browsable mirror behind.
type Finisher interface {
	Finishes() bool
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
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

// WithContinueOnError configures the pipeline to run the remaining steps
// after one fails. The first error is still returned.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
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

// Execute runs the steps in order.
//
// Once ctx is canceled the report is marked canceled and only Finisher
// steps still run, with a context that is no longer canceled. A failing
// step marks the report as errored; Execute returns the first such error.
func (p *Pipeline) Execute(ctx context.Context, report *model.MirrorReport) error {
	var first error
	for _, step := range p.steps {
		stepCtx := ctx
		if ctx.Err() != nil {
			if !finishes(step) {
				p.logger.Warn("skipping step after cancellation", "step", step.Name())
				report.Status = model.RunStatusCanceled
				continue
			}
			stepCtx = context.WithoutCancel(ctx)
		}

		p.logger.Debug("executing step", "step", step.Name(), "seed", report.SeedURL)

		if err := step.Do(stepCtx, report); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "error", err)
			report.Status = model.RunStatusError
			report.Error = err.Error()
			if first == nil {
				first = err
			}
			if !p.continueOnError {
				return first
			}
			continue
		}
		p.logger.Debug("step completed", "step", step.Name())
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

func finishes(step Step) bool {
	f, ok := step.(Finisher)
	return ok && f.Finishes()
}
