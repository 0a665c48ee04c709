// Package batch fans tasks out to an executor, reports progress as tasks
// complete and aggregates the final summary.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/nachoal/simple-batch-go/executor"
	"github.com/nachoal/simple-batch-go/task"
)

const (
	defaultConcurrency = 5
	defaultDelay       = 2 * time.Second
)

// Executor runs one task and reports its outcome
type Executor interface {
	Execute(ctx context.Context, t task.Task, ordinal int) executor.Outcome
}

// UnexpectedWorkerError is a panic recovered at the worker boundary
type UnexpectedWorkerError struct {
	Value any
	Stack []byte
}

func (e *UnexpectedWorkerError) Error() string {
	return fmt.Sprintf("unexpected worker error: %v", e.Value)
}

// Summary aggregates a finished run
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
	OutputDir string
	Outcomes  []executor.Outcome
}

// Option configures a Runner
type Option func(*Runner)

// WithConcurrency sets the worker pool size for Run
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		r.concurrency = n
	}
}

// WithDelay sets the pause between tasks in RunSequential
func WithDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.delay = d
	}
}

// WithOutput sets where progress lines and the summary are printed
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithOutputDir sets the directory reported in the summary
func WithOutputDir(dir string) Option {
	return func(r *Runner) {
		r.outputDir = dir
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// Runner schedules tasks onto an Executor
type Runner struct {
	exec        Executor
	concurrency int
	delay       time.Duration
	out         io.Writer
	outputDir   string
	logger      *zap.Logger
	now         func() time.Time
}

// NewRunner creates a Runner
func NewRunner(exec Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:        exec,
		concurrency: defaultConcurrency,
		delay:       defaultDelay,
		out:         os.Stdout,
		logger:      zap.NewNop(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.concurrency < 1 {
		r.concurrency = 1
	}

	return r
}

// Run executes tasks on a bounded worker pool. Outcomes are reported in
// completion order; one task failing or panicking never stops the others.
func (r *Runner) Run(ctx context.Context, tasks []task.Task) Summary {
	start := r.now()
	sum := Summary{RunID: uuid.NewString(), Total: len(tasks), OutputDir: r.outputDir}
	log := r.logger.With(zap.String("run_id", sum.RunID))

	if len(tasks) == 0 {
		fmt.Fprintln(r.out, "No tasks to process.")
		return sum
	}

	workers := min(r.concurrency, len(tasks))
	log.Info("starting concurrent run", zap.Int("tasks", len(tasks)), zap.Int("workers", workers))

	events := make(chan executor.Outcome)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		p := newProgress(r.out, len(tasks), start, r.now)
		for o := range events {
			sum.record(o)
			p.report(o)
		}
	}()

	wp := pool.New().WithMaxGoroutines(workers)
	for i, t := range tasks {
		ordinal := i + 1
		wp.Go(func() {
			events <- r.runOne(ctx, log, t, ordinal)
		})
	}
	wp.Wait()
	close(events)
	<-printed

	sum.Duration = r.now().Sub(start)
	printSummary(r.out, sum)
	return sum
}

// RunSequential executes tasks one at a time in file order, pausing between
// tasks but not after the last one.
func (r *Runner) RunSequential(ctx context.Context, tasks []task.Task) Summary {
	start := r.now()
	sum := Summary{RunID: uuid.NewString(), Total: len(tasks), OutputDir: r.outputDir}
	log := r.logger.With(zap.String("run_id", sum.RunID))

	if len(tasks) == 0 {
		fmt.Fprintln(r.out, "No tasks to process.")
		return sum
	}

	log.Info("starting sequential run", zap.Int("tasks", len(tasks)), zap.Duration("delay", r.delay))

	p := newProgress(r.out, len(tasks), start, r.now)
	for i, t := range tasks {
		if i > 0 && r.delay > 0 {
			log.Debug("waiting before next task", zap.Duration("delay", r.delay))
			sleep(ctx, r.delay)
		}

		o := r.runOne(ctx, log, t, i+1)
		sum.record(o)
		p.report(o)
	}

	sum.Duration = r.now().Sub(start)
	printSummary(r.out, sum)
	return sum
}

// runOne executes a task and turns an escaped panic into a failed outcome
func (r *Runner) runOne(ctx context.Context, log *zap.Logger, t task.Task, ordinal int) executor.Outcome {
	var out executor.Outcome
	var pc panics.Catcher
	pc.Try(func() {
		out = r.exec.Execute(ctx, t, ordinal)
	})

	if rec := pc.Recovered(); rec != nil {
		err := &UnexpectedWorkerError{Value: rec.Value, Stack: rec.Stack}
		log.Error("worker panic", zap.String("task", t.Name), zap.Int("ordinal", ordinal), zap.Error(err))
		return executor.Outcome{Name: t.Name, Ordinal: ordinal, Err: err}
	}
	return out
}

func (s *Summary) record(o executor.Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
