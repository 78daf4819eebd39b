// Package batch runs per-file PSB conversions in parallel. Each job owns
// its document; jobs share nothing but the logger.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/psbkit/internal/logger"
)

// Task converts one input file and returns the path it wrote.
type Task func(ctx context.Context, in string) (string, error)

// Result is the outcome of one job.
type Result struct {
	Input    string        `json:"input"`
	Output   string        `json:"output,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes a run. Results are in input order.
type Report struct {
	RunID   uuid.UUID `json:"run_id"`
	Results []Result  `json:"results"`
	Failed  int       `json:"failed"`
}

// Runner executes a Task over many inputs.
type Runner struct {
	// Workers bounds concurrency. Zero uses GOMAXPROCS.
	Workers int
	// FailFast cancels outstanding jobs after the first failure.
	FailFast bool
}

// Run applies task to every input. A failing job is recorded in the
// report; Run itself fails only when ctx is done or, with FailFast, when a
// job fails.
func (r *Runner) Run(ctx context.Context, inputs []string, task Task) (*Report, error) {
	report := &Report{RunID: uuid.New(), Results: make([]Result, len(inputs))}
	log := logger.FromContext(ctx).With("run", report.RunID.String())

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	ran := make([]bool, len(inputs))
	log.Info("batch started", "jobs", len(inputs), "workers", workers)
	for i, in := range inputs {
		report.Results[i].Input = in
	}
	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			jobCtx := logger.WithContext(gctx, log.With("input", in))
			start := time.Now()
			out, err := task(jobCtx, in)
			res := Result{Input: in, Output: out, Duration: time.Since(start)}
			if err != nil {
				res.Err = err.Error()
				log.Warn("job failed", "input", in, "error", err)
			} else {
				log.Debug("job done", "input", in, "output", out, "took", res.Duration)
			}

			mu.Lock()
			report.Results[i] = res
			ran[i] = true
			if err != nil {
				report.Failed++
			}
			mu.Unlock()

			if err != nil && r.FailFast {
				return fmt.Errorf("%s: %w", in, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	// Inputs skipped after cancellation or a fail-fast stop count as failed.
	for i := range report.Results {
		if !ran[i] {
			report.Results[i].Err = fmt.Sprintf("not run: %v", context.Cause(gctx))
			report.Failed++
		}
	}
	log.Info("batch finished", "jobs", len(inputs), "failed", report.Failed)
	return report, err
}

// Expand resolves glob patterns to a sorted, duplicate-free list of files.
// A pattern that matches nothing is an error.
func Expand(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no files", p)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// ErrFailed is returned by callers that treat any failed job as a failed
// run.
var ErrFailed = errors.New("batch: one or more jobs failed")
