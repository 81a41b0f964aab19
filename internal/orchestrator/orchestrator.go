// Package orchestrator expands the candidate list into the full trial matrix
// and runs it through a bounded worker pool with resumable, idempotent
// output.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/candidate"
	"github.com/xkilldash9x/consent-probe/internal/engine"
	"github.com/xkilldash9x/consent-probe/internal/observation"
)

const progressEvery = 25

// TrialRunner executes one trial and always returns an Observation.
type TrialRunner interface {
	Run(ctx context.Context, t engine.Trial) *observation.Observation
}

// Sink persists observation rows.
type Sink interface {
	Append(o *observation.Observation) error
}

// Options configure one crawl invocation.
type Options struct {
	Runs        int
	Concurrency int
	Resume      bool
	// RetryErrors makes resume skip only successfully measured rows, leaving
	// error and script_error trials retryable.
	RetryErrors bool
	Locale      string
	GeoCountry  string
}

// Orchestrator owns the trial queue and the output sink. The engine and sink
// are injected as interfaces so scheduling is testable without a browser.
type Orchestrator struct {
	opts   Options
	runner TrialRunner
	sink   Sink
	logger *zap.Logger
}

// New creates an Orchestrator.
func New(opts Options, runner TrialRunner, sink Sink, logger *zap.Logger) (*Orchestrator, error) {
	if runner == nil || sink == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if opts.Runs < 1 {
		return nil, fmt.Errorf("runs must be at least 1, got %d", opts.Runs)
	}
	if opts.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", opts.Concurrency)
	}
	return &Orchestrator{opts: opts, runner: runner, sink: sink, logger: logger.Named("orchestrator")}, nil
}

// BuildTrials expands candidates into the (domain x device x run) matrix,
// minus every key in done. Order is deterministic: candidates in input order,
// desktop before mobile, runs ascending.
func BuildTrials(candidates []candidate.Row, runs int, done map[string]struct{}) []engine.Trial {
	var trials []engine.Trial
	for _, cand := range candidates {
		for _, device := range browser.Devices() {
			for runID := 1; runID <= runs; runID++ {
				t := engine.Trial{Candidate: cand, Device: device, RunID: runID}
				if _, ok := done[t.Key()]; ok {
					continue
				}
				trials = append(trials, t)
			}
		}
	}
	return trials
}

// Crawl runs every pending trial through the bounded pool. A trial whose
// runner panics is still recorded, as a script_error fallback row; the crawl
// never aborts on a single trial. Returns (appended, failed) counts.
func (o *Orchestrator) Crawl(ctx context.Context, trials []engine.Trial) (int, int, error) {
	o.logger.Info("Starting crawl",
		zap.Int("pending_trials", len(trials)),
		zap.Int("concurrency", o.opts.Concurrency),
		zap.Int("runs", o.opts.Runs))

	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	var wg sync.WaitGroup
	var done, failed atomic.Int64

	for _, t := range trials {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return int(done.Load()), int(failed.Load()), fmt.Errorf("acquire worker slot: %w", err)
		}
		wg.Add(1)
		go func(t engine.Trial) {
			defer wg.Done()
			defer sem.Release(1)

			obs := o.runTrial(ctx, t)
			if obs.Status == observation.StatusScriptError {
				failed.Add(1)
			}
			if err := o.sink.Append(obs); err != nil {
				o.logger.Error("Failed to append observation",
					zap.String("key", t.Key()), zap.Error(err))
				return
			}
			if n := done.Add(1); n%progressEvery == 0 {
				o.logger.Info("Progress", zap.Int64("appended", n), zap.Int("total", len(trials)))
			}
		}(t)
	}

	wg.Wait()
	o.logger.Info("Crawl finished",
		zap.Int64("appended", done.Load()),
		zap.Int64("failed", failed.Load()))
	return int(done.Load()), int(failed.Load()), nil
}

// runTrial isolates one trial's execution; a panic inside the engine becomes
// a script_error fallback row instead of taking the process down.
func (o *Orchestrator) runTrial(ctx context.Context, t engine.Trial) (obs *observation.Observation) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Trial panicked",
				zap.String("key", t.Key()), zap.Any("panic", r))
			obs = o.fallbackObservation(t, fmt.Sprintf("%v", r))
		}
	}()
	return o.runner.Run(ctx, t)
}

func (o *Orchestrator) fallbackObservation(t engine.Trial, reason string) *observation.Observation {
	obs := engine.BaseObservation(t, o.opts.Locale, o.opts.GeoCountry)
	obs.Status = observation.StatusScriptError
	if len(reason) > 200 {
		reason = reason[:200]
	}
	obs.BlockedReason = reason
	obs.Notes = "Unhandled script error"
	return obs
}
