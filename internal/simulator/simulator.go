// Package simulator drives a Monte Carlo batch: it compiles the strategy
// once, then runs every iteration (path generation, execution, per-run
// metrics) on a bounded worker pool and aggregates the results. Iterations
// share no mutable state; each derives its own seed from the base seed.
package simulator

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"strategy-lab/internal/analytics"
	"strategy-lab/internal/domain"
	"strategy-lab/internal/dsl"
	"strategy-lab/internal/engine"
	"strategy-lab/internal/pathgen"
)

// Progress reports completed iteration counts at iteration boundaries.
type Progress struct {
	Completed int
	Total     int
}

// Observer receives progress updates. It is called from worker goroutines
// under a lock, so implementations must not block for long.
type Observer func(Progress)

// Options configures a batch.
type Options struct {
	Config      *domain.SimulationConfiguration
	Source      string // strategy DSL source
	InitialCash float64
	BaseSeed    int64
	Analysis    domain.AnalysisConfiguration
	Tax         domain.TaxConfiguration
	Costs       domain.ExecutionCosts

	// Workers bounds the pool; 0 means one per CPU.
	Workers int

	// Observer, when set, is invoked after every completed iteration.
	Observer Observer

	// KeepRawResults retains every run's equity curve and transaction log
	// in the result instead of discarding them after aggregation.
	KeepRawResults bool
}

// Result is a completed batch: the aggregate report, the compiled strategy,
// and optionally the raw per-run results.
type Result struct {
	Report   *domain.SimulationReport
	Strategy *dsl.CompiledStrategy
	Runs     []*domain.SimulationRunResult // nil unless KeepRawResults
}

// Batch is a configured Monte Carlo run.
type Batch struct {
	opts Options
}

// New creates a batch. Configuration is validated at Run time so a Batch
// can be constructed before its inputs are complete.
func New(opts Options) *Batch {
	return &Batch{opts: opts}
}

// Run executes the whole batch. Any iteration failure aborts the batch with
// no partial report: a partial Monte Carlo sample would silently bias the
// statistics. Cancellation is cooperative and checked between iterations;
// completed-but-unaggregated iterations are discarded.
func (b *Batch) Run(ctx context.Context) (*Result, error) {
	cfg := b.opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("simulator: nil configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	strategy, cerr := dsl.Compile(b.opts.Source, cfg.Tickers())
	if cerr != nil {
		return nil, fmt.Errorf("simulator: compile: %w", cerr)
	}

	runs := make([]*domain.SimulationRunResult, cfg.Iterations)
	metrics := make([]*domain.SingleRunMetrics, cfg.Iterations)

	workers := b.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > cfg.Iterations {
		workers = cfg.Iterations
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		firstErr  error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}
	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				run, m, err := b.runIteration(strategy, i)
				if err != nil {
					fail(fmt.Errorf("iteration %d: %w", i, err))
					return
				}
				runs[i] = run
				metrics[i] = m

				mu.Lock()
				completed++
				done := completed
				obs := b.opts.Observer
				mu.Unlock()
				if obs != nil {
					obs(Progress{Completed: done, Total: cfg.Iterations})
				}
			}
		}()
	}

	for i := 0; i < cfg.Iterations; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			i = cfg.Iterations // stop feeding; workers drain and exit
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := analytics.Aggregate(runs, metrics)
	if err != nil {
		return nil, fmt.Errorf("simulator: aggregate: %w", err)
	}

	result := &Result{Report: report, Strategy: strategy}
	if b.opts.KeepRawResults {
		result.Runs = runs
	}
	return result, nil
}

// runIteration owns one iteration end to end: paths, execution, metrics.
func (b *Batch) runIteration(strategy *dsl.CompiledStrategy, i int) (*domain.SimulationRunResult, *domain.SingleRunMetrics, error) {
	paths, err := pathgen.Generate(b.opts.Config, IterationSeed(b.opts.BaseSeed, i))
	if err != nil {
		return nil, nil, err
	}

	run, err := engine.Run(engine.RunParams{
		Strategy:    strategy,
		Paths:       paths,
		Config:      b.opts.Config,
		InitialCash: b.opts.InitialCash,
		Tax:         b.opts.Tax,
		Costs:       b.opts.Costs,
		RunID:       i,
	})
	if err != nil {
		return nil, nil, err
	}

	m, err := analytics.ComputeRunMetrics(run, b.opts.Config.RiskFreeRate, b.opts.Analysis)
	if err != nil {
		return nil, nil, err
	}
	return run, m, nil
}

// IterationSeed derives the deterministic seed for one iteration from the
// batch's base seed.
func IterationSeed(baseSeed int64, iteration int) int64 {
	return baseSeed + int64(iteration)
}
