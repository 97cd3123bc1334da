package bitwatch

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AllRunner runs a mode over every registered root. *Engine implements it.
type AllRunner interface {
	RunAll(ctx context.Context, mode Mode, fn func(Event)) (RunSummary, error)
}

// SchedulerOptions tunes the periodic auto-run
type SchedulerOptions struct {
	// Interval between runs. Required; normally Settings.AutoRunInterval().
	Interval time.Duration
	// Mode of every run. Auto-runs normally verify without pruning.
	Mode Mode
	// RunOnStart triggers a run immediately instead of waiting one interval
	RunOnStart bool
	// OnEvent receives every event of every run. May be nil.
	OnEvent func(Event)
	// OnRun is called after each run with its merged summary. May be nil.
	OnRun func(RunSummary, error)
	// Logger defaults to zap.NewNop()
	Logger *zap.Logger
}

// Scheduler triggers RunAll on a fixed period until its context is
// cancelled. A tick that arrives while a run is still going is dropped.
type Scheduler struct {
	runner AllRunner
	opts   SchedulerOptions

	runs     atomic.Int64
	failures atomic.Int64
	changes  atomic.Int64
	runNs    atomic.Int64
	lastRun  atomic.Int64 // Unix nanoseconds of the last completed run
}

// SchedulerStats are point-in-time counters
type SchedulerStats struct {
	Runs       int64         `json:"runs" yaml:"runs"`
	Failures   int64         `json:"failures" yaml:"failures"`
	Changes    int64         `json:"changes" yaml:"changes"`
	AvgRunTime time.Duration `json:"avg_run_time" yaml:"avg_run_time"`
	LastRun    time.Time     `json:"last_run" yaml:"last_run"`
}

// NewScheduler creates a scheduler. Call Run to start the loop.
func NewScheduler(runner AllRunner, opts SchedulerOptions) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Duration(DefaultAutoRunIntervalMins) * time.Minute
	}
	return &Scheduler{runner: runner, opts: opts}
}

// Stats returns the current counters
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		Runs:     s.runs.Load(),
		Failures: s.failures.Load(),
		Changes:  s.changes.Load(),
	}
	if stats.Runs > 0 {
		stats.AvgRunTime = time.Duration(s.runNs.Load() / stats.Runs)
	}
	if last := s.lastRun.Load(); last != 0 {
		stats.LastRun = time.Unix(0, last)
	}
	return stats
}

// Run blocks until ctx is cancelled, running every Interval
func (s *Scheduler) Run(ctx context.Context) {
	log := s.opts.Logger

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	log.Info("Scheduler started", zap.Duration("interval", s.opts.Interval), zap.String("mode", s.opts.Mode.String()))

	if s.opts.RunOnStart {
		s.fire(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// fire performs one run and updates the counters
func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	summary, err := s.runner.RunAll(ctx, s.opts.Mode, s.opts.OnEvent)
	elapsed := time.Since(start)

	s.runs.Add(1)
	s.runNs.Add(elapsed.Nanoseconds())
	s.lastRun.Store(time.Now().UnixNano())
	s.changes.Add(int64(summary.TotalChanges()))
	if err != nil {
		s.failures.Add(1)
		s.opts.Logger.Warn("Scheduled run failed", zap.Error(err))
	} else {
		s.opts.Logger.Info("Scheduled run finished",
			zap.Int("changes", summary.TotalChanges()),
			zap.Int("errors", summary.Errors),
			zap.Duration("elapsed", elapsed))
	}

	if s.opts.OnRun != nil {
		s.opts.OnRun(summary, err)
	}
}
