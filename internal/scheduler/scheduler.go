package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per interval.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	RunOnStart   bool
	StartupDelay time.Duration
}

// Scheduler drives periodic normalization runs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick every interval until ctx is cancelled. Tick
// errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunOnStart {
		s.execute(ctx, tick, time.Now().UTC())
	}

	next := time.Now().UTC().Add(s.opts.Interval)
	for {
		s.logger.Debug().Time("next_run", next).Msg("waiting for next run")
		if err := sleep(ctx, time.Until(next)); err != nil {
			return err
		}

		s.execute(ctx, tick, next)

		next = next.Add(s.opts.Interval)
		if now := time.Now().UTC(); next.Before(now) {
			s.logger.Warn().Time("skipped_to", now).Msg("run overran interval; skipping missed ticks")
			next = now.Add(s.opts.Interval)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	s.logger.Info().Time("at", at).Msg("executing scheduled run")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("scheduled run failed")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
