package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentworkforce/notefs/internal/config"
	"github.com/agentworkforce/notefs/internal/notefs"
)

// triggerDelay coalesces bursts of local edits into one round.
const triggerDelay = 250 * time.Millisecond

type syncer interface {
	SyncOnce(ctx context.Context) (notefs.SyncReport, error)
}

// syncLoop runs sync rounds on start, shortly after every trigger and on a
// jittered interval.
type syncLoop struct {
	replica  syncer
	interval time.Duration
	jitter   float64
	timeout  time.Duration
	logger   zerolog.Logger
	sample   func() float64
	triggers chan struct{}
}

func newSyncLoop(replica syncer, cfg config.SyncConfig, logger zerolog.Logger) *syncLoop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &syncLoop{
		replica:  replica,
		interval: interval,
		jitter:   clampJitterRatio(cfg.Jitter),
		timeout:  timeout,
		logger:   logger,
		sample:   rng.Float64,
		triggers: make(chan struct{}, 1),
	}
}

// Trigger schedules a round without blocking.
func (l *syncLoop) Trigger() {
	select {
	case l.triggers <- struct{}{}:
	default:
	}
}

func (l *syncLoop) Run(ctx context.Context) error {
	l.runOnce(ctx)
	timer := time.NewTimer(l.next())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("sync loop stopping")
			return nil
		case <-l.triggers:
			timer.Reset(triggerDelay)
		case <-timer.C:
			l.runOnce(ctx)
			timer.Reset(l.next())
		}
	}
}

func (l *syncLoop) next() time.Duration {
	return jitteredIntervalWithSample(l.interval, l.jitter, l.sample())
}

func (l *syncLoop) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	report, err := l.replica.SyncOnce(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Int("rounds", report.Rounds).Msg("sync cycle failed")
		return
	}
	l.logger.Debug().
		Int("rounds", report.Rounds).
		Int("uploaded", report.Uploaded).
		Int("retrieved", report.Retrieved).
		Int("conflicts", report.Conflicts).
		Msg("sync cycle completed")
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
