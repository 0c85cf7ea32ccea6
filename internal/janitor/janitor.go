// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package janitor bounds signal buffer growth: a periodic sweep deletes
// every buffered record past the retention horizon, processed or not.
package janitor

import (
	"context"
	"time"

	"github.com/vigilhq/vigil/internal/logging"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/store"
)

// Config controls sweep cadence and the retention horizon.
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// DefaultConfig sweeps every five minutes with a one hour horizon.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Retention: time.Hour,
	}
}

// GC is the storage maintenance hook run after each sweep.
type GC interface {
	RunGC()
}

// Janitor is a suture service sweeping the signal buffer on a ticker.
type Janitor struct {
	signals store.SignalStore
	gc      GC
	cfg     Config
	now     func() time.Time
}

// New builds a janitor. gc may be nil when the store needs no
// maintenance pass.
func New(signals store.SignalStore, gc GC, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	return &Janitor{signals: signals, gc: gc, cfg: cfg, now: time.Now}
}

// Serve implements suture.Service: sweep on every tick until canceled.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", j.cfg.Interval).
		Dur("retention", j.cfg.Retention).
		Msg("buffer janitor running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep deletes records past the retention horizon and runs storage GC.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := j.now().Add(-j.cfg.Retention)
	removed, err := j.signals.DeleteSignalsBefore(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("janitor sweep failed")
		return
	}
	metrics.JanitorSweeps.Inc()
	if removed > 0 {
		metrics.JanitorRecordsDeleted.Add(float64(removed))
		logging.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("swept stale signal records")
	}
	if j.gc != nil {
		j.gc.RunGC()
	}
}

func (j *Janitor) String() string {
	return "buffer-janitor"
}
