// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/internal/models"
	"github.com/vigilhq/vigil/internal/store"
)

func TestSweepRemovesOnlyStaleRecords(t *testing.T) {
	ctx := context.Background()
	b, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	deviceID := uuid.New().String()
	appendAt := func(age time.Duration, processed bool) {
		rec := &models.SignalRecord{
			ID:        uuid.New().String(),
			DeviceID:  deviceID,
			Timestamp: now.Add(-age),
			Vector:    models.SignalVector{Motion: true},
			Processed: processed,
		}
		if err := b.AppendSignal(ctx, rec); err != nil {
			t.Fatalf("append signal: %v", err)
		}
	}

	appendAt(2*time.Hour, true)
	appendAt(61*time.Minute, false) // stale even though unprocessed
	appendAt(59*time.Minute, false)
	appendAt(time.Minute, true)

	j := New(b, b, Config{Interval: time.Minute, Retention: time.Hour})
	j.now = func() time.Time { return now }
	j.Sweep(ctx)

	got, err := b.UnprocessedInWindow(ctx, deviceID, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("read buffer: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unprocessed survivors = %d, want 1", len(got))
	}
	if !got[0].Timestamp.Equal(now.Add(-59 * time.Minute)) {
		t.Errorf("wrong survivor: %v", got[0].Timestamp)
	}

	// The processed record inside the horizon must survive too: a second
	// sweep with nothing stale removes nothing.
	j.Sweep(ctx)
	got, err = b.UnprocessedInWindow(ctx, deviceID, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("read buffer: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("second sweep changed survivors: %d", len(got))
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	b, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	j := New(b, nil, Config{Interval: 10 * time.Millisecond, Retention: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- j.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop on cancel")
	}
}
