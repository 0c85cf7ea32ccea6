// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package correlation implements the per-device alert decision sequence:
// schedule gate, buffer append, panic short-circuit, windowed multi-sensor
// union against the device threshold, and single-sensor fallback. The
// read-decide-mark sequence runs under a per-device mutex so concurrent
// reports for one device can never double-create an alert from
// overlapping buffer windows.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/internal/logging"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/models"
	"github.com/vigilhq/vigil/internal/schedule"
	"github.com/vigilhq/vigil/internal/store"
)

// Status is the terminal outcome of one correlation pass.
type Status string

const (
	StatusIgnoredSchedule    Status = "ignored_schedule"
	StatusPanicAlert         Status = "panic_alert_created"
	StatusMultiSensorAlert   Status = "multi_sensor_alert_created"
	StatusWaiting            Status = "waiting_for_more_sensors"
	StatusSingleSensorAlerts Status = "single_sensor_alerts_created"
	StatusDataSaved          Status = "data_saved_no_alerts"
)

// Result reports what one ingested signal vector produced.
type Result struct {
	Status           Status              `json:"status"`
	Message          string              `json:"message"`
	AlertsCreated    []string            `json:"alerts_created"`
	TriggeredSensors []models.SensorType `json:"triggered_sensors,omitempty"`
	Confidence       models.Confidence   `json:"confidence,omitempty"`
	WorkTimeActive   bool                `json:"work_time_active"`
}

// Notifier receives the engine's fan-out hooks. Implementations must be
// fire-and-forget: a slow or failing notifier never blocks or fails the
// ingestion that triggered it.
type Notifier interface {
	// AlertCreated fires once per persisted alert.
	AlertCreated(ctx context.Context, device *models.Device, alert *models.Alert)

	// IngestionProcessed fires after every successfully processed report,
	// alert or not. It carries the raw vector for device observers and
	// the device's refreshed status for the owner.
	IngestionProcessed(ctx context.Context, device *models.Device, rec *models.SignalRecord)
}

// NopNotifier discards every hook. Used by tests.
type NopNotifier struct{}

func (NopNotifier) AlertCreated(context.Context, *models.Device, *models.Alert) {}

func (NopNotifier) IngestionProcessed(context.Context, *models.Device, *models.SignalRecord) {}

// Engine runs the correlation sequence. Safe for concurrent use; reports
// for distinct devices proceed in parallel.
type Engine struct {
	devices   store.DeviceStore
	users     store.UserStore
	signals   store.SignalStore
	snapshots store.SnapshotStore
	alerts    store.AlertStore
	notifier  Notifier

	// deviceLocks stripes a mutex per device id. Entries are never
	// removed; the population is bounded by the device fleet.
	deviceLocks sync.Map

	now func() time.Time
}

// NewEngine wires the engine against its stores and fan-out notifier.
func NewEngine(devices store.DeviceStore, users store.UserStore, signals store.SignalStore, snapshots store.SnapshotStore, alerts store.AlertStore, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		devices:   devices,
		users:     users,
		signals:   signals,
		snapshots: snapshots,
		alerts:    alerts,
		notifier:  notifier,
		now:       time.Now,
	}
}

func (e *Engine) lockDevice(id string) *sync.Mutex {
	mu, _ := e.deviceLocks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Process runs the full decision sequence for one inbound signal vector.
// The returned error covers store failures only; every schedule, waiting,
// and no-trigger case is a successful Result, not an error.
func (e *Engine) Process(ctx context.Context, device *models.Device, vector models.SignalVector) (*Result, error) {
	start := e.now()
	now := start.UTC()

	if !schedule.ShouldProcess(device.Schedule, now) {
		metrics.ObserveCorrelation(start, string(StatusIgnoredSchedule))
		logging.Debug().
			Str("device_id", device.ID).
			Msg("signal outside operating schedule, discarded")
		return &Result{
			Status:         StatusIgnoredSchedule,
			Message:        "outside operating schedule, report discarded",
			WorkTimeActive: false,
		}, nil
	}

	mu := e.lockDevice(device.ID)
	mu.Lock()
	defer mu.Unlock()

	rec := &models.SignalRecord{
		ID:        uuid.New().String(),
		DeviceID:  device.ID,
		Timestamp: now,
		Vector:    vector,
	}
	if err := e.signals.AppendSignal(ctx, rec); err != nil {
		return nil, fmt.Errorf("append signal: %w", err)
	}

	var (
		res *Result
		err error
	)
	switch {
	case vector.Panic:
		res, err = e.processPanic(ctx, device, rec)
	case device.Correlation.MultiSensorRequired:
		res, err = e.processWindowed(ctx, device, rec, now)
	default:
		res, err = e.processSingle(ctx, device, rec)
	}
	if err != nil {
		return nil, err
	}

	if err := e.devices.TouchDevice(ctx, device.ID, now); err != nil {
		logging.Warn().Err(err).Str("device_id", device.ID).Msg("touch device last-seen")
	}
	e.notifier.IngestionProcessed(ctx, device, rec)

	metrics.ObserveCorrelation(start, string(res.Status))
	return res, nil
}

// processPanic short-circuits every other rule: one high-confidence panic
// alert from the current report alone.
func (e *Engine) processPanic(ctx context.Context, device *models.Device, rec *models.SignalRecord) (*Result, error) {
	snap, err := e.createSnapshot(ctx, device.ID, rec.Vector, true)
	if err != nil {
		return nil, err
	}

	triggered := []models.SensorType{models.SensorPanic}
	alert, err := e.createAlert(ctx, device, models.KindPanic, snap.ID, triggered, models.ConfidenceHigh)
	if err != nil {
		return nil, err
	}
	if err := e.signals.MarkProcessed(ctx, []*models.SignalRecord{rec}, true); err != nil {
		return nil, fmt.Errorf("mark panic record processed: %w", err)
	}

	logging.Info().
		Str("device_id", device.ID).
		Str("alert_id", alert.ID).
		Msg("panic alert created")

	return &Result{
		Status:           StatusPanicAlert,
		Message:          "panic alert created",
		AlertsCreated:    []string{alert.ID},
		TriggeredSensors: triggered,
		Confidence:       models.ConfidenceHigh,
		WorkTimeActive:   true,
	}, nil
}

// processWindowed accumulates distinct sensor types across the device's
// unprocessed window and compares the union against the threshold.
func (e *Engine) processWindowed(ctx context.Context, device *models.Device, rec *models.SignalRecord, now time.Time) (*Result, error) {
	from := now.Add(-device.Correlation.Window())
	window, err := e.signals.UnprocessedInWindow(ctx, device.ID, from, now)
	if err != nil {
		return nil, fmt.Errorf("read correlation window: %w", err)
	}

	// Distinct types in first-detection order: oldest record first,
	// canonical sensor order within a record.
	var union []models.SensorType
	seen := make(map[models.SensorType]bool, len(models.SensorOrder))
	for _, r := range window {
		for _, s := range r.Vector.Triggered() {
			if !seen[s] {
				seen[s] = true
				union = append(union, s)
			}
		}
	}

	threshold := device.Correlation.SensorCountThreshold
	if len(union) < threshold {
		missing := threshold - len(union)
		return &Result{
			Status:           StatusWaiting,
			Message:          fmt.Sprintf("waiting for %d more distinct sensor type(s)", missing),
			TriggeredSensors: union,
			WorkTimeActive:   true,
		}, nil
	}

	unionVector := models.SignalVector{
		Motion:     seen[models.SensorMotion],
		GlassBreak: seen[models.SensorGlassBreak],
		DoorOpen:   seen[models.SensorDoorOpen],
		Panic:      seen[models.SensorPanic],
	}
	snap, err := e.createSnapshot(ctx, device.ID, unionVector, true)
	if err != nil {
		return nil, err
	}

	kind := models.DominantKind(union)
	confidence := models.ConfidenceFor(len(union))
	alert, err := e.createAlert(ctx, device, kind, snap.ID, union, confidence)
	if err != nil {
		return nil, err
	}
	if err := e.signals.MarkProcessed(ctx, window, true); err != nil {
		return nil, fmt.Errorf("mark window processed: %w", err)
	}

	logging.Info().
		Str("device_id", device.ID).
		Str("alert_id", alert.ID).
		Str("kind", string(kind)).
		Int("distinct_sensors", len(union)).
		Msg("multi-sensor alert created")

	return &Result{
		Status:           StatusMultiSensorAlert,
		Message:          fmt.Sprintf("%d distinct sensor types within window", len(union)),
		AlertsCreated:    []string{alert.ID},
		TriggeredSensors: union,
		Confidence:       confidence,
		WorkTimeActive:   true,
	}, nil
}

// processSingle raises one independent alert per triggered flag in the
// current report only; the buffer window plays no part.
func (e *Engine) processSingle(ctx context.Context, device *models.Device, rec *models.SignalRecord) (*Result, error) {
	triggered := rec.Vector.Triggered()
	if len(triggered) == 0 {
		if _, err := e.createSnapshot(ctx, device.ID, rec.Vector, false); err != nil {
			return nil, err
		}
		// An all-false report holds no future correlation value; retire it.
		if err := e.signals.MarkProcessed(ctx, []*models.SignalRecord{rec}, false); err != nil {
			return nil, fmt.Errorf("mark record processed: %w", err)
		}
		return &Result{
			Status:         StatusDataSaved,
			Message:        "no sensors triggered, data saved",
			WorkTimeActive: true,
		}, nil
	}

	// One snapshot shared by every alert this report raises.
	snap, err := e.createSnapshot(ctx, device.ID, rec.Vector, true)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(triggered))
	for _, s := range triggered {
		alert, err := e.createAlert(ctx, device, models.AlertKindFor(s), snap.ID, []models.SensorType{s}, models.ConfidenceMedium)
		if err != nil {
			return nil, err
		}
		ids = append(ids, alert.ID)
	}
	if err := e.signals.MarkProcessed(ctx, []*models.SignalRecord{rec}, true); err != nil {
		return nil, fmt.Errorf("mark record processed: %w", err)
	}

	logging.Info().
		Str("device_id", device.ID).
		Int("alerts", len(ids)).
		Msg("single-sensor alerts created")

	return &Result{
		Status:           StatusSingleSensorAlerts,
		Message:          fmt.Sprintf("%d alert(s) created", len(ids)),
		AlertsCreated:    ids,
		TriggeredSensors: triggered,
		Confidence:       models.ConfidenceMedium,
		WorkTimeActive:   true,
	}, nil
}

func (e *Engine) createSnapshot(ctx context.Context, deviceID string, vector models.SignalVector, valid bool) (*models.SensorSnapshot, error) {
	snap := &models.SensorSnapshot{
		ID:             uuid.New().String(),
		DeviceID:       deviceID,
		Timestamp:      e.now().UTC(),
		Vector:         vector,
		TriggeredCount: vector.Count(),
		ValidAlert:     valid,
		WorkTimeStatus: true,
	}
	if err := e.snapshots.CreateSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return snap, nil
}

// createAlert resolves the device owner for enrichment, persists the
// alert, and fires the fan-out hook. A missing owner record degrades to an
// owner-less alert rather than failing the ingestion.
func (e *Engine) createAlert(ctx context.Context, device *models.Device, kind models.AlertKind, snapshotID string, triggered []models.SensorType, confidence models.Confidence) (*models.Alert, error) {
	var owner *models.User
	if device.Claimed() {
		u, err := e.users.UserByID(ctx, device.OwnerID)
		switch {
		case err == nil:
			owner = u
		case errors.Is(err, store.ErrNotFound):
			logging.Warn().
				Str("device_id", device.ID).
				Str("owner_id", device.OwnerID).
				Msg("device owner record missing, creating alert without owner")
		default:
			return nil, fmt.Errorf("resolve device owner: %w", err)
		}
	}

	alert, err := e.alerts.CreateAlert(ctx, device, owner, kind, snapshotID, triggered, confidence)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	metrics.AlertsCreated.WithLabelValues(string(kind)).Inc()
	e.notifier.AlertCreated(ctx, device, alert)
	return alert, nil
}
