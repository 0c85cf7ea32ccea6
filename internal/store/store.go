// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package store persists Vigil's durable records - devices, users, the
// signal buffer, sensor snapshots, and alerts - on BadgerDB. The record
// contract consumed by the correlation engine and the gateway is expressed
// as small per-concern interfaces; Badger is the single implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vigilhq/vigil/internal/models"
)

// Sentinel errors surfaced to callers.
var (
	ErrNotFound     = errors.New("record not found")
	ErrTokenInUse   = errors.New("device token already in use")
	ErrInvalidToken = errors.New("unknown or inactive device token")
)

// DeviceStore manages device records and the token lookup index.
type DeviceStore interface {
	CreateDevice(ctx context.Context, d *models.Device) error
	DeviceByID(ctx context.Context, id string) (*models.Device, error)

	// DeviceByToken resolves an ingestion token. Inactive devices resolve
	// to ErrInvalidToken so callers reject them before any processing.
	DeviceByToken(ctx context.Context, token string) (*models.Device, error)

	UpdateDevice(ctx context.Context, d *models.Device) error

	// TouchDevice records the device's last-seen instant.
	TouchDevice(ctx context.Context, id string, seen time.Time) error

	// ListActiveClaimed returns active devices that have an owner.
	ListActiveClaimed(ctx context.Context) ([]*models.Device, error)
}

// UserStore resolves identity records for alert enrichment.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
}

// SignalStore is the append-only per-device signal buffer.
type SignalStore interface {
	AppendSignal(ctx context.Context, rec *models.SignalRecord) error

	// UnprocessedInWindow returns the device's unprocessed records with
	// timestamps in [from, to], oldest first.
	UnprocessedInWindow(ctx context.Context, deviceID string, from, to time.Time) ([]*models.SignalRecord, error)

	// MarkProcessed flips the processed (and optionally created-alert)
	// flags on a batch of records in a single transaction.
	MarkProcessed(ctx context.Context, recs []*models.SignalRecord, createdAlert bool) error

	// DeleteSignalsBefore removes every record older than cutoff,
	// regardless of processed state, and reports the count removed.
	DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SnapshotStore persists decision-point sensor summaries.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, s *models.SensorSnapshot) error
	SnapshotByID(ctx context.Context, id string) (*models.SensorSnapshot, error)
}

// AlertStore persists alerts with point-in-time owner/device enrichment
// and the single acknowledgement transition.
type AlertStore interface {
	// CreateAlert copies the device's current name/address and, when owner
	// is non-nil, the owner's identity onto the new record. The copied
	// fields never change afterwards.
	CreateAlert(ctx context.Context, device *models.Device, owner *models.User, kind models.AlertKind, snapshotID string, triggered []models.SensorType, confidence models.Confidence) (*models.Alert, error)

	AlertByID(ctx context.Context, id string) (*models.Alert, error)

	// Acknowledge is idempotent: acknowledging an already-acknowledged
	// alert succeeds without touching the record.
	Acknowledge(ctx context.Context, id string) error

	// AcknowledgeBulk acknowledges a batch and returns how many records
	// actually transitioned.
	AcknowledgeBulk(ctx context.Context, ids []string) (int, error)

	CountUnacknowledgedByOwner(ctx context.Context, ownerID string) (int, error)
	ListAlertsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Alert, error)
	ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error)

	// CountAlertsSince counts alerts for one device created at or after t.
	CountAlertsSince(ctx context.Context, deviceID string, t time.Time) (int, error)

	// Stats recomputes the live dashboard counters. AlertsToday counts
	// alerts created since local midnight of now.
	Stats(ctx context.Context, now time.Time) (*models.DashboardStats, error)
}
