// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/vigilhq/vigil/internal/models"
)

// Alert index keys. alert_ts orders all alerts by creation time,
// alert_owner scopes them per owner, and the unacked indexes make unread
// counts a keys-only scan.
func alertTSKey(a *models.Alert) string {
	return alertTSKeyPrefix + tsKey(a.Timestamp) + ":" + a.ID
}

func alertOwnerKey(a *models.Alert) string {
	return alertOwnerKeyPrefix + a.OwnerID + ":" + tsKey(a.Timestamp) + ":" + a.ID
}

func alertOwnerUnackedKey(ownerID, id string) string {
	return alertOwnerUnackedPfx + ownerID + ":" + id
}

// CreateAlert persists a new alert, copying the device's current
// name/address and the owner's identity onto the record. An unclaimed
// device leaves the owner fields at their zero values; creation never
// fails for lack of an owner.
func (b *Badger) CreateAlert(ctx context.Context, device *models.Device, owner *models.User, kind models.AlertKind, snapshotID string, triggered []models.SensorType, confidence models.Confidence) (*models.Alert, error) {
	name := device.Name
	if name == "" {
		name = "Unnamed Device"
	}

	a := &models.Alert{
		ID:               uuid.New().String(),
		DeviceID:         device.ID,
		Kind:             kind,
		Timestamp:        time.Now().UTC(),
		SnapshotID:       snapshotID,
		DeviceName:       name,
		DeviceAddress:    device.Address,
		TriggeredSensors: triggered,
		SensorsCount:     len(triggered),
		Confidence:       confidence,
	}
	if owner != nil {
		a.OwnerID = owner.ID
		a.OwnerUsername = owner.Username
		a.OwnerFullName = owner.FullName
		a.OwnerPhone = owner.Phone
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, alertKeyPrefix+a.ID, a); err != nil {
			return err
		}
		if err := txn.Set([]byte(alertTSKey(a)), nil); err != nil {
			return err
		}
		if err := txn.Set([]byte(alertUnackedPrefix+a.ID), nil); err != nil {
			return err
		}
		if a.OwnerID != "" {
			if err := txn.Set([]byte(alertOwnerKey(a)), nil); err != nil {
				return err
			}
			if err := txn.Set([]byte(alertOwnerUnackedKey(a.OwnerID, a.ID)), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AlertByID retrieves one alert.
func (b *Badger) AlertByID(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, alertKeyPrefix+id, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Acknowledge flips the acknowledgement flag. Acknowledging an alert that
// is already acknowledged is a no-op success and leaves every other field,
// including the timestamp and enrichment copies, untouched.
func (b *Badger) Acknowledge(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		_, err := acknowledgeInTxn(txn, id)
		return err
	})
}

// acknowledgeInTxn performs the acknowledgement transition and reports
// whether the record actually changed.
func acknowledgeInTxn(txn *badger.Txn, id string) (bool, error) {
	var a models.Alert
	if err := getJSON(txn, alertKeyPrefix+id, &a); err != nil {
		return false, err
	}
	if a.Acknowledged {
		return false, nil
	}
	a.Acknowledged = true
	if err := setJSON(txn, alertKeyPrefix+a.ID, &a); err != nil {
		return false, err
	}
	if err := txn.Delete([]byte(alertUnackedPrefix + a.ID)); err != nil {
		return false, err
	}
	if a.OwnerID != "" {
		if err := txn.Delete([]byte(alertOwnerUnackedKey(a.OwnerID, a.ID))); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AcknowledgeBulk acknowledges a batch of ids and returns how many records
// transitioned. Unknown ids are skipped, not errors.
func (b *Badger) AcknowledgeBulk(ctx context.Context, ids []string) (int, error) {
	count := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			changed, err := acknowledgeInTxn(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if changed {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountUnacknowledgedByOwner counts the owner's unread alerts via the
// keys-only unacked index.
func (b *Badger) CountUnacknowledgedByOwner(ctx context.Context, ownerID string) (int, error) {
	return b.countPrefix(alertOwnerUnackedPfx + ownerID + ":")
}

// ListAlertsByOwner returns the owner's alerts, newest first.
func (b *Badger) ListAlertsByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Alert, error) {
	return b.listByIndex(alertOwnerKeyPrefix+ownerID+":", limit)
}

// ListAlerts returns all alerts, newest first.
func (b *Badger) ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	return b.listByIndex(alertTSKeyPrefix, limit)
}

// listByIndex walks a timestamp-ordered index in reverse and loads the
// referenced alerts.
func (b *Badger) listByIndex(prefix string, limit int) ([]*models.Alert, error) {
	var out []*models.Alert
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		// In reverse mode, seek to the end of the prefix range.
		seek := append([]byte(prefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
			key := string(it.Item().Key())
			id := key[strings.LastIndexByte(key, ':')+1:]
			var a models.Alert
			if err := getJSON(txn, alertKeyPrefix+id, &a); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			out = append(out, &a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountAlertsSince counts one device's alerts created at or after t.
func (b *Badger) CountAlertsSince(ctx context.Context, deviceID string, t time.Time) (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(alertTSKeyPrefix)
		seek := []byte(alertTSKeyPrefix + tsKey(t))
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id := key[strings.LastIndexByte(key, ':')+1:]
			var a models.Alert
			if err := getJSON(txn, alertKeyPrefix+id, &a); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			if a.DeviceID == deviceID {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Stats recomputes the dashboard counters on demand. AlertsToday counts
// alerts created since local midnight of now.
func (b *Badger) Stats(ctx context.Context, now time.Time) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{LastUpdated: now}

	total, err := b.countPrefix(alertTSKeyPrefix)
	if err != nil {
		return nil, err
	}
	stats.TotalAlerts = total

	unacked, err := b.countPrefix(alertUnackedPrefix)
	if err != nil {
		return nil, err
	}
	stats.Unacknowledged = unacked

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := b.countRangeFrom(alertTSKeyPrefix, midnight)
	if err != nil {
		return nil, err
	}
	stats.AlertsToday = today

	devices, err := b.ListActiveClaimed(ctx)
	if err != nil {
		return nil, err
	}
	stats.ActiveDevices = len(devices)

	return stats, nil
}

// countPrefix counts keys under a prefix without loading values.
func (b *Badger) countPrefix(prefix string) (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// countRangeFrom counts keys in a timestamp-ordered index at or after t.
func (b *Badger) countRangeFrom(prefix string, t time.Time) (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		seek := []byte(prefix + tsKey(t))
		for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
