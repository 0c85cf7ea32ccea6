// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vigilhq/vigil/internal/models"
)

// signalKey builds the buffer key for one record. The padded UnixNano
// segment keeps per-device prefix scans in timestamp order.
func signalKey(rec *models.SignalRecord) string {
	return signalKeyPrefix + rec.DeviceID + ":" + tsKey(rec.Timestamp) + ":" + rec.ID
}

// AppendSignal stores one buffer record.
func (b *Badger) AppendSignal(ctx context.Context, rec *models.SignalRecord) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, signalKey(rec), rec)
	})
}

// UnprocessedInWindow returns the device's unprocessed records with
// timestamps in [from, to], oldest first.
func (b *Badger) UnprocessedInWindow(ctx context.Context, deviceID string, from, to time.Time) ([]*models.SignalRecord, error) {
	var out []*models.SignalRecord
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(signalKeyPrefix + deviceID + ":")
		// Seek directly to the window start; keys are timestamp-ordered.
		seek := []byte(signalKeyPrefix + deviceID + ":" + tsKey(from))
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var rec models.SignalRecord
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalJSON(val, &rec)
			}); err != nil {
				return err
			}
			if rec.Timestamp.After(to) {
				break
			}
			if rec.Processed {
				continue
			}
			r := rec
			out = append(out, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkProcessed flips the processed flag (and created-alert flag when
// requested) on a batch of records in one transaction. The passed records
// are updated in place on success.
func (b *Badger) MarkProcessed(ctx context.Context, recs []*models.SignalRecord, createdAlert bool) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			updated := *rec
			updated.Processed = true
			if createdAlert {
				updated.CreatedAlert = true
			}
			if err := setJSON(txn, signalKey(&updated), &updated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, rec := range recs {
		rec.Processed = true
		if createdAlert {
			rec.CreatedAlert = true
		}
	}
	return nil
}

// DeleteSignalsBefore removes every buffer record older than cutoff,
// regardless of processed state. The timestamp is parsed from the key so
// the sweep never loads record values.
func (b *Badger) DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var stale [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(signalKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ts, ok := signalKeyTimestamp(string(key))
			if !ok {
				continue
			}
			if ts.Before(cutoff) {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// signalKeyTimestamp extracts the timestamp segment from a signal key.
func signalKeyTimestamp(key string) (time.Time, bool) {
	parts := strings.Split(strings.TrimPrefix(key, signalKeyPrefix), ":")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// CreateSnapshot persists a decision-point sensor summary.
func (b *Badger) CreateSnapshot(ctx context.Context, s *models.SensorSnapshot) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, snapshotKeyPrefix+s.ID, s)
	})
}

// SnapshotByID retrieves a sensor snapshot.
func (b *Badger) SnapshotByID(ctx context.Context, id string) (*models.SensorSnapshot, error) {
	var s models.SensorSnapshot
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, snapshotKeyPrefix+id, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}
