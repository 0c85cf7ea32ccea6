// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package store

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/vigilhq/vigil/internal/logging"
)

// Key prefixes for BadgerDB storage. Signal and alert keys embed a
// zero-padded UnixNano segment so lexicographic prefix scans are
// timestamp-ordered.
const (
	deviceKeyPrefix      = "device:"
	deviceTokenKeyPrefix = "device_token:"
	userKeyPrefix        = "user:"
	signalKeyPrefix      = "signal:"
	snapshotKeyPrefix    = "snapshot:"
	alertKeyPrefix       = "alert:"
	alertTSKeyPrefix     = "alert_ts:"
	alertUnackedPrefix   = "alert_unacked:"
	alertOwnerKeyPrefix  = "alert_owner:"
	alertOwnerUnackedPfx = "alert_owner_unacked:"
)

// Badger implements every store interface on a single BadgerDB instance.
type Badger struct {
	db *badger.DB
}

// Open opens (or creates) the durable store at dir.
func Open(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Badger{db: db}, nil
}

// OpenInMemory opens an ephemeral store. Used by tests.
func OpenInMemory() (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close releases the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// RunGC runs one Badger value-log GC cycle. Called periodically by the
// janitor after signal sweeps.
func (b *Badger) RunGC() {
	if err := b.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		logging.Warn().Err(err).Msg("badger value log gc")
	}
}

// tsKey renders a timestamp as a fixed-width sortable key segment.
func tsKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func unmarshalJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
