// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vigilhq/vigil/internal/models"
)

// CreateDevice stores a device and its token index entry.
func (b *Badger) CreateDevice(ctx context.Context, d *models.Device) error {
	return b.db.Update(func(txn *badger.Txn) error {
		tokenKey := []byte(deviceTokenKeyPrefix + d.Token)
		if _, err := txn.Get(tokenKey); err == nil {
			return ErrTokenInUse
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := setJSON(txn, deviceKeyPrefix+d.ID, d); err != nil {
			return err
		}
		return txn.Set(tokenKey, []byte(d.ID))
	})
}

// DeviceByID retrieves a device record.
func (b *Badger) DeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, deviceKeyPrefix+id, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeviceByToken resolves an ingestion token to its device. Unknown tokens
// and inactive devices both surface ErrInvalidToken: callers must not be
// able to distinguish a revoked token from one that never existed.
func (b *Badger) DeviceByToken(ctx context.Context, token string) (*models.Device, error) {
	var d models.Device
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(deviceTokenKeyPrefix + token))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, deviceKeyPrefix+id, &d)
	})
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, ErrInvalidToken
	}
	return &d, nil
}

// UpdateDevice rewrites a device record. The token index follows a token
// rotation.
func (b *Badger) UpdateDevice(ctx context.Context, d *models.Device) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var prev models.Device
		if err := getJSON(txn, deviceKeyPrefix+d.ID, &prev); err != nil {
			return err
		}
		if prev.Token != d.Token {
			if err := txn.Delete([]byte(deviceTokenKeyPrefix + prev.Token)); err != nil {
				return err
			}
			if err := txn.Set([]byte(deviceTokenKeyPrefix+d.Token), []byte(d.ID)); err != nil {
				return err
			}
		}
		return setJSON(txn, deviceKeyPrefix+d.ID, d)
	})
}

// TouchDevice records the device's last-seen instant.
func (b *Badger) TouchDevice(ctx context.Context, id string, seen time.Time) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var d models.Device
		if err := getJSON(txn, deviceKeyPrefix+id, &d); err != nil {
			return err
		}
		d.LastSeen = seen
		return setJSON(txn, deviceKeyPrefix+d.ID, &d)
	})
}

// ListActiveClaimed returns active devices with an owner.
func (b *Badger) ListActiveClaimed(ctx context.Context) ([]*models.Device, error) {
	var out []*models.Device
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(deviceKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var d models.Device
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalJSON(val, &d)
			}); err != nil {
				return err
			}
			if d.Active && d.Claimed() {
				dev := d
				out = append(out, &dev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateUser stores an identity record.
func (b *Badger) CreateUser(ctx context.Context, u *models.User) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKeyPrefix+u.ID, u)
	})
}

// UserByID retrieves an identity record.
func (b *Badger) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKeyPrefix+id, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}
