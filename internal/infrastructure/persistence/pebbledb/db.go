// Package pebbledb persists agent state in an ordered key-value store.
// Record keys are tuple-encoded so that range scans walk records in the
// composite order the sync engine drains them in.
package pebbledb

import (
	"bytes"

	"github.com/cockroachdb/pebble"

	"github.com/turtacn/didagent/pkg/errors"
)

// DB wraps a pebble database. All writes are synced to disk before they
// return.
type DB struct {
	db *pebble.DB
}

// Open opens or creates the store at path.
func Open(path string) (*DB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to open store at %s", path)
	}
	return &DB{db: db}, nil
}

// Close flushes and closes the store.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Set(key, value []byte) error {
	if err := d.db.Set(key, value, pebble.Sync); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "store write failed")
	}
	return nil
}

// get returns the value for key and whether it exists.
func (d *DB) Get(key []byte) ([]byte, bool, error) {
	value, closer, err := d.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeInternal, "store read failed")
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, false, errors.Wrap(err, errors.CodeInternal, "store read failed")
	}
	return out, true, nil
}

func (d *DB) Delete(key []byte) error {
	if err := d.db.Delete(key, pebble.Sync); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "store delete failed")
	}
	return nil
}

// ScanPrefix visits every record under prefix in key order.
func (d *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := d.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "store scan failed")
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "store scan failed")
	}
	return nil
}

// DeleteBatch commits a set of deletes atomically.
func (d *DB) DeleteBatch(keys [][]byte) error {
	batch := d.db.NewBatch()
	defer batch.Close()
	for _, key := range keys {
		if err := batch.Delete(key, nil); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "batch delete failed")
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "batch commit failed")
	}
	return nil
}
