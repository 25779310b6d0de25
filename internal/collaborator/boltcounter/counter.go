// Package boltcounter implements the legacy call-count contract on a
// local bbolt database. Entries are keyed by {callerID}:{resourceID} in
// a single bucket and decremented inside one update transaction, so the
// leftNum > 0 guard and the write are a single conditional update.
package boltcounter

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/apimart/gateway/internal/collaborator"
)

var bucketName = []byte("user_interface_counts")

// Store is a legacy counter store backed by a bbolt file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the counter database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltcounter: open %s: %w", path, err)
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		_, errBucket := tx.CreateBucketIfNotExists(bucketName)
		return errBucket
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltcounter: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func counterKey(callerID, resourceID int64) []byte {
	return []byte(fmt.Sprintf("%d:%d", callerID, resourceID))
}

// Get returns the counter entry for the pair, or nil when none exists.
func (s *Store) Get(ctx context.Context, callerID, resourceID int64) (*collaborator.Counter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var counter *collaborator.Counter
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get(counterKey(callerID, resourceID))
		if raw == nil {
			return nil
		}
		var c collaborator.Counter
		if errUnmarshal := json.Unmarshal(raw, &c); errUnmarshal != nil {
			return fmt.Errorf("decode counter: %w", errUnmarshal)
		}
		counter = &c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltcounter: get: %w", err)
	}
	return counter, nil
}

// Set writes a counter entry. Used by provisioning and tests.
func (s *Store) Set(ctx context.Context, callerID, resourceID int64, counter collaborator.Counter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw, errMarshal := json.Marshal(counter)
		if errMarshal != nil {
			return errMarshal
		}
		return tx.Bucket(bucketName).Put(counterKey(callerID, resourceID), raw)
	})
	if err != nil {
		return fmt.Errorf("boltcounter: set: %w", err)
	}
	return nil
}

// DecrementIfPositive applies leftNum-1/totalNum+1 only when leftNum is
// still positive at update time. The guard and the write share one
// transaction, so concurrent decrements can never take leftNum below
// zero.
func (s *Store) DecrementIfPositive(ctx context.Context, callerID, resourceID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	changed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		key := counterKey(callerID, resourceID)
		raw := bucket.Get(key)
		if raw == nil {
			return nil
		}
		var c collaborator.Counter
		if errUnmarshal := json.Unmarshal(raw, &c); errUnmarshal != nil {
			return fmt.Errorf("decode counter: %w", errUnmarshal)
		}
		if c.LeftNum <= 0 {
			return nil
		}
		c.LeftNum--
		c.TotalNum++
		updated, errMarshal := json.Marshal(c)
		if errMarshal != nil {
			return errMarshal
		}
		if errPut := bucket.Put(key, updated); errPut != nil {
			return errPut
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("boltcounter: decrement: %w", err)
	}
	return changed, nil
}
