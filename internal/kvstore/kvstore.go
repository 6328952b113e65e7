package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Keys of the scalar values the application keeps.
const (
	KeyEarnings   = "TOTAL_EARNINGS"
	KeyNavigation = "APP_STATE"
	KeyIdentity   = "USER"

	// SnapshotKeyPrefix scopes local snapshots by normalized email.
	SnapshotKeyPrefix = "cloud-scope:"
)

var bucketScalars = []byte("scalars")

var ErrClosed = errors.New("scalar store closed")

// Store is a string-to-string map persisted in a bbolt file.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// Open creates or opens the scalar store at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("failed to create scalar store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open scalar store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScalars)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create scalar bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScalars).Put([]byte(key), []byte(value))
	})
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseNotOpen) {
			err = ErrClosed
		}
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key. A read failure is logged and reported as
// absent.
func (s *Store) Get(key string) (string, bool) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		// Bytes returned by bbolt are only valid inside the transaction.
		if v := tx.Bucket(bucketScalars).Get([]byte(key)); v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to read scalar", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, found
}

// Delete removes key. Removing a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScalars).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close releases the bolt file lock.
func (s *Store) Close() error {
	return s.db.Close()
}
