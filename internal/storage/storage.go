// Package storage provides persistent data storage for the OTP predictor.
// It uses BoltDB as the underlying storage engine to keep a snapshot of the
// cleaned training corpus and an audit log of served predictions.
//
// Keys are built so that a cursor walk returns records in a useful order:
// corpus records group by route and month, predictions sort by time.
package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"otp-predictor/internal/common"

	"go.etcd.io/bbolt"
)

const (
	recordsBucket     = "records"     // Bucket name for cleaned corpus records
	predictionsBucket = "predictions" // Bucket name for the prediction audit log
)

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance in dataPath.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, common.DefaultDatabaseName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(recordsBucket)); err != nil {
			return fmt.Errorf("create records bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing database in dataPath for export and
// inspection. Writes through the returned store fail.
func OpenReadOnly(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, common.DefaultDatabaseName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.db.Path()
}

func hasPrefix(data, prefix []byte) bool {
	return bytes.HasPrefix(data, prefix)
}

func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}
