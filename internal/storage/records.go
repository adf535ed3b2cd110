package storage

import (
	"encoding/json"
	"fmt"

	"otp-predictor/internal/features"

	"go.etcd.io/bbolt"
)

// recordKey groups records by route and month; seq keeps duplicates apart.
func recordKey(r features.HistoricalRecord, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%s_%08d", r.Route, r.Month.Format("200601"), seq))
}

// StoreRecords appends cleaned corpus records.
func (s *Store) StoreRecords(records []features.HistoricalRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRecords(tx.Bucket([]byte(recordsBucket)), records)
	})
}

// ReplaceRecords swaps the stored corpus for records in one transaction.
func (s *Store) ReplaceRecords(records []features.HistoricalRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(recordsBucket)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("drop records bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(recordsBucket))
		if err != nil {
			return fmt.Errorf("create records bucket: %w", err)
		}
		return putRecords(b, records)
	})
}

func putRecords(b *bbolt.Bucket, records []features.HistoricalRecord) error {
	for _, r := range records {
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next record sequence: %w", err)
		}

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}

		if err := b.Put(recordKey(r, seq), data); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
	}
	return nil
}

// GetRecords returns the stored records of route, or every record when
// route is empty.
func (s *Store) GetRecords(route string) ([]features.HistoricalRecord, error) {
	var records []features.HistoricalRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		var prefix []byte
		if route != "" {
			prefix = []byte(route + "_")
		}

		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var rec features.HistoricalRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			// Routes may themselves contain underscores.
			if route != "" && rec.Route != route {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// CountRecords returns the number of stored corpus records.
func (s *Store) CountRecords() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}
