package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"otp-predictor/internal/ml"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// predictionKey sorts by time; the uuid suffix keeps same-nanosecond
// entries apart.
func predictionKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

// StorePrediction appends ev to the audit log.
func (s *Store) StorePrediction(ev ml.PredictionEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.RequestID == "" {
		ev.RequestID = uuid.NewString()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}

		return b.Put(predictionKey(ev.Timestamp, uuid.NewString()), data)
	})
}

// GetPredictions returns logged predictions with start <= timestamp <= end,
// oldest first.
func (s *Store) GetPredictions(start, end time.Time) ([]ml.PredictionEvent, error) {
	var events []ml.PredictionEvent

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		// '~' sorts after every uuid character, so end is inclusive.
		endKey := []byte(fmt.Sprintf("%020d_~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && compareKeys(k, endKey) <= 0; k, v = c.Next() {
			var ev ml.PredictionEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				continue // Skip malformed records
			}
			events = append(events, ev)
		}
		return nil
	})

	return events, err
}

// ObservePrediction logs ev, so the store can be registered as a model
// server observer.
func (s *Store) ObservePrediction(ev ml.PredictionEvent) {
	if err := s.StorePrediction(ev); err != nil {
		log.Error().Err(err).Str("request_id", ev.RequestID).Msg("Failed to store prediction")
	}
}
