package features

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// Drop reasons reported by Clean.
const (
	DropNonNumeric   = "non_numeric"
	DropMissingValue = "missing_value"
	DropInvalidMonth = "invalid_month"
)

// CleanResult holds the records that survived coercion and the number of
// records dropped per reason.
type CleanResult struct {
	Records []HistoricalRecord
	Dropped map[string]int
}

// DroppedTotal is the number of records Clean discarded.
func (c CleanResult) DroppedTotal() int {
	total := 0
	for _, n := range c.Dropped {
		total += n
	}
	return total
}

// Clean coerces every raw record and drops any with a missing or
// non-numeric feature or target. Dropped rows are counted, not imputed.
func Clean(raws []RawRecord) CleanResult {
	res := CleanResult{
		Records: make([]HistoricalRecord, 0, len(raws)),
		Dropped: make(map[string]int),
	}
	for i, raw := range raws {
		rec, err := Coerce(raw)
		if err != nil {
			reason := dropReason(err)
			res.Dropped[reason]++
			log.Debug().Err(err).Int("row", i).Str("reason", reason).Msg("Dropping corpus record")
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMonth):
		return DropInvalidMonth
	case errors.Is(err, ErrMissingValue):
		return DropMissingValue
	default:
		return DropNonNumeric
	}
}
