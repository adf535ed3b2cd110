package features

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// FeatureRow is one model input. Columns names the values positionally:
// the first NumCategorical entries label Categorical, the rest label Numeric.
type FeatureRow struct {
	Columns     []string  `json:"columns"`
	Categorical []string  `json:"categorical"`
	Numeric     []float64 `json:"numeric"`
}

// Transform derives the feature row of a cleaned record. Values are not
// range-checked; negative counts and percentages above 100 pass through.
func Transform(r HistoricalRecord) FeatureRow {
	return NewFeatureRow(r.Categories(), r.Counters(), r.Month)
}

// NewFeatureRow assembles an ad-hoc prediction request in model order.
func NewFeatureRow(categories [NumCategorical]string, counters [NumCounters]float64, month time.Time) FeatureRow {
	monthNum, year := SplitMonth(month)

	numeric := make([]float64, 0, NumNumeric)
	numeric = append(numeric, counters[:]...)
	numeric = append(numeric, float64(monthNum), float64(year))

	return FeatureRow{
		Columns:     Columns(),
		Categorical: append([]string{}, categories[:]...),
		Numeric:     numeric,
	}
}

// SplitMonth decomposes a date into month-of-year (1-12) and calendar year.
func SplitMonth(t time.Time) (monthNum, year int) {
	return int(t.Month()), t.Year()
}

var monthLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"Jan-06",
	"Jan-2006",
	"Jan 2006",
	"January 2006",
	"January-2006",
}

// excelEpoch is day zero of the 1900 date system, adjusted for the
// phantom 1900-02-29 so serials past 60 land on the right day.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseMonth parses a corpus month cell. Only the month and year of the
// result are meaningful.
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidMonth
	}

	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// Spreadsheets sometimes hand dates over as serial day numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 2958466 {
		days := math.Floor(serial)
		return excelEpoch.AddDate(0, 0, int(days)), nil
	}

	return time.Time{}, ErrInvalidMonth
}
