package features

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingColumns = errors.New("corpus is missing required columns")
	ErrNonNumeric     = errors.New("non-numeric value")
	ErrMissingValue   = errors.New("missing value")
	ErrInvalidMonth   = errors.New("invalid month")
)

// RawRecord is one corpus row exactly as read, keyed by field.
type RawRecord map[Field]string

// HistoricalRecord is a cleaned corpus row with every numeric field present.
type HistoricalRecord struct {
	Route         string    `json:"route"`
	DepartingPort string    `json:"departing_port"`
	ArrivingPort  string    `json:"arriving_port"`
	Airline       string    `json:"airline"`
	Month         time.Time `json:"month"`

	SectorsScheduled    float64 `json:"sectors_scheduled"`
	SectorsFlown        float64 `json:"sectors_flown"`
	Cancellations       float64 `json:"cancellations"`
	DeparturesOnTime    float64 `json:"departures_on_time"`
	ArrivalsOnTime      float64 `json:"arrivals_on_time"`
	DeparturesDelayed   float64 `json:"departures_delayed"`
	ArrivalsDelayed     float64 `json:"arrivals_delayed"`
	OnTimeDeparturesPct float64 `json:"ontime_departures_pct"`
	CancellationsPct    float64 `json:"cancellations_pct"`

	OnTimeArrivalsPct float64 `json:"ontime_arrivals_pct"`
}

// Counters returns the nine operational counters in CounterFields order.
func (r HistoricalRecord) Counters() [NumCounters]float64 {
	return [NumCounters]float64{
		r.SectorsScheduled,
		r.SectorsFlown,
		r.Cancellations,
		r.DeparturesOnTime,
		r.ArrivalsOnTime,
		r.DeparturesDelayed,
		r.ArrivalsDelayed,
		r.OnTimeDeparturesPct,
		r.CancellationsPct,
	}
}

// Categories returns the four categorical identifiers in CategoricalFields order.
func (r HistoricalRecord) Categories() [NumCategorical]string {
	return [NumCategorical]string{r.Route, r.DepartingPort, r.ArrivingPort, r.Airline}
}

// FieldError reports which field stopped a raw record from being coerced.
type FieldError struct {
	Field Field
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v %q", e.Field, e.Err, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

// thousandsNumber matches a number grouped with commas, e.g. "1,234.5".
var thousandsNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// ParseNumber converts a corpus cell to a float. Empty cells are missing;
// tokens such as "na" or "-" are non-numeric. Both are reported, never imputed.
// Commas are only accepted as well-formed thousands separators.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), ErrMissingValue
	}
	if thousandsNumber.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), ErrNonNumeric
	}
	return v, nil
}

// Coerce converts a raw row into a HistoricalRecord. The first field that is
// missing, non-numeric or an unparsable month is returned as a *FieldError.
func Coerce(raw RawRecord) (HistoricalRecord, error) {
	month, err := ParseMonth(raw[FieldMonth])
	if err != nil {
		return HistoricalRecord{}, &FieldError{Field: FieldMonth, Value: raw[FieldMonth], Err: ErrInvalidMonth}
	}

	rec := HistoricalRecord{
		Route:         strings.TrimSpace(raw[FieldRoute]),
		DepartingPort: strings.TrimSpace(raw[FieldDepartingPort]),
		ArrivingPort:  strings.TrimSpace(raw[FieldArrivingPort]),
		Airline:       strings.TrimSpace(raw[FieldAirline]),
		Month:         month,
	}

	targets := []struct {
		field Field
		dst   *float64
	}{
		{FieldSectorsScheduled, &rec.SectorsScheduled},
		{FieldSectorsFlown, &rec.SectorsFlown},
		{FieldCancellations, &rec.Cancellations},
		{FieldDeparturesOnTime, &rec.DeparturesOnTime},
		{FieldArrivalsOnTime, &rec.ArrivalsOnTime},
		{FieldDeparturesDelayed, &rec.DeparturesDelayed},
		{FieldArrivalsDelayed, &rec.ArrivalsDelayed},
		{FieldOnTimeDeparturesPct, &rec.OnTimeDeparturesPct},
		{FieldCancellationsPct, &rec.CancellationsPct},
		{FieldOnTimeArrivalsPct, &rec.OnTimeArrivalsPct},
	}
	for _, t := range targets {
		v, err := ParseNumber(raw[t.field])
		if err != nil {
			return HistoricalRecord{}, &FieldError{Field: t.field, Value: raw[t.field], Err: err}
		}
		*t.dst = v
	}

	return rec, nil
}

// RawFromRow builds a RawRecord from one spreadsheet row using a header index.
func RawFromRow(idx HeaderIndex, row []string) RawRecord {
	raw := make(RawRecord, len(RequiredFields))
	for _, f := range RequiredFields {
		raw[f] = idx.Cell(row, f)
	}
	return raw
}
