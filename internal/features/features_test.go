package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRaw() RawRecord {
	return RawRecord{
		FieldRoute:               "Adelaide-Brisbane",
		FieldDepartingPort:       "Adelaide",
		FieldArrivingPort:        "Brisbane",
		FieldAirline:             "Qantas",
		FieldMonth:               "2019-03-01",
		FieldSectorsScheduled:    "120",
		FieldSectorsFlown:        "118",
		FieldCancellations:       "2",
		FieldDeparturesOnTime:    "100",
		FieldArrivalsOnTime:      "98",
		FieldDeparturesDelayed:   "18",
		FieldArrivalsDelayed:     "20",
		FieldOnTimeDeparturesPct: "84.7",
		FieldCancellationsPct:    "1.7",
		FieldOnTimeArrivalsPct:   "83.1",
	}
}

func TestColumns_FixedOrder(t *testing.T) {
	expected := []string{
		"route", "departing_port", "arriving_port", "airline",
		"sectors_scheduled", "sectors_flown", "cancellations",
		"departures_on_time", "arrivals_on_time",
		"departures_delayed", "arrivals_delayed",
		"ontime_departures_pct", "cancellations_pct",
		"month_num", "year",
	}
	assert.Equal(t, expected, Columns())
	assert.Len(t, Columns(), NumColumns)
}

func TestTransform_ColumnOrderIndependentOfValues(t *testing.T) {
	records := []HistoricalRecord{
		{},
		{Route: "A-B", Month: time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC), SectorsScheduled: -5},
		{Route: "x", Airline: "y", Month: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), CancellationsPct: 250},
	}
	for _, r := range records {
		row := Transform(r)
		assert.Equal(t, Columns(), row.Columns)
		assert.Len(t, row.Categorical, NumCategorical)
		assert.Len(t, row.Numeric, NumNumeric)
	}
}

func TestTransform_MonthDecomposition(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		date := time.Date(2017, m, 15, 0, 0, 0, 0, time.UTC)
		row := Transform(HistoricalRecord{Month: date})

		monthNum := row.Numeric[NumNumeric-2]
		year := row.Numeric[NumNumeric-1]
		assert.GreaterOrEqual(t, monthNum, 1.0)
		assert.LessOrEqual(t, monthNum, 12.0)
		assert.Equal(t, float64(m), monthNum)
		assert.Equal(t, 2017.0, year)
	}
}

func TestTransform_NoRangeValidation(t *testing.T) {
	rec := HistoricalRecord{
		Month:               time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		SectorsScheduled:    -10,
		OnTimeDeparturesPct: 140,
	}
	row := Transform(rec)
	assert.Equal(t, -10.0, row.Numeric[0])
	assert.Equal(t, 140.0, row.Numeric[7])
}

func TestCoerce_Valid(t *testing.T) {
	rec, err := Coerce(sampleRaw())
	require.NoError(t, err)

	assert.Equal(t, "Adelaide-Brisbane", rec.Route)
	assert.Equal(t, time.March, rec.Month.Month())
	assert.Equal(t, 2019, rec.Month.Year())
	assert.Equal(t, 120.0, rec.SectorsScheduled)
	assert.Equal(t, 83.1, rec.OnTimeArrivalsPct)
}

func TestCoerce_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value string
		want  error
	}{
		{"na token in counter", FieldCancellations, "na", ErrNonNumeric},
		{"dash in percentage", FieldCancellationsPct, "-", ErrNonNumeric},
		{"missing target", FieldOnTimeArrivalsPct, "", ErrMissingValue},
		{"na target", FieldOnTimeArrivalsPct, "na", ErrNonNumeric},
		{"bad month", FieldMonth, "sometime", ErrInvalidMonth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := sampleRaw()
			raw[tt.field] = tt.value

			_, err := Coerce(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestParseNumber(t *testing.T) {
	valid := []struct {
		in   string
		want float64
	}{
		{" 1,234.5 ", 1234.5},
		{"1,234,567", 1234567},
		{"-2,500", -2500},
		{"81.6", 81.6},
		{"1e3", 1000},
	}
	for _, tt := range valid {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseNumber(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	for _, in := range []string{"NaN", "Inf", "na", "-", "1,2,3", ",5", "12,34", "1,234,", "1,,234"} {
		t.Run(in, func(t *testing.T) {
			v, err := ParseNumber(in)
			assert.ErrorIs(t, err, ErrNonNumeric)
			assert.True(t, math.IsNaN(v))
		})
	}

	v, err := ParseNumber("")
	assert.ErrorIs(t, err, ErrMissingValue)
	assert.True(t, math.IsNaN(v))
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		in    string
		month time.Month
		year  int
	}{
		{"2019-03-01", time.March, 2019},
		{"2019-03-01 00:00:00", time.March, 2019},
		{"2019-03-01T00:00:00Z", time.March, 2019},
		{"2019-03", time.March, 2019},
		{"Mar-19", time.March, 2019},
		{"March 2019", time.March, 2019},
		{"03/01/2019", time.March, 2019},
		{"43525", time.March, 2019}, // Excel serial for 2019-03-01
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonth(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.month, got.Month())
			assert.Equal(t, tt.year, got.Year())
		})
	}

	_, err := ParseMonth("not a month")
	assert.ErrorIs(t, err, ErrInvalidMonth)
	_, err = ParseMonth("")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "ontime arrivals (%)", NormalizeHeader("OnTime Arrivals \n(%)"))
	assert.Equal(t, "cancellations (%)", NormalizeHeader("Cancellations \n\n(%)"))
	assert.Equal(t, "departing port", NormalizeHeader("  Departing   Port "))
}

func TestMapHeaders(t *testing.T) {
	headers := []string{
		"Route", "Departing Port", "Arriving Port", "Airline", "Month",
		"Sectors Scheduled", "Sectors Flown", "Cancellations",
		"Departures On Time", "Arrivals On Time", "Departures Delayed", "Arrivals Delayed",
		"OnTime Departures \n(%)", "OnTime Arrivals \n(%)", "Cancellations \n\n(%)", "Extra",
	}

	idx, err := MapHeaders(headers)
	require.NoError(t, err)
	assert.Equal(t, 12, idx[FieldOnTimeDeparturesPct])
	assert.Equal(t, 13, idx[FieldOnTimeArrivalsPct])
	assert.Equal(t, 14, idx[FieldCancellationsPct])

	row := make([]string, len(headers))
	row[0] = " A-B "
	raw := RawFromRow(idx, row)
	assert.Equal(t, "A-B", raw[FieldRoute])

	_, err = MapHeaders([]string{"Route", "Airline"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "ontime_arrivals_pct")
}
