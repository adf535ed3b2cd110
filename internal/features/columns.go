// Package features turns raw OTP corpus rows into model-ready feature rows.
//
// The column set and order defined here are shared by training and serving:
// a row assembled in any other order is rejected by the pipeline.
package features

import (
	"fmt"
	"strings"
)

// Field identifies one column of the OTP corpus.
type Field string

const (
	FieldRoute               Field = "route"
	FieldDepartingPort       Field = "departing_port"
	FieldArrivingPort        Field = "arriving_port"
	FieldAirline             Field = "airline"
	FieldMonth               Field = "month"
	FieldSectorsScheduled    Field = "sectors_scheduled"
	FieldSectorsFlown        Field = "sectors_flown"
	FieldCancellations       Field = "cancellations"
	FieldDeparturesOnTime    Field = "departures_on_time"
	FieldArrivalsOnTime      Field = "arrivals_on_time"
	FieldDeparturesDelayed   Field = "departures_delayed"
	FieldArrivalsDelayed     Field = "arrivals_delayed"
	FieldOnTimeDeparturesPct Field = "ontime_departures_pct"
	FieldCancellationsPct    Field = "cancellations_pct"
	FieldOnTimeArrivalsPct   Field = "ontime_arrivals_pct"

	// Derived from FieldMonth.
	FieldMonthNum Field = "month_num"
	FieldYear     Field = "year"
)

// CategoricalFields are one-hot encoded, in this order.
var CategoricalFields = []Field{
	FieldRoute,
	FieldDepartingPort,
	FieldArrivingPort,
	FieldAirline,
}

// CounterFields are the nine numeric operational counters of a record.
var CounterFields = []Field{
	FieldSectorsScheduled,
	FieldSectorsFlown,
	FieldCancellations,
	FieldDeparturesOnTime,
	FieldArrivalsOnTime,
	FieldDeparturesDelayed,
	FieldArrivalsDelayed,
	FieldOnTimeDeparturesPct,
	FieldCancellationsPct,
}

// NumericFields are passed through untouched after the one-hot block.
var NumericFields = append(append([]Field{}, CounterFields...), FieldMonthNum, FieldYear)

// RequiredFields are the corpus columns a training file must carry.
var RequiredFields = append(append(append([]Field{}, CategoricalFields...), FieldMonth),
	append(append([]Field{}, CounterFields...), FieldOnTimeArrivalsPct)...)

const (
	NumCategorical = 4
	NumCounters    = 9
	NumNumeric     = NumCounters + 2
	NumColumns     = NumCategorical + NumNumeric
)

// Columns returns the canonical feature column names in model order.
func Columns() []string {
	cols := make([]string, 0, NumColumns)
	for _, f := range CategoricalFields {
		cols = append(cols, string(f))
	}
	for _, f := range NumericFields {
		cols = append(cols, string(f))
	}
	return cols
}

// HeaderAliases maps normalized corpus header text to a field. The master
// spreadsheet embeds line breaks in a few headers ("OnTime Arrivals \n(%)");
// NormalizeHeader folds those before lookup.
var HeaderAliases = map[string]Field{
	"route":                   FieldRoute,
	"departing port":          FieldDepartingPort,
	"arriving port":           FieldArrivingPort,
	"airline":                 FieldAirline,
	"month":                   FieldMonth,
	"sectors scheduled":       FieldSectorsScheduled,
	"sectors flown":           FieldSectorsFlown,
	"cancellations":           FieldCancellations,
	"departures on time":      FieldDeparturesOnTime,
	"arrivals on time":        FieldArrivalsOnTime,
	"departures delayed":      FieldDeparturesDelayed,
	"arrivals delayed":        FieldArrivalsDelayed,
	"ontime departures (%)":   FieldOnTimeDeparturesPct,
	"on time departures (%)":  FieldOnTimeDeparturesPct,
	"cancellations (%)":       FieldCancellationsPct,
	"ontime arrivals (%)":     FieldOnTimeArrivalsPct,
	"on time arrivals (%)":    FieldOnTimeArrivalsPct,
	"ontime_departures_pct":   FieldOnTimeDeparturesPct,
	"cancellations_pct":       FieldCancellationsPct,
	"ontime_arrivals_pct":     FieldOnTimeArrivalsPct,
	"departing_port":          FieldDepartingPort,
	"arriving_port":           FieldArrivingPort,
	"sectors_scheduled":       FieldSectorsScheduled,
	"sectors_flown":           FieldSectorsFlown,
	"departures_on_time":      FieldDeparturesOnTime,
	"arrivals_on_time":        FieldArrivalsOnTime,
	"departures_delayed":      FieldDeparturesDelayed,
	"arrivals_delayed":        FieldArrivalsDelayed,
}

// NormalizeHeader lowercases a header and collapses every whitespace run,
// including embedded newlines, to a single space.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// HeaderIndex maps each known field to its column position in a header row.
type HeaderIndex map[Field]int

// MapHeaders resolves a raw header row. Unknown columns are ignored; the
// error lists every required field that is absent.
func MapHeaders(headers []string) (HeaderIndex, error) {
	idx := make(HeaderIndex, len(headers))
	for i, h := range headers {
		f, ok := HeaderAliases[NormalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := idx[f]; dup {
			continue
		}
		idx[f] = i
	}

	var missing []string
	for _, f := range RequiredFields {
		if _, ok := idx[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return idx, nil
}

// Cell returns the trimmed value of field f in row, or "" when the row is short.
func (h HeaderIndex) Cell(row []string, f Field) string {
	i, ok := h[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
