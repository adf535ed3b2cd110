package corpus

import (
	"math"
	"sort"
	"time"

	"otp-predictor/internal/features"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

const yearColumn = "year"

// Summary holds the corpus statistics that seed the prediction form.
type Summary struct {
	Records    int                        `json:"records"`
	Options    map[features.Field][]string `json:"options"`
	Means      map[features.Field]float64  `json:"means"`
	MedianYear int                        `json:"median_year"`
}

// Summarize computes, over the raw corpus, the sorted distinct values of
// every categorical field, the mean of every counter ignoring cells that
// are not numeric, and the median year of the parsable months.
func Summarize(raws []features.RawRecord) Summary {
	s := Summary{
		Records: len(raws),
		Options: make(map[features.Field][]string, features.NumCategorical),
		Means:   make(map[features.Field]float64, features.NumCounters),
	}
	if len(raws) == 0 {
		return s
	}

	df := frame(raws)

	for _, f := range features.CategoricalFields {
		present := df.Filter(dataframe.F{Colname: string(f), Comparator: series.Neq, Comparando: ""})
		s.Options[f] = distinct(present.Col(string(f)).Records())
	}

	for _, f := range features.CounterFields {
		if vals := finite(df.Col(string(f)).Float()); len(vals) > 0 {
			s.Means[f] = stat.Mean(vals, nil)
		}
	}

	if years := finite(df.Col(yearColumn).Float()); len(years) > 0 {
		sort.Float64s(years)
		s.MedianYear = int(stat.Quantile(0.5, stat.Empirical, years, nil))
	}

	return s
}

// frame lays the raw corpus out as typed columns: categorical fields as
// strings, counters and year as floats with NaN for unusable cells.
func frame(raws []features.RawRecord) dataframe.DataFrame {
	cols := make([]series.Series, 0, features.NumCategorical+features.NumCounters+1)

	for _, f := range features.CategoricalFields {
		vals := make([]string, len(raws))
		for i, r := range raws {
			vals[i] = r[f]
		}
		cols = append(cols, series.New(vals, series.String, string(f)))
	}

	for _, f := range features.CounterFields {
		vals := make([]float64, len(raws))
		for i, r := range raws {
			v, err := features.ParseNumber(r[f])
			if err != nil {
				v = math.NaN()
			}
			vals[i] = v
		}
		cols = append(cols, series.New(vals, series.Float, string(f)))
	}

	years := make([]float64, len(raws))
	for i, r := range raws {
		years[i] = math.NaN()
		if m, err := features.ParseMonth(r[features.FieldMonth]); err == nil {
			years[i] = float64(m.Year())
		}
	}
	cols = append(cols, series.New(years, series.Float, yearColumn))

	return dataframe.New(cols...)
}

func distinct(vals []string) []string {
	seen := make(map[string]struct{}, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func finite(vals []float64) []float64 {
	out := vals[:0:0]
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// DefaultMonth is January of the median corpus year, or of the current
// year when the corpus had no parsable month.
func (s Summary) DefaultMonth() time.Time {
	year := s.MedianYear
	if year == 0 {
		year = time.Now().Year()
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// MeanCounters returns the counter means in model order; counters with no
// numeric cell default to 0.
func (s Summary) MeanCounters() [features.NumCounters]float64 {
	var out [features.NumCounters]float64
	for i, f := range features.CounterFields {
		out[i] = s.Means[f]
	}
	return out
}

// FirstOptions returns the first listed value of every categorical field.
func (s Summary) FirstOptions() [features.NumCategorical]string {
	var out [features.NumCategorical]string
	for i, f := range features.CategoricalFields {
		if opts := s.Options[f]; len(opts) > 0 {
			out[i] = opts[0]
		}
	}
	return out
}
