package corpus

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"otp-predictor/internal/features"
	"otp-predictor/internal/ml"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	MetricsSheet     = "Metrics"
	ComparisonsSheet = "Comparisons"
	ImportanceSheet  = "Importance"
	DefaultSheet     = "OTP"
)

// MasterHeaders are the column titles of the published OTP spreadsheet.
// The line breaks are part of the original titles.
var MasterHeaders = map[features.Field]string{
	features.FieldRoute:               "Route",
	features.FieldDepartingPort:       "Departing Port",
	features.FieldArrivingPort:        "Arriving Port",
	features.FieldAirline:             "Airline",
	features.FieldMonth:               "Month",
	features.FieldSectorsScheduled:    "Sectors Scheduled",
	features.FieldSectorsFlown:        "Sectors Flown",
	features.FieldCancellations:       "Cancellations",
	features.FieldDeparturesOnTime:    "Departures On Time",
	features.FieldArrivalsOnTime:      "Arrivals On Time",
	features.FieldDeparturesDelayed:   "Departures Delayed",
	features.FieldArrivalsDelayed:     "Arrivals Delayed",
	features.FieldOnTimeDeparturesPct: "OnTime Departures \n(%)",
	features.FieldCancellationsPct:    "Cancellations \n\n(%)",
	features.FieldOnTimeArrivalsPct:   "OnTime Arrivals \n(%)",
}

// WriteReport saves a training run as a workbook: a Metrics sheet with the
// model metadata and held-out scores, a Comparisons sheet listing every
// test row with its actual and predicted on-time arrival percentage, and an
// Importance sheet ranking the input columns.
func WriteReport(path string, eval *ml.Evaluation, meta ml.ModelMetadata) error {
	if eval == nil {
		return fmt.Errorf("no evaluation to report")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", MetricsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	metrics := [][]interface{}{
		{"Metric", "Value"},
		{"Version", meta.Version},
		{"Trained at", meta.TrainedAt.UTC().Format(time.RFC3339)},
		{"Trees", meta.Trees},
		{"Max depth", meta.MaxDepth},
		{"Deepest tree", meta.DeepestTree},
		{"Seed", meta.Seed},
		{"Encoded width", meta.EncodedWidth},
		{"Train rows", eval.TrainRows},
		{"Test rows", eval.TestRows},
		{"MAE", eval.MAE},
		{"R2", eval.R2},
		{"Training seconds", eval.Duration.Seconds()},
	}

	reasons := make([]string, 0, len(eval.Dropped))
	for reason := range eval.Dropped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		metrics = append(metrics, []interface{}{"Dropped: " + reason, eval.Dropped[reason]})
	}

	if err := writeRows(f, MetricsSheet, metrics); err != nil {
		return err
	}

	if _, err := f.NewSheet(ComparisonsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	comparisons := make([][]interface{}, 0, len(eval.Comparisons)+1)
	comparisons = append(comparisons, []interface{}{"Route", "Airline", "Month", "Actual", "Predicted", "AbsError"})
	for _, c := range eval.Comparisons {
		comparisons = append(comparisons, []interface{}{
			c.Route,
			c.Airline,
			c.Month.Format("2006-01"),
			c.Actual,
			c.Predicted,
			math.Abs(c.Actual - c.Predicted),
		})
	}
	if err := writeRows(f, ComparisonsSheet, comparisons); err != nil {
		return err
	}

	if _, err := f.NewSheet(ImportanceSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	importance := [][]interface{}{{"Rank", "Column", "MAE increase"}}
	for i, fi := range eval.Importance {
		importance = append(importance, []interface{}{i + 1, fi.Column, fi.MAEIncrease})
	}
	if err := writeRows(f, ImportanceSheet, importance); err != nil {
		return err
	}

	if err := save(f, path); err != nil {
		return err
	}

	log.Info().
		Str("path", path).
		Int("comparisons", len(eval.Comparisons)).
		Msg("Evaluation report written")
	return nil
}

// WriteCorpus saves historical records as a spreadsheet laid out like the
// published OTP master file, so Load reads it back unchanged.
func WriteCorpus(path, sheet string, records []features.HistoricalRecord) error {
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	rows := make([][]interface{}, 0, len(records)+1)
	header := make([]interface{}, 0, len(features.RequiredFields))
	for _, fld := range features.RequiredFields {
		header = append(header, MasterHeaders[fld])
	}
	rows = append(rows, header)

	for _, r := range records {
		row := make([]interface{}, 0, len(features.RequiredFields))
		for _, c := range r.Categories() {
			row = append(row, c)
		}
		row = append(row, r.Month)
		for _, v := range r.Counters() {
			row = append(row, v)
		}
		row = append(row, r.OnTimeArrivalsPct)
		rows = append(rows, row)
	}

	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	return save(f, path)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func save(f *excelize.File, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}
