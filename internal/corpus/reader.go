// Package corpus reads the historical on-time performance spreadsheet,
// derives form defaults from it and writes evaluation workbooks.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"otp-predictor/internal/features"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported corpus format")
	ErrEmptyCorpus       = errors.New("corpus has no header row")
)

// Load reads every data row of the corpus at path. The format follows the
// extension: .xlsx/.xlsm through excelize, .csv through gota. sheet selects
// a worksheet and defaults to the first one.
func Load(path, sheet string) ([]features.RawRecord, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSXRows(path, sheet)
	case ".csv":
		rows, err = readCSVRows(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	raws, err := fromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Int("rows", len(raws)).
		Msg("Corpus loaded")
	return raws, nil
}

func readXLSXRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyCorpus
		}
		sheet = sheets[0]
	}

	// Raw values keep month cells as serial day numbers and numbers free of
	// display formatting.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	df := dataframe.ReadCSV(file,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("parse csv: %w", df.Err)
	}
	return df.Records(), nil
}

func fromRows(rows [][]string) ([]features.RawRecord, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyCorpus
	}

	idx, err := features.MapHeaders(rows[0])
	if err != nil {
		return nil, err
	}

	raws := make([]features.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		raws = append(raws, features.RawFromRow(idx, row))
	}
	return raws, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
