package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"otp-predictor/internal/features"
)

// OneHotEncoder maps each categorical column to a block of binary
// indicators over the vocabulary seen at fit time. Values outside the
// vocabulary encode to an all-zero block.
type OneHotEncoder struct {
	Categories [][]string `json:"categories"`

	index   []map[string]int
	offsets []int
	width   int
}

// Fit learns the sorted vocabulary of every column.
func (e *OneHotEncoder) Fit(rows [][]string) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}
	cols := len(rows[0])

	seen := make([]map[string]struct{}, cols)
	for c := range seen {
		seen[c] = make(map[string]struct{})
	}
	for r, row := range rows {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d categorical values, want %d", r, len(row), cols)
		}
		for c, v := range row {
			seen[c][v] = struct{}{}
		}
	}

	e.Categories = make([][]string, cols)
	for c := range seen {
		vocab := make([]string, 0, len(seen[c]))
		for v := range seen[c] {
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		e.Categories[c] = vocab
	}

	e.buildIndex()
	return nil
}

func (e *OneHotEncoder) buildIndex() {
	e.index = make([]map[string]int, len(e.Categories))
	e.offsets = make([]int, len(e.Categories))
	e.width = 0
	for c, vocab := range e.Categories {
		e.offsets[c] = e.width
		m := make(map[string]int, len(vocab))
		for i, v := range vocab {
			m[v] = i
		}
		e.index[c] = m
		e.width += len(vocab)
	}
}

// UnmarshalJSON restores the lookup tables along with the vocabulary.
func (e *OneHotEncoder) UnmarshalJSON(data []byte) error {
	var aux struct {
		Categories [][]string `json:"categories"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Categories = aux.Categories
	e.buildIndex()
	return nil
}

// Width is the total number of indicator columns.
func (e *OneHotEncoder) Width() int { return e.width }

// Encode writes the indicator block of values into dst, which must hold
// Width() zeroed entries.
func (e *OneHotEncoder) Encode(values []string, dst []float64) error {
	if e.index == nil {
		return ErrNotFitted
	}
	if len(values) != len(e.index) {
		return shapeErrorf("got %d categorical values, want %d", len(values), len(e.index))
	}
	if len(dst) < e.width {
		return encodingErrorf("destination holds %d columns, want %d", len(dst), e.width)
	}
	for c, v := range values {
		if i, ok := e.index[c][v]; ok {
			dst[e.offsets[c]+i] = 1
		}
	}
	return nil
}

// Known reports whether v was part of column c's training vocabulary.
func (e *OneHotEncoder) Known(c int, v string) bool {
	if c < 0 || c >= len(e.index) {
		return false
	}
	_, ok := e.index[c][v]
	return ok
}

// Preprocessor is the fitted column transformer: one-hot block for the
// categorical columns followed by the numeric columns passed through.
type Preprocessor struct {
	Columns    []string       `json:"columns"`
	Encoder    *OneHotEncoder `json:"encoder"`
	NumNumeric int            `json:"num_numeric"`
}

// FitPreprocessor fits the encoder on the categorical part of rows.
func FitPreprocessor(rows []features.FeatureRow) (*Preprocessor, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	cats := make([][]string, len(rows))
	for i, r := range rows {
		cats[i] = r.Categorical
	}
	enc := &OneHotEncoder{}
	if err := enc.Fit(cats); err != nil {
		return nil, fmt.Errorf("fit encoder: %w", err)
	}
	return &Preprocessor{
		Columns:    append([]string{}, rows[0].Columns...),
		Encoder:    enc,
		NumNumeric: len(rows[0].Numeric),
	}, nil
}

// Width is the length of every transformed vector.
func (p *Preprocessor) Width() int {
	return p.Encoder.Width() + p.NumNumeric
}

// Transform encodes one row. Column names and order must match the
// training columns exactly.
func (p *Preprocessor) Transform(row features.FeatureRow) ([]float64, error) {
	if p == nil || p.Encoder == nil {
		return nil, ErrNotFitted
	}
	if len(row.Columns) != len(p.Columns) {
		return nil, shapeErrorf("got %d columns, want %d", len(row.Columns), len(p.Columns))
	}
	for i, name := range p.Columns {
		if row.Columns[i] != name {
			return nil, shapeErrorf("column %d is %q, want %q", i, row.Columns[i], name)
		}
	}
	nCat := len(p.Columns) - p.NumNumeric
	if len(row.Categorical) != nCat || len(row.Numeric) != p.NumNumeric {
		return nil, shapeErrorf("got %d categorical and %d numeric values, want %d and %d",
			len(row.Categorical), len(row.Numeric), nCat, p.NumNumeric)
	}

	out := make([]float64, p.Width())
	if err := p.Encoder.Encode(row.Categorical, out); err != nil {
		return nil, err
	}
	base := p.Encoder.Width()
	for i, v := range row.Numeric {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, encodingErrorf("column %q is not finite", p.Columns[nCat+i])
		}
		out[base+i] = v
	}
	return out, nil
}
