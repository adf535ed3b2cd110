package ml

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"otp-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// SavePipeline writes the pipeline as JSON, gzip-compressed when path ends
// in ".gz". The file is written to a temp name and renamed into place.
func SavePipeline(path string, p *FittedPipeline) error {
	if p == nil || p.Forest == nil || p.Preprocessor == nil {
		return ErrNotFitted
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}

	if err := json.NewEncoder(w).Encode(p); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode model: %w", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("compress model: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("install model file: %w", err)
	}

	log.Info().Str("model_path", path).Str("version", p.Metadata.Version).Msg("Model saved")
	return nil
}

// LoadPipeline reads a pipeline written by SavePipeline and checks that it
// was trained on the current feature columns.
func LoadPipeline(path string) (*FittedPipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("decompress model: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var p FittedPipeline
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &p, nil
}

func (p *FittedPipeline) validate() error {
	if p.Preprocessor == nil || p.Preprocessor.Encoder == nil || p.Forest == nil || len(p.Forest.Trees) == 0 {
		return ErrNotFitted
	}
	want := features.Columns()
	got := p.Preprocessor.Columns
	if len(got) != len(want) {
		return fmt.Errorf("%w: artifact has %d columns, transformer produces %d", ErrShapeMismatch, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: artifact column %d is %q, transformer produces %q", ErrShapeMismatch, i, got[i], want[i])
		}
	}
	if p.Preprocessor.Width() != p.Forest.NFeatures {
		return fmt.Errorf("%w: encoder width %d, forest expects %d", ErrShapeMismatch, p.Preprocessor.Width(), p.Forest.NFeatures)
	}
	return nil
}
