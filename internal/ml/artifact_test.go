package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadPipeline(t *testing.T) {
	pipe, _ := trainSmall(t)
	row := sampleRow("A-C", "Z")
	want, err := pipe.Predict(row)
	require.NoError(t, err)

	for _, name := range []string{"model.json", "model.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SavePipeline(path, pipe))

			_, err := os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

			loaded, err := LoadPipeline(path)
			require.NoError(t, err)
			assert.Equal(t, pipe.Metadata.Version, loaded.Metadata.Version)
			assert.Equal(t, pipe.Columns(), loaded.Columns())

			got, err := loaded.Predict(row)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSavePipeline_Unfitted(t *testing.T) {
	err := SavePipeline(filepath.Join(t.TempDir(), "m.json"), &FittedPipeline{})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestLoadPipeline_RejectsForeignColumns(t *testing.T) {
	pipe, _ := trainSmall(t)
	tampered := *pipe
	pre := *pipe.Preprocessor
	pre.Columns = append([]string{}, pre.Columns...)
	pre.Columns[0] = "flight_number"
	tampered.Preprocessor = &pre

	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, SavePipeline(path, &tampered))

	_, err := LoadPipeline(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "flight_number")
}

func TestLoadPipeline_BadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPipeline(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.json.gz")
	require.NoError(t, os.WriteFile(garbage, []byte("not gzip"), 0o600))
	_, err = LoadPipeline(garbage)
	assert.ErrorContains(t, err, "decompress")

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"metadata":{}}`), 0o600))
	_, err = LoadPipeline(empty)
	assert.ErrorIs(t, err, ErrNotFitted)
}
