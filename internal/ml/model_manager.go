package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ModelVersion represents a versioned pipeline artifact
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains held-out performance of a model
type ModelMetrics struct {
	MAE             float64 `json:"mae"`
	R2              float64 `json:"r2"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
	DroppedSamples  int     `json:"dropped_samples"`
}

// MetricsFromEvaluation summarizes a training run for the version file.
func MetricsFromEvaluation(e *Evaluation) ModelMetrics {
	dropped := 0
	for _, n := range e.Dropped {
		dropped += n
	}
	return ModelMetrics{
		MAE:             e.MAE,
		R2:              e.R2,
		TrainingSamples: e.TrainRows,
		TestSamples:     e.TestRows,
		DroppedSamples:  dropped,
	}
}

// ModelManager handles model versioning and rollback
type ModelManager struct {
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	currentModel *ModelVersion
	now          func() time.Time
}

// NewModelManager creates a new model manager
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models directory: %w", err)
	}

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, "model_versions.json"),
		versions:     make([]ModelVersion, 0),
		now:          time.Now,
	}

	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load model versions, starting fresh")
	}

	return mm, nil
}

// PathFor returns where the artifact of a new version should be written.
func (mm *ModelManager) PathFor(version string) string {
	return filepath.Join(mm.modelsDir, fmt.Sprintf("otp_pipeline_%s.json.gz", version))
}

// AddVersion registers an artifact under version
func (mm *ModelManager) AddVersion(version, modelPath string, metrics ModelMetrics) error {
	for _, v := range mm.versions {
		if v.Version == version {
			return fmt.Errorf("version %s already registered", version)
		}
	}

	mm.versions = append(mm.versions, ModelVersion{
		Version:   version,
		Path:      modelPath,
		CreatedAt: mm.now(),
		Metrics:   metrics,
	})

	// Newest first
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})
	mm.refreshCurrent()

	return mm.saveVersions()
}

// ActivateVersion activates a specific model version
func (mm *ModelManager) ActivateVersion(version string) error {
	found := false
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			mm.versions[i].IsActive = true
			found = true
		} else {
			mm.versions[i].IsActive = false
		}
	}

	if !found {
		return fmt.Errorf("version %s not found", version)
	}
	mm.refreshCurrent()

	return mm.saveVersions()
}

// Rollback activates the version registered before the active one
func (mm *ModelManager) Rollback() error {
	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}

	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}

	if currentIdx+1 < len(mm.versions) {
		return mm.ActivateVersion(mm.versions[currentIdx+1].Version)
	}

	return fmt.Errorf("no previous version available")
}

// GetCurrentVersion returns the currently active version
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	return mm.currentModel
}

// ListVersions returns all model versions, newest first
func (mm *ModelManager) ListVersions() []ModelVersion {
	return append([]ModelVersion(nil), mm.versions...)
}

func (mm *ModelManager) refreshCurrent() {
	mm.currentModel = nil
	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.currentModel = &mm.versions[i]
			return
		}
	}
}

func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}
	mm.refreshCurrent()

	return nil
}

func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(mm.versionsFile, data, 0o600)
}
