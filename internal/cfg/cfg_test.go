package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.CorpusPath != "OTP_Time_Series_Master.xlsx" {
					t.Errorf("expected default corpus path, got %s", settings.CorpusPath)
				}
				if settings.ModelsDir != "models" {
					t.Errorf("expected default models dir, got %s", settings.ModelsDir)
				}
				if settings.ServerPort != 8501 {
					t.Errorf("expected default port 8501, got %d", settings.ServerPort)
				}
				if settings.Trees != 300 || settings.Seed != 42 || settings.MaxDepth != 0 {
					t.Errorf("expected 300 trees, seed 42, unlimited depth, got %d/%d/%d", settings.Trees, settings.Seed, settings.MaxDepth)
				}
				if settings.TestFraction != 0.2 {
					t.Errorf("expected test fraction 0.2, got %f", settings.TestFraction)
				}
				if settings.DataPath != "" || settings.ModelPath != "" || settings.CorpusSheet != "" {
					t.Error("expected optional paths to be empty")
				}
				if settings.RequestTimeout != 5*time.Second {
					t.Errorf("expected request timeout 5s, got %v", settings.RequestTimeout)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"CORPUS_PATH":     "data/otp.csv",
				"CORPUS_SHEET":    "Data",
				"MODEL_PATH":      "models/custom.json.gz",
				"DATA_PATH":       "/var/lib/otp",
				"SERVER_PORT":     "9000",
				"RF_TREES":        "50",
				"RF_MAX_DEPTH":    "12",
				"RF_SEED":         "7",
				"TEST_FRACTION":   "0.25",
				"TRAIN_WORKERS":   "4",
				"REQUEST_TIMEOUT": "2s",
				"LOG_LEVEL":       "debug",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.CorpusPath != "data/otp.csv" || settings.CorpusSheet != "Data" {
					t.Errorf("unexpected corpus settings: %s / %s", settings.CorpusPath, settings.CorpusSheet)
				}
				if settings.ServerPort != 9000 {
					t.Errorf("expected port 9000, got %d", settings.ServerPort)
				}
				if settings.Trees != 50 || settings.MaxDepth != 12 || settings.Seed != 7 || settings.Workers != 4 {
					t.Errorf("unexpected forest settings: %+v", settings)
				}
				if settings.TestFraction != 0.25 {
					t.Errorf("expected test fraction 0.25, got %f", settings.TestFraction)
				}
				if settings.RequestTimeout != 2*time.Second {
					t.Errorf("expected request timeout 2s, got %v", settings.RequestTimeout)
				}
				if settings.Level() != zerolog.DebugLevel {
					t.Errorf("expected debug level, got %v", settings.Level())
				}
			},
		},
		{
			name: "unparsable numbers fall back to defaults",
			envVars: map[string]string{
				"RF_TREES":    "many",
				"SERVER_PORT": "http",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Trees != 300 || settings.ServerPort != 8501 {
					t.Errorf("expected defaults, got trees=%d port=%d", settings.Trees, settings.ServerPort)
				}
			},
		},
		{
			name:    "port out of range",
			envVars: map[string]string{"SERVER_PORT": "80"},
			wantErr: true,
		},
		{
			name:    "test fraction out of range",
			envVars: map[string]string{"TEST_FRACTION": "0.9"},
			wantErr: true,
		},
		{
			name:    "bad log level",
			envVars: map[string]string{"LOG_LEVEL": "chatty"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all environment variables first
			clearTestEnv(t)

			// Set test environment variables
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
corpus:
  path: "corpus/otp.xlsx"
  sheet: "Master"

model:
  modelsDir: "/srv/models"
  trees: 120
  maxDepth: 20
  seed: 1234
  testFraction: 0.3
  workers: 8

server:
  port: 9090
  url: "http://otp.internal:9090"
  requestTimeout: "10s"

system:
  dataPath: "/custom/data"
  reportPath: "out/eval.xlsx"
  logLevel: "warn"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.CorpusPath != "corpus/otp.xlsx" || settings.CorpusSheet != "Master" {
					t.Errorf("unexpected corpus settings: %s / %s", settings.CorpusPath, settings.CorpusSheet)
				}
				if settings.ModelsDir != "/srv/models" {
					t.Errorf("expected models dir /srv/models, got %s", settings.ModelsDir)
				}
				if settings.Trees != 120 || settings.MaxDepth != 20 || settings.Seed != 1234 || settings.Workers != 8 {
					t.Errorf("unexpected forest settings: %+v", settings)
				}
				if settings.TestFraction != 0.3 {
					t.Errorf("expected test fraction 0.3, got %f", settings.TestFraction)
				}
				if settings.ServerPort != 9090 || settings.ServerURL != "http://otp.internal:9090" {
					t.Errorf("unexpected server settings: %d %s", settings.ServerPort, settings.ServerURL)
				}
				if settings.RequestTimeout != 10*time.Second {
					t.Errorf("expected request timeout 10s, got %v", settings.RequestTimeout)
				}
				if settings.DataPath != "/custom/data" || settings.ReportPath != "out/eval.xlsx" {
					t.Errorf("unexpected system paths: %s %s", settings.DataPath, settings.ReportPath)
				}
				if settings.Level() != zerolog.WarnLevel {
					t.Errorf("expected warn level, got %v", settings.Level())
				}
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
corpus:
  path: "corpus/otp.xlsx"
model:
  trees: 120
server:
  port: 9090
`,
			envOverrides: map[string]string{
				"RF_TREES":    "10",
				"CORPUS_PATH": "other.csv",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Trees != 10 {
					t.Errorf("expected env to override trees, got %d", settings.Trees)
				}
				if settings.CorpusPath != "other.csv" {
					t.Errorf("expected env to override corpus path, got %s", settings.CorpusPath)
				}
				if settings.ServerPort != 9090 {
					t.Errorf("expected YAML port 9090, got %d", settings.ServerPort)
				}
				if settings.Seed != 42 || settings.ModelsDir != "models" {
					t.Errorf("expected defaults for unset keys, got seed=%d dir=%s", settings.Seed, settings.ModelsDir)
				}
			},
		},
		{
			name:        "invalid YAML",
			yamlContent: "model: [trees",
			wantErr:     true,
		},
		{
			name: "invalid values",
			yamlContent: `
model:
  trees: 100000
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}
			t.Setenv("CONFIG_FILE", configPath)

			settings, err := Load()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestSettings_TrainOptions(t *testing.T) {
	s := Settings{Trees: 25, MaxDepth: 6, Seed: 99, Workers: 3, TestFraction: 0.3}
	opts := s.TrainOptions()

	if opts.Forest.Trees != 25 || opts.Forest.MaxDepth != 6 || opts.Forest.Seed != 99 || opts.Forest.Workers != 3 {
		t.Errorf("unexpected forest config: %+v", opts.Forest)
	}
	if opts.Forest.MinSamplesSplit != 2 || opts.Forest.MinSamplesLeaf != 1 {
		t.Errorf("expected split/leaf minimums to stay at 2/1, got %+v", opts.Forest)
	}
	if opts.TestFraction != 0.3 {
		t.Errorf("expected test fraction 0.3, got %f", opts.TestFraction)
	}
}

func clearTestEnv(t *testing.T) {
	envVars := []string{
		"CONFIG_FILE", "CORPUS_PATH", "CORPUS_SHEET", "MODELS_DIR", "MODEL_PATH",
		"DATA_PATH", "REPORT_PATH", "SERVER_PORT", "SERVER_URL", "REQUEST_TIMEOUT",
		"LOG_LEVEL", "RF_TREES", "RF_MAX_DEPTH", "RF_SEED", "TEST_FRACTION",
		"TRAIN_WORKERS",
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
