package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"otp-predictor/internal/common"
	"otp-predictor/internal/ml"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	CorpusPath     string
	CorpusSheet    string // empty = first sheet
	ModelsDir      string
	ModelPath      string // empty = active version in ModelsDir
	DataPath       string // empty = no bbolt store
	ReportPath     string
	ServerPort     int
	ServerURL      string
	RequestTimeout time.Duration
	LogLevel       string
	Trees          int
	MaxDepth       int
	Seed           int64
	TestFraction   float64
	Workers        int
}

type ConfigFile struct {
	Corpus struct {
		Path  string `yaml:"path"`
		Sheet string `yaml:"sheet"`
	} `yaml:"corpus"`

	Model struct {
		ModelsDir    string  `yaml:"modelsDir"`
		ModelPath    string  `yaml:"modelPath"`
		Trees        int     `yaml:"trees"`
		MaxDepth     int     `yaml:"maxDepth"`
		Seed         int64   `yaml:"seed"`
		TestFraction float64 `yaml:"testFraction"`
		Workers      int     `yaml:"workers"`
	} `yaml:"model"`

	Server struct {
		Port           int    `yaml:"port"`
		URL            string `yaml:"url"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	System struct {
		DataPath   string `yaml:"dataPath"`
		ReportPath string `yaml:"reportPath"`
		LogLevel   string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = 5 * time.Second
	}

	settings := Settings{
		CorpusPath:     getEnvOrDefault(common.EnvCorpusPath, orDefault(config.Corpus.Path, common.DefaultCorpusPath)),
		CorpusSheet:    getEnvOrDefault(common.EnvCorpusSheet, config.Corpus.Sheet),
		ModelsDir:      getEnvOrDefault(common.EnvModelsDir, orDefault(config.Model.ModelsDir, common.DefaultModelsDir)),
		ModelPath:      getEnvOrDefault(common.EnvModelPath, config.Model.ModelPath),
		DataPath:       getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		ReportPath:     getEnvOrDefault(common.EnvReportPath, orDefault(config.System.ReportPath, common.DefaultReportFileName)),
		ServerPort:     getIntFromEnvOrConfig(common.EnvServerPort, config.Server.Port, common.DefaultServerPort),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, orDefault(config.Server.URL, common.DefaultServerURL)),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		Trees:          getIntFromEnvOrConfig(common.EnvTrees, config.Model.Trees, common.DefaultTrees),
		MaxDepth:       getIntFromEnvOrConfig(common.EnvMaxDepth, config.Model.MaxDepth, common.DefaultMaxDepth),
		Seed:           getInt64FromEnvOrConfig(common.EnvSeed, config.Model.Seed, common.DefaultSeed),
		TestFraction:   getFloatFromEnvOrConfig(common.EnvTestFraction, config.Model.TestFraction, common.DefaultTestFraction),
		Workers:        getIntFromEnvOrConfig(common.EnvWorkers, config.Model.Workers, common.DefaultWorkers),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		CorpusPath:     getEnvOrDefault(common.EnvCorpusPath, common.DefaultCorpusPath),
		CorpusSheet:    os.Getenv(common.EnvCorpusSheet), // optional
		ModelsDir:      getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		ModelPath:      os.Getenv(common.EnvModelPath), // optional
		DataPath:       os.Getenv(common.EnvDataPath),  // optional
		ReportPath:     getEnvOrDefault(common.EnvReportPath, common.DefaultReportFileName),
		ServerPort:     getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		ServerURL:      getEnvOrDefault(common.EnvServerURL, common.DefaultServerURL),
		RequestTimeout: getDurationOrDefault(common.EnvRequestTimeout, 5*time.Second),
		LogLevel:       getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		Trees:          getIntOrDefault(common.EnvTrees, common.DefaultTrees),
		MaxDepth:       getIntOrDefault(common.EnvMaxDepth, common.DefaultMaxDepth),
		Seed:           getInt64OrDefault(common.EnvSeed, common.DefaultSeed),
		TestFraction:   getFloatOrDefault(common.EnvTestFraction, common.DefaultTestFraction),
		Workers:        getIntOrDefault(common.EnvWorkers, common.DefaultWorkers),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// TrainOptions returns the training configuration described by the settings.
func (s *Settings) TrainOptions() ml.TrainOptions {
	opts := ml.DefaultTrainOptions()
	opts.Forest.Trees = s.Trees
	opts.Forest.MaxDepth = s.MaxDepth
	opts.Forest.Seed = s.Seed
	opts.Forest.Workers = s.Workers
	opts.TestFraction = s.TestFraction
	return opts
}

// Level returns the parsed log level.
func (s *Settings) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getInt64OrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate paths
	if settings.CorpusPath == "" {
		return fmt.Errorf("corpus path cannot be empty")
	}
	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}
	if settings.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	// Validate time durations
	if settings.RequestTimeout < 100*time.Millisecond || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 5m, got %v", settings.RequestTimeout)
	}

	// Validate integer values
	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d", common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}
	if settings.Trees <= 0 || settings.Trees > common.MaxTrees {
		return fmt.Errorf("tree count must be between 1 and %d, got %d", common.MaxTrees, settings.Trees)
	}
	if settings.MaxDepth < 0 || settings.MaxDepth > common.MaxDepthLimit {
		return fmt.Errorf("max depth must be between 0 (unlimited) and %d, got %d", common.MaxDepthLimit, settings.MaxDepth)
	}
	if settings.Workers < 0 || settings.Workers > common.MaxWorkers {
		return fmt.Errorf("workers must be between 0 (all CPUs) and %d, got %d", common.MaxWorkers, settings.Workers)
	}

	// Validate float values
	if settings.TestFraction < common.MinTestFraction || settings.TestFraction > common.MaxTestFraction {
		return fmt.Errorf("test fraction must be between %.2f and %.2f, got %f", common.MinTestFraction, common.MaxTestFraction, settings.TestFraction)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
