package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvCorpusPath     = "CORPUS_PATH"
	EnvCorpusSheet    = "CORPUS_SHEET"
	EnvModelsDir      = "MODELS_DIR"
	EnvModelPath      = "MODEL_PATH"
	EnvDataPath       = "DATA_PATH"
	EnvReportPath     = "REPORT_PATH"
	EnvServerPort     = "SERVER_PORT"
	EnvServerURL      = "SERVER_URL"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvTrees          = "RF_TREES"
	EnvMaxDepth       = "RF_MAX_DEPTH"
	EnvSeed           = "RF_SEED"
	EnvTestFraction   = "TEST_FRACTION"
	EnvWorkers        = "TRAIN_WORKERS"
)

// Configuration defaults
const (
	DefaultCorpusPath     = "OTP_Time_Series_Master.xlsx"
	DefaultModelsDir      = "models"
	DefaultServerPort     = 8501
	DefaultServerURL      = "http://localhost:8501"
	DefaultLogLevel       = "info"
	DefaultTrees          = 300
	DefaultMaxDepth       = 0 // unlimited
	DefaultSeed           = 42
	DefaultTestFraction   = 0.2
	DefaultWorkers        = 0 // all CPUs
	DefaultDatabaseName   = "otp-data.db"
	DefaultReportFileName = "evaluation.xlsx"
)

// Validation constants
const (
	MinServerPort   = 1024
	MaxServerPort   = 65535
	MaxTrees        = 5000
	MaxDepthLimit   = 1000
	MinTestFraction = 0.05
	MaxTestFraction = 0.5
	MaxWorkers      = 1024
)
