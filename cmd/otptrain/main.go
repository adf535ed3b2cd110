package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otp-predictor/internal/cfg"
	"otp-predictor/internal/corpus"
	"otp-predictor/internal/features"
	"otp-predictor/internal/metrics"
	"otp-predictor/internal/ml"
	"otp-predictor/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		corpusPath   = flag.String("corpus", "", "Path to the OTP corpus (.xlsx or .csv, overrides config)")
		sheet        = flag.String("sheet", "", "Worksheet to read (default: first sheet)")
		source       = flag.String("source", "corpus", "Training data source: corpus, boltdb")
		modelsDir    = flag.String("models", "", "Models directory (overrides config)")
		outPath      = flag.String("out", "", "Also write the pipeline to this path")
		reportPath   = flag.String("report", "", "Evaluation workbook path (overrides config, \"-\" disables)")
		metricsOut   = flag.String("metrics-out", "", "Write training metrics in Prometheus text format to this file")
		pdfPath      = flag.String("pdf", "", "Also write a one page PDF summary to this path")
		trees        = flag.Int("trees", 0, "Number of trees (overrides config)")
		maxDepth     = flag.Int("max-depth", -1, "Maximum tree depth, 0 = unlimited (overrides config)")
		seed         = flag.Int64("seed", -1, "Random seed (overrides config)")
		testFraction = flag.Float64("test-fraction", 0, "Held-out fraction (overrides config)")
		workers      = flag.Int("workers", -1, "Parallel tree fits, 0 = all CPUs (overrides config)")
		snapshot     = flag.Bool("snapshot", false, "Store the cleaned corpus in the data store")
		noActivate   = flag.Bool("no-activate", false, "Register the new version without activating it")
		rollback     = flag.Bool("rollback", false, "Activate the previous model version and exit")
		list         = flag.Bool("list", false, "List registered model versions and exit")
		logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	// Load configuration
	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Override config with command line arguments
	if *corpusPath != "" {
		config.CorpusPath = *corpusPath
	}
	if *sheet != "" {
		config.CorpusSheet = *sheet
	}
	if *modelsDir != "" {
		config.ModelsDir = *modelsDir
	}
	if *reportPath != "" {
		config.ReportPath = *reportPath
	}
	if *trees > 0 {
		config.Trees = *trees
	}
	if *maxDepth >= 0 {
		config.MaxDepth = *maxDepth
	}
	if *seed >= 0 {
		config.Seed = *seed
	}
	if *testFraction > 0 {
		config.TestFraction = *testFraction
	}
	if *workers >= 0 {
		config.Workers = *workers
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}

	// Setup logging
	zerolog.SetGlobalLevel(config.Level())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	mm, err := ml.NewModelManager(config.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open models directory")
	}

	if *list {
		for _, v := range mm.ListVersions() {
			marker := " "
			if v.IsActive {
				marker = "*"
			}
			fmt.Printf("%s %-16s MAE %-7.2f R^2 %-7.3f %s\n", marker, v.Version, v.Metrics.MAE, v.Metrics.R2, v.CreatedAt.Format(time.RFC3339))
		}
		return
	}

	if *rollback {
		if err := mm.Rollback(); err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		fmt.Printf("Active model: %s\n", mm.GetCurrentVersion().Version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	mw := metrics.NewWrapper(metrics.NewWithRegistry(registry))

	var store *storage.Store
	if config.DataPath != "" {
		store, err = storage.New(config.DataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open data store")
		}
		defer store.Close()
	}

	opts := config.TrainOptions()

	var (
		pipe *ml.FittedPipeline
		eval *ml.Evaluation
	)
	switch *source {
	case "corpus":
		raws, err := corpus.Load(config.CorpusPath, config.CorpusSheet)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load corpus")
		}
		fmt.Printf("Corpus shape: (%d, %d)\n", len(raws), len(features.RequiredFields))

		if *snapshot {
			if store == nil {
				log.Fatal().Msg("-snapshot needs DATA_PATH")
			}
			cleaned := features.Clean(raws)
			if err := store.ReplaceRecords(cleaned.Records); err != nil {
				log.Fatal().Err(err).Msg("Failed to snapshot corpus")
			}
			log.Info().Int("records", len(cleaned.Records)).Str("db", store.Path()).Msg("Corpus snapshot stored")
		}

		pipe, eval, err = ml.TrainFromRaw(ctx, raws, opts, mw)
		if err != nil {
			log.Fatal().Err(err).Msg("Training failed")
		}
	case "boltdb":
		if store == nil {
			log.Fatal().Msg("-source boltdb needs DATA_PATH")
		}
		records, err := store.GetRecords("")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read stored records")
		}
		pipe, eval, err = ml.Train(ctx, records, opts, mw)
		if err != nil {
			log.Fatal().Err(err).Msg("Training failed")
		}
	default:
		log.Fatal().Str("source", *source).Msg("Unknown training source")
	}

	printSummary(eval)
	fmt.Printf("Deepest tree: %d levels\n", pipe.Metadata.DeepestTree)

	version := pipe.Metadata.Version
	modelPath := mm.PathFor(version)
	if err := ml.SavePipeline(modelPath, pipe); err != nil {
		log.Fatal().Err(err).Msg("Failed to save pipeline")
	}
	if err := mm.AddVersion(version, modelPath, ml.MetricsFromEvaluation(eval)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register model version")
	}
	if !*noActivate {
		if err := mm.ActivateVersion(version); err != nil {
			log.Fatal().Err(err).Msg("Failed to activate model version")
		}
	}

	if *outPath != "" {
		if err := ml.SavePipeline(*outPath, pipe); err != nil {
			log.Fatal().Err(err).Msg("Failed to save pipeline copy")
		}
	}

	if config.ReportPath != "-" {
		if err := corpus.WriteReport(config.ReportPath, eval, pipe.Metadata); err != nil {
			log.Error().Err(err).Msg("Failed to write evaluation report")
		}
	}

	if *pdfPath != "" {
		if err := corpus.WritePDFSummary(*pdfPath, eval, pipe.Metadata); err != nil {
			log.Error().Err(err).Msg("Failed to write PDF summary")
		}
	}

	if *metricsOut != "" {
		if err := prometheus.WriteToTextfile(*metricsOut, registry); err != nil {
			log.Error().Err(err).Msg("Failed to write training metrics")
		}
	}

	log.Info().
		Str("version", version).
		Str("path", modelPath).
		Bool("active", !*noActivate).
		Msg("Training completed successfully")
}

func printSummary(eval *ml.Evaluation) {
	fmt.Printf("Random Forest MAE: %.2f\n", eval.MAE)
	fmt.Printf("Random Forest R^2: %.3f\n", eval.R2)

	fmt.Println("\nFirst 5 actual vs predicted:")
	fmt.Printf("%-10s %-10s\n", "Actual", "Predicted")
	for i, c := range eval.Comparisons {
		if i == 5 {
			break
		}
		fmt.Printf("%-10.2f %-10.2f\n", c.Actual, c.Predicted)
	}

	if len(eval.Importance) > 0 {
		fmt.Println("\nMost important features (MAE increase when shuffled):")
		for i, fi := range eval.Importance {
			if i == 5 {
				break
			}
			fmt.Printf("%-24s %.3f\n", fi.Column, fi.MAEIncrease)
		}
	}
}
