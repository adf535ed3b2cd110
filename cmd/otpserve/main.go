package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otp-predictor/internal/cfg"
	"otp-predictor/internal/corpus"
	"otp-predictor/internal/dashboard"
	"otp-predictor/internal/metrics"
	"otp-predictor/internal/ml"
	"otp-predictor/internal/storage"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath  = flag.String("model", "", "Pipeline artifact to serve (default: active version in the models directory)")
		corpusPath = flag.String("corpus", "", "Corpus used for form defaults (overrides config)")
		port       = flag.Int("port", 0, "HTTP port (overrides config)")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if *modelPath != "" {
		c.ModelPath = *modelPath
	}
	if *corpusPath != "" {
		c.CorpusPath = *corpusPath
	}
	if *port > 0 {
		c.ServerPort = *port
	}
	if *logLevel != "" {
		c.LogLevel = *logLevel
	}

	zerolog.SetGlobalLevel(c.Level())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	predictor, err := loadPredictor(c, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("No model to serve")
	}

	summary := loadSummary(c)

	hub := dashboard.NewHub(mw.WSClients())
	hub.Start()
	defer hub.Stop()

	var observers []ml.PredictionObserver
	observers = append(observers, hub)
	if store != nil {
		observers = append(observers, store)
	}
	server := ml.NewModelServer(predictor, c.RequestTimeout, observers...)

	r := mux.NewRouter()
	server.Register(r)
	dashboard.New(server, summary, hub, mw).Register(r, prometheus.DefaultGatherer)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", httpServer.Addr).
			Str("model", predictor.Metadata().Version).
			Msg("Starting prediction server")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Prediction server failed")
			cancel()
		}
	}()

	go trackModelAge(ctx, predictor, mw)

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown prediction server")
	}
}

// initializeStorage opens the prediction log if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without prediction log")
		return nil
	}
	return store
}

// loadPredictor serves the explicit model path, or else the active version.
func loadPredictor(c cfg.Settings, mw *metrics.MetricsWrapper) (*ml.Predictor, error) {
	path := c.ModelPath
	if path == "" {
		mm, err := ml.NewModelManager(c.ModelsDir)
		if err != nil {
			return nil, err
		}
		current := mm.GetCurrentVersion()
		if current == nil {
			return nil, fmt.Errorf("no active model version in %s; run otptrain first", c.ModelsDir)
		}
		path = current.Path
	}
	return ml.LoadPredictor(path, mw)
}

// loadSummary reads the corpus for form defaults. The form still works
// without it, with empty selects and zero defaults.
func loadSummary(c cfg.Settings) corpus.Summary {
	raws, err := corpus.Load(c.CorpusPath, c.CorpusSheet)
	if err != nil {
		log.Warn().Err(err).Str("path", c.CorpusPath).Msg("Corpus unavailable, form defaults disabled")
		return corpus.Summarize(nil)
	}
	s := corpus.Summarize(raws)
	log.Info().
		Int("records", s.Records).
		Int("median_year", s.MedianYear).
		Msg("Form defaults computed")
	return s
}

func trackModelAge(ctx context.Context, predictor *ml.Predictor, mw *metrics.MetricsWrapper) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	trainedAt := predictor.Metadata().TrainedAt
	for {
		mw.ModelAgeSet(time.Since(trainedAt).Seconds())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
