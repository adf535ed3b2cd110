package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"otp-predictor/internal/cfg"
	"otp-predictor/internal/client"
	"otp-predictor/internal/ml"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: otpctl [flags] <command> [command flags]

commands:
  predict   request a prediction
  health    show server health
  info      show the served model metadata
`

func main() {
	var (
		serverURL = flag.String("url", "", "Prediction server URL (overrides config)")
		timeout   = flag.Duration("timeout", 0, "Request timeout (overrides config)")
		logLevel  = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *serverURL != "" {
		c.ServerURL = *serverURL
	}
	if *timeout > 0 {
		c.RequestTimeout = *timeout
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cl := client.New(c.ServerURL, c.RequestTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), c.RequestTimeout+time.Second)
	defer cancel()

	var out interface{}
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "predict":
		req, err := parsePredict(args)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid predict arguments")
		}
		resp, err := cl.Predict(ctx, req)
		if err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "Predicted on-time arrivals: %.2f %%\n", resp.Prediction)
		out = resp
	case "health":
		out, err = cl.Health(ctx)
	case "info":
		out, err = cl.ModelInfo(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("failed to write output")
	}
}

func parsePredict(args []string) (ml.PredictionRequest, error) {
	var req ml.PredictionRequest

	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	file := fs.String("f", "", "Read the request from a JSON file (\"-\" for stdin)")
	fs.StringVar(&req.Route, "route", "", "Route, e.g. Adelaide-Brisbane")
	fs.StringVar(&req.DepartingPort, "from", "", "Departing port")
	fs.StringVar(&req.ArrivingPort, "to", "", "Arriving port")
	fs.StringVar(&req.Airline, "airline", "", "Airline")
	fs.StringVar(&req.Month, "month", "", "Month, e.g. 2018-01")
	fs.Float64Var(&req.SectorsScheduled, "sectors-scheduled", 0, "Sectors scheduled")
	fs.Float64Var(&req.SectorsFlown, "sectors-flown", 0, "Sectors flown")
	fs.Float64Var(&req.Cancellations, "cancellations", 0, "Cancellations")
	fs.Float64Var(&req.DeparturesOnTime, "departures-on-time", 0, "Departures on time")
	fs.Float64Var(&req.ArrivalsOnTime, "arrivals-on-time", 0, "Arrivals on time")
	fs.Float64Var(&req.DeparturesDelayed, "departures-delayed", 0, "Departures delayed")
	fs.Float64Var(&req.ArrivalsDelayed, "arrivals-delayed", 0, "Arrivals delayed")
	fs.Float64Var(&req.OnTimeDeparturesPct, "ontime-departures-pct", 0, "On-time departures (%)")
	fs.Float64Var(&req.CancellationsPct, "cancellations-pct", 0, "Cancellations (%)")
	fs.StringVar(&req.RequestID, "request-id", "", "Request ID (default: assigned by the server)")
	if err := fs.Parse(args); err != nil {
		return req, err
	}

	if *file != "" {
		var (
			data []byte
			err  error
		)
		if *file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(*file)
		}
		if err != nil {
			return req, err
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse %s: %w", *file, err)
		}
	}

	if req.Month == "" {
		return req, errors.New("-month is required")
	}
	return req, nil
}

func fail(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		log.Fatal().
			Int("status", apiErr.Status).
			Str("kind", string(apiErr.Kind)).
			Str("request_id", apiErr.RequestID).
			Msg(apiErr.Message)
	}
	log.Fatal().Err(err).Msg("request failed")
}
