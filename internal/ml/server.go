package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"otp-predictor/internal/features"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// PredictionRequest is the JSON body of POST /api/predict
type PredictionRequest struct {
	Route         string `json:"route"`
	DepartingPort string `json:"departing_port"`
	ArrivingPort  string `json:"arriving_port"`
	Airline       string `json:"airline"`
	Month         string `json:"month"`

	SectorsScheduled    float64 `json:"sectors_scheduled"`
	SectorsFlown        float64 `json:"sectors_flown"`
	Cancellations       float64 `json:"cancellations"`
	DeparturesOnTime    float64 `json:"departures_on_time"`
	ArrivalsOnTime      float64 `json:"arrivals_on_time"`
	DeparturesDelayed   float64 `json:"departures_delayed"`
	ArrivalsDelayed     float64 `json:"arrivals_delayed"`
	OnTimeDeparturesPct float64 `json:"ontime_departures_pct"`
	CancellationsPct    float64 `json:"cancellations_pct"`

	RequestID string `json:"request_id,omitempty"`
}

// FeatureRow converts the request into a model row.
func (r PredictionRequest) FeatureRow() (features.FeatureRow, error) {
	month, err := features.ParseMonth(r.Month)
	if err != nil {
		return features.FeatureRow{}, fmt.Errorf("month %q: %w", r.Month, err)
	}
	return features.NewFeatureRow(
		[features.NumCategorical]string{r.Route, r.DepartingPort, r.ArrivingPort, r.Airline},
		[features.NumCounters]float64{
			r.SectorsScheduled,
			r.SectorsFlown,
			r.Cancellations,
			r.DeparturesOnTime,
			r.ArrivalsOnTime,
			r.DeparturesDelayed,
			r.ArrivalsDelayed,
			r.OnTimeDeparturesPct,
			r.CancellationsPct,
		},
		month,
	), nil
}

// PredictionResponse represents the prediction result
type PredictionResponse struct {
	Prediction        float64   `json:"prediction"`
	RequestID         string    `json:"request_id"`
	ModelVersion      string    `json:"model_version"`
	Latency           float64   `json:"latency_ms"`
	Timestamp         time.Time `json:"timestamp"`
	UnknownCategories []string  `json:"unknown_categories,omitempty"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthStatus is returned by GET /api/health
type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	ModelVersion  string    `json:"model_version"`
	TrainedAt     time.Time `json:"trained_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// PredictionEvent describes one finished prediction, successful or not.
type PredictionEvent struct {
	RequestID  string              `json:"request_id"`
	Source     string              `json:"source"`
	Row        features.FeatureRow `json:"row"`
	Prediction float64             `json:"prediction"`
	Error      string              `json:"error,omitempty"`
	Kind       string              `json:"kind,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	LatencyMS  float64             `json:"latency_ms"`
}

// PredictionObserver is notified after every prediction.
type PredictionObserver interface {
	ObservePrediction(PredictionEvent)
}

// ModelServer provides the JSON prediction API
type ModelServer struct {
	predictor *Predictor
	observers []PredictionObserver
	timeout   time.Duration
}

// NewModelServer creates the API for predictor. Observers may be nil.
func NewModelServer(predictor *Predictor, timeout time.Duration, observers ...PredictionObserver) *ModelServer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ms := &ModelServer{predictor: predictor, timeout: timeout}
	for _, o := range observers {
		if o != nil {
			ms.observers = append(ms.observers, o)
		}
	}
	return ms
}

// Register mounts the API under /api on r.
func (ms *ModelServer) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/predict", ms.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/health", ms.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/model/info", ms.handleModelInfo).Methods(http.MethodGet)
}

// Predict runs one prediction and notifies observers. It is shared by the
// JSON API and the HTML form.
func (ms *ModelServer) Predict(ctx context.Context, source, requestID string, row features.FeatureRow) (float64, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()

	start := time.Now()
	pred, err := ms.predictor.Predict(ctx, row)

	ev := PredictionEvent{
		RequestID:  requestID,
		Source:     source,
		Row:        row,
		Prediction: pred,
		Timestamp:  time.Now().UTC(),
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		ev.Error = err.Error()
		ev.Kind = string(KindOf(err))
	}
	for _, o := range ms.observers {
		o.ObservePrediction(ev)
	}

	return pred, err
}

// UnknownCategories lists the categorical values of row that were not seen
// during training.
func (ms *ModelServer) UnknownCategories(row features.FeatureRow) []string {
	var unknown []string
	for i, f := range features.CategoricalFields {
		if i >= len(row.Categorical) {
			break
		}
		if !ms.predictor.KnownCategory(f, row.Categorical[i]) {
			unknown = append(unknown, fmt.Sprintf("%s=%s", f, row.Categorical[i]))
		}
	}
	return unknown
}

// Predictor returns the served predictor.
func (ms *ModelServer) Predictor() *Predictor {
	return ms.predictor
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	row, err := req.FeatureRow()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), RequestID: req.RequestID})
		return
	}

	pred, err := ms.Predict(r.Context(), "api", req.RequestID, row)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, ErrorResponse{
			Error:     err.Error(),
			Kind:      string(KindOf(err)),
			RequestID: req.RequestID,
		})
		return
	}

	writeJSON(w, http.StatusOK, PredictionResponse{
		Prediction:        pred,
		RequestID:         req.RequestID,
		ModelVersion:      ms.predictor.Metadata().Version,
		Latency:           float64(time.Since(start).Microseconds()) / 1000,
		Timestamp:         time.Now().UTC(),
		UnknownCategories: ms.UnknownCategories(row),
	})
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	meta := ms.predictor.Metadata()
	writeJSON(w, http.StatusOK, HealthStatus{
		Healthy:       true,
		ModelVersion:  meta.Version,
		TrainedAt:     meta.TrainedAt,
		UptimeSeconds: ms.predictor.Uptime().Seconds(),
	})
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ms.predictor.Metadata())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
