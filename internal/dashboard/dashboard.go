// Package dashboard serves the interactive prediction form, a websocket feed
// of finished predictions, and the Prometheus and health endpoints.
//
// The form mirrors the corpus: every categorical field is a select over the
// values observed in the corpus, every counter defaults to its corpus mean
// and the month defaults to January of the median corpus year.
package dashboard

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"otp-predictor/internal/corpus"
	"otp-predictor/internal/features"
	"otp-predictor/internal/metrics"
	"otp-predictor/internal/ml"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// monthLayout is the value format of an HTML month input.
const monthLayout = "2006-01"

// Health is returned by GET /health
type Health struct {
	Healthy       bool      `json:"healthy"`
	ModelVersion  string    `json:"model_version"`
	TrainedAt     time.Time `json:"trained_at"`
	CorpusRecords int       `json:"corpus_records"`
	FeedClients   int       `json:"feed_clients"`
	FailureRate   float64   `json:"failure_rate"`
}

// Dashboard is the HTML front end of a ModelServer.
type Dashboard struct {
	server      *ml.ModelServer
	summary     corpus.Summary
	hub         *Hub
	metrics     *metrics.Metrics
	submissions metrics.MetricsCounter
}

// New creates the dashboard. hub and mw may be nil.
func New(server *ml.ModelServer, summary corpus.Summary, hub *Hub, mw *metrics.MetricsWrapper) *Dashboard {
	d := &Dashboard{
		server:  server,
		summary: summary,
		hub:     hub,
	}
	if mw != nil {
		d.metrics = mw.Metrics()
		d.submissions = mw.FormSubmissions()
	}
	return d
}

// Register mounts the form, feed, metrics and health routes on r. gatherer
// backs /metrics and defaults to the global registry.
func (d *Dashboard) Register(r *mux.Router, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.HandleFunc("/", d.handleForm).Methods(http.MethodGet)
	r.HandleFunc("/", d.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/health", d.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	if d.hub != nil {
		r.Handle("/ws", d.hub).Methods(http.MethodGet)
	}
}

type selectField struct {
	Name     string
	Label    string
	Options  []string
	Selected string
}

type numberField struct {
	Name  string
	Label string
	Value string
}

type formView struct {
	Categorical  []selectField
	Numeric      []numberField
	Month        string
	ModelVersion string
	Records      int
	Result       string
	Error        string
	Unknown      []string
}

// defaultView fills the form from the corpus summary.
func (d *Dashboard) defaultView() formView {
	view := formView{
		Month:        d.summary.DefaultMonth().Format(monthLayout),
		ModelVersion: d.server.Predictor().Metadata().Version,
		Records:      d.summary.Records,
	}

	first := d.summary.FirstOptions()
	for i, f := range features.CategoricalFields {
		view.Categorical = append(view.Categorical, selectField{
			Name:     string(f),
			Label:    label(f),
			Options:  d.summary.Options[f],
			Selected: first[i],
		})
	}

	means := d.summary.MeanCounters()
	for i, f := range features.CounterFields {
		view.Numeric = append(view.Numeric, numberField{
			Name:  string(f),
			Label: label(f),
			Value: strconv.FormatFloat(means[i], 'f', -1, 64),
		})
	}
	return view
}

func label(f features.Field) string {
	if h, ok := corpus.MasterHeaders[f]; ok {
		return strings.Join(strings.Fields(h), " ")
	}
	return string(f)
}

func (d *Dashboard) handleForm(w http.ResponseWriter, r *http.Request) {
	d.render(w, http.StatusOK, d.defaultView())
}

func (d *Dashboard) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if d.submissions != nil {
		d.submissions.Inc()
	}

	view := d.defaultView()
	if err := r.ParseForm(); err != nil {
		view.Error = fmt.Sprintf("invalid form: %v", err)
		d.render(w, http.StatusBadRequest, view)
		return
	}

	row, err := d.readForm(r, &view)
	if err != nil {
		view.Error = err.Error()
		d.render(w, http.StatusBadRequest, view)
		return
	}

	requestID := uuid.NewString()
	pred, err := d.server.Predict(r.Context(), "form", requestID, row)
	if err != nil {
		log.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("kind", string(ml.KindOf(err))).
			Msg("Form prediction failed")
		view.Error = err.Error()
		d.render(w, http.StatusUnprocessableEntity, view)
		return
	}

	view.Result = fmt.Sprintf("Predicted on-time arrivals: %.2f %%", pred)
	view.Unknown = d.server.UnknownCategories(row)
	d.render(w, http.StatusOK, view)
}

// readForm builds a feature row from the submitted values and copies them
// into view so the form re-renders as submitted.
func (d *Dashboard) readForm(r *http.Request, view *formView) (features.FeatureRow, error) {
	var categories [features.NumCategorical]string
	for i := range view.Categorical {
		field := &view.Categorical[i]
		v := strings.TrimSpace(r.PostFormValue(field.Name))
		categories[i] = v
		field.Selected = v
		if v != "" && !contains(field.Options, v) {
			field.Options = append([]string{v}, field.Options...)
		}
	}

	var counters [features.NumCounters]float64
	for i := range view.Numeric {
		field := &view.Numeric[i]
		raw := r.PostFormValue(field.Name)
		field.Value = raw
		v, err := features.ParseNumber(raw)
		if err != nil {
			return features.FeatureRow{}, fmt.Errorf("%s: %w", field.Label, err)
		}
		counters[i] = v
	}

	rawMonth := r.PostFormValue(string(features.FieldMonth))
	view.Month = rawMonth
	month, err := features.ParseMonth(rawMonth)
	if err != nil {
		return features.FeatureRow{}, fmt.Errorf("month %q: %w", rawMonth, err)
	}

	return features.NewFeatureRow(categories, counters, month), nil
}

func contains(vals []string, v string) bool {
	for _, o := range vals {
		if o == v {
			return true
		}
	}
	return false
}

func (d *Dashboard) render(w http.ResponseWriter, status int, view formView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := formTemplate.Execute(w, view); err != nil {
		log.Error().Err(err).Msg("Failed to render form")
	}
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	meta := d.server.Predictor().Metadata()
	h := Health{
		Healthy:       true,
		ModelVersion:  meta.Version,
		TrainedAt:     meta.TrainedAt,
		CorpusRecords: d.summary.Records,
	}
	if d.hub != nil {
		h.FeedClients = d.hub.Clients()
	}
	if d.metrics != nil {
		h.FailureRate = d.metrics.FailureRate()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h); err != nil {
		log.Error().Err(err).Msg("Failed to write health response")
	}
}

var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Flight On-Time Arrival Predictor</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 900px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        .header p { margin: 6px 0 0; text-align: center; opacity: 0.85; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); margin-bottom: 20px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(250px, 1fr)); gap: 12px 20px; }
        label { display: block; font-weight: 500; color: #666; margin-bottom: 4px; }
        select, input { width: 100%; padding: 6px; box-sizing: border-box; }
        button { margin-top: 16px; padding: 10px 24px; background: #667eea; color: white; border: none; border-radius: 6px; font-weight: bold; cursor: pointer; }
        .result { color: #28a745; font-size: 1.4em; font-weight: bold; }
        .error { color: #dc3545; font-weight: bold; }
        .warning { color: #b8860b; }
        #feed { font-family: monospace; font-size: 0.85em; max-height: 200px; overflow-y: auto; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Flight On-Time Arrival Predictor</h1>
            <p>Model {{.ModelVersion}} &middot; {{.Records}} corpus records</p>
        </div>

        {{if .Result}}<div class="card result" id="result">{{.Result}}</div>{{end}}
        {{if .Error}}<div class="card error" id="error">{{.Error}}</div>{{end}}
        {{if .Unknown}}<div class="card warning">Not seen during training: {{range $i, $u := .Unknown}}{{if $i}}, {{end}}{{$u}}{{end}}</div>{{end}}

        <form class="card" method="POST" action="/">
            <div class="grid">
                {{range .Categorical}}
                <div>
                    <label for="{{.Name}}">{{.Label}}</label>
                    <select id="{{.Name}}" name="{{.Name}}">
                        {{$selected := .Selected}}{{range .Options}}<option value="{{.}}"{{if eq . $selected}} selected{{end}}>{{.}}</option>{{end}}
                    </select>
                </div>
                {{end}}
                <div>
                    <label for="month">Month</label>
                    <input type="month" id="month" name="month" value="{{.Month}}">
                </div>
                {{range .Numeric}}
                <div>
                    <label for="{{.Name}}">{{.Label}}</label>
                    <input type="number" step="any" id="{{.Name}}" name="{{.Name}}" value="{{.Value}}">
                </div>
                {{end}}
            </div>
            <button type="submit">Predict</button>
        </form>

        <div class="card">
            <h3>Recent predictions</h3>
            <div id="feed"></div>
        </div>
    </div>

    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

        ws.onmessage = function(event) {
            const data = JSON.parse(event.data);
            const line = document.createElement('div');
            const when = new Date(data.timestamp).toLocaleTimeString();
            line.textContent = data.error
                ? when + ' [' + data.source + '] error (' + data.kind + '): ' + data.error
                : when + ' [' + data.source + '] ' + data.row.categorical.join(' / ') + ' -> ' + data.prediction.toFixed(2) + ' %';
            const feed = document.getElementById('feed');
            feed.insertBefore(line, feed.firstChild);
        };
    </script>
</body>
</html>
`))
