package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"otp-predictor/internal/corpus"
	"otp-predictor/internal/features"
	"otp-predictor/internal/metrics"
	"otp-predictor/internal/ml"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingRecords() []features.HistoricalRecord {
	routes := []struct{ route, from, to string }{{"A-B", "A", "B"}, {"B-A", "B", "A"}}
	airlines := []string{"X", "Y"}

	var out []features.HistoricalRecord
	for i := 0; i < 40; i++ {
		r := routes[i%2]
		airline := airlines[(i/2)%2]
		scheduled := float64(100 + i)
		depPct := 60 + float64(i%10)*3
		out = append(out, features.HistoricalRecord{
			Route:               r.route,
			DepartingPort:       r.from,
			ArrivingPort:        r.to,
			Airline:             airline,
			Month:               time.Date(2017+i%3, time.Month(1+i%12), 1, 0, 0, 0, 0, time.UTC),
			SectorsScheduled:    scheduled,
			SectorsFlown:        scheduled - 1,
			Cancellations:       1,
			DeparturesOnTime:    scheduled * depPct / 100,
			ArrivalsOnTime:      scheduled * (depPct - 2) / 100,
			DeparturesDelayed:   scheduled * (100 - depPct) / 100,
			ArrivalsDelayed:     scheduled * (102 - depPct) / 100,
			OnTimeDeparturesPct: depPct,
			CancellationsPct:    1,
			OnTimeArrivalsPct:   depPct - 2,
		})
	}
	return out
}

type fixture struct {
	srv     *httptest.Server
	hub     *Hub
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	opts := ml.DefaultTrainOptions()
	opts.Forest.Trees = 5
	opts.Forest.Workers = 2
	pipe, _, err := ml.Train(context.Background(), trainingRecords(), opts, nil)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)
	mw := metrics.NewWrapper(m)

	predictor, err := ml.NewPredictor(pipe, mw)
	require.NoError(t, err)

	hub := NewHub(mw.WSClients())
	hub.Start()
	t.Cleanup(hub.Stop)

	server := ml.NewModelServer(predictor, time.Second, hub)
	summary := corpus.Summary{
		Records: 40,
		Options: map[features.Field][]string{
			features.FieldRoute:         {"A-B", "B-A"},
			features.FieldDepartingPort: {"A", "B"},
			features.FieldArrivingPort:  {"A", "B"},
			features.FieldAirline:       {"X", "Y"},
		},
		Means: map[features.Field]float64{
			features.FieldSectorsScheduled:    120,
			features.FieldSectorsFlown:        119,
			features.FieldCancellations:       1,
			features.FieldDeparturesOnTime:    85.5,
			features.FieldArrivalsOnTime:      83,
			features.FieldDeparturesDelayed:   34.5,
			features.FieldArrivalsDelayed:     37,
			features.FieldOnTimeDeparturesPct: 73.5,
			features.FieldCancellationsPct:    1,
		},
		MedianYear: 2018,
	}

	r := mux.NewRouter()
	server.Register(r)
	New(server, summary, hub, mw).Register(r, registry)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fixture{srv: srv, hub: hub, metrics: m}
}

func validForm() url.Values {
	return url.Values{
		"route":                 {"A-B"},
		"departing_port":        {"A"},
		"arriving_port":         {"B"},
		"airline":               {"X"},
		"month":                 {"2018-01"},
		"sectors_scheduled":     {"120"},
		"sectors_flown":         {"119"},
		"cancellations":         {"1"},
		"departures_on_time":    {"85.5"},
		"arrivals_on_time":      {"83"},
		"departures_delayed":    {"34.5"},
		"arrivals_delayed":      {"37"},
		"ontime_departures_pct": {"73.5"},
		"cancellations_pct":     {"1"},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestDashboard_FormDefaults(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, `<option value="A-B" selected>A-B</option>`)
	assert.Contains(t, body, `<option value="B-A">B-A</option>`)
	assert.Contains(t, body, `name="month" value="2018-01"`)
	assert.Contains(t, body, `name="departures_on_time" value="85.5"`)
	assert.Contains(t, body, "OnTime Departures (%)")
	assert.NotContains(t, body, "Predicted on-time arrivals")
}

func TestDashboard_Submit(t *testing.T) {
	f := newFixture(t)

	resp, err := http.PostForm(f.srv.URL+"/", validForm())
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Predicted on-time arrivals: ")
	assert.Contains(t, body, " %</div>")
	assert.NotContains(t, body, `id="error"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FormSubmissions))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Predictions))
}

func TestDashboard_SubmitUnknownCategory(t *testing.T) {
	f := newFixture(t)

	form := validForm()
	form.Set("airline", "Brand New Air")
	resp, err := http.PostForm(f.srv.URL+"/", form)
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Predicted on-time arrivals: ")
	assert.Contains(t, body, "Not seen during training: airline=Brand New Air")
	assert.Contains(t, body, `<option value="Brand New Air" selected>`)
}

func TestDashboard_SubmitInvalid(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		wantMsg string
	}{
		{"non-numeric counter", "sectors_flown", "lots", "Sectors Flown"},
		{"missing counter", "cancellations", "", "Cancellations"},
		{"bad month", "month", "someday", "month"},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			form.Set(tt.field, tt.value)

			resp, err := http.PostForm(f.srv.URL+"/", form)
			require.NoError(t, err)
			body := readBody(t, resp)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, body, `id="error"`)
			assert.Contains(t, body, tt.wantMsg)
			assert.NotContains(t, body, "Predicted on-time arrivals")
		})
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.FormSubmissions))
	assert.Zero(t, testutil.ToFloat64(f.metrics.Predictions))
}

func TestDashboard_Health(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.True(t, h.Healthy)
	assert.Equal(t, 40, h.CorpusRecords)
	assert.NotEmpty(t, h.ModelVersion)
	assert.Zero(t, h.FailureRate)
}

func TestDashboard_Metrics(t *testing.T) {
	f := newFixture(t)

	resp, err := http.PostForm(f.srv.URL+"/", validForm())
	require.NoError(t, err)
	readBody(t, resp)

	resp, err = http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "form_submissions_total 1")
	assert.Contains(t, body, "predictions_total 1")
}

func TestDashboard_Feed(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WSClients))

	resp, err := http.PostForm(f.srv.URL+"/", validForm())
	require.NoError(t, err)
	readBody(t, resp)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ml.PredictionEvent
	require.NoError(t, conn.ReadJSON(&ev))

	assert.Equal(t, "form", ev.Source)
	assert.NotEmpty(t, ev.RequestID)
	assert.Empty(t, ev.Error)
	assert.Equal(t, []string{"A-B", "A", "B", "X"}, ev.Row.Categorical)
}

func TestHub_StopDisconnects(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Start()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Stop()
	hub.Stop()
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_Restart(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	hub.Start()
	hub.Stop()
	assert.False(t, hub.Running())

	hub.Start()
	defer hub.Stop()
	assert.True(t, hub.Running())

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.ObservePrediction(ml.PredictionEvent{RequestID: "after-restart", Source: "api"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ml.PredictionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "after-restart", ev.RequestID)

	hub.Stop()
	assert.NotPanics(t, hub.Stop)
}

func TestHub_ObserveWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < broadcastBuffer+10; i++ {
		hub.ObservePrediction(ml.PredictionEvent{RequestID: "r"})
	}
	assert.Len(t, hub.broadcastChannel, broadcastBuffer)
}
