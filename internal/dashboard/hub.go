package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"otp-predictor/internal/metrics"
	"otp-predictor/internal/ml"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	broadcastBuffer = 100
	writeWait       = 5 * time.Second
)

// Hub streams finished predictions to websocket clients. It is an
// ml.PredictionObserver; events are queued and written by a single
// broadcaster goroutine.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	gauge     metrics.MetricsGauge

	broadcastChannel chan ml.PredictionEvent
	stopChannel      chan struct{}
	isRunning        bool
	mu               sync.Mutex
}

// NewHub creates a stopped hub. gauge tracks connected clients and may be nil.
func NewHub(gauge metrics.MetricsGauge) *Hub {
	return &Hub{
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		gauge:            gauge,
		broadcastChannel: make(chan ml.PredictionEvent, broadcastBuffer),
	}
}

// Start launches the broadcaster. A stopped hub can be started again.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isRunning {
		return
	}
	h.isRunning = true
	h.stopChannel = make(chan struct{})
	go h.clientBroadcaster(h.stopChannel)
}

// Stop ends the broadcaster and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isRunning {
		return
	}
	close(h.stopChannel)
	h.isRunning = false

	h.clientsMu.Lock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientsMu.Unlock()
	h.setGauge(0)
}

// Running reports whether the broadcaster is active.
func (h *Hub) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isRunning
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ObservePrediction queues ev for broadcast, dropping it when the queue is full.
func (h *Hub) ObservePrediction(ev ml.PredictionEvent) {
	select {
	case h.broadcastChannel <- ev:
	default:
		log.Warn().Str("request_id", ev.RequestID).Msg("Prediction feed full, dropping event")
	}
}

func (h *Hub) clientBroadcaster(stop <-chan struct{}) {
	for {
		select {
		case ev := <-h.broadcastChannel:
			h.broadcastToClients(ev)
		case <-stop:
			return
		}
	}
}

func (h *Hub) broadcastToClients(ev ml.PredictionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal prediction for broadcast")
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("Dropping websocket client")
			client.Close()
			delete(h.clients, client)
		}
	}
	h.setGauge(float64(len(h.clients)))
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects.
// A stopped hub refuses new clients.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Running() {
		http.Error(w, "prediction feed stopped", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.setGauge(float64(len(h.clients)))
	h.clientsMu.Unlock()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Prediction feed client connected")

	// Reads only detect the close; clients have nothing to say.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	delete(h.clients, conn)
	h.setGauge(float64(len(h.clients)))
	h.clientsMu.Unlock()
}

func (h *Hub) setGauge(v float64) {
	if h.gauge != nil {
		h.gauge.Set(v)
	}
}
