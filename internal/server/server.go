package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VancePeterson/obd2-reader/internal/logger"
	"github.com/VancePeterson/obd2-reader/internal/obd"
	"github.com/VancePeterson/obd2-reader/internal/poller"
)

// Server is the presentation-facing surface: it broadcasts readings
// to WebSocket clients and accepts the PID selection over a JSON API.
// It is the poller's notification sink; Publish never blocks — slow
// clients get dropped frames, not backpressure on the serial loop.
type Server struct {
	cfg  *Config
	poll *poller.Poller
	rec  *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a new Server. The poller is attached afterwards with
// SetPoller (the server is the poller's sink, so the two are built in
// two steps).
func New(cfg *Config, rec *logger.Logger) *Server {
	return &Server{
		cfg:     cfg,
		rec:     rec,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetPoller attaches the poller whose selection the API manages. Must
// be called before Run.
func (s *Server) SetPoller(p *poller.Poller) { s.poll = p }

// Publish implements poller.Sink: one JSON frame per reading, fanned
// out to every connected client, plus the CSV recorder.
func (s *Server) Publish(r poller.Reading) {
	s.rec.Record(r)

	data, err := json.Marshal(r)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/pids", s.handlePIDs)
	mux.HandleFunc("/api/config", s.handleConfig)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive / teardown)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// pidEntry describes one catalog parameter to the API.
type pidEntry struct {
	PID      string `json:"pid"`
	Name     string `json:"name"`
	Unit     string `json:"unit,omitempty"`
	Selected bool   `json:"selected"`
}

// handlePIDs serves the catalog plus current selection on GET, and
// replaces the polled selection on POST. This is the inbound
// collaborator contract: the presentation layer owns what gets
// polled.
func (s *Server) handlePIDs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		selected := make(map[obd.PID]bool)
		for _, p := range s.poll.PIDs() {
			selected[p] = true
		}
		entries := make([]pidEntry, 0, len(obd.Definitions()))
		for _, def := range obd.Definitions() {
			entries = append(entries, pidEntry{
				PID:      def.PID.Command(),
				Name:     def.Name,
				Unit:     def.Unit,
				Selected: selected[def.PID],
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		var req struct {
			PIDs []string `json:"pids"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		pids := make([]obd.PID, 0, len(req.PIDs))
		for _, sp := range req.PIDs {
			p, err := obd.ParsePID(sp)
			if err != nil {
				http.Error(w, err.Error(), 400)
				return
			}
			pids = append(pids, p)
		}
		s.poll.SetPIDs(pids)
		log.Printf("[server] selection replaced: %d pids", len(pids))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	data, err := s.cfg.ToJSON()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
