package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/health"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/monitor"
	"github.com/GPTx-global/flightsurety-oracle/oracle/subscribe"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const (
	apiMessage   = "An API for use with your Dapp!"
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Oracles lists registered identities. *registry.Registry satisfies it.
type Oracles interface {
	All() []types.OracleIdentity
}

type Deps struct {
	Oracles Oracles
	Monitor *monitor.Monitor
	Health  *health.Checker
	Stats   func() subscribe.Stats
}

type Server struct {
	deps     Deps
	handler  http.Handler
	http     *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
}

func New(deps Deps) *Server {
	s := &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("", s.handleIndex).Methods(http.MethodGet)
	api.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/oracles", s.handleOracles).Methods(http.MethodGet)
	api.HandleFunc("/attempts", s.handleAttempts).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(r)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.http = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("status server stopped: %v", err)
		}
	}()
	log.Infof("status server listening on %s", ln.Addr())

	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type oracleView struct {
	Address string `json:"address"`
	Indexes []int  `json:"indexes"`
}

type healthView struct {
	Healthy     bool                     `json:"healthy"`
	Checks      map[string]health.Status `json:"checks"`
	Listener    *subscribe.Stats         `json:"listener,omitempty"`
	Submissions *monitor.Counts          `json:"submissions,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": apiMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	view := healthView{Healthy: true, Checks: map[string]health.Status{}}
	if s.deps.Health != nil {
		view.Healthy = s.deps.Health.Healthy()
		view.Checks = s.deps.Health.Status()
	}
	if s.deps.Stats != nil {
		stats := s.deps.Stats()
		view.Listener = &stats
	}
	if s.deps.Monitor != nil {
		counts := s.deps.Monitor.Counts()
		view.Submissions = &counts
	}

	code := http.StatusOK
	if !view.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, view)
}

func (s *Server) handleOracles(w http.ResponseWriter, _ *http.Request) {
	out := []oracleView{}
	if s.deps.Oracles != nil {
		for _, oracle := range s.deps.Oracles.All() {
			indexes := make([]int, len(oracle.Indexes))
			for i, idx := range oracle.Indexes {
				indexes[i] = int(idx)
			}
			out = append(out, oracleView{Address: oracle.Address.Hex(), Indexes: indexes})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttempts(w http.ResponseWriter, _ *http.Request) {
	out := []monitor.Entry{}
	if s.deps.Monitor != nil {
		out = s.deps.Monitor.Attempts()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	summary, err := s.deps.Monitor.Sink().DisplayMetrics(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		http.Error(w, "no monitor", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("failed to upgrade stream: %v", err)
		return
	}
	defer conn.Close()

	entries, cancel := s.deps.Monitor.Subscribe(64)
	defer cancel()

	// the read side only watches for the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(entry); err != nil {
				log.Debugf("stream client dropped: %v", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("failed to write response: %v", err)
	}
}
