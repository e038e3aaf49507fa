package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/connectbridge/internal/events"
	"git.home.luguber.info/inful/connectbridge/internal/logfields"
	"git.home.luguber.info/inful/connectbridge/internal/metrics"
)

// Server is the HTTP boundary helper daemons talk to. It accepts dispatch
// commands, answers health probes, and exposes Prometheus metrics.
type Server struct {
	addr    string
	bus     *events.Bus
	metrics metrics.Recorder

	// metricsHandler serves GET /metrics; nil disables the endpoint.
	metricsHandler http.Handler

	httpServer *http.Server
}

// New creates a dispatch server. metricsHandler and rec may be nil.
func New(addr string, bus *events.Bus, metricsHandler http.Handler, rec metrics.Recorder) *Server {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Server{
		addr:           addr,
		bus:            bus,
		metrics:        rec,
		metricsHandler: metricsHandler,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/dispatch", s.handleDispatch)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	return mux
}

// Start binds the listen address and serves in the background. Binding
// happens synchronously so startup failures surface immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("dispatch server error", logfields.Error(err))
		}
	}()

	slog.Info("dispatch server listening", slog.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type dispatchRequest struct {
	DeviceID string `json:"deviceId"`
	Cmd      string `json:"cmd"`
	Value    int    `json:"value,omitempty"`
}

type dispatchResponse struct {
	DispatchID string `json:"dispatchId"`
}

var commandKinds = map[string]events.CommandKind{
	"start":  events.CommandStart,
	"stop":   events.CommandStop,
	"change": events.CommandChange,
	"volume": events.CommandVolume,
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	kind, ok := commandKinds[req.Cmd]
	if !ok {
		s.metrics.IncInboundCommand(req.Cmd, metrics.OutcomeError)
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}

	cmd := events.RemoteCommand{
		DispatchID: uuid.NewString(),
		DeviceID:   req.DeviceID,
		Kind:       kind,
		Value:      req.Value,
		Origin:     events.OriginUser,
		ReceivedAt: time.Now(),
	}

	if err := s.bus.Publish(r.Context(), cmd); err != nil {
		slog.Warn("publishing dispatch command failed",
			logfields.DispatchID(cmd.DispatchID),
			logfields.DeviceID(cmd.DeviceID),
			logfields.Error(err))
		http.Error(w, "dispatch queue unavailable", http.StatusServiceUnavailable)
		return
	}

	slog.Debug("command dispatched",
		logfields.DispatchID(cmd.DispatchID),
		logfields.DeviceID(cmd.DeviceID),
		logfields.Command(string(kind)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(dispatchResponse{DispatchID: cmd.DispatchID})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
