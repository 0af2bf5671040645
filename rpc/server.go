package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/metrics"
)

const maxBodyBytes = 1 << 20

// ServerConfig tunes the HTTP front end.
type ServerConfig struct {
	// AuthToken, when set, must be presented as "Authorization: Bearer <token>"
	// on JSON-RPC calls.
	AuthToken string
	// RateLimit is requests per second per remote host; 0 disables limiting.
	RateLimit float64
	Burst     int
}

// Server serves JSON-RPC 2.0 on POST /, the event stream on GET /ws and
// Prometheus metrics on GET /metrics.
type Server struct {
	handler *Handler
	hub     *WSHub
	cfg     ServerConfig
	limiter *clientLimiter
	log     *logrus.Entry

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

// NewServer creates a Server listening on addr. hub may be nil to disable
// the event stream.
func NewServer(addr string, handler *Handler, hub *WSHub, cfg ServerConfig) *Server {
	s := &Server{
		handler: handler,
		hub:     hub,
		cfg:     cfg,
		limiter: newClientLimiter(cfg.RateLimit, cfg.Burst),
		log:     logrus.StandardLogger().WithField("type", "rpc/server"),
		addr:    addr,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router builds the HTTP routes. It is exported so tests can drive the
// server through httptest without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(metrics.Middleware)
	r.Post("/", s.serveRPC)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	return r
}

// Start binds the port synchronously so callers learn immediately if
// binding fails, then serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.WithField("addr", ln.Addr().String()).Info("rpc server listening")
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("rpc server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded, else the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	want := "Bearer " + s.cfg.AuthToken
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeStatus(w, http.StatusUnauthorized, errResponse(nil, CodeUnauthorized, "unauthorized"))
		return
	}
	if !s.limiter.Allow(remoteHost(r)) {
		writeStatus(w, http.StatusTooManyRequests, errResponse(nil, CodeRateLimited, "rate limit exceeded"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}

	resp := s.handler.Dispatch(req)
	if resp.Error != nil && resp.Error.Code == CodeInternalError {
		s.log.WithFields(logrus.Fields{
			"method":     req.Method,
			"request_id": w.Header().Get(requestIDHeader),
		}).Warn(resp.Error.Message)
	}
	writeJSON(w, resp)
}

const requestIDHeader = "X-Request-ID"

// requestID echoes the caller's request id or assigns a fresh one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeStatus(w, http.StatusOK, v)
}

func writeStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
