package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"lightctl/internal/application"
	"lightctl/internal/domain"
)

const Version = "1.0.0"

// LightService is the application surface the HTTP layer drives.
type LightService interface {
	Control(ctx context.Context, req domain.ControlRequest) (*domain.ControlResponse, error)
	Lights(ctx context.Context, withState bool) ([]domain.DeviceInfo, error)
	Status() application.Status
}

// Instrumentation exposes request metrics and their scrape endpoint.
type Instrumentation interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Config struct {
	Addr       string
	AuthToken  string
	RateLimit  int
	RateWindow time.Duration

	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix

	// Backend and CredentialsSet are reported by /config/check.
	Backend        string
	CredentialsSet bool
}

type Server struct {
	cfg     Config
	lights  LightService
	events  http.Handler
	metrics Instrumentation
	limiter *RateLimiter
	logger  *slog.Logger
	router  *mux.Router

	mu      sync.Mutex
	server  *http.Server
	stop    chan struct{}
	running bool
}

// NewServer builds the router. events and metrics may be nil, in which case
// /events and /metrics are not served.
func NewServer(cfg Config, lights LightService, events http.Handler, metrics Instrumentation, logger *slog.Logger) *Server {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	s := &Server{
		cfg:     cfg,
		lights:  lights,
		events:  events,
		metrics: metrics,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow).TrustProxies(cfg.TrustedProxies...),
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(s.logger))
	r.Use(Recovery(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	auth := BearerAuth(s.cfg.AuthToken, s.logger)

	protected := r.NewRoute().Subrouter()
	protected.Use(auth)
	protected.HandleFunc("/lights", s.handleLights).Methods(http.MethodGet)
	protected.HandleFunc("/config/check", s.handleConfigCheck).Methods(http.MethodGet)
	if s.events != nil {
		protected.Handle("/events", s.events).Methods(http.MethodGet)
	}

	control := r.NewRoute().Subrouter()
	control.Use(auth)
	control.Use(s.limiter.Middleware)
	control.HandleFunc("/control", s.handleControl).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "not_found", "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.stop = make(chan struct{})

	go func() {
		s.logger.Info("HTTP server starting", "addr", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	go s.pruneLimiter(s.stop)

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

func (s *Server) pruneLimiter(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.RateWindow)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}
