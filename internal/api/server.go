package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/feedwatch/internal/infrastructure/config"
	"github.com/nerrad567/feedwatch/internal/infrastructure/logging"
	"github.com/nerrad567/feedwatch/internal/infrastructure/metrics"
	"github.com/nerrad567/feedwatch/internal/journal"
	"github.com/nerrad567/feedwatch/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusSource reports the state of the topic clients.
type StatusSource interface {
	Snapshot() []supervisor.Status
	Status(topic string) (supervisor.Status, error)
	HealthCheck(ctx context.Context) error
}

// SessionLister reads connection history.
type SessionLister interface {
	Sessions(ctx context.Context, topic string, limit int) ([]journal.Session, error)
}

// HealthChecker is implemented by every optional component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Metrics config.MetricsConfig
	Logger  *logging.Logger
	Status  StatusSource

	// Optional.
	Sessions  SessionLister
	Collector *metrics.Collector
	Hub       *Hub
	Version   string
}

// Server is the status API server.
type Server struct {
	cfg        config.APIConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
	status     StatusSource
	sessions   SessionLister
	collector  *metrics.Collector
	hub        *Hub
	version    string

	checks   map[string]HealthChecker
	checksMu sync.RWMutex

	startTime time.Time
	server    *http.Server
	listener  net.Listener
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an API server. It is not listening until Start.
//
// Returns:
//   - *Server: configured server
//   - error: if the logger or status source is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:        deps.Config,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		status:     deps.Status,
		sessions:   deps.Sessions,
		collector:  deps.Collector,
		hub:        hub,
		version:    deps.Version,
		checks:     make(map[string]HealthChecker),
		startTime:  time.Now(),
	}, nil
}

// AddHealthCheck registers a component reported by /api/v1/health.
func (s *Server) AddHealthCheck(name string, hc HealthChecker) {
	s.checksMu.Lock()
	s.checks[name] = hc
	s.checksMu.Unlock()
}

// Hub returns the event stream hub, to be registered as a sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router with all middleware, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background.
//
// Returns:
//   - error: if the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the stream hub and shuts the server down, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-s.done
	return nil
}

// HealthCheck reports whether the server is serving.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// componentNames returns the registered health check names, sorted.
func (s *Server) componentNames() []string {
	s.checksMu.RLock()
	defer s.checksMu.RUnlock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) healthChecker(name string) HealthChecker {
	s.checksMu.RLock()
	defer s.checksMu.RUnlock()
	return s.checks[name]
}
