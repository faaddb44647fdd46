package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RaufunNazin/bnetdiag/internal/audit"
	"github.com/RaufunNazin/bnetdiag/internal/auth"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/config"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/metrics"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

// gracefulShutdownTimeout bounds how long in-flight requests may run on Close.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every backing store the health route reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Metrics  config.MetricsConfig
	Logger   *logging.Logger

	Topology *topology.Service
	Users    auth.UserRepository
	Audit    audit.Repository // optional: /audit answers 500 without it
	Recorder *audit.Recorder  // optional: login events are not recorded without it
	Prom     *metrics.Metrics // optional
	Hub      *Hub             // optional: created on Start when nil

	// Health lists named dependencies checked by GET /health.
	Health  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	metCfg   config.MetricsConfig
	logger   *logging.Logger
	topology *topology.Service
	users    auth.UserRepository
	audit    audit.Repository
	recorder *audit.Recorder
	prom     *metrics.Metrics
	health   map[string]HealthChecker
	version  string

	tickets     *ticketStore
	hub         *Hub
	externalHub bool
	server      *http.Server
	cancel      context.CancelFunc
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Topology == nil {
		return nil, fmt.Errorf("topology service is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		metCfg:   deps.Metrics,
		logger:   deps.Logger.Component("api"),
		topology: deps.Topology,
		users:    deps.Users,
		audit:    deps.Audit,
		recorder: deps.Recorder,
		prom:     deps.Prom,
		health:   deps.Health,
		version:  deps.Version,
		tickets:  newTicketStore(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub so callers can feed it changes from other instances.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start builds the router and listens in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close shuts the server down, waiting up to gracefulShutdownTimeout for
// in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether Start has been called.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
