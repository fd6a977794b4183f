// Package api provides the HTTP REST API and WebSocket endpoint for
// Sous Edge Core.
//
// It exposes the hardware pairing and heartbeat surface to kitchen
// devices on the local network and org-scoped device reads to staff
// dashboards.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sous-kitchen/edge-core/internal/auth"
	"github.com/sous-kitchen/edge-core/internal/device"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/config"
	"github.com/sous-kitchen/edge-core/internal/infrastructure/logging"
	"github.com/sous-kitchen/edge-core/internal/pairing"
	"github.com/sous-kitchen/edge-core/internal/realtime"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Publisher delivers realtime events triggered by HTTP handlers.
// Satisfied by *realtime.Hub; narrowed here so handlers can be tested
// without sockets.
type Publisher interface {
	PublishToHardware(hardwareID, event string, payload any)
	PublishToOrganization(orgID, event string, payload any)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Directory *device.Directory
	Pairing   *pairing.Registry
	Hub       *realtime.Hub // required for the /ws endpoint
	Publisher Publisher     // optional; usually the same hub
	Version   string
}

// Server is the HTTP API server for Sous Edge Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// upgrade path into the realtime hub. The server is created with New()
// and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	directory *device.Directory
	pairing   *pairing.Registry
	hub       *realtime.Hub
	publisher Publisher
	chain     *auth.Chain
	version   string
	server    *http.Server
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("device directory is required")
	}
	if deps.Pairing == nil {
		return nil, fmt.Errorf("pairing registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		directory: deps.Directory,
		pairing:   deps.Pairing,
		hub:       deps.Hub,
		publisher: deps.Publisher,
		version:   deps.Version,
	}

	// Hardware credentials win when both are present; only the bearer
	// authenticator can actively deny.
	s.chain = auth.NewChain(
		auth.NewHardwareAuthenticator(deps.Directory, deps.Logger),
		auth.NewBearerAuthenticator(deps.Security.JWT.Secret),
	)

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub != nil {
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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
