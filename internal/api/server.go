// Package api provides the HTTP management surface for the notification
// subscription manager.
//
// It exposes connection status, remote subscription inspection and removal,
// tenant-level unsubscribe/disconnect operations, and the connection audit
// trail to operators.
//
// The server follows the same lifecycle pattern as other infrastructure components:
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

	"github.com/iotstream/notify-core/internal/audit"
	"github.com/iotstream/notify-core/internal/infrastructure/config"
	"github.com/iotstream/notify-core/internal/infrastructure/logging"
	"github.com/iotstream/notify-core/internal/notification"
	"github.com/iotstream/notify-core/internal/platform"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Notifier is the slice of the notification service the API depends on.
// Declared here so handler tests can substitute a fake without standing up
// live websocket transports.
type Notifier interface {
	Tenants() []string
	Connections() []notification.ConnectionInfo
	SubscriptionsForDevice(ctx context.Context, tenant, deviceID string) ([]platform.Subscription, error)
	UnsubscribeDevice(ctx context.Context, tenant, deviceID, name string) error
	UnsubscribeAllDevices(ctx context.Context, tenant, name string) (int, error)
	Unsubscribe(ctx context.Context, tenant string) error
	ResubscribeTenant(ctx context.Context, tenant string) error
	ForceDisconnect(ctx context.Context, tenant string) error
}

// AuditTrail reads recorded connection lifecycle events.
type AuditTrail interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Service Notifier
	Trail   AuditTrail // optional: audit listing returns 500 when unset
	Version string
}

// Server is the HTTP management server.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	service Notifier
	trail   AuditTrail
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("notification service is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		service: deps.Service,
		trail:   deps.Trail,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
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
