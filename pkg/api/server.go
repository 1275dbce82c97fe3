// Package api exposes the local control API: connection status, user
// actions, commands and notices.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/relaylink/pkg/config"
	"github.com/codeready-toolchain/relaylink/pkg/connection"
	"github.com/codeready-toolchain/relaylink/pkg/database"
	"github.com/codeready-toolchain/relaylink/pkg/events"
	"github.com/codeready-toolchain/relaylink/pkg/health"
	"github.com/codeready-toolchain/relaylink/pkg/inbox"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
	"github.com/codeready-toolchain/relaylink/pkg/notices"
	"github.com/codeready-toolchain/relaylink/pkg/scene"
)

// Controller is the part of connection.Manager the API drives.
type Controller interface {
	Status() connection.Status
	OutageWatch() health.WatchStatus
	Connect() error
	Recover() error
	Disconnect() error
	Logout() error
	SendCommand(ctx context.Context, msgType string, payload any, route events.Route) (string, error)
	SendAgentRequest(ctx context.Context, text string) (string, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.APIConfig
	echo     *echo.Echo
	http     *http.Server
	conn     Controller
	notices  *notices.Service
	scene    *scene.Cache
	ledger   ledger.Store
	inbox    *inbox.Inbox     // nil serves an empty feed
	dbClient *database.Client // nil when the ledger lives in memory
}

// NewServer creates a Server and registers its routes.
func NewServer(cfg *config.APIConfig, conn Controller, noticeSvc *notices.Service, sceneCache *scene.Cache, store ledger.Store) *Server {
	if cfg == nil {
		cfg = config.Default().API
	}
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(securityHeaders())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       int((12 * time.Hour).Seconds()),
		}))
	}

	s := &Server{
		cfg:     cfg,
		echo:    e,
		conn:    conn,
		notices: noticeSvc,
		scene:   sceneCache,
		ledger:  store,
		http: &http.Server{
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

// SetInbox sets the feed served by GET /api/v1/messages.
func (s *Server) SetInbox(b *inbox.Inbox) {
	s.inbox = b
}

// SetDatabaseClient adds the ledger database to the health check.
func (s *Server) SetDatabaseClient(c *database.Client) {
	s.dbClient = c
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/connection", s.connectionHandler)
	v1.POST("/connection/connect", s.actionHandler("connect", s.conn.Connect))
	v1.POST("/connection/recover", s.actionHandler("recover", s.conn.Recover))
	v1.POST("/connection/disconnect", s.actionHandler("disconnect", s.conn.Disconnect))
	v1.POST("/logout", s.actionHandler("logout", s.conn.Logout))

	v1.POST("/commands", s.sendCommandHandler)
	v1.GET("/commands/:id", s.getCommandHandler)
	v1.POST("/agent", s.agentRequestHandler)
	v1.GET("/transitions", s.listTransitionsHandler)

	v1.GET("/notices", s.listNoticesHandler)
	v1.DELETE("/notices/:id", s.dismissNoticeHandler)

	v1.GET("/scene", s.sceneHandler)
	v1.GET("/messages", s.listMessagesHandler)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until Shutdown is called.
// Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.StartWithListener(ln)
}

// StartWithListener serves on ln until Shutdown is called.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.http.Serve(ln)
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
