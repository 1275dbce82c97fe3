package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// connectionHandler handles GET /api/v1/connection.
func (s *Server) connectionHandler(c *echo.Context) error {
	st := s.conn.Status()
	return c.JSON(http.StatusOK, &ConnectionResponse{
		Status: st,
		Linked: st.Linked(),
		Outage: s.conn.OutageWatch(),
	})
}

// actionHandler wraps a connection action. Actions are queued on the
// manager's event loop and answered with 202; the state machine decides
// whether they apply.
func (s *Server) actionHandler(name string, action func() error) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if err := action(); err != nil {
			return mapServiceError(err)
		}
		slog.Info("Connection action requested", "action", name)
		return c.JSON(http.StatusAccepted, &ActionResponse{
			Action: name,
			State:  s.conn.Status().State,
		})
	}
}
