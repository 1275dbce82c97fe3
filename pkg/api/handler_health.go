package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relaylink/pkg/connection"
	"github.com/codeready-toolchain/relaylink/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Only relaylink's own components decide liveness. A relay outage marks the
// response degraded but keeps 200, so an orchestrator does not restart the
// client because the backend is down.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.dbClient != nil {
		if _, err := s.dbClient.Health(reqCtx); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	st := s.conn.Status()
	if st.State == connection.BackendUnavailable {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["relay"] = HealthCheck{Status: healthStatusDegraded, Message: string(st.State)}
	} else {
		checks["relay"] = HealthCheck{Status: healthStatusHealthy, Message: string(st.State)}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
