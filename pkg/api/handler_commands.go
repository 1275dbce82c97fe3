package api

import (
	"bytes"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relaylink/pkg/events"
)

const (
	defaultTransitionLimit = 50
	maxTransitionLimit     = 500
)

// sendCommandHandler handles POST /api/v1/commands.
func (s *Server) sendCommandHandler(c *echo.Context) error {
	// 1. Bind HTTP request
	var req SendCommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// 2. Validate and default
	if len(req.Payload) == 0 || bytes.Equal(bytes.TrimSpace(req.Payload), []byte("null")) {
		return echo.NewHTTPError(http.StatusBadRequest, "payload field is required")
	}
	msgType := req.Type
	if msgType == "" {
		msgType = events.TypeCommandSent
	}
	route := req.Route
	switch route {
	case "":
		route = events.RouteDirect
	case events.RouteDirect, events.RouteAgent:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid route: must be direct or agent")
	}

	// 3. Send
	id, err := s.conn.SendCommand(c.Request().Context(), msgType, req.Payload, route)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &SendCommandResponse{MessageID: id})
}

// agentRequestHandler handles POST /api/v1/agent.
func (s *Server) agentRequestHandler(c *echo.Context) error {
	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	id, err := s.conn.SendAgentRequest(c.Request().Context(), req.Text)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &SendCommandResponse{MessageID: id})
}

// getCommandHandler handles GET /api/v1/commands/:id.
func (s *Server) getCommandHandler(c *echo.Context) error {
	messageID := c.Param("id")
	if messageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message id is required")
	}

	rec, err := s.ledger.GetCommand(c.Request().Context(), messageID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// listTransitionsHandler handles GET /api/v1/transitions?limit=N.
func (s *Server) listTransitionsHandler(c *echo.Context) error {
	limit := defaultTransitionLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxTransitionLimit)
	}

	trs, err := s.ledger.ListTransitions(c.Request().Context(), limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &TransitionsResponse{Transitions: trs})
}
