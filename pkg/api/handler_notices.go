package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relaylink/pkg/inbox"
)

// listNoticesHandler handles GET /api/v1/notices.
func (s *Server) listNoticesHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &NoticesResponse{Notices: s.notices.List()})
}

// dismissNoticeHandler handles DELETE /api/v1/notices/:id.
func (s *Server) dismissNoticeHandler(c *echo.Context) error {
	if !s.notices.Dismiss(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// sceneHandler handles GET /api/v1/scene.
func (s *Server) sceneHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.scene.Snapshot())
}

// listMessagesHandler handles GET /api/v1/messages?since=SEQ.
func (s *Server) listMessagesHandler(c *echo.Context) error {
	var since uint64
	if v := c.QueryParam("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
		}
		since = n
	}
	messages := []inbox.Entry{}
	if s.inbox != nil {
		messages = s.inbox.List(since)
	}
	return c.JSON(http.StatusOK, &MessagesResponse{Messages: messages})
}
