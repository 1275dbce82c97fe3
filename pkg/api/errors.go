package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relaylink/pkg/connection"
	"github.com/codeready-toolchain/relaylink/pkg/ledger"
	"github.com/codeready-toolchain/relaylink/pkg/transport"
)

// mapServiceError maps domain errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	if errors.Is(err, connection.ErrNotLinked) {
		return echo.NewHTTPError(http.StatusConflict, "relay session is not linked")
	}
	if errors.Is(err, ledger.ErrCommandNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, transport.ErrNotConnected) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "relay transport is not connected")
	}
	if errors.Is(err, connection.ErrStopped) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "connection manager is stopped")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
