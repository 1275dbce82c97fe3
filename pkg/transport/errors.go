package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

var (
	// ErrNotConnected is returned by Send when no transport is open.
	ErrNotConnected = errors.New("transport not connected")

	// ErrClosed is returned once the transport has been shut down.
	ErrClosed = errors.New("transport closed")

	// ErrDialInProgress is returned by Connect while another dial runs.
	ErrDialInProgress = errors.New("dial already in progress")

	// ErrDialFailed wraps the last error of an exhausted connect.
	ErrDialFailed = errors.New("dial failed")

	// ErrRelayURLRequired is returned by NewWebSocket without a ws_url.
	ErrRelayURLRequired = errors.New("relay ws_url is required")
)

// RecoveryAction determines how the dial loop handles a failed attempt.
type RecoveryAction int

const (
	// NoRetry: the error is not recoverable by dialing again right away
	// (cancellation, timeout, rejected handshake).
	NoRetry RecoveryAction = iota
	// RetryDial: transport-level failure, dial again after backoff.
	RetryDial
)

func (a RecoveryAction) String() string {
	if a == RetryDial {
		return "retry_dial"
	}
	return "no_retry"
}

// ClassifyError determines the recovery action for a dial or I/O error.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	// Context errors: no retry
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	// Network errors: a timeout may be a slow relay, anything else is a
	// connection failure worth one more dial
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NoRetry
		}
		return RetryDial
	}

	if isConnectionError(err) {
		return RetryDial
	}

	// Default: no retry (a rejected upgrade will be rejected again)
	return NoRetry
}

// isConnectionError detects connection-level transport failures.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	connectionErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"connection closed",
		"no such host",
	}
	for _, e := range connectionErrors {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}
