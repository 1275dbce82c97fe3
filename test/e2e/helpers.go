package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relaylink/pkg/api"
	"github.com/codeready-toolchain/relaylink/pkg/connection"
	"github.com/codeready-toolchain/relaylink/pkg/events"
)

// ────────────────────────────────────────────────────────────
// HTTP helpers
// ────────────────────────────────────────────────────────────

// do sends a request to the client API and returns status and body.
func (app *TestApp) do(method, path string, body any) (int, []byte) {
	app.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(app.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, app.BaseURL+path, reader)
	require.NoError(app.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(app.t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(app.t, err)
	return resp.StatusCode, data
}

// getJSON GETs path, requires 200 and decodes the body into v.
func (app *TestApp) getJSON(path string, v any) {
	app.t.Helper()
	status, data := app.do(http.MethodGet, path, nil)
	require.Equal(app.t, http.StatusOK, status, string(data))
	require.NoError(app.t, json.Unmarshal(data, v))
}

// Action posts a connection action (connect, recover, disconnect) or
// "logout" and requires it to be accepted.
func (app *TestApp) Action(name string) {
	app.t.Helper()
	path := "/api/v1/connection/" + name
	if name == "logout" {
		path = "/api/v1/logout"
	}
	status, data := app.do(http.MethodPost, path, nil)
	require.Equal(app.t, http.StatusAccepted, status, string(data))
}

// Connection fetches GET /api/v1/connection.
func (app *TestApp) Connection() api.ConnectionResponse {
	app.t.Helper()
	var resp api.ConnectionResponse
	app.getJSON("/api/v1/connection", &resp)
	return resp
}

// NoticeCategories returns the categories of the active notices.
func (app *TestApp) NoticeCategories() []string {
	app.t.Helper()
	var resp api.NoticesResponse
	app.getJSON("/api/v1/notices", &resp)
	out := make([]string, 0, len(resp.Notices))
	for _, n := range resp.Notices {
		out = append(out, n.Category)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Waiting helpers
// ────────────────────────────────────────────────────────────

// WaitForState polls the API until the connection reaches state.
func (app *TestApp) WaitForState(state connection.State) api.ConnectionResponse {
	app.t.Helper()
	var last api.ConnectionResponse
	require.Eventually(app.t, func() bool {
		last = app.Connection()
		return last.State == state
	}, 5*time.Second, 10*time.Millisecond, "waiting for state %s", state)
	return last
}

// WaitForNotice polls the API until a notice of category is active.
func (app *TestApp) WaitForNotice(category string) {
	app.t.Helper()
	require.Eventually(app.t, func() bool {
		return slices.Contains(app.NoticeCategories(), category)
	}, 5*time.Second, 10*time.Millisecond, "waiting for a %s notice", category)
}

// ────────────────────────────────────────────────────────────
// Scenario helpers
// ────────────────────────────────────────────────────────────

// LinkSession connects and walks the relay through session_created and
// engine linked, leaving the client fully linked. Only valid for a fresh
// session, since it waits for the ready signal.
func (app *TestApp) LinkSession(sessionID string) {
	app.t.Helper()
	connects := app.Relay.Connects()
	readies := len(app.Relay.Frames(events.TypeClientReady))
	app.Action("connect")
	app.Relay.WaitForConnects(connects + 1)

	app.Relay.Send(string(events.KindSessionCreated), map[string]any{"session_id": sessionID})
	app.WaitForState(connection.ClientLinked)
	app.Relay.WaitForFrames(events.TypeClientReady, readies+1)

	app.Relay.Send(string(events.KindEngineLinked), map[string]any{"message": "Blender connected"})
	app.WaitForState(connection.FullyLinked)
}

// AnswerSceneInfo replies to the get_scene_info frame with objects.
func (app *TestApp) AnswerSceneInfo(frame Frame, objects ...map[string]any) {
	app.t.Helper()
	app.Relay.Send(string(events.KindCommandCompleted), map[string]any{
		"command_id": frame.MessageID,
		"command":    events.TypeGetSceneInfo,
		"success":    true,
		"result":     map[string]any{"objects": objects},
	})
}
