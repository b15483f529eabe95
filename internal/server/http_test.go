package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/actions"
	"github.com/evantahler/botholomew-sub001/internal/agents"
	"github.com/evantahler/botholomew-sub001/internal/orchestrator"
	"github.com/evantahler/botholomew-sub001/internal/queue"
	"github.com/evantahler/botholomew-sub001/internal/realtime"
	"github.com/evantahler/botholomew-sub001/internal/store"
)

const testCookieName = "botholomew-session"

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, inv agents.Invocation) (*agents.Result, error) {
	return &agents.Result{Status: "complete", Result: "ok"}, nil
}

// paramsEchoAction exposes the merged param set so transport tests can see
// exactly what the dispatcher received.
type paramsEchoAction struct{}

func (paramsEchoAction) Name() string                 { return "params:echo" }
func (paramsEchoAction) Description() string          { return "Echo merged request params." }
func (paramsEchoAction) InputSchema() json.RawMessage { return nil }
func (paramsEchoAction) Middleware() []string         { return nil }

func (paramsEchoAction) Route() action.Route {
	return action.Route{Method: http.MethodPost, Path: "/echo/:id"}
}

func (paramsEchoAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	return map[string]any{"params": params, "kind": conn.Kind}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *realtime.MemoryHub) {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.New(s)
	hub := realtime.NewMemoryHub()
	registry := action.NewRegistry()
	require.NoError(t, actions.RegisterAll(registry, actions.Deps{
		Store:      s,
		Queue:      q,
		Processor:  orchestrator.NewProcessor(s, noopRunner{}, hub, logger),
		Scheduler:  orchestrator.NewScheduler(s, time.Minute, logger),
		Ticker:     orchestrator.NewTicker(s, q, logger),
		SessionTTL: time.Hour,
	}))
	require.NoError(t, registry.Register(paramsEchoAction{}))

	srv := New(action.NewDispatcher(registry, logger), hub, Options{
		APIPrefix:  "/api",
		CookieName: testCookieName,
	}, logger)

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)
	return ts, hub
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHTTP_SuccessEnvelope(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Contains(t, body, "response")
	assert.NotContains(t, body, "error")
	assert.Equal(t, "botholomew", body["response"].(map[string]any)["name"])
}

func TestHTTP_MintsSessionCookie(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()

	var minted string
	for _, c := range resp.Cookies() {
		if c.Name == testCookieName {
			minted = c.Value
		}
	}
	assert.NotEmpty(t, minted, "first request mints a session cookie")
}

func TestHTTP_UnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/no/such/route")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "action_not_found", errBody["type"])
}

func TestHTTP_ParamPrecedence(t *testing.T) {
	ts, _ := newTestServer(t)

	payload := bytes.NewBufferString(`{"id": "from-body", "b": "body-only"}`)
	resp, err := http.Post(ts.URL+"/api/echo/from-path?id=from-query&q=query-only", "application/json", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	params := body["response"].(map[string]any)["params"].(map[string]any)
	assert.Equal(t, "from-path", params["id"], "path placeholder wins over body and query")
	assert.Equal(t, "body-only", params["b"])
	assert.Equal(t, "query-only", params["q"])
}

func TestHTTP_FormBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/echo/x", "application/x-www-form-urlencoded",
		bytes.NewBufferString("field=value"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	params := body["response"].(map[string]any)["params"].(map[string]any)
	assert.Equal(t, "value", params["field"])
}

func TestHTTP_ValidationErrorStatus(t *testing.T) {
	ts, _ := newTestServer(t)

	// Password below the schema minimum.
	payload := bytes.NewBufferString(`{"name": "Mario", "email": "mario@example.com", "password": "short"}`)
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/user", payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "param_validation", errBody["type"])
	assert.Equal(t, "password", errBody["key"])
}

func TestHTTP_LoginSetsCookieAndAuthorizes(t *testing.T) {
	ts, _ := newTestServer(t)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	doJSON := func(method, path, payload string) *http.Response {
		req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(payload))
		require.NoError(t, err)
		if payload != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := doJSON(http.MethodPut, "/api/user",
		`{"name": "Mario", "email": "mario@example.com", "password": "mushroom1up"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Unauthenticated listing rejects with 401.
	resp = doJSON(http.MethodGet, "/api/agents", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(http.MethodPut, "/api/session",
		`{"email": "mario@example.com", "password": "mushroom1up"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	sessionID := body["response"].(map[string]any)["session"].(map[string]any)["id"].(string)

	cookies := jar.Cookies(mustParseURL(t, ts.URL))
	var cookieValue string
	for _, c := range cookies {
		if c.Name == testCookieName {
			cookieValue = c.Value
		}
	}
	assert.Equal(t, sessionID, cookieValue, "login rotates the cookie to the new session")

	resp = doJSON(http.MethodGet, "/api/agents", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Logout clears the cookie and re-locks the account surface.
	resp = doJSON(http.MethodDelete, "/api/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(http.MethodGet, "/api/agents", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
