// ABOUTME: Tests for the Gateway HTTP API against a scripted research backend
// ABOUTME: Exercises routing, error mapping, auth and the conversation round trip

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/config"
	"github.com/2389/scout-desk/internal/conversation"
	"github.com/2389/scout-desk/internal/store"
)

const testSecret = "gateway-test-secret-at-least-32-bytes"

// fakeBackend answers the research backend endpoints the gateway calls.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/answer", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"answer": "Answer to: " + req["question"].(string)})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"contacts":[],"credits_used":0,"warning":"insufficient credits"}`))
	})
	mux.HandleFunc("/research-prospect", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"report":{"research_report":"1. Overview\nMTN is a telecom group."}}`))
	})
	mux.HandleFunc("/research/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testConfig creates a minimal config for testing.
func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "desk.db")},
		Upstream: config.UpstreamConfig{
			BaseURL:    backendURL,
			RecordsURL: backendURL,
			Timeout:    5 * time.Second,
		},
		Search:       config.SearchConfig{PageSizeCeiling: config.DefaultPageSizeCeiling},
		Conversation: config.ConversationConfig{Scope: "all", StaleResponse: config.StaleResponsePersist, SwitchWindow: 5 * time.Millisecond},
		Directory:    config.DirectoryConfig{RefreshWindow: 5 * time.Millisecond},
	}
}

func mintToken(t *testing.T, owner string) string {
	t.Helper()
	tok, err := auth.NewJWTVerifier([]byte(testSecret)).Generate(owner, time.Hour)
	require.NoError(t, err)
	return tok
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	gw    *Gateway
	srv   *httptest.Server
	token string
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Shutdown(context.Background())
	})
	return &harness{gw: gw, srv: srv}
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func signedIn(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig(t, fakeBackend(t).URL)
	cfg.Auth.Token = mintToken(t, "owner-1")
	return newHarness(t, cfg)
}

func TestHealth(t *testing.T) {
	h := signedIn(t)

	resp, body := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, _ = h.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionsAndConversation(t *testing.T) {
	h := signedIn(t)

	resp, body := h.do(t, http.MethodPost, "/api/sessions", SessionTitleRequest{Title: "  MTN research  "})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var s store.Session
	require.NoError(t, json.Unmarshal(body, &s))
	assert.Equal(t, "MTN research", s.Title)
	assert.Equal(t, "owner-1", s.OwnerID)

	resp, body = h.do(t, http.MethodPost, "/api/conversation/messages", SubmitRequest{Content: "hi"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	resp, _ = h.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/select", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/api/conversation/messages", SubmitRequest{Content: "What is MTN's 2023 revenue?"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var sub SubmitResponse
	require.NoError(t, json.Unmarshal(body, &sub))
	assert.NotEmpty(t, sub.RequestID)

	require.Eventually(t, func() bool {
		_, body := h.do(t, http.MethodGet, "/api/conversation", nil)
		var v conversation.View
		if json.Unmarshal(body, &v) != nil {
			return false
		}
		return v.State == conversation.StateReady && len(v.Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	resp, body = h.do(t, http.MethodGet, "/api/sessions?q=mtn", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list SessionListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Sessions, 1)
	assert.False(t, list.Stale)
	assert.True(t, list.Sessions[0].UpdatedAt.After(s.UpdatedAt))

	resp, _ = h.do(t, http.MethodPost, "/api/conversation/messages", SubmitRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPatch, "/api/sessions/missing", SessionTitleRequest{Title: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodDelete, "/api/sessions/"+s.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWithoutIdentity(t *testing.T) {
	h := newHarness(t, testConfig(t, fakeBackend(t).URL))

	resp, body := h.do(t, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.True(t, e.Reauth)

	resp, _ = h.do(t, http.MethodPost, "/api/prospects/save", SaveProspectRequest{Kind: store.KindPerson, Data: json.RawMessage(`{"id":"c1"}`)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Searching does not need an owner.
	resp, _ = h.do(t, http.MethodPost, "/api/prospects/search", map[string]any{"person_titles": []string{"CEO"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSearchDegraded(t *testing.T) {
	h := signedIn(t)

	resp, body := h.do(t, http.MethodPost, "/api/prospects/search", map[string]any{"person_titles": []string{"CEO"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, true, got["degraded"])
	assert.Equal(t, "insufficient credits", got["warning"])
	assert.Empty(t, got["prospects"])

	resp, body = h.do(t, http.MethodGet, "/api/notices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "insufficient credits")
}

func TestResearchJob(t *testing.T) {
	h := signedIn(t)

	resp, body := h.do(t, http.MethodPost, "/api/research/jobs", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var job map[string]any
	require.NoError(t, json.Unmarshal(body, &job))
	id := job["id"].(string)

	resp, _ = h.do(t, http.MethodPost, "/api/research/jobs/"+id+"/generate?wait=true", map[string]any{"company": "MTN"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a subject needs a name")

	resp, body = h.do(t, http.MethodPost, "/api/research/jobs/"+id+"/generate?wait=true", map[string]any{"name": "Ralph Mupita", "company": "MTN"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"title":"Overview"`)

	resp, _ = h.do(t, http.MethodPost, "/api/research/jobs/"+id+"/generate?wait=true", map[string]any{"name": "Ralph Mupita"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = h.do(t, http.MethodDelete, "/api/research/jobs/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/research/jobs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteReportNeedsConfirmation(t *testing.T) {
	h := signedIn(t)

	resp, _ := h.do(t, http.MethodDelete, "/api/research/reports/r1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The backend answers 404; deleting a report that is gone succeeds.
	resp, _ = h.do(t, http.MethodDelete, "/api/research/reports/r1?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	cfg := testConfig(t, fakeBackend(t).URL)
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.Token = mintToken(t, "owner-1")
	h := newHarness(t, cfg)

	resp, _ := h.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.token = mintToken(t, "owner-2")
	resp, _ = h.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.token = mintToken(t, "owner-1")
	resp, _ = h.do(t, http.MethodGet, "/api/conversation", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays public.
	h.token = ""
	resp, _ = h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCredentialReplaceAndClear(t *testing.T) {
	cfg := testConfig(t, fakeBackend(t).URL)
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.Token = mintToken(t, "owner-1")
	h := newHarness(t, cfg)
	h.token = cfg.Auth.Token

	resp, _ := h.do(t, http.MethodPut, "/api/credentials", CredentialRequest{Token: mintToken(t, "owner-2")})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := h.do(t, http.MethodPut, "/api/credentials", CredentialRequest{Token: "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(body))
	assert.Equal(t, cfg.Auth.Token, h.gw.creds.BearerToken())

	fresh, err := auth.NewJWTVerifier([]byte(testSecret)).Generate("owner-1", 2*time.Hour)
	require.NoError(t, err)
	resp, body = h.do(t, http.MethodPut, "/api/credentials", CredentialRequest{Token: fresh})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"owner-1"`)
	assert.Equal(t, fresh, h.gw.creds.BearerToken())

	resp, _ = h.do(t, http.MethodDelete, "/api/credentials", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, auth.UnauthenticatedToken, h.gw.creds.BearerToken())

	resp, body = h.do(t, http.MethodPost, "/api/prospects/save", SaveProspectRequest{Kind: store.KindPerson, Data: json.RawMessage(`{"id":"c1"}`)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(body))

	h.token = ""
	resp, _ = h.do(t, http.MethodPut, "/api/credentials", CredentialRequest{Token: fresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "replacing the credential needs a bearer token")
}

func TestRecordsMounted(t *testing.T) {
	cfg := testConfig(t, fakeBackend(t).URL)
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.Token = mintToken(t, "owner-1")
	cfg.Records.Enabled = true
	h := newHarness(t, cfg)
	h.token = cfg.Auth.Token

	resp, body := h.do(t, http.MethodPost, "/prospects/save", map[string]any{
		"type": "company", "user_id": "owner-1", "data": map[string]any{"id": "org-1", "name": "MTN Group"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodGet, "/prospects/list?user_id=owner-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "MTN Group"))
}

func TestMCPBehindAuth(t *testing.T) {
	cfg := testConfig(t, fakeBackend(t).URL)
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.Token = mintToken(t, "owner-1")
	h := newHarness(t, cfg)

	initialize := map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{}}

	resp, _ := h.do(t, http.MethodPost, "/mcp", initialize)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.token = cfg.Auth.Token
	resp, body := h.do(t, http.MethodPost, "/mcp", initialize)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.NotEmpty(t, resp.Header.Get("Mcp-Session-Id"))
	assert.Contains(t, string(body), `"scout-desk"`)
}

func TestRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(t, fakeBackend(t).URL)
	cfg.Server.HTTPAddr = addr
	cfg.Auth.Token = mintToken(t, "owner-1")
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
