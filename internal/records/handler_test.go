// ABOUTME: Tests for the records endpoints over a real SQLite store
// ABOUTME: Exercises owner scoping, upsert on save and 404 on missing deletes

package records

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/store"
)

var testSecret = []byte("records-test-secret-at-least-32-bytes")

type fixture struct {
	srv      *httptest.Server
	store    *store.SQLiteStore
	verifier *auth.JWTVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	verifier := auth.NewJWTVerifier(testSecret)
	r := chi.NewRouter()
	New(st, nil).RegisterRoutes(r, verifier)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, store: st, verifier: verifier}
}

func (f *fixture) token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := f.verifier.Generate(owner, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSaveProspect_UpsertsByExternalID(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "owner-1")

	first := f.do(t, http.MethodPost, "/prospects/save", tok, map[string]any{
		"type": "person", "user_id": "owner-1", "data": map[string]any{"id": "c1", "title": "CTO"},
	})
	require.Equal(t, http.StatusOK, first.StatusCode)
	var a store.SavedProspect
	require.NoError(t, json.NewDecoder(first.Body).Decode(&a))

	second := f.do(t, http.MethodPost, "/prospects/save", tok, map[string]any{
		"type": "person", "user_id": "owner-1", "data": map[string]any{"id": "c1", "title": "CEO"},
	})
	require.Equal(t, http.StatusOK, second.StatusCode)
	var b store.SavedProspect
	require.NoError(t, json.NewDecoder(second.Body).Decode(&b))
	assert.Equal(t, a.ID, b.ID)

	list := f.do(t, http.MethodGet, "/prospects/list?user_id=owner-1", tok, nil)
	require.Equal(t, http.StatusOK, list.StatusCode)
	var got prospectList
	require.NoError(t, json.NewDecoder(list.Body).Decode(&got))
	require.Len(t, got.People, 1)
	assert.Empty(t, got.Companies)
	assert.JSONEq(t, `{"id":"c1","title":"CEO"}`, string(got.People[0].Payload))
}

func TestSaveProspect_Validation(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "owner-1")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"other user", map[string]any{"type": "person", "user_id": "owner-2", "data": map[string]any{"id": "c1"}}, http.StatusForbidden},
		{"missing user", map[string]any{"type": "person", "data": map[string]any{"id": "c1"}}, http.StatusBadRequest},
		{"bad type", map[string]any{"type": "robot", "user_id": "owner-1", "data": map[string]any{"id": "c1"}}, http.StatusBadRequest},
		{"no id", map[string]any{"type": "company", "user_id": "owner-1", "data": map[string]any{"name": "MTN"}}, http.StatusBadRequest},
		{"numeric id", map[string]any{"type": "company", "user_id": "owner-1", "data": map[string]any{"id": 120}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/prospects/save", tok, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRecords_RequireBearer(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/prospects/list?user_id=owner-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/prospects/list?user_id=owner-1", auth.UnauthenticatedToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReports_SaveListDelete(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "owner-1")

	resp := f.do(t, http.MethodPost, "/research/save", tok, map[string]any{
		"user_id":       "owner-1",
		"prospect_id":   "c1",
		"prospect_name": "Ada Lovelace",
		"company":       "MTN Group",
		"report":        map[string]any{"research_report": "1. Overview\nok"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved store.ResearchReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	require.NotEmpty(t, saved.ID)

	list := f.do(t, http.MethodGet, "/research/list?user_id=owner-1", tok, nil)
	var got reportList
	require.NoError(t, json.NewDecoder(list.Body).Decode(&got))
	require.Len(t, got.Reports, 1)
	assert.Equal(t, "MTN Group", got.Reports[0].Company)

	// Another owner cannot see or delete it.
	other := f.token(t, "owner-2")
	resp = f.do(t, http.MethodDelete, "/research/"+saved.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/research/"+saved.ID, tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/research/"+saved.ID, tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReports_ListForOtherUserForbidden(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/research/list?user_id=owner-2", f.token(t, "owner-1"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
