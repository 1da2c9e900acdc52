package api

import (
	"context"
	"encoding/json"
	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/browserstate"
	"github.com/minus-twelve/browserstate/storage"
	"github.com/minus-twelve/browserstate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*gin.Engine, *browserstate.BrowserState) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	state, err := browserstate.New(context.Background(), browserstate.Options{
		UserID: "u1",
		Store:  storage.NewMemoryStore(0, t.TempDir()),
	})
	require.NoError(t, err)
	return NewServer(state, nil).Router(), state
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMountUnmountOverHTTP(t *testing.T) {
	r, _ := newTestServer(t)

	w := do(t, r, http.MethodPost, "/sessions/mount", `{"session_id":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var active types.ActiveSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	assert.Equal(t, "s1", active.ID)
	require.NoError(t, os.WriteFile(filepath.Join(active.Path, "a.txt"), []byte("hello"), 0o644))

	w = do(t, r, http.MethodGet, "/sessions/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, string(mustJSON(t, active)), w.Body.String())

	w = do(t, r, http.MethodPost, "/sessions/unmount", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/sessions/active", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":["s1"]}`, w.Body.String())

	w = do(t, r, http.MethodDelete, "/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/sessions", "")
	assert.JSONEq(t, `{"sessions":[]}`, w.Body.String())
}

func TestMountWithoutIDGeneratesOne(t *testing.T) {
	r, state := newTestServer(t)

	w := do(t, r, http.MethodPost, "/sessions/mount", "")
	require.Equal(t, http.StatusOK, w.Code)

	var active types.ActiveSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	assert.NotEmpty(t, active.ID)
	assert.Equal(t, active.ID, state.ActiveSession().ID)
}

func TestErrorStatuses(t *testing.T) {
	r, _ := newTestServer(t)

	w := do(t, r, http.MethodPost, "/sessions/mount", `{"session_id":"a:b"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")

	w = do(t, r, http.MethodPost, "/sessions/mount", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/sessions/unmount", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(types.ErrValidation))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(types.ErrFormat))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(types.ErrSecurity))
	assert.Equal(t, http.StatusInternalServerError, statusFor(types.ErrBackend))
}

func TestHealthz(t *testing.T) {
	r, _ := newTestServer(t)
	w := do(t, r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","user_id":"u1"}`, w.Body.String())
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
