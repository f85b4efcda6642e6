package user

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myMiddleware "netchat/internal/middleware"
	"netchat/internal/testutil"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc, testutil.Logger())
	auth := myMiddleware.NewAuthMiddleware(svc, testutil.Logger())

	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/api/auth/profile", h.Profile)
		r.Post("/api/auth/logout", h.Logout)
		r.Get("/api/users/search", h.SearchUsers)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AuthFlow(t *testing.T) {
	h := newTestRouter(t)
	reg := map[string]string{
		"username": "alice", "email": "alice@example.com",
		"password": "secret1", "confirmPassword": "secret1",
	}

	rec := do(t, h, http.MethodPost, "/register", "", reg)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret1")

	rec = do(t, h, http.MethodPost, "/register", "", reg)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.AccessToken)

	rec = do(t, h, http.MethodGet, "/api/auth/profile", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, StatusOnline, profile.Status)

	rec = do(t, h, http.MethodGet, "/api/users/search?q=ali", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found []User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)

	rec = do(t, h, http.MethodPost, "/api/auth/logout", login.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/auth/profile", login.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RegisterBadInput(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/register", "", map[string]string{"username": "al", "email": "x@example.com", "password": "secret1", "confirmPassword": "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
