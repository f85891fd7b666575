package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest("POST", "/auth/login", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func TestHandlerLogin(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, NewMemStore(), alice(t))
	handler := NewHandler(svc)

	w := postJSON(t, handler.Login, `{"identifier":"alice","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, "alice", result.User.Username)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestHandlerLogin_Errors(t *testing.T) {
	t.Parallel()

	disabled := alice(t)
	disabled.Username = "mallory"
	disabled.Email = "mallory@example.com"
	disabled.Enabled = false

	svc := newTestService(t, NewMemStore(), alice(t), disabled)
	handler := NewHandler(svc)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "wrong password", body: `{"identifier":"alice","password":"nope"}`, want: http.StatusUnauthorized},
		{name: "unknown user", body: `{"identifier":"ghost","password":"nope"}`, want: http.StatusUnauthorized},
		{name: "disabled account", body: `{"identifier":"mallory","password":"correct horse"}`, want: http.StatusForbidden},
		{name: "missing fields", body: `{"identifier":"","password":""}`, want: http.StatusBadRequest},
		{name: "unknown json field", body: `{"identifier":"alice","password":"x","extra":true}`, want: http.StatusBadRequest},
		{name: "malformed json", body: `{`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postJSON(t, handler.Login, tt.body).Code)
		})
	}
}

func TestHandlerRefresh(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, NewMemStore(), alice(t))
	handler := NewHandler(svc)

	login, err := svc.Login(t.Context(), "alice", "correct horse")
	require.NoError(t, err)

	w := postJSON(t, handler.Refresh, `{"refresh_token":"`+login.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var pair TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	// replaying the rotated-out token is a 401
	w = postJSON(t, handler.Refresh, `{"refresh_token":"`+login.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerLogout(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, NewMemStore(), alice(t))
	handler := NewHandler(svc)

	login, err := svc.Login(t.Context(), "alice", "correct horse")
	require.NoError(t, err)

	w := postJSON(t, handler.Logout, `{"refresh_token":"`+login.RefreshToken+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// logging out twice is fine
	w = postJSON(t, handler.Logout, `{"refresh_token":"`+login.RefreshToken+`"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = postJSON(t, handler.Logout, `{"refresh_token":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestThrottle(t *testing.T) {
	t.Parallel()

	throttle := NewThrottle(3, time.Minute)
	next := throttle.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/auth/login", nil)
		r.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		next.ServeHTTP(w, r)
		return w
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve("10.0.0.1").Code)
	}

	blocked := serve("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	// other clients are unaffected
	assert.Equal(t, http.StatusOK, serve("10.0.0.2").Code)
}
