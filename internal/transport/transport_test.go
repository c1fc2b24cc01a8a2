package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-daily/dailychat/internal/auth"
	"github.com/smart-daily/dailychat/internal/model"
)

func signedIn(t *testing.T, token string) *auth.Session {
	t.Helper()
	s, err := auth.Init(&auth.MemoryStore{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.SignIn(token, model.User{ID: 1, Name: "测试"}))
	return s
}

func TestDoAttachesBearerAndRotates(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set(NewTokenHeader, "rotated")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	session := signedIn(t, "original")
	c := New(srv.URL, session, time.Second, nil)

	resp, body, err := c.DoJSON(context.Background(), http.MethodGet, "/api/sessions", nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "{}", string(body))
	assert.Equal(t, "Bearer original", gotAuth)
	assert.Equal(t, "rotated", session.Token())
}

func TestUnauthorizedForcesLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	session := signedIn(t, "stale")
	c := New(srv.URL, session, time.Second, nil)

	_, _, err := c.DoJSON(context.Background(), http.MethodGet, "/api/sessions", nil)

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, session.LoggedIn())
}

func TestAnonymousUnauthorizedKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	session := signedIn(t, "keep")
	c := New(srv.URL, session, time.Second, nil)

	resp, err := c.DoAnonymous(context.Background(), http.MethodPost, "/api/login", nil, "application/json")

	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, session.LoggedIn())
}

func TestNetworkFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, signedIn(t, "x"), time.Second, nil)
	_, _, err := c.DoJSON(context.Background(), http.MethodGet, "/api/sessions", nil)

	assert.True(t, errors.Is(err, ErrTransport))
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/api/sessions/{id}/messages", RouteLabel("/api/sessions/42/messages"))
	assert.Equal(t, "/api/chat/stream", RouteLabel("/api/chat/stream?x=1"))
}
