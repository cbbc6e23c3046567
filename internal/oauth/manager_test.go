package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRefreshTokenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: "at-new",
			ExpiresIn:   3600,
			TokenType:   "Bearer",
		})
	}))
	defer srv.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager("cid", "secret", "",
		WithTokenURL(srv.URL),
		WithNowFunc(func() time.Time { return now }),
	)

	creds := &Credentials{ClientID: "cid", ClientSecret: "secret", RefreshToken: "rt-1"}
	require.NoError(t, m.RefreshToken(context.Background(), creds))
	require.Equal(t, "at-new", creds.AccessToken)
	require.Equal(t, now.Add(time.Hour), creds.ExpiresAt)
}

func TestRefreshTokenPermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer srv.Close()

	m := NewManager("cid", "secret", "", WithTokenURL(srv.URL))
	creds := &Credentials{ClientID: "cid", ClientSecret: "secret", RefreshToken: "rt-dead"}

	err := m.RefreshToken(context.Background(), creds)
	require.Error(t, err)

	var rerr *RefreshError
	require.True(t, errors.As(err, &rerr))
	require.True(t, rerr.Permanent())
}

func TestRefreshTokenTransientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"internal_failure"}`))
	}))
	defer srv.Close()

	m := NewManager("cid", "secret", "", WithTokenURL(srv.URL))
	creds := &Credentials{ClientID: "cid", ClientSecret: "secret", RefreshToken: "rt-1"}

	err := m.RefreshToken(context.Background(), creds)
	var rerr *RefreshError
	require.True(t, errors.As(err, &rerr))
	require.False(t, rerr.Permanent())
}

func TestGetUserEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(UserInfo{Email: "dev@example.com", VerifiedEmail: true})
	}))
	defer srv.Close()

	m := NewManager("cid", "secret", "", WithUserInfoEndpoint(srv.URL))
	email, err := m.GetUserEmail(context.Background(), "at-1")
	require.NoError(t, err)
	require.Equal(t, "dev@example.com", email)
}

func TestStartAuthFlowRequiresClientCredentials(t *testing.T) {
	m := NewManager("", "", "")
	_, _, err := m.StartAuthFlow("proj")
	require.Error(t, err)
}

func TestAuthFlowSessionLifecycle(t *testing.T) {
	m := NewManager("cid", "secret", "")
	authURL, state, err := m.StartAuthFlow("proj-1")
	require.NoError(t, err)
	require.Contains(t, authURL, "code_challenge_method=S256")
	require.Contains(t, authURL, "state="+state)

	// unknown state is rejected
	_, err = m.HandleCallback(context.Background(), "code", "bogus")
	require.Error(t, err)
}

func TestCleanupExpiredSessions(t *testing.T) {
	now := time.Now()
	m := NewManager("cid", "secret", "", WithNowFunc(func() time.Time { return now }))
	_, state, err := m.StartAuthFlow("")
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	m.CleanupExpiredSessions()

	m.sessionMu.RLock()
	_, exists := m.sessions[state]
	m.sessionMu.RUnlock()
	require.False(t, exists)
}
