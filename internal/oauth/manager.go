// Package oauth drives the Google OAuth flows: the PKCE authorization flow
// used when importing credentials, token refresh, and userinfo lookup.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	TokenURL = "https://oauth2.googleapis.com/token"

	DefaultRedirectURI      = "http://localhost:8085/oauth2callback"
	DefaultUserInfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// DefaultScopes are the Google Cloud scopes requested during authorization.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// ManagerOption customizes Manager creation.
type ManagerOption func(*Manager)

// Manager handles OAuth flows and token refresh.
type Manager struct {
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	sessions     map[string]*AuthSession
	sessionMu    sync.RWMutex
	httpClient   *http.Client

	oauthEndpoint    oauth2.Endpoint
	tokenURL         string
	userInfoEndpoint string
	now              func() time.Time
}

// NewManager creates an OAuth manager.
func NewManager(clientID, clientSecret, redirectURI string, opts ...ManagerOption) *Manager {
	m := &Manager{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  firstNonEmpty(redirectURI, DefaultRedirectURI),
		scopes:       append([]string(nil), DefaultScopes...),
		sessions:     make(map[string]*AuthSession),
		httpClient:   &http.Client{Timeout: 30 * time.Second},

		oauthEndpoint:    google.Endpoint,
		tokenURL:         TokenURL,
		userInfoEndpoint: DefaultUserInfoEndpoint,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithHTTPClient overrides the HTTP client used for outbound calls.
func WithHTTPClient(client *http.Client) ManagerOption {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithTokenURL overrides the token refresh endpoint.
func WithTokenURL(tokenURL string) ManagerOption {
	return func(m *Manager) {
		if tokenURL != "" {
			m.tokenURL = tokenURL
		}
	}
}

// WithUserInfoEndpoint overrides the userinfo endpoint.
func WithUserInfoEndpoint(endpoint string) ManagerOption {
	return func(m *Manager) {
		if endpoint != "" {
			m.userInfoEndpoint = endpoint
		}
	}
}

// WithNowFunc overrides the clock used for expiry calculations.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (m *Manager) ensureClientCredentials() error {
	if strings.TrimSpace(m.clientID) == "" || strings.TrimSpace(m.clientSecret) == "" {
		return fmt.Errorf("oauth client credentials not configured")
	}
	return nil
}

// StartAuthFlow initiates the PKCE authorization flow and returns the URL the
// user must visit plus the opaque state identifying the session.
func (m *Manager) StartAuthFlow(projectID string) (authURL, state string, err error) {
	if err := m.ensureClientCredentials(); err != nil {
		return "", "", err
	}

	state = uuid.New().String()
	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return "", "", fmt.Errorf("generate code verifier: %w", err)
	}

	m.sessionMu.Lock()
	m.sessions[state] = &AuthSession{
		State:        state,
		CodeVerifier: codeVerifier,
		ProjectID:    projectID,
		CreatedAt:    m.now(),
	}
	m.sessionMu.Unlock()

	config := m.oauthConfig()
	authURL = config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(codeVerifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	if projectID != "" {
		authURL += "&project=" + url.QueryEscape(projectID)
	}

	log.Infof("OAuth flow started for project: %s, state: %s", projectID, state)
	return authURL, state, nil
}

// HandleCallback exchanges the authorization code for tokens.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (*Credentials, error) {
	m.sessionMu.RLock()
	session, exists := m.sessions[state]
	m.sessionMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("invalid state or session expired")
	}
	if err := m.ensureClientCredentials(); err != nil {
		return nil, err
	}

	config := m.oauthConfig()
	httpClientCtx := ctx
	if m.httpClient != nil {
		httpClientCtx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	token, err := config.Exchange(httpClientCtx, code,
		oauth2.SetAuthURLParam("code_verifier", session.CodeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	creds := &Credentials{
		ClientID:     m.clientID,
		ClientSecret: m.clientSecret,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ProjectID:    session.ProjectID,
		ExpiresAt:    token.Expiry,
	}

	m.sessionMu.Lock()
	delete(m.sessions, state)
	m.sessionMu.Unlock()

	log.Infof("OAuth callback successful for project: %s", session.ProjectID)
	return creds, nil
}

// RefreshToken exchanges the refresh token for a fresh access token and
// updates creds in place. Failures with a non-200 status are returned as
// *RefreshError so callers can distinguish permanent from transient ones.
func (m *Manager) RefreshToken(ctx context.Context, creds *Credentials) error {
	if creds.RefreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}
	clientID := firstNonEmpty(creds.ClientID, m.clientID)
	clientSecret := firstNonEmpty(creds.ClientSecret, m.clientSecret)
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("oauth client credentials not configured")
	}

	data := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {creds.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &RefreshError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}

	creds.AccessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		creds.RefreshToken = tokenResp.RefreshToken
	}
	if tokenResp.ExpiresIn > 0 {
		creds.ExpiresAt = m.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	log.Infof("Token refreshed successfully for project: %s", creds.ProjectID)
	return nil
}

// GetUserEmail retrieves the account email for the given access token.
func (m *Manager) GetUserEmail(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", fmt.Errorf("access token is required")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", m.userInfoEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("userinfo request failed: %d %s", resp.StatusCode, string(body))
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	return info.Email, nil
}

// CleanupExpiredSessions removes authorization sessions older than 10 minutes.
func (m *Manager) CleanupExpiredSessions() {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	expiry := m.now().Add(-10 * time.Minute)
	for state, session := range m.sessions {
		if session.CreatedAt.Before(expiry) {
			delete(m.sessions, state)
		}
	}
}

func (m *Manager) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.clientID,
		ClientSecret: m.clientSecret,
		RedirectURL:  m.redirectURI,
		Scopes:       m.scopes,
		Endpoint:     m.oauthEndpoint,
	}
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateCodeChallenge(verifier string) string {
	// S256: BASE64URL-ENCODE(SHA256(verifier))
	sha := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sha[:])
}
