package oauth

import "time"

// Credentials represents OAuth credentials for one upstream account.
type Credentials struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	ProjectID    string    `json:"project_id"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// AuthSession represents an in-flight OAuth authorization.
type AuthSession struct {
	State        string
	CodeVerifier string
	ProjectID    string
	CreatedAt    time.Time
}

// TokenResponse represents the token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// UserInfo is the subset of the userinfo response we consume.
type UserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}
