package oauth

import (
	"fmt"
	"strings"
)

// RefreshError is a non-200 response from the token endpoint.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, e.Body)
}

// permanentSignatures mark the refresh token itself as dead. Anything else
// (rate limits, 5xx, network blips) is transient and worth retrying later.
var permanentSignatures = []string{
	"invalid_grant",
	"unauthorized_client",
	"token has been expired or revoked",
	"token has been revoked",
	"expired refresh token",
}

// Permanent reports whether the failure means the refresh token can never
// work again and the credential should be disabled.
func (e *RefreshError) Permanent() bool {
	body := strings.ToLower(e.Body)
	for _, sig := range permanentSignatures {
		if strings.Contains(body, sig) {
			return true
		}
	}
	return false
}
