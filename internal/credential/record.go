// Package credential manages the pool of upstream OAuth credentials:
// discovery, rotation, cooldown, token refresh, and per-credential state.
package credential

import (
	"time"

	"gclipool-go/internal/constants"
)

// Record is one upstream identity plus its runtime state, persisted as one
// entry in the credentials document.
type Record struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	ProjectID    string
	Expiry       time.Time // zero means unknown

	Disabled      bool
	ErrorCodes    []int
	LastSuccess   time.Time // zero means never
	CooldownUntil time.Time // zero means not cooling down
	UserEmail     string
}

// NeedsRefresh reports whether the access token must be refreshed before
// use: missing token, unknown expiry, or expiring within the refresh-ahead
// window.
func (r *Record) NeedsRefresh(now time.Time) bool {
	if r.AccessToken == "" || r.Expiry.IsZero() {
		return true
	}
	return now.Add(constants.TokenRefreshAhead).After(r.Expiry)
}

// InCooldown reports whether the credential is excluded due to quota
// exhaustion.
func (r *Record) InCooldown(now time.Time) bool {
	return !r.CooldownUntil.IsZero() && now.Before(r.CooldownUntil)
}

// Eligible reports whether the credential may be handed out.
func (r *Record) Eligible(now time.Time) bool {
	return !r.Disabled && !r.InCooldown(now)
}

// AppendErrorCode records a failure code, de-duplicated and bounded to the
// most recent entries.
func (r *Record) AppendErrorCode(code int) {
	for _, c := range r.ErrorCodes {
		if c == code {
			return
		}
	}
	r.ErrorCodes = append(r.ErrorCodes, code)
	if n := len(r.ErrorCodes); n > constants.MaxRecordedErrorCodes {
		r.ErrorCodes = r.ErrorCodes[n-constants.MaxRecordedErrorCodes:]
	}
}

// Clone returns a deep copy, so callers can never mutate pool state.
func (r *Record) Clone() *Record {
	out := *r
	out.ErrorCodes = append([]int(nil), r.ErrorCodes...)
	return &out
}

// RecordFromEntry decodes one credentials-document entry. Unknown or
// malformed fields degrade to zero values; "token" is accepted as a legacy
// alias for "access_token".
func RecordFromEntry(entry map[string]interface{}) *Record {
	r := &Record{
		ClientID:     asString(entry["client_id"]),
		ClientSecret: asString(entry["client_secret"]),
		RefreshToken: asString(entry["refresh_token"]),
		AccessToken:  asString(entry["access_token"]),
		ProjectID:    asString(entry["project_id"]),
		UserEmail:    asString(entry["user_email"]),
	}
	if r.AccessToken == "" {
		r.AccessToken = asString(entry["token"])
	}
	if b, ok := entry["disabled"].(bool); ok {
		r.Disabled = b
	}
	r.Expiry = asTime(entry["expiry"])
	r.LastSuccess = asTime(entry["last_success"])
	r.CooldownUntil = asTime(entry["cooldown_until"])

	if codes, ok := entry["error_codes"].([]interface{}); ok {
		for _, c := range codes {
			switch n := c.(type) {
			case int:
				r.ErrorCodes = append(r.ErrorCodes, n)
			case int64:
				r.ErrorCodes = append(r.ErrorCodes, int(n))
			case float64:
				r.ErrorCodes = append(r.ErrorCodes, int(n))
			}
		}
	} else if codes, ok := entry["error_codes"].([]int); ok {
		r.ErrorCodes = append(r.ErrorCodes, codes...)
	}
	return r
}

// ToEntry encodes the record into its persisted document form.
func (r *Record) ToEntry() map[string]interface{} {
	entry := map[string]interface{}{
		"client_id":     r.ClientID,
		"client_secret": r.ClientSecret,
		"refresh_token": r.RefreshToken,
		"access_token":  r.AccessToken,
		"project_id":    r.ProjectID,
		"disabled":      r.Disabled,
		"error_codes":   append([]int{}, r.ErrorCodes...),
	}
	if !r.Expiry.IsZero() {
		entry["expiry"] = r.Expiry.UTC().Format(time.RFC3339)
	}
	if r.LastSuccess.IsZero() {
		entry["last_success"] = nil
	} else {
		entry["last_success"] = r.LastSuccess.UTC().Format(time.RFC3339)
	}
	if r.CooldownUntil.IsZero() {
		entry["cooldown_until"] = nil
	} else {
		entry["cooldown_until"] = r.CooldownUntil.UTC().Format(time.RFC3339)
	}
	if r.UserEmail == "" {
		entry["user_email"] = nil
	} else {
		entry["user_email"] = r.UserEmail
	}
	return entry
}

// NextQuotaReset returns the next daily quota reset boundary after now.
// Upstream quotas reset at a fixed UTC hour.
func NextQuotaReset(now time.Time) time.Time {
	now = now.UTC()
	boundary := time.Date(now.Year(), now.Month(), now.Day(), constants.QuotaResetHourUTC, 0, 0, 0, time.UTC)
	if !now.Before(boundary) {
		boundary = boundary.Add(24 * time.Hour)
	}
	return boundary
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
