package config

import (
	"context"
	"time"

	"gclipool-go/internal/constants"
)

// Dynamic config document keys.
const (
	KeyCallsPerRotation  = "calls_per_rotation"
	KeyHTTPTimeout       = "http_timeout"
	KeyRetry429Enabled   = "retry_429_enabled"
	KeyRetry429Max       = "retry_429_max_retries"
	KeyRetry429Interval  = "retry_429_interval"
	KeyAutoBanEnabled    = "auto_ban_enabled"
	KeyAutoBanErrorCodes = "auto_ban_error_codes"
)

// Store is the key/value surface Settings reads from; satisfied by
// cache.UnifiedCache over the config document.
type Store interface {
	Get(ctx context.Context, key string, def interface{}) interface{}
	Set(ctx context.Context, key string, value interface{})
	GetAll(ctx context.Context) map[string]interface{}
	UpdateMulti(ctx context.Context, updates map[string]interface{})
}

// Settings serves typed runtime settings from the config document. Values
// changed through the admin surface take effect without restart.
type Settings struct {
	store Store
}

// NewSettings wraps the config document store.
func NewSettings(store Store) *Settings {
	return &Settings{store: store}
}

// Seed writes static config defaults into the document for keys not yet set,
// so a fresh deployment starts from the file config's behavior knobs.
func (s *Settings) Seed(ctx context.Context, cfg *Config) {
	seed := map[string]interface{}{}
	existing := s.store.GetAll(ctx)

	put := func(key string, value interface{}) {
		if _, ok := existing[key]; !ok {
			seed[key] = value
		}
	}

	if cfg.CallsPerRotation > 0 {
		put(KeyCallsPerRotation, cfg.CallsPerRotation)
	}
	if cfg.HTTPTimeoutSec > 0 {
		put(KeyHTTPTimeout, cfg.HTTPTimeoutSec)
	}
	if cfg.Retry429Enabled != nil {
		put(KeyRetry429Enabled, *cfg.Retry429Enabled)
	}
	if cfg.Retry429MaxRetries > 0 {
		put(KeyRetry429Max, cfg.Retry429MaxRetries)
	}
	if cfg.Retry429IntervalMs > 0 {
		put(KeyRetry429Interval, float64(cfg.Retry429IntervalMs)/1000)
	}
	if cfg.AutoBanEnabled != nil {
		put(KeyAutoBanEnabled, *cfg.AutoBanEnabled)
	}
	if len(cfg.AutoBanErrorCodes) > 0 {
		put(KeyAutoBanErrorCodes, cfg.AutoBanErrorCodes)
	}

	if len(seed) > 0 {
		s.store.UpdateMulti(ctx, seed)
	}
}

// CallsPerRotation returns how many calls a credential serves before the
// pool advances to the next one.
func (s *Settings) CallsPerRotation(ctx context.Context) int {
	return toInt(s.store.Get(ctx, KeyCallsPerRotation, nil), constants.DefaultCallsPerRotation)
}

// HTTPTimeout returns the unary upstream timeout.
func (s *Settings) HTTPTimeout(ctx context.Context) time.Duration {
	sec := toInt(s.store.Get(ctx, KeyHTTPTimeout, nil), int(constants.UpstreamGenerateTimeout/time.Second))
	return time.Duration(sec) * time.Second
}

func (s *Settings) Retry429Enabled(ctx context.Context) bool {
	return toBool(s.store.Get(ctx, KeyRetry429Enabled, nil), true)
}

func (s *Settings) Retry429MaxRetries(ctx context.Context) int {
	return toInt(s.store.Get(ctx, KeyRetry429Max, nil), constants.DefaultRetry429MaxRetries)
}

func (s *Settings) Retry429Interval(ctx context.Context) time.Duration {
	v := s.store.Get(ctx, KeyRetry429Interval, nil)
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second))
	case int:
		return time.Duration(n) * time.Second
	case int64:
		return time.Duration(n) * time.Second
	}
	return constants.DefaultRetry429Interval
}

func (s *Settings) AutoBanEnabled(ctx context.Context) bool {
	return toBool(s.store.Get(ctx, KeyAutoBanEnabled, nil), true)
}

// AutoBanErrorCodes returns the status codes that immediately disable a
// credential.
func (s *Settings) AutoBanErrorCodes(ctx context.Context) []int {
	v := s.store.Get(ctx, KeyAutoBanErrorCodes, nil)
	codes := toIntSlice(v)
	if len(codes) == 0 {
		return []int{constants.AutoBanCodeBadRequest, constants.AutoBanCodeForbidden}
	}
	return codes
}

func toInt(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func toBool(v interface{}, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func toIntSlice(v interface{}) []int {
	switch vs := v.(type) {
	case []int:
		return vs
	case []interface{}:
		out := make([]int, 0, len(vs))
		for _, item := range vs {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			}
		}
		return out
	}
	return nil
}
