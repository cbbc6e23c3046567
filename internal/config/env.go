package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnv overlays GCLIPOOL_* environment variables on the file config.
func (c *Config) applyEnv() {
	setString("GCLIPOOL_HOST", &c.Host)
	setIntFromEnv("GCLIPOOL_PORT", func(n int) { c.Port = n })
	setToggleFromEnv("GCLIPOOL_DEBUG", func(b bool) { c.Debug = b })
	setString("GCLIPOOL_LOG_FILE", &c.LogFile)

	if v := getenv("GCLIPOOL_API_KEYS", ""); v != "" {
		c.APIKeys = splitAndTrim(v, ",")
	}
	setString("GCLIPOOL_ADMIN_KEY", &c.AdminKey)

	setString("GCLIPOOL_STORAGE_BACKEND", &c.StorageBackend)
	setString("GCLIPOOL_STORAGE_BASE_DIR", &c.StorageBaseDir)
	setString("GCLIPOOL_REDIS_ADDR", &c.RedisAddr)
	setString("GCLIPOOL_REDIS_PASSWORD", &c.RedisPassword)
	setIntFromEnv("GCLIPOOL_REDIS_DB", func(n int) { c.RedisDB = n })
	setString("GCLIPOOL_REDIS_PREFIX", &c.RedisPrefix)
	setString("GCLIPOOL_MONGODB_URI", &c.MongoDBURI)
	setString("GCLIPOOL_MONGODB_DATABASE", &c.MongoDatabase)
	setString("GCLIPOOL_POSTGRES_DSN", &c.PostgresDSN)

	setString("GCLIPOOL_CODE_ASSIST_ENDPOINT", &c.CodeAssistEndpoint)
	setString("GCLIPOOL_PROXY_URL", &c.ProxyURL)
	setString("GCLIPOOL_OAUTH_CLIENT_ID", &c.OAuthClientID)
	setString("GCLIPOOL_OAUTH_CLIENT_SECRET", &c.OAuthClientSecret)
	setString("GCLIPOOL_OAUTH_REDIRECT_URL", &c.OAuthRedirectURL)

	setIntFromEnv("GCLIPOOL_CALLS_PER_ROTATION", func(n int) { c.CallsPerRotation = n })
	setIntFromEnv("GCLIPOOL_HTTP_TIMEOUT_SEC", func(n int) { c.HTTPTimeoutSec = n })
	setToggleFromEnv("GCLIPOOL_RETRY_429_ENABLED", func(b bool) { c.Retry429Enabled = &b })
	setIntFromEnv("GCLIPOOL_RETRY_429_MAX_RETRIES", func(n int) { c.Retry429MaxRetries = n })
	setIntFromEnv("GCLIPOOL_RETRY_429_INTERVAL_MS", func(n int) { c.Retry429IntervalMs = n })
	setToggleFromEnv("GCLIPOOL_AUTO_BAN_ENABLED", func(b bool) { c.AutoBanEnabled = &b })
	if v := getenv("GCLIPOOL_AUTO_BAN_ERROR_CODES", ""); v != "" {
		codes := make([]int, 0, 4)
		for _, part := range splitAndTrim(v, ",") {
			if n, err := strconv.Atoi(part); err == nil {
				codes = append(codes, n)
			}
		}
		if len(codes) > 0 {
			c.AutoBanErrorCodes = codes
		}
	}

	setToggleFromEnv("GCLIPOOL_RATE_LIMIT_ENABLED", func(b bool) { c.RateLimitEnabled = b })
	setIntFromEnv("GCLIPOOL_RATE_LIMIT_RPS", func(n int) { c.RateLimitRPS = n })
	setIntFromEnv("GCLIPOOL_RATE_LIMIT_BURST", func(n int) { c.RateLimitBurst = n })
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setIntFromEnv(key string, setter func(int)) {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			setter(n)
		}
	}
}

func setToggleFromEnv(key string, setter func(bool)) {
	v := strings.ToLower(strings.TrimSpace(getenv(key, "")))
	if v == "" {
		return
	}
	switch v {
	case "1", "true", "yes", "on":
		setter(true)
	case "0", "false", "no", "off":
		setter(false)
	}
}

func splitAndTrim(input, sep string) []string {
	parts := strings.Split(input, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
