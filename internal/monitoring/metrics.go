// Package monitoring exposes the Prometheus metric families shared across
// the gateway.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gclipool_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gclipool_http_inflight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// 凭证相关指标
	CredentialRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_credential_rotations_total",
			Help: "Total number of credential rotations",
		},
		[]string{"reason"},
	)

	CredentialErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_credential_errors_total",
			Help: "Total number of credential errors",
		},
		[]string{"credential", "error_code"},
	)

	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_credential_refreshes_total",
			Help: "Total number of credential token refreshes",
		},
		[]string{"credential", "status"},
	)

	CredentialsEligible = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gclipool_credentials_eligible",
			Help: "Number of credentials currently eligible for rotation",
		},
	)

	CredentialCooldowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_credential_cooldowns_total",
			Help: "Total number of credentials placed in cooldown",
		},
		[]string{"credential"},
	)

	// 上游API调用指标
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"action", "status_class"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gclipool_upstream_request_duration_seconds",
			Help:    "Upstream API request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"action"},
	)

	UpstreamRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_upstream_retry_attempts_total",
			Help: "Total number of upstream retry attempts",
		},
		[]string{"outcome"},
	)

	// 存储指标
	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gclipool_storage_op_duration_seconds",
			Help:    "Storage backend operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)

	StorageOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_storage_op_errors_total",
			Help: "Total number of storage backend operation errors",
		},
		[]string{"backend", "operation"},
	)

	// 缓存指标
	CacheFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gclipool_cache_flushes_total",
			Help: "Total number of write-back cache flushes",
		},
		[]string{"document", "status"},
	)

	// 限流指标
	RateLimitKeysGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gclipool_ratelimit_keys",
			Help: "Number of active per-key rate limiters",
		},
	)

	RateLimitSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gclipool_ratelimit_sweeps_total",
			Help: "Total number of rate limiter TTL cache sweeps",
		},
	)
)
