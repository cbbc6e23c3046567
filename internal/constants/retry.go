package constants

import "time"

// 429 重试策略常量
const (
	DefaultRetry429MaxRetries = 20
	DefaultRetry429Interval   = 100 * time.Millisecond

	// 网络错误重试配置
	NetworkErrorMaxRetries = 3
	NetworkErrorRetryDelay = 1 * time.Second
)

// 凭证轮换与封禁常量
const (
	DefaultCallsPerRotation = 100

	// 自动封禁默认错误码
	AutoBanCodeBadRequest = 400
	AutoBanCodeForbidden  = 403

	// 错误码记录上限（仅保留最近的）
	MaxRecordedErrorCodes = 10
)

// Token 刷新配置
const (
	// TokenRefreshAhead 在过期前多久开始刷新
	TokenRefreshAhead = 5 * time.Minute
	// TokenRefreshTimeout bounds a single refresh round-trip.
	TokenRefreshTimeout = 30 * time.Second
)
