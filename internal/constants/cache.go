package constants

import "time"

// 统一缓存配置
const (
	// CacheWriteDelay 后台写回间隔
	CacheWriteDelay = 500 * time.Millisecond
	// CacheTTL 内存文档的重新加载周期（脏数据不重载）
	CacheTTL = 5 * time.Minute
)

// 凭证发现配置
const (
	// DiscoveryInterval 后台重新发现凭证的周期
	DiscoveryInterval = 60 * time.Second
)

// 每日配额重置时刻（UTC 小时）
const QuotaResetHourUTC = 7
