package constants

import "time"

// HTTP 连接池配置
const (
	MaxIdleConns        = 4096
	MaxIdleConnsPerHost = 256
	MaxConnsPerHost     = 512
	IdleConnTimeout     = 120 * time.Second

	WriteBufferSize = 64 * 1024
	ReadBufferSize  = 64 * 1024

	DefaultKeepAlive = 30 * time.Second
)

// HTTP 超时配置
const (
	DialTimeout           = 10 * time.Second
	TLSHandshakeTimeout   = 10 * time.Second
	ResponseHeaderTimeout = 60 * time.Second
	ExpectContinueTimeout = 2 * time.Second
)

const (
	// UpstreamGenerateTimeout bounds non-stream upstream calls.
	UpstreamGenerateTimeout = 180 * time.Second
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 30 * time.Second
)

// TransportConfig 定义传输层配置选项
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	WriteBufferSize     int
	ReadBufferSize      int
	EnableHTTP2         bool
}

// GetTransportConfig 返回上游客户端的传输配置
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        MaxIdleConns,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		MaxConnsPerHost:     MaxConnsPerHost,
		IdleConnTimeout:     IdleConnTimeout,
		WriteBufferSize:     WriteBufferSize,
		ReadBufferSize:      ReadBufferSize,
		EnableHTTP2:         true,
	}
}
