package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// FromHTTP maps an upstream status code plus body to a standardized error.
func FromHTTP(statusCode int, upstreamBody []byte) *APIError {
	msg := extractUpstreamMessage(upstreamBody)

	switch statusCode {
	case http.StatusBadRequest:
		return New(statusCode, "invalid_request_error", "api_error", firstNonEmpty(msg, "Invalid request"))
	case http.StatusUnauthorized:
		return New(statusCode, "authentication_error", "api_error", firstNonEmpty(msg, "Invalid authentication"))
	case http.StatusForbidden:
		return New(statusCode, "permission_denied", "api_error", firstNonEmpty(msg, "Permission denied"))
	case http.StatusNotFound:
		return New(statusCode, "not_found", "api_error", firstNonEmpty(msg, "Resource not found"))
	case http.StatusTooManyRequests:
		return New(statusCode, "rate_limit_exceeded", "api_error", firstNonEmpty(msg, "Rate limit exceeded"))
	case http.StatusInternalServerError:
		return New(statusCode, "server_error", "api_error", firstNonEmpty(msg, "Internal server error"))
	case http.StatusServiceUnavailable:
		return New(statusCode, "service_unavailable", "api_error", firstNonEmpty(msg, "Service temporarily unavailable"))
	case http.StatusGatewayTimeout:
		return New(statusCode, "timeout", "api_error", firstNonEmpty(msg, "Request timeout"))
	default:
		return New(statusCode, "unknown_error", "api_error", firstNonEmpty(msg, fmt.Sprintf("HTTP %d error", statusCode)))
	}
}

// FromNetwork maps transport-level errors to standardized errors.
func FromNetwork(err error) *APIError {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return New(http.StatusGatewayTimeout, "timeout", "api_error", "Request timeout: "+errMsg)
	case strings.Contains(errMsg, "connection refused"):
		return New(http.StatusBadGateway, "connection_error", "api_error", "Connection refused: "+errMsg)
	case strings.Contains(errMsg, "EOF") || strings.Contains(errMsg, "connection reset"):
		return New(http.StatusBadGateway, "connection_error", "api_error", "Connection error: "+errMsg)
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "name resolution"):
		return New(http.StatusBadGateway, "dns_error", "api_error", "DNS resolution error: "+errMsg)
	case strings.Contains(errMsg, "context canceled"):
		return New(http.StatusRequestTimeout, "request_canceled", "api_error", "Request was canceled: "+errMsg)
	default:
		return New(http.StatusBadGateway, "network_error", "api_error", "Network error: "+errMsg)
	}
}

func extractUpstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var jsonErr map[string]interface{}
	if err := json.Unmarshal(body, &jsonErr); err == nil {
		if errObj, ok := jsonErr["error"].(map[string]interface{}); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	msg := string(body)
	if len(msg) > 200 {
		return msg[:200] + "..."
	}
	return msg
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}
