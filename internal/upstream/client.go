// Package upstream talks to the Code Assist API: request envelope building,
// the tuned HTTP transport, and the generate/stream/token endpoints.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gclipool-go/internal/constants"
	"gclipool-go/internal/monitoring"
	"gclipool-go/internal/monitoring/tracing"
)

const (
	actionGenerate       = "generateContent"
	actionStreamGenerate = "streamGenerateContent"
	actionCountTokens    = "countTokens"
	actionLoadCodeAssist = "loadCodeAssist"
	actionOnboardUser    = "onboardUser"
)

// Client is a Code Assist API client. It holds no credential state; the
// access token and project come in per call.
type Client struct {
	endpoint string
	cli      *http.Client
}

// Options configures a Client.
type Options struct {
	// Endpoint is the Code Assist base URL, without trailing slash.
	Endpoint string
	// ProxyURL forces all upstream traffic through the given proxy.
	// Empty falls back to the environment proxy settings.
	ProxyURL string
	// Timeout bounds each non-stream request end to end. Zero means no
	// client-level timeout; callers bound requests via context instead.
	Timeout time.Duration
}

func New(opts Options) *Client {
	tc := constants.GetTransportConfig()
	tr := &http.Transport{
		Proxy: proxyFunc(opts.ProxyURL),
		DialContext: (&net.Dialer{
			Timeout:   constants.DialTimeout,
			KeepAlive: constants.DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
		ExpectContinueTimeout: constants.ExpectContinueTimeout,
		MaxIdleConns:          tc.MaxIdleConns,
		MaxIdleConnsPerHost:   tc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       tc.MaxConnsPerHost,
		IdleConnTimeout:       tc.IdleConnTimeout,
		WriteBufferSize:       tc.WriteBufferSize,
		ReadBufferSize:        tc.ReadBufferSize,
		ForceAttemptHTTP2:     tc.EnableHTTP2,
	}
	return &Client{
		endpoint: opts.Endpoint,
		cli:      &http.Client{Transport: tr, Timeout: opts.Timeout},
	}
}

func proxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsed)
		}
	}
	return http.ProxyFromEnvironment
}

// Call carries everything one upstream request needs.
type Call struct {
	AccessToken string
	ProjectID   string
	Model       string
	// Request is the inner request object (contents, generationConfig, ...)
	// already in Code Assist form.
	Request []byte
}

// BuildEnvelope wraps the inner request into the Code Assist envelope
// {"model": ..., "project": ..., "request": {...}}.
func BuildEnvelope(model, project string, request []byte) ([]byte, error) {
	if len(request) == 0 {
		request = []byte("{}")
	}
	body, err := sjson.SetBytes([]byte("{}"), "model", model)
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}
	if project != "" {
		if body, err = sjson.SetBytes(body, "project", project); err != nil {
			return nil, fmt.Errorf("build envelope: %w", err)
		}
	}
	body, err = sjson.SetRawBytes(body, "request", request)
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}
	return body, nil
}

// Generate sends a non-stream request to v1internal:generateContent.
//
// Caller MUST close resp.Body when resp is non-nil and err is nil.
func (c *Client) Generate(ctx context.Context, call Call) (*http.Response, error) {
	body, err := BuildEnvelope(call.Model, call.ProjectID, call.Request)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, actionGenerate, "", body, call)
}

// Stream sends a stream request to v1internal:streamGenerateContent?alt=sse.
//
// Caller MUST close resp.Body when resp is non-nil and err is nil.
func (c *Client) Stream(ctx context.Context, call Call) (*http.Response, error) {
	body, err := BuildEnvelope(call.Model, call.ProjectID, call.Request)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, actionStreamGenerate, "alt=sse", body, call)
}

// CountTokens sends a request to v1internal:countTokens. The envelope here
// carries no project field.
//
// Caller MUST close resp.Body when resp is non-nil and err is nil.
func (c *Client) CountTokens(ctx context.Context, call Call) (*http.Response, error) {
	body, err := BuildEnvelope(call.Model, "", call.Request)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, actionCountTokens, "", body, call)
}

// LoadCodeAssist queries the onboarding state of the account, used to
// discover the managed project id.
//
// Caller MUST close resp.Body when resp is non-nil and err is nil.
func (c *Client) LoadCodeAssist(ctx context.Context, call Call, payload []byte) (*http.Response, error) {
	return c.post(ctx, actionLoadCodeAssist, "", payload, call)
}

// OnboardUser starts (or polls) free-tier onboarding for the account.
//
// Caller MUST close resp.Body when resp is non-nil and err is nil.
func (c *Client) OnboardUser(ctx context.Context, call Call, payload []byte) (*http.Response, error) {
	return c.post(ctx, actionOnboardUser, "", payload, call)
}

func (c *Client) post(ctx context.Context, action, query string, body []byte, call Call) (*http.Response, error) {
	useURL := c.endpoint + "/v1internal:" + action
	if query != "" {
		useURL += "?" + query
	}

	ctx, span := tracing.StartSpan(ctx, "upstream", "CodeAssist."+action,
		trace.WithAttributes(
			attribute.String("http.method", http.MethodPost),
			attribute.String("http.url", useURL),
			attribute.String("upstream.model", call.Model),
		))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, useURL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	applyDefaultHeaders(req, call.AccessToken, call.ProjectID)

	start := time.Now()
	resp, err := c.cli.Do(req)
	monitoring.UpstreamRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.UpstreamRequestsTotal.WithLabelValues(action, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	monitoring.UpstreamRequestsTotal.WithLabelValues(action, statusClass(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, "http_status="+strconv.Itoa(resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return resp, nil
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
