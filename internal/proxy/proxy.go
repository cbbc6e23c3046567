// Package proxy dispatches client requests to the upstream API through the
// credential pool, with 429 retry-and-rotate and auto-ban handling.
package proxy

import (
	"context"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/apierr"
	"gclipool-go/internal/constants"
	"gclipool-go/internal/credential"
	"gclipool-go/internal/monitoring"
	"gclipool-go/internal/upstream"
)

// maxErrorBodyBytes bounds how much of an upstream error body is retained.
const maxErrorBodyBytes = 64 * 1024

// CredentialSource hands out credentials and receives call outcomes.
// Satisfied by credential.Pool.
type CredentialSource interface {
	GetValidCredential(ctx context.Context) (string, *credential.Record, error)
	RecordResult(ctx context.Context, id string, statusCode int, success bool)
	ForceRotate()
	IncrementCallCount()
}

// Upstream is the transport the proxy dispatches through.
// Satisfied by upstream.Client.
type Upstream interface {
	Generate(ctx context.Context, call upstream.Call) (*http.Response, error)
	Stream(ctx context.Context, call upstream.Call) (*http.Response, error)
}

// Policy supplies the runtime-tunable retry knobs.
// Satisfied by config.Settings.
type Policy interface {
	Retry429Enabled(ctx context.Context) bool
	Retry429MaxRetries(ctx context.Context) int
	Retry429Interval(ctx context.Context) time.Duration
	AutoBanEnabled(ctx context.Context) bool
	AutoBanErrorCodes(ctx context.Context) []int
}

// Request is one client request ready for dispatch.
type Request struct {
	Model string
	// Payload is the inner request object in Code Assist form.
	Payload   []byte
	Streaming bool
}

// Result is the outcome of a dispatch. Exactly one of Body (unary) or
// Stream (streaming 2xx) is populated; non-2xx outcomes carry the upstream
// error body in Body either way.
type Result struct {
	StatusCode   int
	Body         []byte
	Stream       *Stream
	CredentialID string
}

// RetryingProxy rotates through credentials on quota errors. A 429 forces
// rotation and is retried up to the configured limit, so one request may
// burn through several credentials before giving up.
type RetryingProxy struct {
	creds  CredentialSource
	client Upstream
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(creds CredentialSource, client Upstream, policy Policy) *RetryingProxy {
	return &RetryingProxy{
		creds:  creds,
		client: client,
		policy: policy,
		sleep:  sleepCtx,
	}
}

// Execute dispatches the request. A non-2xx upstream status is not an
// error: it comes back as a Result the caller turns into an envelope. The
// returned error covers credential exhaustion and transport failures.
func (p *RetryingProxy) Execute(ctx context.Context, req Request) (*Result, error) {
	maxRetries := 0
	if p.policy.Retry429Enabled(ctx) {
		maxRetries = p.policy.Retry429MaxRetries(ctx)
	}

	netRetries := 0
	for attempt := 0; ; attempt++ {
		id, rec, err := p.creds.GetValidCredential(ctx)
		if err != nil {
			return nil, err
		}

		call := upstream.Call{
			AccessToken: rec.AccessToken,
			ProjectID:   rec.ProjectID,
			Model:       req.Model,
			Request:     req.Payload,
		}
		var resp *http.Response
		if req.Streaming {
			resp, err = p.client.Stream(ctx, call)
		} else {
			resp, err = p.client.Generate(ctx, call)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, apierr.FromNetwork(err)
			}
			netRetries++
			if netRetries > constants.NetworkErrorMaxRetries {
				return nil, apierr.FromNetwork(err)
			}
			monitoring.UpstreamRetryAttempts.WithLabelValues("network").Inc()
			log.WithError(err).WithField("credential", id).Warn("upstream network error, retrying")
			if serr := p.sleep(ctx, p.policy.Retry429Interval(ctx)); serr != nil {
				return nil, apierr.FromNetwork(serr)
			}
			continue
		}
		p.creds.IncrementCallCount()

		status := resp.StatusCode
		if status >= 200 && status < 300 {
			if req.Streaming {
				ok := func() { p.creds.RecordResult(ctx, id, status, true) }
				return &Result{StatusCode: status, Stream: NewStream(resp.Body, ok), CredentialID: id}, nil
			}
			body, rerr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if rerr != nil {
				p.creds.RecordResult(ctx, id, status, false)
				return nil, apierr.FromNetwork(rerr)
			}
			p.creds.RecordResult(ctx, id, status, true)
			return &Result{StatusCode: status, Body: body, CredentialID: id}, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		p.creds.RecordResult(ctx, id, status, false)

		if status == http.StatusTooManyRequests {
			if attempt < maxRetries {
				p.creds.ForceRotate()
				monitoring.UpstreamRetryAttempts.WithLabelValues("retry_429").Inc()
				log.WithFields(log.Fields{
					"credential": id,
					"attempt":    attempt + 1,
					"max":        maxRetries + 1,
				}).Warn("quota exceeded, rotating credential")
				if err := p.sleep(ctx, p.policy.Retry429Interval(ctx)); err != nil {
					return nil, apierr.FromNetwork(err)
				}
				continue
			}
			monitoring.UpstreamRetryAttempts.WithLabelValues("exhausted").Inc()
			return &Result{StatusCode: status, Body: body, CredentialID: id}, nil
		}

		if p.policy.AutoBanEnabled(ctx) && containsInt(p.policy.AutoBanErrorCodes(ctx), status) {
			// RecordResult already disabled the credential; move off it.
			p.creds.ForceRotate()
		}
		return &Result{StatusCode: status, Body: body, CredentialID: id}, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func containsInt(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
