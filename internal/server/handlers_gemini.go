package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/apierr"
	"gclipool-go/internal/models"
	"gclipool-go/internal/proxy"
	"gclipool-go/internal/translator"
	"gclipool-go/internal/upstream"
)

func (s *Server) dispatchGeminiAction(c *gin.Context) {
	rawModel := c.Param("model")
	action := strings.TrimPrefix(c.Param("action"), "/")
	// 冒号紧跟模型名时整段落在 model 参数里
	if action == "" {
		if i := strings.Index(rawModel, ":"); i >= 0 {
			action = rawModel[i:]
			rawModel = rawModel[:i]
		}
	}

	// 未收录的模型名原样透传,由上游裁决
	model, _ := models.Resolve(rawModel)
	c.Set("model", model)

	switch action {
	case ":generateContent":
		s.generateContent(c, model, false)
	case ":streamGenerateContent":
		s.generateContent(c, model, true)
	case ":countTokens":
		s.countTokens(c, model)
	default:
		c.Data(http.StatusNotFound, "application/json", apierr.EnvelopeJSON(http.StatusNotFound, "unknown action"))
	}
}

func (s *Server) generateContent(c *gin.Context, model string, streaming bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, streaming, http.StatusBadRequest, "could not read request body")
		return
	}

	res, err := s.deps.Proxy.Execute(c.Request.Context(), proxy.Request{
		Model:     model,
		Payload:   body,
		Streaming: streaming,
	})
	if err != nil {
		s.respondDispatchError(c, streaming, err)
		return
	}
	c.Set("credential_id", res.CredentialID)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		aerr := apierr.FromHTTP(res.StatusCode, res.Body)
		s.respondError(c, streaming, aerr.HTTPStatus, aerr.Message)
		return
	}

	if !streaming {
		c.Data(http.StatusOK, "application/json", translator.UnwrapResponse(res.Body))
		return
	}

	defer res.Stream.Close()
	writeSSEHeaders(c)
	for {
		chunk, err := res.Stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Warn("upstream stream ended abnormally")
				// 中断前先下发终止错误事件
				writeSSEData(c, apierr.EnvelopeJSON(http.StatusBadGateway, "upstream stream interrupted"))
			}
			return
		}
		if !writeSSEData(c, translator.UnwrapResponse(chunk)) {
			return
		}
	}
}

func (s *Server) countTokens(c *gin.Context, model string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, false, http.StatusBadRequest, "could not read request body")
		return
	}

	ctx := c.Request.Context()
	id, rec, err := s.deps.CredSource.GetValidCredential(ctx)
	if err != nil {
		s.respondDispatchError(c, false, err)
		return
	}
	c.Set("credential_id", id)

	resp, err := s.deps.Upstream.CountTokens(ctx, upstream.Call{
		AccessToken: rec.AccessToken,
		ProjectID:   rec.ProjectID,
		Model:       model,
		Request:     body,
	})
	if err != nil {
		aerr := apierr.FromNetwork(err)
		s.respondError(c, false, aerr.HTTPStatus, aerr.Message)
		return
	}
	defer resp.Body.Close()
	s.deps.CredSource.IncrementCallCount()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		aerr := apierr.FromNetwork(err)
		s.respondError(c, false, aerr.HTTPStatus, aerr.Message)
		return
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	s.deps.CredSource.RecordResult(ctx, id, resp.StatusCode, ok)
	if !ok {
		aerr := apierr.FromHTTP(resp.StatusCode, out)
		s.respondError(c, false, aerr.HTTPStatus, aerr.Message)
		return
	}
	c.Data(http.StatusOK, "application/json", translator.UnwrapResponse(out))
}

// respondDispatchError maps proxy errors onto client responses: credential
// exhaustion becomes 503, transport failures keep their mapped status.
func (s *Server) respondDispatchError(c *gin.Context, streaming bool, err error) {
	if errors.Is(err, apierr.ErrNoCredentials) {
		s.respondError(c, streaming, http.StatusServiceUnavailable, "No credentials available")
		return
	}
	var aerr *apierr.APIError
	if errors.As(err, &aerr) {
		s.respondError(c, streaming, aerr.HTTPStatus, aerr.Message)
		return
	}
	s.respondError(c, streaming, http.StatusBadGateway, err.Error())
}

// respondError emits the uniform error envelope: a JSON body for unary
// requests, a single SSE data event for streaming ones.
func (s *Server) respondError(c *gin.Context, streaming bool, status int, message string) {
	envelope := apierr.EnvelopeJSON(status, message)
	if !streaming {
		c.Data(status, "application/json", envelope)
		return
	}
	writeSSEHeaders(c)
	c.Status(status)
	writeSSEData(c, envelope)
}
