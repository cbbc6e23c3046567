package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"gclipool-go/internal/apierr"
	"gclipool-go/internal/models"
	"gclipool-go/internal/proxy"
	"gclipool-go/internal/translator"
)

func (s *Server) handleChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, false, http.StatusBadRequest, "could not read request body")
		return
	}

	requested := gjson.GetBytes(body, "model").String()
	if requested == "" {
		s.respondError(c, false, http.StatusBadRequest, "model is required")
		return
	}
	model, _ := models.Resolve(requested)
	if !gjson.GetBytes(body, "messages").IsArray() {
		s.respondError(c, false, http.StatusBadRequest, "messages is required")
		return
	}
	streaming := gjson.GetBytes(body, "stream").Bool()
	c.Set("model", model)

	res, err := s.deps.Proxy.Execute(c.Request.Context(), proxy.Request{
		Model:     model,
		Payload:   translator.OpenAIToGeminiRequest(body),
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
		out, err := translator.GeminiToOpenAIResponse(model, translator.UnwrapResponse(res.Body))
		if err != nil {
			s.respondError(c, false, http.StatusBadGateway, "could not translate upstream response")
			return
		}
		c.Data(http.StatusOK, "application/json", out)
		return
	}

	defer res.Stream.Close()
	writeSSEHeaders(c)
	state := translator.NewStreamState(model)
	for {
		chunk, err := res.Stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Warn("upstream stream ended abnormally")
				// 中断前先下发终止错误事件
				writeSSEData(c, apierr.EnvelopeJSON(http.StatusBadGateway, "upstream stream interrupted"))
				return
			}
			writeSSEDone(c)
			return
		}
		out, ok := state.TranslateChunk(translator.UnwrapResponse(chunk))
		if !ok {
			continue
		}
		if !writeSSEData(c, out) {
			return
		}
	}
}
