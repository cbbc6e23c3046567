package translator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// UnwrapResponse strips the Code Assist {"response": ...} wrapper, leaving
// the bare Gemini body. Bodies without the wrapper pass through unchanged.
func UnwrapResponse(body []byte) []byte {
	if inner := gjson.GetBytes(body, "response"); inner.Exists() {
		return []byte(inner.Raw)
	}
	return body
}

// GeminiToOpenAIResponse converts a non-streaming Gemini response into an
// OpenAI chat completion.
func GeminiToOpenAIResponse(model string, body []byte) ([]byte, error) {
	root := gjson.ParseBytes(body)
	if root.Get("error").Exists() {
		return body, nil
	}

	var choices []map[string]interface{}
	for idx, candidate := range root.Get("candidates").Array() {
		var text string
		var toolCalls []map[string]interface{}
		for _, part := range candidate.Get("content.parts").Array() {
			if part.Get("thought").Bool() {
				continue
			}
			if t := part.Get("text"); t.Exists() {
				text += t.String()
			}
			if fn := part.Get("functionCall"); fn.Exists() {
				args := []byte("{}")
				if a := fn.Get("args"); a.Exists() {
					args, _ = json.Marshal(a.Value())
				}
				toolCalls = append(toolCalls, map[string]interface{}{
					"id":   fmt.Sprintf("call_%s_%d", fn.Get("name").String(), len(toolCalls)),
					"type": "function",
					"function": map[string]interface{}{
						"name":      fn.Get("name").String(),
						"arguments": string(args),
					},
				})
			}
		}

		message := map[string]interface{}{
			"role":    "assistant",
			"content": text,
		}
		if len(toolCalls) > 0 {
			message["tool_calls"] = toolCalls
		}

		finish := mapFinishReason(candidate.Get("finishReason").String())
		if len(toolCalls) > 0 {
			finish = "tool_calls"
		}
		choices = append(choices, map[string]interface{}{
			"index":         idx,
			"message":       message,
			"finish_reason": finish,
		})
	}

	promptTokens := root.Get("usageMetadata.promptTokenCount").Int()
	completionTokens := root.Get("usageMetadata.candidatesTokenCount").Int()

	return json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": choices,
		"usage": map[string]interface{}{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	})
}

func mapFinishReason(gemini string) string {
	switch gemini {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

// StreamState holds the per-stream identifiers so every chunk of one
// completion shares the same id and timestamp.
type StreamState struct {
	ID       string
	Created  int64
	Model    string
	sentRole bool
}

func NewStreamState(model string) *StreamState {
	return &StreamState{
		ID:      "chatcmpl-" + uuid.NewString(),
		Created: time.Now().Unix(),
		Model:   model,
	}
}

// TranslateChunk converts one Gemini stream chunk into an OpenAI
// chat.completion.chunk. It returns false when the chunk carries nothing
// worth forwarding.
func (st *StreamState) TranslateChunk(geminiChunk []byte) ([]byte, bool) {
	root := gjson.ParseBytes(geminiChunk)
	candidate := root.Get("candidates.0")
	if !candidate.Exists() {
		return nil, false
	}

	delta := map[string]interface{}{}
	if !st.sentRole {
		delta["role"] = "assistant"
		st.sentRole = true
	}

	var text string
	for _, part := range candidate.Get("content.parts").Array() {
		if part.Get("thought").Bool() {
			continue
		}
		if t := part.Get("text"); t.Exists() {
			text += t.String()
		}
		if fn := part.Get("functionCall"); fn.Exists() {
			args := []byte("{}")
			if a := fn.Get("args"); a.Exists() {
				args, _ = json.Marshal(a.Value())
			}
			delta["tool_calls"] = []map[string]interface{}{{
				"index": 0,
				"id":    "call_" + fn.Get("name").String(),
				"type":  "function",
				"function": map[string]interface{}{
					"name":      fn.Get("name").String(),
					"arguments": string(args),
				},
			}}
		}
	}
	if text != "" {
		delta["content"] = text
	}

	var finish interface{}
	if fr := candidate.Get("finishReason"); fr.Exists() && fr.String() != "" {
		finish = mapFinishReason(fr.String())
	}
	if len(delta) == 0 && finish == nil {
		return nil, false
	}

	out, err := json.Marshal(map[string]interface{}{
		"id":      st.ID,
		"object":  "chat.completion.chunk",
		"created": st.Created,
		"model":   st.Model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	})
	if err != nil {
		return nil, false
	}
	return out, true
}
