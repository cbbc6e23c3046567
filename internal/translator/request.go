// Package translator converts between the OpenAI chat completions format
// and the Gemini request/response format used upstream.
package translator

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAIToGeminiRequest converts an OpenAI chat completions request body
// into the inner Gemini request object (contents, systemInstruction,
// generationConfig).
func OpenAIToGeminiRequest(rawJSON []byte) []byte {
	out := `{"contents":[]}`

	contents, systemParts := translateMessages(rawJSON)
	contentsJSON, _ := json.Marshal(contents)
	out, _ = sjson.SetRaw(out, "contents", string(contentsJSON))

	if len(systemParts) > 0 {
		sysJSON, _ := json.Marshal(map[string]interface{}{"parts": systemParts})
		out, _ = sjson.SetRaw(out, "systemInstruction", string(sysJSON))
	}

	if gc := buildGenerationConfig(rawJSON); len(gc) > 0 {
		gcJSON, _ := json.Marshal(gc)
		out, _ = sjson.SetRaw(out, "generationConfig", string(gcJSON))
	}

	return []byte(out)
}

func translateMessages(rawJSON []byte) ([]interface{}, []interface{}) {
	var contents []interface{}
	var systemParts []interface{}

	for _, msg := range gjson.GetBytes(rawJSON, "messages").Array() {
		role := msg.Get("role").String()
		content := msg.Get("content")

		switch role {
		case "system":
			systemParts = append(systemParts, textParts(content)...)

		case "user":
			contents = append(contents, map[string]interface{}{
				"role":  "user",
				"parts": textParts(content),
			})

		case "assistant":
			var parts []interface{}
			if content.Exists() && content.String() != "" {
				parts = textParts(content)
			}
			for _, tc := range msg.Get("tool_calls").Array() {
				if tc.Get("type").String() != "function" {
					continue
				}
				var args interface{}
				if err := json.Unmarshal([]byte(tc.Get("function.arguments").String()), &args); err != nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, map[string]interface{}{
					"functionCall": map[string]interface{}{
						"name": tc.Get("function.name").String(),
						"args": args,
					},
				})
			}
			if len(parts) == 0 {
				parts = []interface{}{map[string]interface{}{"text": ""}}
			}
			contents = append(contents, map[string]interface{}{
				"role":  "model",
				"parts": parts,
			})

		case "tool":
			var response interface{}
			if err := json.Unmarshal([]byte(content.String()), &response); err != nil {
				response = map[string]interface{}{"result": content.String()}
			}
			contents = append(contents, map[string]interface{}{
				"role": "user",
				"parts": []interface{}{map[string]interface{}{
					"functionResponse": map[string]interface{}{
						"name":     msg.Get("tool_call_id").String(),
						"response": response,
					},
				}},
			})
		}
	}
	return contents, systemParts
}

// textParts normalizes string or array-of-parts message content.
func textParts(content gjson.Result) []interface{} {
	if content.IsArray() {
		var parts []interface{}
		for _, part := range content.Array() {
			if part.Get("type").String() == "text" {
				parts = append(parts, map[string]interface{}{"text": part.Get("text").String()})
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return []interface{}{map[string]interface{}{"text": content.String()}}
}

func buildGenerationConfig(rawJSON []byte) map[string]interface{} {
	gc := map[string]interface{}{}
	root := gjson.ParseBytes(rawJSON)

	if v := root.Get("temperature"); v.Exists() {
		gc["temperature"] = v.Float()
	}
	if v := root.Get("top_p"); v.Exists() {
		gc["topP"] = v.Float()
	}
	if v := root.Get("max_tokens"); v.Exists() {
		gc["maxOutputTokens"] = v.Int()
	} else if v := root.Get("max_completion_tokens"); v.Exists() {
		gc["maxOutputTokens"] = v.Int()
	}
	if v := root.Get("n"); v.Exists() {
		gc["candidateCount"] = v.Int()
	}
	if v := root.Get("stop"); v.Exists() {
		if v.IsArray() {
			var stops []string
			for _, s := range v.Array() {
				stops = append(stops, s.String())
			}
			gc["stopSequences"] = stops
		} else {
			gc["stopSequences"] = []string{v.String()}
		}
	}
	return gc
}
