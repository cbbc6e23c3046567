package translator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestOpenAIToGeminiRequestBasic(t *testing.T) {
	in := []byte(`{
		"model": "gemini-2.5-pro",
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi"},
			{"role": "user", "content": "bye"}
		],
		"temperature": 0.4,
		"top_p": 0.9,
		"max_tokens": 128,
		"stop": ["END"]
	}`)

	out := OpenAIToGeminiRequest(in)
	root := gjson.ParseBytes(out)

	require.Equal(t, "be terse", root.Get("systemInstruction.parts.0.text").String())

	contents := root.Get("contents").Array()
	require.Len(t, contents, 3)
	require.Equal(t, "user", contents[0].Get("role").String())
	require.Equal(t, "hello", contents[0].Get("parts.0.text").String())
	require.Equal(t, "model", contents[1].Get("role").String())
	require.Equal(t, "hi", contents[1].Get("parts.0.text").String())

	require.InDelta(t, 0.4, root.Get("generationConfig.temperature").Float(), 1e-9)
	require.InDelta(t, 0.9, root.Get("generationConfig.topP").Float(), 1e-9)
	require.EqualValues(t, 128, root.Get("generationConfig.maxOutputTokens").Int())
	require.Equal(t, "END", root.Get("generationConfig.stopSequences.0").String())
}

func TestOpenAIToGeminiRequestToolCalls(t *testing.T) {
	in := []byte(`{
		"messages": [
			{"role": "user", "content": "weather?"},
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function",
				 "function": {"name": "get_weather", "arguments": "{\"city\":\"Berlin\"}"}}
			]},
			{"role": "tool", "tool_call_id": "get_weather", "content": "{\"temp\":21}"}
		]
	}`)

	out := OpenAIToGeminiRequest(in)
	root := gjson.ParseBytes(out)
	contents := root.Get("contents").Array()
	require.Len(t, contents, 3)

	fc := contents[1].Get("parts.0.functionCall")
	require.Equal(t, "get_weather", fc.Get("name").String())
	require.Equal(t, "Berlin", fc.Get("args.city").String())

	fr := contents[2].Get("parts.0.functionResponse")
	require.Equal(t, "get_weather", fr.Get("name").String())
	require.EqualValues(t, 21, fr.Get("response.temp").Int())
}

func TestOpenAIToGeminiRequestArrayContent(t *testing.T) {
	in := []byte(`{
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "part one"},
				{"type": "text", "text": "part two"}
			]}
		]
	}`)

	out := OpenAIToGeminiRequest(in)
	parts := gjson.GetBytes(out, "contents.0.parts").Array()
	require.Len(t, parts, 2)
	require.Equal(t, "part one", parts[0].Get("text").String())
	require.Equal(t, "part two", parts[1].Get("text").String())
}

func TestUnwrapResponse(t *testing.T) {
	wrapped := []byte(`{"response":{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}}`)
	out := UnwrapResponse(wrapped)
	require.True(t, gjson.GetBytes(out, "candidates").Exists())

	bare := []byte(`{"candidates":[]}`)
	require.Equal(t, bare, UnwrapResponse(bare))
}

func TestGeminiToOpenAIResponse(t *testing.T) {
	in := []byte(`{
		"candidates": [{
			"content": {"parts": [
				{"text": "thinking...", "thought": true},
				{"text": "Hello "},
				{"text": "world"}
			]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3}
	}`)

	out, err := GeminiToOpenAIResponse("gemini-2.5-pro", in)
	require.NoError(t, err)
	root := gjson.ParseBytes(out)

	require.Equal(t, "chat.completion", root.Get("object").String())
	require.Equal(t, "gemini-2.5-pro", root.Get("model").String())
	require.Equal(t, "Hello world", root.Get("choices.0.message.content").String())
	require.Equal(t, "stop", root.Get("choices.0.finish_reason").String())
	require.EqualValues(t, 7, root.Get("usage.prompt_tokens").Int())
	require.EqualValues(t, 10, root.Get("usage.total_tokens").Int())
}

func TestGeminiToOpenAIResponseToolCall(t *testing.T) {
	in := []byte(`{
		"candidates": [{
			"content": {"parts": [
				{"functionCall": {"name": "get_weather", "args": {"city": "Berlin"}}}
			]},
			"finishReason": "STOP"
		}]
	}`)

	out, err := GeminiToOpenAIResponse("m", in)
	require.NoError(t, err)
	root := gjson.ParseBytes(out)
	require.Equal(t, "tool_calls", root.Get("choices.0.finish_reason").String())
	tc := root.Get("choices.0.message.tool_calls.0")
	require.Equal(t, "get_weather", tc.Get("function.name").String())
	require.Equal(t, "Berlin", gjson.Get(tc.Get("function.arguments").String(), "city").String())
}

func TestFinishReasonMapping(t *testing.T) {
	require.Equal(t, "length", mapFinishReason("MAX_TOKENS"))
	require.Equal(t, "content_filter", mapFinishReason("SAFETY"))
	require.Equal(t, "content_filter", mapFinishReason("RECITATION"))
	require.Equal(t, "stop", mapFinishReason("STOP"))
	require.Equal(t, "stop", mapFinishReason(""))
}

func TestStreamStateChunks(t *testing.T) {
	st := NewStreamState("gemini-2.5-flash")

	first, ok := st.TranslateChunk([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`))
	require.True(t, ok)
	root := gjson.ParseBytes(first)
	require.Equal(t, "chat.completion.chunk", root.Get("object").String())
	require.Equal(t, "assistant", root.Get("choices.0.delta.role").String())
	require.Equal(t, "Hel", root.Get("choices.0.delta.content").String())
	require.True(t, root.Get("choices.0.finish_reason").Type == gjson.Null)

	second, ok := st.TranslateChunk([]byte(`{"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}]}`))
	require.True(t, ok)
	root = gjson.ParseBytes(second)
	require.False(t, root.Get("choices.0.delta.role").Exists(), "role only on the first chunk")
	require.Equal(t, "lo", root.Get("choices.0.delta.content").String())
	require.Equal(t, "stop", root.Get("choices.0.finish_reason").String())

	// 同一流内 id 一致
	require.Equal(t, gjson.GetBytes(first, "id").String(), root.Get("id").String())

	_, ok = st.TranslateChunk([]byte(`{"candidates":[{"content":{"parts":[]}}]}`))
	require.False(t, ok, "empty chunk is dropped")
}
