package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

func newGeminiTestAdapter(t *testing.T, handler http.HandlerFunc) *GeminiAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := NewGeminiAdapter(model.Model{Name: "gemini-2.5-flash", Vendor: "google", Provider: "google"}, srv.URL, nil, nil)
	a.SetCredential("g-test")
	return a
}

func TestGeminiInvoke(t *testing.T) {
	var captured map[string]interface{}
	a := newGeminiTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)
		captured = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"responseId": "resp-1",
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"text": "thinking", "thought": true},
					{"text": "It is sunny."},
					{"functionCall": {"name": "forecast", "args": {"days": 3}}}
				]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 5, "thoughtsTokenCount": 4, "totalTokenCount": 17}
		}`)
	})

	conv := conversation.New(
		conversation.System("be terse"),
		conversation.User("weather?"),
		conversation.ToolInvocation{Calls: []conversation.ToolCall{{
			ID: "c1", Type: "function", Function: conversation.FunctionCall{Name: "now", Arguments: `{}`},
		}}},
		conversation.ToolResult{CallID: "c1", Content: "sunny"},
	)
	opts := completion.ExecuteOptions{
		Temperature:    completion.Float64(0.5),
		MaxTokens:      completion.Int(100),
		ResponseFormat: completion.JSON(),
		ToolChoice:     completion.ToolChoiceNone,
	}

	resp, err := a.Invoke(context.Background(), conv, opts)
	require.NoError(t, err)

	system := captured["systemInstruction"].(map[string]interface{})
	assert.Equal(t, "be terse", system["parts"].([]interface{})[0].(map[string]interface{})["text"])

	contents := captured["contents"].([]interface{})
	require.Len(t, contents, 3)
	result := contents[2].(map[string]interface{})["parts"].([]interface{})[0].(map[string]interface{})["functionResponse"].(map[string]interface{})
	assert.Equal(t, "now", result["name"], "result is named after its call")
	assert.Equal(t, map[string]interface{}{"result": "sunny"}, result["response"])

	gen := captured["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.Equal(t, float64(100), gen["maxOutputTokens"])

	assert.Equal(t, "resp-1", resp.ID)
	assert.Equal(t, "It is sunny.", resp.Content())
	assert.Equal(t, completion.FinishReasonToolCalls, resp.Choices[0].FinishReason)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	assert.JSONEq(t, `{"days":3}`, resp.Choices[0].Message.ToolCalls[0].Function.Arguments)
	assert.NotEmpty(t, resp.Choices[0].Message.ToolCalls[0].ID)
	assert.Equal(t, &model.TokenUsage{PromptTokens: 8, CompletionTokens: 5, TotalTokens: 17, ReasoningTokens: 4}, resp.Usage)
}

func TestGeminiResponseSchema(t *testing.T) {
	var captured map[string]interface{}
	a := newGeminiTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{}"}]},"finishReason":"STOP"}]}`)
	})

	schema := map[string]interface{}{"type": "object", "required": []interface{}{"city"}}
	_, err := a.Invoke(context.Background(), conversation.New(conversation.User("hi")), completion.ExecuteOptions{
		ResponseFormat: completion.Schema("weather", schema),
	})
	require.NoError(t, err)

	gen := captured["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.Equal(t, "object", gen["responseJsonSchema"].(map[string]interface{})["type"])
}

func TestGeminiInvokeStream(t *testing.T) {
	events := []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":1,"totalTokenCount":4}}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`,
	}
	a := newGeminiTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":streamGenerateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	})

	stream, err := a.InvokeStream(context.Background(), conversation.New(conversation.User("hi")), completion.ExecuteOptions{})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var chunks []completion.Chunk
	for {
		c, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}

	require.Len(t, chunks, 3)
	assert.Equal(t, conversation.RoleAssistant, chunks[0].Choices[0].Delta.Role)
	assert.Equal(t, "Hel", chunks[0].Choices[0].Delta.Content)
	assert.Equal(t, "lo", chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, completion.FinishReasonStop, chunks[1].Choices[0].FinishReason)
	assert.False(t, chunks[1].IsTerminal())

	last := chunks[2]
	require.True(t, last.IsTerminal())
	assert.Empty(t, last.Choices)
	assert.Equal(t, 5, last.Usage.TotalTokens, "cumulative usage is reported once")
}

func TestGeminiErrorsAreClassified(t *testing.T) {
	a := newGeminiTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := a.Invoke(context.Background(), conversation.New(conversation.User("hi")), completion.ExecuteOptions{})
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)

	_, err = a.InvokeStream(context.Background(), conversation.New(conversation.User("hi")), completion.ExecuteOptions{})
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
}

func TestGeminiFinishReasons(t *testing.T) {
	assert.Equal(t, completion.FinishReasonLength, geminiFinishReason(genai.FinishReasonMaxTokens))
	assert.Equal(t, completion.FinishReasonContentFilter, geminiFinishReason(genai.FinishReasonSafety))
	assert.Equal(t, completion.FinishReasonError, geminiFinishReason(genai.FinishReasonMalformedFunctionCall))
	assert.Equal(t, completion.FinishReasonStop, geminiFinishReason(genai.FinishReasonStop))
}

func TestGeminiResultWrapping(t *testing.T) {
	assert.Equal(t, map[string]any{"ok": true}, geminiResult(`{"ok":true}`))
	assert.Equal(t, map[string]any{"result": "[1,2]"}, geminiResult("[1,2]"))
	assert.Equal(t, map[string]any{"result": "plain"}, geminiResult("plain"))
}
