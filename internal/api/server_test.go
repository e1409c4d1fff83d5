package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/adapters/ai"
	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/internal/orchestrator"
	usagesvc "switchboard/internal/services/usage"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

type fakeCatalog struct {
	models []model.Model
	ctor   ai.Constructor
}

func (c *fakeCatalog) Resolve(path string) (model.Model, ai.Constructor, error) {
	for _, m := range c.models {
		if m.Path() == path {
			return m, c.ctor, nil
		}
	}
	return model.Model{}, nil, &errors.NotFoundError{Path: path}
}

func (c *fakeCatalog) List(filter *model.ModelFilter) []model.Model {
	var out []model.Model
	for _, m := range c.models {
		if filter == nil || filter.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeCatalog) Providers() []string { return []string{"openai"} }

type chunkStream struct {
	chunks []completion.Chunk
	err    error
}

func (s *chunkStream) Recv() (completion.Chunk, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return completion.Chunk{}, s.err
		}
		return completion.Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *chunkStream) Close() error { return nil }

type fakeAdapter struct {
	m        model.Model
	err      error
	chunks   []completion.Chunk
	lastConv conversation.Conversation
	lastOpts completion.ExecuteOptions
}

func (a *fakeAdapter) Model() model.Model     { return a.m }
func (a *fakeAdapter) SetCredential(_ string) {}

func (a *fakeAdapter) Invoke(_ context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (*completion.ChatCompletion, error) {
	a.lastConv, a.lastOpts = conv, opts
	if a.err != nil {
		return nil, a.err
	}
	return &completion.ChatCompletion{
		ID:      "cmpl-1",
		Object:  completion.ObjectCompletion,
		Choices: []completion.Choice{{Message: completion.Message{Role: conversation.RoleAssistant, Content: "hello"}, FinishReason: completion.FinishReasonStop}},
		Usage:   &model.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}, nil
}

func (a *fakeAdapter) InvokeStream(_ context.Context, conv conversation.Conversation, opts completion.ExecuteOptions) (ai.ChunkStream, error) {
	a.lastConv, a.lastOpts = conv, opts
	if a.err != nil {
		return nil, a.err
	}
	chunks := make([]completion.Chunk, len(a.chunks))
	copy(chunks, a.chunks)
	return &chunkStream{chunks: chunks}, nil
}

type harness struct {
	srv      *httptest.Server
	adapter  *fakeAdapter
	recorder *usagesvc.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	caps := model.DefaultCapabilities()
	caps.SupportsTools = true
	m := model.Model{Name: "gpt-4o", Vendor: "openai", Provider: "openai", Cost: model.CostFromPerMillion(1, 2), Capabilities: caps}
	noStream := model.Model{Name: "o1", Vendor: "openai", Provider: "openai", Capabilities: model.DefaultCapabilities()}
	noStream.Capabilities.SupportsStreaming = false

	adapter := &fakeAdapter{m: m}
	cat := &fakeCatalog{
		models: []model.Model{m, noStream},
		ctor:   func(model.Model) (ai.Adapter, error) { return adapter, nil },
	}

	recorder := usagesvc.NewRecorder(nil, nil, usagesvc.RecorderConfig{}, logger.NewNop())
	orch := orchestrator.New(cat, nil, recorder, logger.NewNop())

	router := NewRouter(ServerConfig{ServiceName: "switchboard", Version: "test"}, Deps{
		Catalog:     cat,
		Completions: orch,
		Usage:       recorder.Tracker(),
	}, logger.NewNop())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, adapter: adapter, recorder: recorder}
}

func (h *harness) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestListModelsWithFilter(t *testing.T) {
	h := newHarness(t)

	var all modelList
	decodeBody(t, h.get(t, "/v1/models"), &all)
	assert.Len(t, all.Data, 2)

	var streaming modelList
	decodeBody(t, h.get(t, "/v1/models?streaming=true"), &streaming)
	require.Len(t, streaming.Data, 1)
	assert.Equal(t, "gpt-4o", streaming.Data[0].Name)

	resp := h.get(t, "/v1/models?vision=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetModelByPath(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/v1/models/openai/openai/gpt-4o")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m model.Model
	decodeBody(t, resp, &m)
	assert.Equal(t, "gpt-4o", m.Name)

	resp = h.get(t, "/v1/models/openai/openai/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, "not_found", body.Error.Type)
}

func TestProviders(t *testing.T) {
	h := newHarness(t)
	var body map[string][]string
	decodeBody(t, h.get(t, "/v1/providers"), &body)
	assert.Equal(t, []string{"openai"}, body["data"])
}

func TestChatCompletion(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/v1/chat/completions", `{
		"model": "openai/openai/gpt-4o",
		"temperature": 0.2,
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": [{"type": "text", "text": "hi"}]}
		]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var out completion.ChatCompletion
	decodeBody(t, resp, &out)
	assert.Equal(t, "hello", out.Content())
	assert.Equal(t, "gpt-4o", out.Model)
	assert.True(t, decimal.RequireFromString("0.003").Equal(out.Cost), out.Cost.String())

	require.NotNil(t, h.adapter.lastOpts.Temperature)
	assert.Equal(t, 0.2, *h.adapter.lastOpts.Temperature)
	assert.Equal(t, 2, h.adapter.lastConv.Len())

	var usage usageResponse
	decodeBody(t, h.get(t, "/v1/usage"), &usage)
	require.Len(t, usage.Models, 1)
	assert.Equal(t, int64(1), usage.Models[0].Calls)
}

func TestChatCompletionToolTurns(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/v1/chat/completions", `{
		"model": "openai/openai/gpt-4o",
		"messages": [
			{"role": "user", "content": "weather?"},
			{"role": "assistant", "content": null, "tool_calls": [{"id": "c1", "function": {"name": "weather", "arguments": "{}"}}]},
			{"role": "tool", "tool_call_id": "c1", "content": "sunny"}
		]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	turns := h.adapter.lastConv.Turns
	require.Len(t, turns, 3)
	inv, ok := turns[1].(conversation.ToolInvocation)
	require.True(t, ok)
	assert.Equal(t, conversation.ToolCallTypeFunction, inv.Calls[0].Type)
	res, ok := turns[2].(conversation.ToolResult)
	require.True(t, ok)
	assert.Equal(t, "c1", res.CallID)
}

func TestChatCompletionErrors(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"missing model", `{"messages":[{"role":"user","content":"x"}]}`, http.StatusBadRequest},
		{"unknown role", `{"model":"openai/openai/gpt-4o","messages":[{"role":"robot","content":"x"}]}`, http.StatusBadRequest},
		{"unknown model", `{"model":"openai/openai/nope","messages":[{"role":"user","content":"x"}]}`, http.StatusNotFound},
		{"empty conversation", `{"model":"openai/openai/gpt-4o","messages":[]}`, http.StatusBadRequest},
		{"streaming unsupported", `{"model":"openai/openai/o1","stream":true,"messages":[{"role":"user","content":"x"}]}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.post(t, "/v1/chat/completions", tc.body)
			assert.Equal(t, tc.code, resp.StatusCode)
		})
	}
}

func TestChatCompletionBackendFailureIs502(t *testing.T) {
	h := newHarness(t)
	h.adapter.err = &errors.TransportError{Provider: "openai", Model: "gpt-4o", StatusCode: 500, Err: errors.New("boom")}

	resp := h.post(t, "/v1/chat/completions", `{"model":"openai/openai/gpt-4o","messages":[{"role":"user","content":"x"}]}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestChatCompletionRateLimitedSetsRetryAfter(t *testing.T) {
	h := newHarness(t)
	h.adapter.err = &errors.RateLimitError{Provider: "openai", RetryAfter: 1500 * time.Millisecond, Err: errors.ErrRateLimitExceeded}

	resp := h.post(t, "/v1/chat/completions", `{"model":"openai/openai/gpt-4o","messages":[{"role":"user","content":"x"}]}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
}

func TestChatCompletionStream(t *testing.T) {
	h := newHarness(t)
	h.adapter.chunks = []completion.Chunk{
		{ID: "s1", Choices: []completion.ChunkChoice{{Delta: completion.Delta{Role: conversation.RoleAssistant, Content: "he"}}}},
		{ID: "s1", Choices: []completion.ChunkChoice{{Delta: completion.Delta{Content: "llo"}, FinishReason: completion.FinishReasonStop}}},
		{ID: "s1", Usage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
	}

	resp := h.post(t, "/v1/chat/completions", `{"model":"openai/openai/gpt-4o","stream":true,"messages":[{"role":"user","content":"x"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}

	require.Len(t, events, 4)
	assert.Equal(t, "[DONE]", events[3])

	var first completion.Chunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	assert.Equal(t, "he", first.Choices[0].Delta.Content)

	assert.Equal(t, int64(1), h.recorder.Tracker().Snapshot()["openai:gpt-4o"].Calls)
}

func TestUsageCostsWithoutStore(t *testing.T) {
	h := newHarness(t)
	resp := h.get(t, "/v1/usage/costs")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

type fakeCosts struct {
	from, to time.Time
}

func (f *fakeCosts) GetProviderCosts(_ context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	f.from, f.to = from, to
	return map[string]decimal.Decimal{"openai": decimal.RequireFromString("1.5")}, nil
}

func (f *fakeCosts) GetModelCosts(_ context.Context, provider string, from, to time.Time) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{"gpt-4o": decimal.RequireFromString("1.5")}, nil
}

func TestUsageCosts(t *testing.T) {
	costs := &fakeCosts{}
	router := NewRouter(ServerConfig{}, Deps{Catalog: &fakeCatalog{}, Costs: costs}, logger.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/usage/costs?from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out costResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, decimal.RequireFromString("1.5").Equal(out.Costs["openai"]))
	assert.Equal(t, 2026, costs.from.Year())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/usage/costs?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitByIP(t *testing.T) {
	router := NewRouter(ServerConfig{RequestsPerMin: 2}, Deps{Catalog: &fakeCatalog{}}, logger.NewNop())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}
