package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

type recordingRegistrar struct {
	kinds map[string]Constructor
}

func (r *recordingRegistrar) RegisterAdapter(kind string, ctor Constructor) {
	if r.kinds == nil {
		r.kinds = map[string]Constructor{}
	}
	r.kinds[kind] = ctor
}

func TestFactoryBuildsEveryKind(t *testing.T) {
	urls := map[string]string{"groq": "https://api.groq.com/openai/v1"}
	f := NewFactory(nil, NewRateLimiterFactory(nil, nil), func(p string) string { return urls[p] })

	m := model.Model{Name: "llama-3.3-70b", Vendor: "meta", Provider: "groq"}

	a, err := f.New(KindOpenAI, m)
	require.NoError(t, err)
	oa, ok := a.(*OpenAIAdapter)
	require.True(t, ok)
	assert.Equal(t, "https://api.groq.com/openai/v1", oa.baseURL)
	assert.Equal(t, m, a.Model())

	a, err = f.New(KindAnthropic, model.Model{Name: "claude-sonnet-4", Provider: "anthropic"})
	require.NoError(t, err)
	ca, ok := a.(*AnthropicAdapter)
	require.True(t, ok)
	assert.Equal(t, anthropicDefaultBaseURL, ca.baseURL)

	a, err = f.New(" Gemini ", model.Model{Name: "gemini-2.5-pro", Provider: "google"})
	require.NoError(t, err)
	_, ok = a.(*GeminiAdapter)
	assert.True(t, ok)
}

func TestFactoryUnknownKind(t *testing.T) {
	f := NewFactory(nil, nil, nil)

	assert.Nil(t, f.Constructor("bedrock"))
	_, err := f.New("bedrock", model.Model{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestFactoryRegisterAll(t *testing.T) {
	reg := &recordingRegistrar{}
	NewFactory(nil, nil, nil).RegisterAll(reg)

	assert.Len(t, reg.kinds, 3)
	for _, kind := range []string{KindOpenAI, KindAnthropic, KindGemini} {
		assert.NotNil(t, reg.kinds[kind], kind)
	}
}

func TestFactoryUsesProviderLimiter(t *testing.T) {
	limiters := NewRateLimiterFactory(nil, map[string]RateLimitConfig{
		"groq": {Enabled: true, ReqPerMinute: 30, Burst: 1},
	})
	f := NewFactory(nil, limiters, nil)

	a, err := f.New(KindOpenAI, model.Model{Name: "x", Provider: "groq"})
	require.NoError(t, err)
	assert.Equal(t, 30.0, a.(*OpenAIAdapter).limiter.Limit())
}

func TestOverrideBaseURL(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.OverrideBaseURL = "http://proxy.local/v1"
	f := NewFactory(NewClientCache(cfg), nil, func(string) string { return "https://api.openai.com/v1" })

	a, err := f.New(KindOpenAI, model.Model{Name: "gpt-4o", Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local/v1", a.(*OpenAIAdapter).baseURL)
}

func TestNormalizeProviderName(t *testing.T) {
	if got := NormalizeProviderName("  OpenAI "); got != "openai" {
		t.Fatalf("unexpected normalized name %s", got)
	}
}
