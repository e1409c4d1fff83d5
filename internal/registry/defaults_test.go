package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain/model"
)

func TestEmbeddedDefaultsDecode(t *testing.T) {
	table, err := LoadDefaults()
	require.NoError(t, err)

	anthropic := table.For("anthropic")
	assert.Equal(t, AdapterAnthropic, anthropic.Adapter)
	assert.Equal(t, "https://api.anthropic.com/v1", anthropic.BaseURL)
	assert.Equal(t, AdapterGemini, table.For("google").Adapter)
	assert.Equal(t, "https://api.groq.com/openai/v1", table.BaseURL("groq"))
}

func TestUnknownProviderGetsTotalDefaults(t *testing.T) {
	table, err := LoadDefaults()
	require.NoError(t, err)

	assert.Equal(t, AdapterOpenAI, table.For("somewhere-new").Adapter)
	assert.Equal(t, model.DefaultCapabilities(), table.Capabilities("somewhere-new"))
}

func TestParseDefaultsPartialRecord(t *testing.T) {
	table, err := ParseDefaults(`
[acme]
base_url = "https://acme.test/v1"

[acme.capabilities]
supports_system = false
`)
	require.NoError(t, err)

	caps := table.Capabilities("acme")
	assert.False(t, caps.SupportsSystem)
	assert.True(t, caps.SupportsMultipleSystem)
	assert.Equal(t, AdapterOpenAI, table.For("acme").Adapter)
}

func TestParseDefaultsRejectsBadTOML(t *testing.T) {
	_, err := ParseDefaults("[acme")
	assert.Error(t, err)
}

func TestVendorExtraction(t *testing.T) {
	vm, err := LoadVendorMappings()
	require.NoError(t, err)

	tests := []struct {
		model, provider, want string
	}{
		{"gpt-4o", "azure", "openai"},
		{"o3-mini", "openai", "openai"},
		{"claude-3-5-haiku", "bedrock", "anthropic"},
		{"gemini-2.5-pro", "google", "google"},
		{"llama-3.3-70b-versatile", "groq", "meta"},
		{"Meta-Llama-3.1-8B", "cerebras", "meta"},
		{"mixtral-8x7b", "groq", "mistral"},
		{"qwen3-coder", "cerebras", "alibaba"},
		{"grok-4", "xai", "xai"},
		{"sonar-pro", "perplexity", "perplexity"},
		{"custom-model", "deepseek", "deepseek"},
		{"custom-model", "acme", "acme"},
	}

	for _, tt := range tests {
		t.Run(tt.model+"@"+tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, vm.Vendor(tt.model, tt.provider))
		})
	}
}

func TestVendorPatternsFirstMatchWins(t *testing.T) {
	vm, err := ParseVendorMappings(`
[[patterns]]
pattern = "^a"
vendor = "first"

[[patterns]]
pattern = "^ab"
vendor = "second"
`)
	require.NoError(t, err)
	assert.Equal(t, "first", vm.Vendor("abc", "p"))
}

func TestParseVendorMappingsRejectsBadRegex(t *testing.T) {
	_, err := ParseVendorMappings(`
[[patterns]]
pattern = "("
vendor = "x"
`)
	assert.Error(t, err)
}

func TestHeuristics(t *testing.T) {
	assert.True(t, IsChinese("qwen-max", "openrouter"))
	assert.True(t, IsChinese("kimi-k2", "moonshotai"))
	assert.True(t, IsChinese("anything", "alibaba-cn"))
	assert.False(t, IsChinese("gpt-4o", "openai"))

	assert.True(t, IsGDPRCompliant("azure"))
	assert.False(t, IsGDPRCompliant("groq"))
}
