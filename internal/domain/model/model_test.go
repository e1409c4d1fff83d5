package model

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/pkg/errors"
)

func TestDefaultCapabilities(t *testing.T) {
	caps := DefaultCapabilities()

	assert.False(t, caps.SupportsVision)
	assert.False(t, caps.SupportsTools)
	assert.False(t, caps.SupportsToolChoice)
	assert.False(t, caps.SupportsToolChoiceRequired)
	assert.True(t, caps.SupportsSystem)
	assert.True(t, caps.SupportsStreaming)
	assert.True(t, caps.SupportsOnlyAssistant)
}

func TestCapabilityOverridesApply(t *testing.T) {
	no := false
	yes := true
	got := CapabilityOverrides{SupportsSystem: &no, SupportsTools: &yes}.Apply(DefaultCapabilities())

	assert.False(t, got.SupportsSystem)
	assert.True(t, got.SupportsTools)
	assert.True(t, got.SupportsRepeatingRoles, "untouched fields keep the base value")
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("openai/openai/gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, ModelPath{Provider: "openai", Vendor: "openai", Name: "gpt-4o"}, p)
	assert.Equal(t, "openai/openai/gpt-4o", p.String())

	p, err = ParsePath("gpt-4o")
	require.NoError(t, err)
	assert.True(t, p.IsBare())

	for _, bad := range []string{"", "a/b", "a//c", "/b/c", "a/b/c/d"} {
		_, err := ParsePath(bad)
		assert.ErrorIs(t, err, errors.ErrInvalidInput, bad)
	}
}

func TestModelPath(t *testing.T) {
	m := Model{Provider: "groq", Vendor: "meta", Name: "llama-3.1-8b"}
	assert.Equal(t, "groq/meta/llama-3.1-8b", m.Path())
}

func TestCostFromPerMillion(t *testing.T) {
	c := CostFromPerMillion(3, 15)
	assert.True(t, c.Prompt.Equal(decimal.RequireFromString("0.000003")))
	assert.True(t, c.Completion.Equal(decimal.RequireFromString("0.000015")))
}

func TestCostCalculate(t *testing.T) {
	c := CostFromPerMillion(1, 2)
	c.Request = decimal.RequireFromString("0.01")

	got := c.Calculate(TokenUsage{PromptTokens: 1000, CompletionTokens: 500, ReasoningTokens: 500})
	// 1000*0.000001 + 1000*0.000002 + 0.01
	assert.True(t, got.Equal(decimal.RequireFromString("0.013")), got.String())
}

func TestPromptTiersInclusiveThreshold(t *testing.T) {
	c := CostFromPerMillion(1, 1).WithTiers(
		PricingTier{Threshold: 200_000, Rate: decimal.RequireFromString("0.000004")},
		PricingTier{Threshold: 128_000, Rate: decimal.RequireFromString("0.000002")},
	)

	assert.True(t, c.PromptRate(127_999).Equal(c.Prompt))
	assert.True(t, c.PromptRate(128_000).Equal(decimal.RequireFromString("0.000002")))
	assert.True(t, c.PromptRate(199_999).Equal(decimal.RequireFromString("0.000002")))
	assert.True(t, c.PromptRate(200_000).Equal(decimal.RequireFromString("0.000004")))
}

func TestCostIsNonNegativeAndLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		c := CostFromPerMillion(rng.Float64()*50, rng.Float64()*100)
		c.Request = decimal.NewFromFloat(rng.Float64()).Round(6)

		base := TokenUsage{PromptTokens: rng.Intn(10_000), CompletionTokens: rng.Intn(10_000)}
		k := rng.Intn(5_000)

		got := c.Calculate(base)
		require.False(t, got.IsNegative())

		// linear in completion tokens: adding k tokens adds exactly k*rate
		more := base
		more.CompletionTokens += k
		delta := c.Calculate(more).Sub(got)
		assert.True(t, delta.Equal(c.Completion.Mul(decimal.NewFromInt(int64(k)))))

		// and in prompt tokens, absent tiers
		more = base
		more.PromptTokens += k
		delta = c.Calculate(more).Sub(got)
		assert.True(t, delta.Equal(c.Prompt.Mul(decimal.NewFromInt(int64(k)))))
	}
}

func TestBreakdownSumsToCalculate(t *testing.T) {
	c := CostFromPerMillion(2.5, 10)
	c.Request = decimal.RequireFromString("0.002")
	u := TokenUsage{PromptTokens: 1234, CompletionTokens: 56, ReasoningTokens: 7}

	in, out := c.Breakdown(u)
	assert.True(t, in.Add(out).Add(c.Request).Equal(c.Calculate(u)))
}

func TestModelFilter(t *testing.T) {
	m := Model{Provider: "openai", Capabilities: DefaultCapabilities()}
	m.Capabilities.SupportsTools = true

	assert.True(t, ModelFilter{}.Matches(m))
	assert.True(t, ModelFilter{}.WithTools(true).WithProvider("openai").Matches(m))
	assert.False(t, ModelFilter{}.WithTools(true).WithVision(true).Matches(m))
	assert.False(t, ModelFilter{}.WithProvider("anthropic").Matches(m))
	assert.True(t, ModelFilter{}.WithStreaming(true).WithTemperature(true).Matches(m))
}
