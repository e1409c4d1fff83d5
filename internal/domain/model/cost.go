package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

var perMillion = decimal.NewFromInt(1_000_000)

// PricingTier replaces the prompt rate once prompt tokens reach Threshold.
type PricingTier struct {
	Threshold int             `json:"threshold"`
	Rate      decimal.Decimal `json:"rate"`
}

// Cost holds per-token rates and a flat per-request fee, all in USD.
type Cost struct {
	Prompt      decimal.Decimal `json:"prompt"`
	Completion  decimal.Decimal `json:"completion"`
	Request     decimal.Decimal `json:"request"`
	PromptTiers []PricingTier   `json:"prompt_tiers,omitempty"`
}

// CostFromPerMillion converts catalog per-million-token prices into per-token rates.
func CostFromPerMillion(input, output float64) Cost {
	return Cost{
		Prompt:     decimal.NewFromFloat(input).Div(perMillion),
		Completion: decimal.NewFromFloat(output).Div(perMillion),
	}
}

// WithTiers returns a copy of c with tiers sorted by ascending threshold.
func (c Cost) WithTiers(tiers ...PricingTier) Cost {
	sorted := make([]PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	c.PromptTiers = sorted
	return c
}

// TokenUsage is what a backend reports for one call. ReasoningTokens are
// reported separately from CompletionTokens and never overlap with them.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
}

// Add sums two usages field by field.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		ReasoningTokens:  u.ReasoningTokens + o.ReasoningTokens,
	}
}

// PromptRate picks the highest tier whose threshold is <= promptTokens, else the base rate.
func (c Cost) PromptRate(promptTokens int) decimal.Decimal {
	rate := c.Prompt
	for _, tier := range c.PromptTiers {
		if tier.Threshold > promptTokens {
			break
		}
		rate = tier.Rate
	}
	return rate
}

// Calculate prices a usage: prompt at the tiered rate, completion and reasoning
// tokens at the completion rate, plus the flat request fee.
func (c Cost) Calculate(u TokenUsage) decimal.Decimal {
	prompt := c.PromptRate(u.PromptTokens).Mul(decimal.NewFromInt(int64(u.PromptTokens)))
	completion := c.Completion.Mul(decimal.NewFromInt(int64(u.CompletionTokens + u.ReasoningTokens)))
	return prompt.Add(completion).Add(c.Request)
}

// Breakdown splits a cost into its prompt and output shares, as stored in usage logs.
func (c Cost) Breakdown(u TokenUsage) (input, output decimal.Decimal) {
	input = c.PromptRate(u.PromptTokens).Mul(decimal.NewFromInt(int64(u.PromptTokens)))
	output = c.Completion.Mul(decimal.NewFromInt(int64(u.CompletionTokens + u.ReasoningTokens)))
	return input, output
}
