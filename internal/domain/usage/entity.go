package usage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"switchboard/internal/domain/model"
)

// Call modes.
const (
	ModeInvoke = "invoke"
	ModeStream = "stream"
)

// Record is one accounted completion call.
type Record struct {
	Timestamp time.Time `ch:"timestamp" json:"timestamp"`
	EventID   string    `ch:"event_id" json:"event_id"`
	RequestID string    `ch:"request_id" json:"request_id,omitempty"`
	User      string    `ch:"user" json:"user,omitempty"`

	// Model details
	Provider string `ch:"provider" json:"provider"`
	Vendor   string `ch:"vendor" json:"vendor"`
	ModelID  string `ch:"model_id" json:"model_id"`
	Mode     string `ch:"mode" json:"mode"`

	// Token usage
	PromptTokens     uint32 `ch:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens uint32 `ch:"completion_tokens" json:"completion_tokens"`
	ReasoningTokens  uint32 `ch:"reasoning_tokens" json:"reasoning_tokens"`
	TotalTokens      uint32 `ch:"total_tokens" json:"total_tokens"`

	// Cost
	InputCostUSD  decimal.Decimal `ch:"input_cost_usd" json:"input_cost_usd"`
	OutputCostUSD decimal.Decimal `ch:"output_cost_usd" json:"output_cost_usd"`
	TotalCostUSD  decimal.Decimal `ch:"total_cost_usd" json:"total_cost_usd"`

	// Request metadata
	ToolCallsCount uint16 `ch:"tool_calls_count" json:"tool_calls_count"`
	FinishReason   string `ch:"finish_reason" json:"finish_reason,omitempty"`

	// Performance
	LatencyMs uint32 `ch:"latency_ms" json:"latency_ms"`
}

// NewRecord prices u against m and stamps a fresh event id.
func NewRecord(m model.Model, mode string, u model.TokenUsage, latency time.Duration) *Record {
	input, output := m.Cost.Breakdown(u)
	return &Record{
		Timestamp:        time.Now().UTC(),
		EventID:          uuid.NewString(),
		Provider:         m.Provider,
		Vendor:           m.Vendor,
		ModelID:          m.Name,
		Mode:             mode,
		PromptTokens:     uint32(u.PromptTokens),
		CompletionTokens: uint32(u.CompletionTokens),
		ReasoningTokens:  uint32(u.ReasoningTokens),
		TotalTokens:      uint32(u.TotalTokens),
		InputCostUSD:     input,
		OutputCostUSD:    output,
		TotalCostUSD:     m.Cost.Calculate(u),
		LatencyMs:        uint32(latency.Milliseconds()),
	}
}

// Path is the provider/vendor/model identifier of the record.
func (r *Record) Path() string {
	return r.Provider + "/" + r.Vendor + "/" + r.ModelID
}

// Usage converts the token counters back into a TokenUsage.
func (r *Record) Usage() model.TokenUsage {
	return model.TokenUsage{
		PromptTokens:     int(r.PromptTokens),
		CompletionTokens: int(r.CompletionTokens),
		ReasoningTokens:  int(r.ReasoningTokens),
		TotalTokens:      int(r.TotalTokens),
	}
}
