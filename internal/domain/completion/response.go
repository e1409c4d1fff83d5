package completion

import (
	"github.com/shopspring/decimal"

	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
)

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonError         FinishReason = "error"
)

const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
)

// Message is the assistant output of one choice.
type Message struct {
	Role      conversation.Role       `json:"role"`
	Content   string                  `json:"content"`
	ToolCalls []conversation.ToolCall `json:"tool_calls,omitempty"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// ChatCompletion is the unified one-shot response.
type ChatCompletion struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []Choice          `json:"choices"`
	Usage   *model.TokenUsage `json:"usage,omitempty"`
	Cost    decimal.Decimal   `json:"cost"`
}

// Content returns the first choice's text, or "" when there are no choices.
func (c *ChatCompletion) Content() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

// ToolCallDelta is a fragment of a tool call. Index groups fragments of the same call.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Delta represents incremental message content in streaming.
type Delta struct {
	Role      conversation.Role `json:"role,omitempty"`
	Content   string            `json:"content,omitempty"`
	ToolCalls []ToolCallDelta   `json:"tool_calls,omitempty"`
}

// ChunkChoice represents a streaming choice.
type ChunkChoice struct {
	Index        int          `json:"index"`
	Delta        Delta        `json:"delta"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// Chunk is one streamed event. Usage is only set on the terminal chunk.
type Chunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []ChunkChoice     `json:"choices"`
	Usage   *model.TokenUsage `json:"usage,omitempty"`
}

// IsTerminal reports whether the chunk carries final usage.
func (c Chunk) IsTerminal() bool {
	return c.Usage != nil
}
