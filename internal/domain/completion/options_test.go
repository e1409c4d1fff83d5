package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneDoesNotSharePointers(t *testing.T) {
	orig := ExecuteOptions{
		Temperature:    Float64(0.5),
		MaxTokens:      Int(100),
		N:              Int(2),
		ResponseFormat: JSON(),
		Tools:          []ToolDefinition{{Type: "function", Function: FunctionDefinition{Name: "f"}}},
	}

	cp := orig.Clone()
	*cp.Temperature = 1
	*cp.MaxTokens = 1
	cp.ResponseFormat.Type = ResponseFormatText
	cp.Tools[0].Function.Name = "g"

	assert.Equal(t, 0.5, *orig.Temperature)
	assert.Equal(t, 100, *orig.MaxTokens)
	assert.True(t, orig.ResponseFormat.IsJSON())
	assert.Equal(t, "f", orig.Tools[0].Function.Name)
}

func TestResponseFormatIsJSON(t *testing.T) {
	var nilFormat *ResponseFormat
	assert.False(t, nilFormat.IsJSON())
	assert.False(t, Text().IsJSON())
	assert.True(t, JSON().IsJSON())
	assert.True(t, Schema("s", nil).IsJSON())
	assert.True(t, Schema("s", nil).HasSchema())
	assert.False(t, JSON().HasSchema())
}

func TestChunkIsTerminal(t *testing.T) {
	assert.False(t, Chunk{}.IsTerminal())
}
