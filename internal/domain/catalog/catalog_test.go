package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "openai": {
    "id": "openai",
    "name": "OpenAI",
    "env": ["OPENAI_API_KEY"],
    "models": {
      "gpt-4o": {
        "id": "gpt-4o", "name": "GPT-4o",
        "tool_call": true, "temperature": true,
        "modalities": {"input": ["text", "image"], "output": ["text"]},
        "cost": {"input": 2.5, "output": 10},
        "limit": {"context": 128000, "output": 16384}
      },
      "o1": {
        "id": "o1", "name": "o1",
        "limit": {"context": 200000, "output": 100000}
      }
    }
  },
  "anthropic": {"id": "anthropic", "name": "Anthropic", "models": {}}
}`

func TestParse(t *testing.T) {
	snap, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"anthropic", "openai"}, snap.ProviderIDs())
	assert.Equal(t, 2, snap.ModelCount())

	openai := snap["openai"]
	assert.Equal(t, []string{"gpt-4o", "o1"}, openai.ModelIDs())

	gpt := openai.Models["gpt-4o"]
	require.NotNil(t, gpt.ToolCall)
	assert.True(t, *gpt.ToolCall)
	assert.True(t, gpt.Modalities.AcceptsImages())
	assert.Equal(t, 2.5, gpt.Cost.Input)

	o1 := openai.Models["o1"]
	assert.Nil(t, o1.ToolCall, "absent hints stay nil")
	assert.Nil(t, o1.Cost)
	assert.False(t, o1.Modalities.AcceptsImages())
	assert.Equal(t, 100000, o1.Limit.Output)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)
}
