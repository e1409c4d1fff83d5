package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnRoles(t *testing.T) {
	assert.Equal(t, RoleAssistant, ToolInvocation{}.TurnRole())
	assert.Equal(t, RoleTool, ToolResult{}.TurnRole())
	assert.Equal(t, RoleAssistant, FunctionInvocation{}.TurnRole())
	assert.Equal(t, RoleFunction, FunctionResult{}.TurnRole())
	assert.Equal(t, RoleSystem, System("x").TurnRole())
}

func TestCloneIsDeep(t *testing.T) {
	orig := New(
		MultiModal{Role: RoleUser, Parts: []Part{TextPart{Text: "look"}}},
		ToolInvocation{Calls: []ToolCall{{ID: "c1", Type: ToolCallTypeFunction}}},
	)

	cp := orig.Clone()
	mm := cp.Turns[0].(MultiModal)
	mm.Parts[0] = TextPart{Text: "changed"}
	ti := cp.Turns[1].(ToolInvocation)
	ti.Calls[0].ID = "c2"

	assert.Equal(t, "look", orig.Turns[0].(MultiModal).Parts[0].(TextPart).Text)
	assert.Equal(t, "c1", orig.Turns[1].(ToolInvocation).Calls[0].ID)
}

func TestAppendDoesNotAlias(t *testing.T) {
	base := New(User("a"))
	next := base.Append(Assistant("b"))

	require.Equal(t, 1, base.Len())
	require.Equal(t, 2, next.Len())
	assert.Equal(t, []Role{RoleUser, RoleAssistant}, next.Roles())
}

func TestText(t *testing.T) {
	mm := MultiModal{Role: RoleUser, Parts: []Part{TextPart{Text: "a"}, ImagePart{URL: "u"}, TextPart{Text: "b"}}}
	assert.Equal(t, "a\nb", Text(mm))
	assert.Equal(t, "{}", Text(FunctionInvocation{Name: "f", Arguments: "{}"}))
	assert.Equal(t, "res", Text(ToolResult{CallID: "1", Content: "res"}))
}
