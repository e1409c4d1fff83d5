package conversation

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool, RoleFunction:
		return true
	}
	return false
}

// IsMessageRole reports whether r may carry a Basic or MultiModal turn.
func (r Role) IsMessageRole() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Turn is one message of a conversation. The set of implementations is closed:
// Basic, MultiModal, ToolInvocation, ToolResult, FunctionInvocation, FunctionResult.
type Turn interface {
	TurnRole() Role
	isTurn()
}

// Basic is a plain text turn.
type Basic struct {
	Role    Role
	Content string
}

func (t Basic) TurnRole() Role { return t.Role }
func (Basic) isTurn()          {}

// Part is one element of a multimodal turn: a TextPart or an ImagePart.
type Part interface {
	isPart()
}

// TextPart carries text inside a multimodal turn.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ImageDetail is the resolution hint some backends accept for images.
type ImageDetail string

const (
	ImageDetailAuto ImageDetail = "auto"
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
)

// ImagePart references an image by URL or data URI.
type ImagePart struct {
	URL    string
	Detail ImageDetail
}

func (ImagePart) isPart() {}

// MultiModal is an ordered sequence of text and image parts.
type MultiModal struct {
	Role  Role
	Parts []Part
}

func (t MultiModal) TurnRole() Role { return t.Role }
func (MultiModal) isTurn()          {}

// HasImage reports whether any part is an image.
func (t MultiModal) HasImage() bool {
	for _, p := range t.Parts {
		if _, ok := p.(ImagePart); ok {
			return true
		}
	}
	return false
}

// Text joins the text parts with newlines, skipping images.
func (t MultiModal) Text() string {
	out := ""
	first := true
	for _, p := range t.Parts {
		tp, ok := p.(TextPart)
		if !ok {
			continue
		}
		if !first {
			out += "\n"
		}
		out += tp.Text
		first = false
	}
	return out
}

// FunctionCall is the name and JSON-encoded arguments of a call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one tool invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ToolCallTypeFunction is the only tool type backends currently accept.
const ToolCallTypeFunction = "function"

// ToolInvocation is an assistant turn requesting one or more tool calls.
type ToolInvocation struct {
	Content string
	Calls   []ToolCall
}

func (ToolInvocation) TurnRole() Role { return RoleAssistant }
func (ToolInvocation) isTurn()        {}

// ToolResult answers the tool call with the matching CallID.
type ToolResult struct {
	CallID  string
	Content string
}

func (ToolResult) TurnRole() Role { return RoleTool }
func (ToolResult) isTurn()        {}

// FunctionInvocation is the legacy single function call form.
type FunctionInvocation struct {
	Name      string
	Arguments string
}

func (FunctionInvocation) TurnRole() Role { return RoleAssistant }
func (FunctionInvocation) isTurn()        {}

// FunctionResult answers a legacy function call.
type FunctionResult struct {
	Name    string
	Content string
}

func (FunctionResult) TurnRole() Role { return RoleFunction }
func (FunctionResult) isTurn()        {}

// Text returns the plain text payload of a turn. Multimodal turns are flattened.
func Text(t Turn) string {
	switch v := t.(type) {
	case Basic:
		return v.Content
	case MultiModal:
		return v.Text()
	case ToolInvocation:
		return v.Content
	case ToolResult:
		return v.Content
	case FunctionInvocation:
		return v.Arguments
	case FunctionResult:
		return v.Content
	}
	return ""
}

func cloneTurn(t Turn) Turn {
	switch v := t.(type) {
	case MultiModal:
		parts := make([]Part, len(v.Parts))
		copy(parts, v.Parts)
		return MultiModal{Role: v.Role, Parts: parts}
	case ToolInvocation:
		calls := make([]ToolCall, len(v.Calls))
		copy(calls, v.Calls)
		return ToolInvocation{Content: v.Content, Calls: calls}
	}
	// remaining variants hold only strings
	return t
}
