package conversation

// Conversation is an ordered chat history.
type Conversation struct {
	Turns []Turn
}

// New builds a conversation from turns in order.
func New(turns ...Turn) Conversation {
	c := Conversation{Turns: make([]Turn, 0, len(turns))}
	c.Turns = append(c.Turns, turns...)
	return c
}

// Append returns a copy of c with turns added at the end.
func (c Conversation) Append(turns ...Turn) Conversation {
	out := c.Clone()
	out.Turns = append(out.Turns, turns...)
	return out
}

// Len is the number of turns.
func (c Conversation) Len() int {
	return len(c.Turns)
}

// Clone deep-copies the conversation, including part and call slices.
func (c Conversation) Clone() Conversation {
	out := Conversation{Turns: make([]Turn, len(c.Turns))}
	for i, t := range c.Turns {
		out.Turns[i] = cloneTurn(t)
	}
	return out
}

// Roles lists the role of every turn in order.
func (c Conversation) Roles() []Role {
	roles := make([]Role, len(c.Turns))
	for i, t := range c.Turns {
		roles[i] = t.TurnRole()
	}
	return roles
}

// User, Assistant and System are shorthands for Basic turns.
func User(content string) Basic      { return Basic{Role: RoleUser, Content: content} }
func Assistant(content string) Basic { return Basic{Role: RoleAssistant, Content: content} }
func System(content string) Basic    { return Basic{Role: RoleSystem, Content: content} }
