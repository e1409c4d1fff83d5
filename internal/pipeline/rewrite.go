package pipeline

import (
	"strings"

	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
)

// withRole returns a message turn carrying a new role. Other variants have fixed roles.
func withRole(t conversation.Turn, role conversation.Role) conversation.Turn {
	switch v := t.(type) {
	case conversation.Basic:
		v.Role = role
		return v
	case conversation.MultiModal:
		v.Role = role
		return v
	}
	return t
}

func isMessage(t conversation.Turn) bool {
	switch t.(type) {
	case conversation.Basic, conversation.MultiModal:
		return true
	}
	return false
}

func rewriteSystemRole(caps model.Capabilities, turns []conversation.Turn) ([]conversation.Turn, bool, error) {
	if caps.SupportsSystem {
		return turns, false, nil
	}
	changed := false
	for i, t := range turns {
		if t.TurnRole() == conversation.RoleSystem {
			turns[i] = withRole(t, conversation.RoleUser)
			changed = true
		}
	}
	return turns, changed, nil
}

func consolidateSystem(caps model.Capabilities, turns []conversation.Turn) ([]conversation.Turn, bool, error) {
	if caps.SupportsMultipleSystem {
		return turns, false, nil
	}
	seen := false
	changed := false
	for i, t := range turns {
		if t.TurnRole() != conversation.RoleSystem {
			continue
		}
		if !seen {
			seen = true
			continue
		}
		turns[i] = withRole(t, conversation.RoleUser)
		changed = true
	}
	return turns, changed, nil
}

// mergeRepeatingRoles collapses each maximal run of same-role message turns.
// Tool and function turns are never merged and end any run.
func mergeRepeatingRoles(caps model.Capabilities, turns []conversation.Turn) ([]conversation.Turn, bool, error) {
	if caps.SupportsRepeatingRoles {
		return turns, false, nil
	}

	out := make([]conversation.Turn, 0, len(turns))
	changed := false
	for i := 0; i < len(turns); {
		if !isMessage(turns[i]) {
			out = append(out, turns[i])
			i++
			continue
		}
		role := turns[i].TurnRole()
		j := i + 1
		for j < len(turns) && isMessage(turns[j]) && turns[j].TurnRole() == role {
			j++
		}
		if j-i == 1 {
			out = append(out, turns[i])
		} else {
			out = append(out, mergeRun(role, turns[i:j]))
			changed = true
		}
		i = j
	}
	return out, changed, nil
}

func mergeRun(role conversation.Role, run []conversation.Turn) conversation.Turn {
	multimodal := false
	for _, t := range run {
		if _, ok := t.(conversation.MultiModal); ok {
			multimodal = true
			break
		}
	}

	if !multimodal {
		texts := make([]string, len(run))
		for i, t := range run {
			texts[i] = t.(conversation.Basic).Content
		}
		return conversation.Basic{Role: role, Content: strings.Join(texts, "\n")}
	}

	parts := make([]conversation.Part, 0, len(run))
	for _, t := range run {
		switch v := t.(type) {
		case conversation.Basic:
			parts = append(parts, conversation.TextPart{Text: v.Content})
		case conversation.MultiModal:
			parts = append(parts, v.Parts...)
		}
	}
	return conversation.MultiModal{Role: role, Parts: parts}
}

// rewriteContentShape flattens text-only multimodal turns and rejects images
// for models without vision.
func rewriteContentShape(caps model.Capabilities, turns []conversation.Turn) ([]conversation.Turn, bool, error) {
	changed := false
	for i, t := range turns {
		mm, ok := t.(conversation.MultiModal)
		if !ok {
			continue
		}
		if mm.HasImage() {
			if !caps.SupportsVision {
				return nil, false, unsupported(FeatureVision)
			}
			continue
		}
		if !caps.SupportsJSONContent {
			turns[i] = conversation.Basic{Role: mm.Role, Content: mm.Text()}
			changed = true
		}
	}
	return turns, changed, nil
}

// substituteEmptyContent fills empty text payloads with EmptyContent. Tool
// invocations keep an empty content since their calls are the payload.
func substituteEmptyContent(caps model.Capabilities, turns []conversation.Turn) ([]conversation.Turn, bool, error) {
	if caps.SupportsEmptyContent {
		return turns, false, nil
	}
	changed := false
	for i, t := range turns {
		switch v := t.(type) {
		case conversation.Basic:
			if v.Content == "" {
				v.Content = EmptyContent
				turns[i] = v
				changed = true
			}
		case conversation.MultiModal:
			for k, p := range v.Parts {
				if tp, ok := p.(conversation.TextPart); ok && tp.Text == "" {
					v.Parts[k] = conversation.TextPart{Text: EmptyContent}
					changed = true
				}
			}
			if len(v.Parts) == 0 {
				v.Parts = []conversation.Part{conversation.TextPart{Text: EmptyContent}}
				changed = true
			}
			turns[i] = v
		case conversation.ToolResult:
			if v.Content == "" {
				v.Content = EmptyContent
				turns[i] = v
				changed = true
			}
		case conversation.FunctionResult:
			if v.Content == "" {
				v.Content = EmptyContent
				turns[i] = v
				changed = true
			}
		}
	}
	return turns, changed, nil
}

func padEdgeRoles(caps model.Capabilities, turns []conversation.Turn) ([]conversation.Turn, bool, error) {
	if len(turns) == 0 {
		return turns, false, nil
	}

	pad := ""
	if !caps.SupportsEmptyContent {
		pad = EmptyContent
	}

	changed := false
	if !caps.SupportsFirstAssistant && turns[0].TurnRole() == conversation.RoleAssistant {
		turns = append([]conversation.Turn{conversation.User(pad)}, turns...)
		changed = true
	}
	if !caps.SupportsLastAssistant && turns[len(turns)-1].TurnRole() == conversation.RoleAssistant {
		turns = append(turns, conversation.User(pad))
		changed = true
	}
	return turns, changed, nil
}
