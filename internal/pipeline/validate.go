package pipeline

import (
	"fmt"

	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

func invalid(index int, format string, args ...interface{}) error {
	return &errors.InvalidConversationError{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// validateStructure rejects conversations no model could accept.
func validateStructure(conv conversation.Conversation) error {
	if conv.Len() == 0 {
		return invalid(-1, "conversation is empty")
	}

	calls := make(map[string]struct{})
	for i, t := range conv.Turns {
		switch v := t.(type) {
		case nil:
			return invalid(i, "nil turn")
		case conversation.Basic:
			if !v.Role.IsMessageRole() {
				return invalid(i, "role %q cannot carry a message", v.Role)
			}
		case conversation.MultiModal:
			if !v.Role.IsMessageRole() {
				return invalid(i, "role %q cannot carry a message", v.Role)
			}
			for k, p := range v.Parts {
				if p == nil {
					return invalid(i, "part %d is nil", k)
				}
				if img, ok := p.(conversation.ImagePart); ok && img.URL == "" {
					return invalid(i, "image part %d has no url", k)
				}
			}
		case conversation.ToolInvocation:
			if len(v.Calls) == 0 {
				return invalid(i, "tool invocation without calls")
			}
			for _, c := range v.Calls {
				if c.ID == "" {
					return invalid(i, "tool call without id")
				}
				calls[c.ID] = struct{}{}
			}
		case conversation.ToolResult:
			if _, ok := calls[v.CallID]; !ok {
				return invalid(i, "tool result %q has no matching prior tool call", v.CallID)
			}
		case conversation.FunctionInvocation:
			if v.Name == "" {
				return invalid(i, "function invocation without name")
			}
		case conversation.FunctionResult:
			if v.Name == "" {
				return invalid(i, "function result without name")
			}
		}
	}
	return nil
}

func validateOnlyRole(caps model.Capabilities, turns []conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	role := turns[0].TurnRole()
	for _, t := range turns[1:] {
		if t.TurnRole() != role {
			return nil
		}
	}

	switch {
	case role == conversation.RoleSystem && !caps.SupportsOnlySystem:
		return unsupported(FeatureOnlySystem)
	case role == conversation.RoleAssistant && !caps.SupportsOnlyAssistant:
		return unsupported(FeatureOnlyAssistant)
	}
	return nil
}

// validateOptions checks requested options in a fixed order and clamps
// max_tokens to the completion limit. "required" tool choice is judged by the
// required flag alone.
func validateOptions(m model.Model, opts completion.ExecuteOptions) (completion.ExecuteOptions, bool, error) {
	caps := m.Capabilities
	out := opts.Clone()

	if err := validateOptionValues(out); err != nil {
		return completion.ExecuteOptions{}, false, err
	}

	if len(out.Tools) > 0 && !caps.SupportsTools {
		return completion.ExecuteOptions{}, false, unsupported(FeatureTools)
	}
	if out.ToolChoice != "" && out.ToolChoice != completion.ToolChoiceRequired && !caps.SupportsToolChoice {
		return completion.ExecuteOptions{}, false, unsupported(FeatureToolChoice)
	}
	if out.ToolChoice == completion.ToolChoiceRequired && !caps.SupportsToolChoiceRequired {
		return completion.ExecuteOptions{}, false, unsupported(FeatureToolChoiceRequired)
	}
	if out.Temperature != nil && !caps.SupportsTemperature {
		return completion.ExecuteOptions{}, false, unsupported(FeatureTemperature)
	}
	if out.N != nil && *out.N > 1 && !caps.SupportsN {
		return completion.ExecuteOptions{}, false, unsupported(FeatureN)
	}
	if out.ResponseFormat.IsJSON() && !caps.SupportsJSONOutput {
		return completion.ExecuteOptions{}, false, unsupported(FeatureJSONOutput)
	}
	if out.User != "" && !caps.SupportsUser {
		return completion.ExecuteOptions{}, false, unsupported(FeatureUser)
	}

	clamped := false
	if out.MaxTokens != nil && m.CompletionLength > 0 && *out.MaxTokens > m.CompletionLength {
		limit := m.CompletionLength
		out.MaxTokens = &limit
		clamped = true
	}
	return out, clamped, nil
}

// validateOptionValues rejects values no adapter can map, so nothing is
// dropped on the way to the backend.
func validateOptionValues(opts completion.ExecuteOptions) error {
	if !completion.ValidToolChoice(opts.ToolChoice) {
		return errors.NewValidationError("tool_choice", "expected auto, none or required", opts.ToolChoice)
	}

	rf := opts.ResponseFormat
	if rf == nil {
		return nil
	}
	switch rf.Type {
	case completion.ResponseFormatText, completion.ResponseFormatJSON:
	case completion.ResponseFormatJSONSchema:
		if rf.JSONSchema == nil || rf.JSONSchema.Name == "" {
			return errors.NewValidationError("response_format.json_schema", "json_schema requires a named schema", rf.Type)
		}
	default:
		return errors.NewValidationError("response_format.type", "expected text, json_object or json_schema", rf.Type)
	}
	return nil
}
