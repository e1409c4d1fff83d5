// Package pipeline rewrites a conversation and its request options so that a
// target model can accept them, or fails naming the first constraint it cannot meet.
//
// Normalize is pure: it works on a deep copy, never mutates its inputs and
// returns identical output for identical input.
package pipeline

import (
	"switchboard/internal/domain/completion"
	"switchboard/internal/domain/conversation"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

// EmptyContent replaces empty text for models that reject empty messages.
// It is two double-quote characters.
const EmptyContent = `""`

// Feature names reported in UnsupportedFeatureError.
const (
	FeatureVision             = "vision"
	FeatureOnlySystem         = "only_system"
	FeatureOnlyAssistant      = "only_assistant"
	FeatureTools              = "tools"
	FeatureToolChoice         = "tool_choice"
	FeatureToolChoiceRequired = "tool_choice_required"
	FeatureTemperature        = "temperature"
	FeatureN                  = "n"
	FeatureJSONOutput         = "json_output"
	FeatureUser               = "user"
	FeatureStreaming          = "streaming"
)

// Step names a rewrite that changed the conversation or options.
type Step string

const (
	StepRoleSupport       Step = "role_support"
	StepMultipleSystem    Step = "multiple_system"
	StepRepeatingRoles    Step = "repeating_roles"
	StepContentShape      Step = "content_shape"
	StepEmptyContent      Step = "empty_content"
	StepEdgePadding       Step = "edge_padding"
	StepMaxTokensClamping Step = "max_tokens_clamp"
)

// Result is a normalized conversation and the options that go with it.
type Result struct {
	Conversation conversation.Conversation
	Options      completion.ExecuteOptions
	// Applied lists the rewrites that changed something, in order.
	Applied []Step
}

type rewrite struct {
	step Step
	run  func(caps model.Capabilities, turns []conversation.Turn) ([]conversation.Turn, bool, error)
}

// Order matters: each rewrite relies on the postconditions of the ones before it.
var rewrites = []rewrite{
	{StepRoleSupport, rewriteSystemRole},
	{StepMultipleSystem, consolidateSystem},
	{StepRepeatingRoles, mergeRepeatingRoles},
	{StepContentShape, rewriteContentShape},
	{StepEmptyContent, substituteEmptyContent},
	{StepEdgePadding, padEdgeRoles},
}

// Normalize validates conv, applies every rewrite m requires, then checks the
// result and the options against m. On failure no partial result is returned.
func Normalize(m model.Model, conv conversation.Conversation, opts completion.ExecuteOptions) (Result, error) {
	if err := validateStructure(conv); err != nil {
		return Result{}, err
	}

	caps := m.Capabilities
	turns := conv.Clone().Turns
	var applied []Step

	for _, rw := range rewrites {
		next, changed, err := rw.run(caps, turns)
		if err != nil {
			return Result{}, withModel(err, m)
		}
		if changed {
			applied = append(applied, rw.step)
		}
		turns = next
	}

	if err := validateOnlyRole(caps, turns); err != nil {
		return Result{}, withModel(err, m)
	}

	normalized, clamped, err := validateOptions(m, opts)
	if err != nil {
		return Result{}, withModel(err, m)
	}
	if clamped {
		applied = append(applied, StepMaxTokensClamping)
	}

	return Result{
		Conversation: conversation.Conversation{Turns: turns},
		Options:      normalized,
		Applied:      applied,
	}, nil
}

// CheckStreaming fails when m cannot stream.
func CheckStreaming(m model.Model) error {
	if !m.Capabilities.SupportsStreaming {
		return &errors.UnsupportedFeatureError{Feature: FeatureStreaming, Model: m.Path()}
	}
	return nil
}

func unsupported(feature string) error {
	return &errors.UnsupportedFeatureError{Feature: feature}
}

func withModel(err error, m model.Model) error {
	var uf *errors.UnsupportedFeatureError
	if errors.As(err, &uf) && uf.Model == "" {
		uf.Model = m.Path()
	}
	return err
}
