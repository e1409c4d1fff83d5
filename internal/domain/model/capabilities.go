package model

// Capabilities lists what a target model accepts. A false flag means the
// normalization pipeline must rewrite around it or reject the request.
type Capabilities struct {
	SupportsUser               bool `json:"supports_user"`
	SupportsRepeatingRoles     bool `json:"supports_repeating_roles"`
	SupportsStreaming          bool `json:"supports_streaming"`
	SupportsVision             bool `json:"supports_vision"`
	SupportsTools              bool `json:"supports_tools"`
	SupportsN                  bool `json:"supports_n"`
	SupportsSystem             bool `json:"supports_system"`
	SupportsMultipleSystem     bool `json:"supports_multiple_system"`
	SupportsEmptyContent       bool `json:"supports_empty_content"`
	SupportsToolChoice         bool `json:"supports_tool_choice"`
	SupportsToolChoiceRequired bool `json:"supports_tool_choice_required"`
	SupportsJSONOutput         bool `json:"supports_json_output"`
	SupportsJSONContent        bool `json:"supports_json_content"`
	SupportsLastAssistant      bool `json:"supports_last_assistant"`
	SupportsFirstAssistant     bool `json:"supports_first_assistant"`
	SupportsTemperature        bool `json:"supports_temperature"`
	SupportsOnlySystem         bool `json:"supports_only_system"`
	SupportsOnlyAssistant      bool `json:"supports_only_assistant"`
}

// DefaultCapabilities is the total base record every provider's overrides are applied to.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		SupportsUser:               true,
		SupportsRepeatingRoles:     true,
		SupportsStreaming:          true,
		SupportsVision:             false,
		SupportsTools:              false,
		SupportsN:                  true,
		SupportsSystem:             true,
		SupportsMultipleSystem:     true,
		SupportsEmptyContent:       true,
		SupportsToolChoice:         false,
		SupportsToolChoiceRequired: false,
		SupportsJSONOutput:         true,
		SupportsJSONContent:        true,
		SupportsLastAssistant:      true,
		SupportsFirstAssistant:     true,
		SupportsTemperature:        true,
		SupportsOnlySystem:         true,
		SupportsOnlyAssistant:      true,
	}
}

// CapabilityOverrides is a partial record; nil fields leave the base untouched.
type CapabilityOverrides struct {
	SupportsUser               *bool `toml:"supports_user"`
	SupportsRepeatingRoles     *bool `toml:"supports_repeating_roles"`
	SupportsStreaming          *bool `toml:"supports_streaming"`
	SupportsVision             *bool `toml:"supports_vision"`
	SupportsTools              *bool `toml:"supports_tools"`
	SupportsN                  *bool `toml:"supports_n"`
	SupportsSystem             *bool `toml:"supports_system"`
	SupportsMultipleSystem     *bool `toml:"supports_multiple_system"`
	SupportsEmptyContent       *bool `toml:"supports_empty_content"`
	SupportsToolChoice         *bool `toml:"supports_tool_choice"`
	SupportsToolChoiceRequired *bool `toml:"supports_tool_choice_required"`
	SupportsJSONOutput         *bool `toml:"supports_json_output"`
	SupportsJSONContent        *bool `toml:"supports_json_content"`
	SupportsLastAssistant      *bool `toml:"supports_last_assistant"`
	SupportsFirstAssistant     *bool `toml:"supports_first_assistant"`
	SupportsTemperature        *bool `toml:"supports_temperature"`
	SupportsOnlySystem         *bool `toml:"supports_only_system"`
	SupportsOnlyAssistant      *bool `toml:"supports_only_assistant"`
}

// Apply returns base with every present override written over it.
func (o CapabilityOverrides) Apply(base Capabilities) Capabilities {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.SupportsUser, o.SupportsUser)
	set(&base.SupportsRepeatingRoles, o.SupportsRepeatingRoles)
	set(&base.SupportsStreaming, o.SupportsStreaming)
	set(&base.SupportsVision, o.SupportsVision)
	set(&base.SupportsTools, o.SupportsTools)
	set(&base.SupportsN, o.SupportsN)
	set(&base.SupportsSystem, o.SupportsSystem)
	set(&base.SupportsMultipleSystem, o.SupportsMultipleSystem)
	set(&base.SupportsEmptyContent, o.SupportsEmptyContent)
	set(&base.SupportsToolChoice, o.SupportsToolChoice)
	set(&base.SupportsToolChoiceRequired, o.SupportsToolChoiceRequired)
	set(&base.SupportsJSONOutput, o.SupportsJSONOutput)
	set(&base.SupportsJSONContent, o.SupportsJSONContent)
	set(&base.SupportsLastAssistant, o.SupportsLastAssistant)
	set(&base.SupportsFirstAssistant, o.SupportsFirstAssistant)
	set(&base.SupportsTemperature, o.SupportsTemperature)
	set(&base.SupportsOnlySystem, o.SupportsOnlySystem)
	set(&base.SupportsOnlyAssistant, o.SupportsOnlyAssistant)
	return base
}
