package completion

// ExecuteOptions are the request knobs a caller may set. Pointer fields distinguish
// "not requested" from a zero value.
type ExecuteOptions struct {
	Temperature    *float64         `json:"temperature,omitempty"`
	MaxTokens      *int             `json:"max_tokens,omitempty"`
	TopP           *float64         `json:"top_p,omitempty"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ToolChoice     string           `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
	N              *int             `json:"n,omitempty"`
	User           string           `json:"user,omitempty"`
}

// Tool choice values understood by every adapter.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// Clone copies the options so that pointer fields are not shared.
func (o ExecuteOptions) Clone() ExecuteOptions {
	out := o
	if o.Temperature != nil {
		v := *o.Temperature
		out.Temperature = &v
	}
	if o.MaxTokens != nil {
		v := *o.MaxTokens
		out.MaxTokens = &v
	}
	if o.TopP != nil {
		v := *o.TopP
		out.TopP = &v
	}
	if o.N != nil {
		v := *o.N
		out.N = &v
	}
	if o.ResponseFormat != nil {
		v := *o.ResponseFormat
		if v.JSONSchema != nil {
			js := *v.JSONSchema
			v.JSONSchema = &js
		}
		out.ResponseFormat = &v
	}
	if o.Tools != nil {
		out.Tools = make([]ToolDefinition, len(o.Tools))
		copy(out.Tools, o.Tools)
	}
	return out
}

// ToolDefinition describes a tool/function that the model can call.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"` // JSON schema
}

// ResponseFormat selects between free text, a JSON object and schema-constrained JSON.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names and describes the shape a json_schema response must follow.
type JSONSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
	Strict      *bool                  `json:"strict,omitempty"`
}

const (
	ResponseFormatText       = "text"
	ResponseFormatJSON       = "json_object"
	ResponseFormatJSONSchema = "json_schema"
)

// JSON requests a JSON object response.
func JSON() *ResponseFormat { return &ResponseFormat{Type: ResponseFormatJSON} }

// Schema requests JSON output constrained by schema.
func Schema(name string, schema map[string]interface{}) *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONSchema, JSONSchema: &JSONSchema{Name: name, Schema: schema}}
}

// Text requests plain text.
func Text() *ResponseFormat { return &ResponseFormat{Type: ResponseFormatText} }

// IsJSON reports whether f asks for JSON output, with or without a schema.
func (f *ResponseFormat) IsJSON() bool {
	return f != nil && (f.Type == ResponseFormatJSON || f.Type == ResponseFormatJSONSchema)
}

// HasSchema reports whether f carries a schema the backend must enforce.
func (f *ResponseFormat) HasSchema() bool {
	return f != nil && f.Type == ResponseFormatJSONSchema && f.JSONSchema != nil
}

// ValidToolChoice reports whether choice is empty or one of the values every adapter maps.
func ValidToolChoice(choice string) bool {
	switch choice {
	case "", ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return true
	}
	return false
}

// Float64, Int are helpers for building options inline.
func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }
