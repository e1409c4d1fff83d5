package model

import (
	"strings"

	"switchboard/pkg/errors"
)

// Properties are descriptive attributes used for filtering and routing policy.
type Properties struct {
	OpenSource    bool `json:"open_source"`
	Chinese       bool `json:"chinese"`
	GDPRCompliant bool `json:"gdpr_compliant"`
	NSFW          bool `json:"nsfw"`
}

// Model is the immutable description of one target backend model.
type Model struct {
	Name             string       `json:"name"`
	Vendor           string       `json:"vendor"`
	Provider         string       `json:"provider"`
	Cost             Cost         `json:"cost"`
	ContextLength    int          `json:"context_length"`
	CompletionLength int          `json:"completion_length"`
	Capabilities     Capabilities `json:"capabilities"`
	Properties       Properties   `json:"properties"`
	KnowledgeCutoff  string       `json:"knowledge_cutoff,omitempty"`
	ReleaseDate      string       `json:"release_date,omitempty"`
	LastUpdated      string       `json:"last_updated,omitempty"`
	// UpstreamID is the id sent to the backend when it differs from Name,
	// e.g. "meta-llama/llama-3.1-8b" on aggregators.
	UpstreamID string `json:"upstream_id,omitempty"`
}

// APIName is the model id to put on the wire.
func (m Model) APIName() string {
	if m.UpstreamID != "" {
		return m.UpstreamID
	}
	return m.Name
}

// Path returns the canonical provider/vendor/name identifier.
func (m Model) Path() string {
	return m.Provider + "/" + m.Vendor + "/" + m.Name
}

// ModelPath is a parsed model path. Provider and Vendor are empty for the bare form.
type ModelPath struct {
	Provider string
	Vendor   string
	Name     string
}

// IsBare reports whether the path was given as a model name alone.
func (p ModelPath) IsBare() bool {
	return p.Provider == "" && p.Vendor == ""
}

func (p ModelPath) String() string {
	if p.IsBare() {
		return p.Name
	}
	return p.Provider + "/" + p.Vendor + "/" + p.Name
}

// ParsePath accepts provider/vendor/name (three non-empty segments) or a bare name.
func ParsePath(path string) (ModelPath, error) {
	if path == "" {
		return ModelPath{}, errors.NewValidationError("path", "empty model path", path)
	}

	segs := strings.Split(path, "/")
	switch len(segs) {
	case 1:
		return ModelPath{Name: segs[0]}, nil
	case 3:
		for _, s := range segs {
			if s == "" {
				return ModelPath{}, errors.NewValidationError("path", "empty path segment", path)
			}
		}
		return ModelPath{Provider: segs[0], Vendor: segs[1], Name: segs[2]}, nil
	default:
		return ModelPath{}, errors.NewValidationError("path", "expected provider/vendor/model or a bare model name", path)
	}
}
