package catalog

import (
	"encoding/json"
	"sort"
)

// Snapshot is a parsed models.dev style catalog keyed by provider id.
type Snapshot map[string]Provider

// Provider is one catalog provider and its models keyed by model id.
type Provider struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Env    []string             `json:"env,omitempty"`
	NPM    string               `json:"npm,omitempty"`
	API    string               `json:"api,omitempty"`
	Doc    string               `json:"doc,omitempty"`
	Models map[string]ModelInfo `json:"models"`
}

// ModelInfo carries the hints a catalog reports for a model. Pointer fields are
// nil when the catalog is silent, so the provider default applies.
type ModelInfo struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Attachment  *bool       `json:"attachment,omitempty"`
	Reasoning   *bool       `json:"reasoning,omitempty"`
	Temperature *bool       `json:"temperature,omitempty"`
	ToolCall    *bool       `json:"tool_call,omitempty"`
	Knowledge   string      `json:"knowledge,omitempty"`
	ReleaseDate string      `json:"release_date,omitempty"`
	LastUpdated string      `json:"last_updated,omitempty"`
	Modalities  *Modalities `json:"modalities,omitempty"`
	OpenWeights bool        `json:"open_weights"`
	Cost        *CostInfo   `json:"cost,omitempty"`
	Limit       Limit       `json:"limit"`
}

// Modalities lists accepted input and produced output kinds ("text", "image", ...).
type Modalities struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

// AcceptsImages reports whether "image" is among the input modalities.
func (m *Modalities) AcceptsImages() bool {
	if m == nil {
		return false
	}
	for _, in := range m.Input {
		if in == "image" {
			return true
		}
	}
	return false
}

// CostInfo is USD per million tokens.
type CostInfo struct {
	Input      float64  `json:"input"`
	Output     float64  `json:"output"`
	CacheRead  *float64 `json:"cache_read,omitempty"`
	CacheWrite *float64 `json:"cache_write,omitempty"`
}

// Limit holds token limits; zero means unknown.
type Limit struct {
	Context int `json:"context"`
	Output  int `json:"output"`
}

// Parse decodes a catalog document.
func Parse(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ProviderIDs returns provider ids in ascending order.
func (s Snapshot) ProviderIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ModelIDs returns the provider's model ids in ascending order.
func (p Provider) ModelIDs() []string {
	ids := make([]string, 0, len(p.Models))
	for id := range p.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ModelCount is the number of models across providers.
func (s Snapshot) ModelCount() int {
	n := 0
	for _, p := range s {
		n += len(p.Models)
	}
	return n
}
