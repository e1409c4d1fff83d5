package registry

import (
	_ "embed"

	"github.com/BurntSushi/toml"

	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

//go:embed provider_defaults.toml
var providerDefaultsTOML string

// ProviderDefaults is the per-provider record merged under catalog data.
type ProviderDefaults struct {
	Adapter      string                    `toml:"adapter"`
	BaseURL      string                    `toml:"base_url"`
	Capabilities model.CapabilityOverrides `toml:"capabilities"`
}

// DefaultsTable maps provider id to its defaults.
type DefaultsTable map[string]ProviderDefaults

// ParseDefaults decodes a provider defaults document.
func ParseDefaults(doc string) (DefaultsTable, error) {
	table := DefaultsTable{}
	if _, err := toml.Decode(doc, &table); err != nil {
		return nil, errors.Wrap(err, "decode provider defaults")
	}
	return table, nil
}

// LoadDefaults decodes the embedded provider defaults.
func LoadDefaults() (DefaultsTable, error) {
	return ParseDefaults(providerDefaultsTOML)
}

// For returns the defaults of a provider. Unknown providers use the
// OpenAI-compatible adapter with no overrides.
func (t DefaultsTable) For(provider string) ProviderDefaults {
	if d, ok := t[provider]; ok {
		if d.Adapter == "" {
			d.Adapter = AdapterOpenAI
		}
		return d
	}
	return ProviderDefaults{Adapter: AdapterOpenAI}
}

// Capabilities is the total record for a provider: built-in defaults with the
// provider's overrides applied.
func (t DefaultsTable) Capabilities(provider string) model.Capabilities {
	return t.For(provider).Capabilities.Apply(model.DefaultCapabilities())
}

// BaseURL returns the configured endpoint of a provider, or "".
func (t DefaultsTable) BaseURL(provider string) string {
	return t.For(provider).BaseURL
}

// Adapter kinds referenced by provider_defaults.toml.
const (
	AdapterOpenAI    = "openai"
	AdapterAnthropic = "anthropic"
	AdapterGemini    = "gemini"
)
