package registry

import (
	_ "embed"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"switchboard/pkg/errors"
)

//go:embed vendor_mappings.toml
var vendorMappingsTOML string

type vendorPattern struct {
	re     *regexp.Regexp
	vendor string
}

// VendorMappings derives a vendor name from a model id.
type VendorMappings struct {
	patterns         []vendorPattern
	providerDefaults map[string]string
}

type vendorMappingsFile struct {
	Patterns []struct {
		Pattern string `toml:"pattern"`
		Vendor  string `toml:"vendor"`
	} `toml:"patterns"`
	ProviderDefaults map[string]string `toml:"provider_defaults"`
}

// ParseVendorMappings decodes and compiles a vendor mapping document.
func ParseVendorMappings(doc string) (*VendorMappings, error) {
	var file vendorMappingsFile
	if _, err := toml.Decode(doc, &file); err != nil {
		return nil, errors.Wrap(err, "decode vendor mappings")
	}

	vm := &VendorMappings{providerDefaults: file.ProviderDefaults}
	for _, p := range file.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "compile vendor pattern %q", p.Pattern)
		}
		vm.patterns = append(vm.patterns, vendorPattern{re: re, vendor: p.Vendor})
	}
	if vm.providerDefaults == nil {
		vm.providerDefaults = map[string]string{}
	}
	return vm, nil
}

// LoadVendorMappings decodes the embedded vendor mappings.
func LoadVendorMappings() (*VendorMappings, error) {
	return ParseVendorMappings(vendorMappingsTOML)
}

// Vendor returns the first matching pattern's vendor, else the provider's
// default vendor, else the provider id itself.
func (v *VendorMappings) Vendor(modelID, providerID string) string {
	id := strings.ToLower(modelID)
	for _, p := range v.patterns {
		if p.re.MatchString(id) {
			return p.vendor
		}
	}
	if vendor, ok := v.providerDefaults[providerID]; ok {
		return vendor
	}
	return providerID
}

// IsChinese flags models served by or built at Chinese vendors.
func IsChinese(modelID, providerID string) bool {
	return strings.Contains(providerID, "china") ||
		strings.Contains(providerID, "alibaba") ||
		strings.Contains(providerID, "moonshot") ||
		strings.Contains(modelID, "qwen")
}

// IsGDPRCompliant lists providers with an EU data processing agreement.
func IsGDPRCompliant(providerID string) bool {
	switch providerID {
	case "openai", "azure", "anthropic":
		return true
	}
	return false
}
