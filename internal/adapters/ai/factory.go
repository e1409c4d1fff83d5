package ai

import (
	"strings"

	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
)

// Adapter kinds, matching the "adapter" field of the provider defaults table.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
)

// BaseURLFunc returns the endpoint configured for a provider ("" for the SDK default).
type BaseURLFunc func(provider string) string

// AdapterRegistrar receives constructors per adapter kind. The registry implements it.
type AdapterRegistrar interface {
	RegisterAdapter(kind string, ctor Constructor)
}

// Factory builds concrete adapters sharing one client pool and one set of
// per-provider rate limiters.
type Factory struct {
	clients  *ClientCache
	limiters *RateLimiterFactory
	baseURL  BaseURLFunc
}

// NewFactory creates a factory. limiters may be nil for unlimited calls.
func NewFactory(clients *ClientCache, limiters *RateLimiterFactory, baseURL BaseURLFunc) *Factory {
	if clients == nil {
		clients = NewClientCache(DefaultClientConfig())
	}
	if baseURL == nil {
		baseURL = func(string) string { return "" }
	}
	return &Factory{clients: clients, limiters: limiters, baseURL: baseURL}
}

// Constructor returns the constructor for an adapter kind, or nil if the kind is unknown.
func (f *Factory) Constructor(kind string) Constructor {
	switch NormalizeProviderName(kind) {
	case KindOpenAI:
		return func(m model.Model) (Adapter, error) {
			return NewOpenAIAdapter(m, f.baseURL(m.Provider), f.limiter(m.Provider), f.clients), nil
		}
	case KindAnthropic:
		return func(m model.Model) (Adapter, error) {
			return NewAnthropicAdapter(m, f.baseURL(m.Provider), f.limiter(m.Provider), f.clients), nil
		}
	case KindGemini:
		return func(m model.Model) (Adapter, error) {
			return NewGeminiAdapter(m, f.baseURL(m.Provider), f.limiter(m.Provider), f.clients), nil
		}
	}
	return nil
}

// RegisterAll binds every known adapter kind on r.
func (f *Factory) RegisterAll(r AdapterRegistrar) {
	for _, kind := range []string{KindOpenAI, KindAnthropic, KindGemini} {
		r.RegisterAdapter(kind, f.Constructor(kind))
	}
}

// New builds an adapter of the given kind directly, bypassing the registry.
func (f *Factory) New(kind string, m model.Model) (Adapter, error) {
	ctor := f.Constructor(kind)
	if ctor == nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown adapter kind %q", kind)
	}
	return ctor(m)
}

func (f *Factory) limiter(provider string) RateLimiter {
	if f.limiters == nil {
		return NewNoOpLimiter()
	}
	return f.limiters.For(provider)
}

// NormalizeProviderName makes provider lookup more forgiving.
func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
