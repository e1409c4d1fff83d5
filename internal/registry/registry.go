// Package registry maps model paths to capability models and adapter constructors.
//
// Reads go through an immutable snapshot behind an atomic pointer, so Resolve and
// List never block. Populate builds a complete new snapshot and swaps it in.
package registry

import (
	"strings"
	"sync"
	"sync/atomic"

	"switchboard/internal/adapters/ai"
	"switchboard/internal/domain/catalog"
	"switchboard/internal/domain/model"
	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Entry is one resolvable model with the constructor for its provider.
// Constructor is nil when no adapter is registered for the provider.
type Entry struct {
	Model       model.Model
	Constructor ai.Constructor
}

type snapshot struct {
	entries   []Entry
	byPath    map[string]int
	byName    map[string]int
	providers []string
}

var emptySnapshot = &snapshot{byPath: map[string]int{}, byName: map[string]int{}}

// Registry stores all resolvable models.
type Registry struct {
	snap     atomic.Pointer[snapshot]
	defaults DefaultsTable
	vendors  *VendorMappings
	log      *logger.Logger

	mu         sync.RWMutex
	byProvider map[string]ai.Constructor
	byAdapter  map[string]ai.Constructor
	onPopulate []func(models int)
}

// New creates an empty registry using the given defaults and vendor mappings.
func New(defaults DefaultsTable, vendors *VendorMappings, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Registry{
		defaults:   defaults,
		vendors:    vendors,
		log:        log,
		byProvider: make(map[string]ai.Constructor),
		byAdapter:  make(map[string]ai.Constructor),
	}
	r.snap.Store(emptySnapshot)
	return r
}

// NewDefault creates a registry from the embedded defaults and vendor mappings.
func NewDefault(log *logger.Logger) (*Registry, error) {
	defaults, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	vendors, err := LoadVendorMappings()
	if err != nil {
		return nil, err
	}
	return New(defaults, vendors, log), nil
}

// Defaults exposes the provider defaults table.
func (r *Registry) Defaults() DefaultsTable {
	return r.defaults
}

// RegisterConstructor binds a constructor to a provider id. It takes effect at
// the next Populate.
func (r *Registry) RegisterConstructor(provider string, ctor ai.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byProvider[provider] = ctor
}

// RegisterAdapter binds a constructor to an adapter kind ("openai", "anthropic",
// "gemini"). Providers without their own constructor fall back to the kind
// named in their defaults.
func (r *Registry) RegisterAdapter(kind string, ctor ai.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAdapter[kind] = ctor
}

// OnPopulate registers a hook called after every successful Populate.
func (r *Registry) OnPopulate(fn func(models int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPopulate = append(r.onPopulate, fn)
}

func (r *Registry) constructorFor(provider string) ai.Constructor {
	if ctor, ok := r.byProvider[provider]; ok {
		return ctor
	}
	return r.byAdapter[r.defaults.For(provider).Adapter]
}

// Resolve looks path up as a full provider/vendor/name path, or as a bare
// model name. Malformed paths fail without a lookup.
func (r *Registry) Resolve(path string) (model.Model, ai.Constructor, error) {
	p, err := model.ParsePath(path)
	if err != nil {
		return model.Model{}, nil, &errors.NotFoundError{Path: path}
	}

	s := r.snap.Load()
	index := s.byPath
	if p.IsBare() {
		index = s.byName
	}
	if i, ok := index[p.String()]; ok {
		return s.entries[i].Model, s.entries[i].Constructor, nil
	}
	return model.Model{}, nil, &errors.NotFoundError{Path: path}
}

// List returns the models matching filter (nil matches all) in population order.
func (r *Registry) List(filter *model.ModelFilter) []model.Model {
	s := r.snap.Load()
	out := make([]model.Model, 0, len(s.entries))
	for _, e := range s.entries {
		if filter == nil || filter.Matches(e.Model) {
			out = append(out, e.Model)
		}
	}
	return out
}

// Providers returns the sorted provider ids present in the registry.
func (r *Registry) Providers() []string {
	s := r.snap.Load()
	out := make([]string, len(s.providers))
	copy(out, s.providers)
	return out
}

// Len is the number of resolvable models.
func (r *Registry) Len() int {
	return len(r.snap.Load().entries)
}

// Populate replaces the registry content with snap. On error the previous
// content stays in place.
func (r *Registry) Populate(snap catalog.Snapshot) error {
	if snap.ModelCount() == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "catalog snapshot has no models")
	}

	r.mu.RLock()
	next, skipped, err := r.build(snap)
	hooks := append([]func(int){}, r.onPopulate...)
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	r.snap.Store(next)
	r.log.Infow("Registry populated",
		"models", len(next.entries),
		"providers", len(next.providers),
		"skipped", skipped,
	)
	for _, hook := range hooks {
		hook(len(next.entries))
	}
	return nil
}

func (r *Registry) build(snap catalog.Snapshot) (*snapshot, int, error) {
	s := &snapshot{
		entries: make([]Entry, 0, snap.ModelCount()),
		byPath:  make(map[string]int, snap.ModelCount()),
		byName:  make(map[string]int, snap.ModelCount()),
	}
	skipped := 0

	for _, providerID := range snap.ProviderIDs() {
		provider := snap[providerID]
		ctor := r.constructorFor(providerID)
		added := false
		dropped := 0

		for _, modelID := range provider.ModelIDs() {
			m, ok := r.convert(providerID, modelID, provider.Models[modelID])
			if !ok {
				r.log.Debugw("Skipping model with unaddressable id", "provider", providerID, "model", modelID)
				dropped++
				continue
			}

			// Model ids are visited in sorted order, so the first entry for a path wins.
			path := m.Path()
			if first, dup := s.byPath[path]; dup {
				r.log.Warnw("Skipping duplicate model path",
					"path", path,
					"model", modelID,
					"kept", s.entries[first].Model.APIName(),
				)
				dropped++
				continue
			}
			s.byPath[path] = len(s.entries)
			if _, seen := s.byName[m.Name]; !seen {
				s.byName[m.Name] = len(s.entries)
			}
			s.entries = append(s.entries, Entry{Model: m, Constructor: ctor})
			added = true
		}
		if added {
			s.providers = append(s.providers, providerID)
		}
		if dropped > 0 {
			r.log.Infow("Skipped catalog models", "provider", providerID, "skipped", dropped, "total", len(provider.Models))
			skipped += dropped
		}
	}
	return s, skipped, nil
}

// convert merges one catalog entry over the provider defaults. Catalog hints
// win where present; the remaining flags come from the defaults only.
func (r *Registry) convert(providerID, modelID string, info catalog.ModelInfo) (model.Model, bool) {
	if providerID == "" || strings.Contains(providerID, "/") {
		return model.Model{}, false
	}

	name, vendor, upstream := modelID, "", ""
	segs := strings.Split(modelID, "/")
	for _, seg := range segs {
		if seg == "" {
			return model.Model{}, false
		}
	}
	switch len(segs) {
	case 1:
		vendor = r.vendors.Vendor(modelID, providerID)
	case 2:
		vendor, name, upstream = segs[0], segs[1], modelID
	default:
		// e.g. accounts/fireworks/models/llama-v3p1-8b-instruct: the last
		// segment names the model, the full id goes on the wire.
		name, upstream = segs[len(segs)-1], modelID
		vendor = r.vendors.Vendor(name, providerID)
	}
	if name == "" || vendor == "" {
		return model.Model{}, false
	}

	caps := r.defaults.Capabilities(providerID)
	if info.Modalities != nil {
		caps.SupportsVision = info.Modalities.AcceptsImages()
	}
	if info.ToolCall != nil {
		caps.SupportsTools = *info.ToolCall
	}
	if info.Temperature != nil {
		caps.SupportsTemperature = *info.Temperature
	}

	var cost model.Cost
	if info.Cost != nil {
		cost = model.CostFromPerMillion(info.Cost.Input, info.Cost.Output)
	}

	return model.Model{
		Name:             name,
		Vendor:           vendor,
		Provider:         providerID,
		Cost:             cost,
		ContextLength:    info.Limit.Context,
		CompletionLength: info.Limit.Output,
		Capabilities:     caps,
		Properties: model.Properties{
			OpenSource:    info.OpenWeights,
			Chinese:       IsChinese(modelID, providerID),
			GDPRCompliant: IsGDPRCompliant(providerID),
		},
		KnowledgeCutoff: info.Knowledge,
		ReleaseDate:     info.ReleaseDate,
		LastUpdated:     info.LastUpdated,
		UpstreamID:      upstream,
	}, true
}
