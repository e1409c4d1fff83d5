package usage

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"switchboard/internal/domain/usage"
)

// ModelUsage captures running totals for one provider/model pair.
type ModelUsage struct {
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	Calls            int64           `json:"calls"`
	PromptTokens     int64           `json:"prompt_tokens"`
	CompletionTokens int64           `json:"completion_tokens"`
	ReasoningTokens  int64           `json:"reasoning_tokens"`
	CostUSD          decimal.Decimal `json:"cost_usd"`
}

// Tracker tracks token and cost usage per provider/model in memory.
type Tracker struct {
	mu    sync.Mutex
	usage map[string]*ModelUsage
}

// NewTracker creates a new tracker instance.
func NewTracker() *Tracker {
	return &Tracker{usage: make(map[string]*ModelUsage)}
}

// Add folds a record into the totals and returns the updated entry.
func (t *Tracker) Add(rec *usage.Record) ModelUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := rec.Provider + ":" + rec.ModelID
	entry, ok := t.usage[key]
	if !ok {
		entry = &ModelUsage{Provider: rec.Provider, Model: rec.ModelID}
		t.usage[key] = entry
	}

	entry.Calls++
	entry.PromptTokens += int64(rec.PromptTokens)
	entry.CompletionTokens += int64(rec.CompletionTokens)
	entry.ReasoningTokens += int64(rec.ReasoningTokens)
	entry.CostUSD = entry.CostUSD.Add(rec.TotalCostUSD)

	return *entry
}

// Snapshot returns a copy of the current totals keyed by "provider:model".
func (t *Tracker) Snapshot() map[string]ModelUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	copyMap := make(map[string]ModelUsage, len(t.usage))
	for k, v := range t.usage {
		copyMap[k] = *v
	}

	return copyMap
}

// List returns the totals sorted by provider then model.
func (t *Tracker) List() []ModelUsage {
	snap := t.Snapshot()
	out := make([]ModelUsage, 0, len(snap))
	for _, v := range snap {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// TotalCost sums the cost across every entry.
func (t *Tracker) TotalCost() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := decimal.Zero
	for _, v := range t.usage {
		total = total.Add(v.CostUSD)
	}
	return total
}
