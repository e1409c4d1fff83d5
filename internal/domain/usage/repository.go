package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines operations for usage storage
type Repository interface {
	// Store saves a usage record
	Store(ctx context.Context, rec *Record) error

	// GetProviderCosts returns costs grouped by provider for a time range
	GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error)

	// GetModelCosts returns costs grouped by model for a provider in a time range
	GetModelCosts(ctx context.Context, provider string, from, to time.Time) (map[string]decimal.Decimal, error)
}

// Publisher emits usage records as events.
type Publisher interface {
	PublishUsage(ctx context.Context, rec *Record) error
}
