package datafeed

import (
	"context"

	"github.com/sawpanic/optionrun/internal/domain"
)

// Source is the single canonical interface for market-snapshot supply.
// Implementations (stream consumers, caches, replay files) compose behind
// it; the trading loop never knows which variant is serving.
type Source interface {
	Snapshot(ctx context.Context) (*domain.MarketSnapshot, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*domain.MarketSnapshot, error)

func (f SourceFunc) Snapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	return f(ctx)
}
