package ports

import (
	"context"

	"radiustrend/internal/domain"
)

// KlineRepository defines the interface for storing and retrieving candlestick history.
type KlineRepository interface {
	// SaveKlines persists a batch of klines. Existing rows for the same
	// symbol/interval/open time are replaced, so re-fetching a range is safe.
	SaveKlines(ctx context.Context, klines []*domain.Kline) error
	// FindBySymbolInterval retrieves up to limit of the most recent klines for a
	// symbol and interval, ordered oldest first. limit <= 0 returns the full history.
	FindBySymbolInterval(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)
	// CountBySymbolInterval returns the number of stored klines for a symbol and interval.
	CountBySymbolInterval(ctx context.Context, symbol, interval string) (int, error)
	// PruneKlines deletes all but the keep most recent klines for a symbol and
	// interval, bounding the store when bars are appended continuously.
	// keep <= 0 is a no-op.
	PruneKlines(ctx context.Context, symbol, interval string, keep int) error
}
