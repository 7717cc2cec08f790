package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row returned by a fetch, with the fields the engine did not
// map kept as-is.
type Record struct {
	ID        string         `json:"id"`
	Table     string         `json:"table"`
	CreatedAt time.Time      `json:"createdAt"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Engine is the fetch collaborator of the dashboard. Implementations must be
// safe for concurrent use.
type Engine interface {
	Setup(ctx context.Context) error
	Count(ctx context.Context, table string) (int64, error)
	Sum(ctx context.Context, table string, field string) (decimal.Decimal, error)
	Recent(ctx context.Context, table string, limit int64) ([]Record, error)
	Ping(ctx context.Context) error
}
