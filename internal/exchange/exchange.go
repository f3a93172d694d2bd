package exchange

import (
	"context"

	"oco-guard/internal/core"
)

// Exchange is the trading surface the guard engine cancels against.
type Exchange interface {
	Name() string
	OpenOrders(ctx context.Context, symbol string) ([]core.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
}
