package broker

import (
	"context"
	"time"
)

// Client is the brokerage seam the engine trades through. Implementations:
// HTTPClient (live SmartAPI-compatible gateway) and MockClient (demo mode).
type Client interface {
	// Session
	Login(ctx context.Context) error
	IsAuthenticated() bool
	StartAutoRefresh()
	StopAutoRefresh()

	// Market data
	GetLTPWithTimestamp(ctx context.Context, underlying string) (Tick, error)
	GetOptionQuote(ctx context.Context, symbol, exchange string) (GreeksSnapshot, error)
	SubscribeLTP(instruments []string) error

	// Orders
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (*OrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)
}

// SymbolBuilder resolves tradable contract symbols and expiries.
type SymbolBuilder interface {
	BuildOptionSymbol(underlying string, expiry time.Time, strike float64, optionType OptionType) string
	NearestWeeklyExpiry(now time.Time) time.Time
}
