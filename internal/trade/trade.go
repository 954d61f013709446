package trade

import (
	"time"

	"options-scalping-bot/internal/adaptive"
	"options-scalping-bot/internal/broker"
)

// Status is the trade lifecycle state.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// PartialExit is one ladder fill banked before the final close.
type PartialExit struct {
	Time  time.Time `json:"time"`
	Qty   int       `json:"qty"`
	Price float64   `json:"price"`
	PnL   float64   `json:"pnl"`
	Rung  int       `json:"rung,omitempty"`
}

// Trade is one option position from entry to exit. Partial exits reduce
// Quantity; the trade closes when Quantity reaches zero or a full exit
// trigger fires.
type Trade struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Underlying string            `json:"underlying"`
	OptionType broker.OptionType `json:"option_type"`
	Strike     float64           `json:"strike"`
	Expiry     time.Time         `json:"expiry"`

	EntryOrderID string    `json:"entry_order_id"`
	SLOrderID    string    `json:"sl_order_id,omitempty"`
	EntryPrice   float64   `json:"entry_price"`
	SLPrice      float64   `json:"sl_price"`
	TargetPrice  float64   `json:"target_price"`
	Quantity     int       `json:"quantity"`
	OriginalQty  int       `json:"original_qty"`
	LotSize      int       `json:"lot_size"`
	EntryTime    time.Time `json:"entry_time"`

	EntryDelta float64 `json:"entry_delta"`
	EntryGamma float64 `json:"entry_gamma"`
	EntryTheta float64 `json:"entry_theta"`
	EntryVega  float64 `json:"entry_vega"`
	EntryIV    float64 `json:"entry_iv"`
	EntryOI    float64 `json:"entry_oi"`

	MaxLossAmount float64              `json:"max_loss_amount"`
	Buckets       adaptive.BucketTuple `json:"buckets"`
	EntryReasons  []string             `json:"entry_reasons,omitempty"`

	PartialExits []PartialExit `json:"partial_exits,omitempty"`

	Status      Status    `json:"status"`
	ExitPrice   float64   `json:"exit_price,omitempty"`
	ExitTime    time.Time `json:"exit_time,omitempty"`
	ExitReason  string    `json:"exit_reason,omitempty"`
	RealizedPnL float64   `json:"realized_pnl"` // accumulates across partial exits
}

// PnLAt returns the unrealized pnl on the remaining quantity at a price.
func (t *Trade) PnLAt(ltp float64) float64 {
	return (ltp - t.EntryPrice) * float64(t.Quantity)
}

// PnLPercentAt returns the per-unit pnl as a percentage of entry.
func (t *Trade) PnLPercentAt(ltp float64) float64 {
	if t.EntryPrice <= 0 {
		return 0
	}
	return (ltp - t.EntryPrice) / t.EntryPrice * 100
}

// HoldingDuration returns how long the trade has been open.
func (t *Trade) HoldingDuration(now time.Time) time.Duration {
	return now.Sub(t.EntryTime)
}

// Won reports whether the closed trade made money.
func (t *Trade) Won() bool {
	return t.RealizedPnL > 0
}
