package broker

import "time"

// Exchange identifiers used by Indian index option contracts.
const (
	ExchangeNSE      = "NSE"
	ExchangeNFO      = "NFO"
	ProductIntraday  = "MIS"
	ProductOvernight = "NRML"
)

// OptionType distinguishes call and put legs.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// OrderAction is the order side.
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// OrderType is the order pricing mode.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// GreeksSnapshot is an immutable quote + Greeks record for one option symbol.
// Snapshots are value records; rolling histories store copies, never aliases.
type GreeksSnapshot struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	LTP       float64   `json:"ltp"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	OI        float64   `json:"oi"`
	Delta     float64   `json:"delta"`
	Gamma     float64   `json:"gamma"`
	Theta     float64   `json:"theta"`
	Vega      float64   `json:"vega"`
	IV        float64   `json:"iv"`
	Timestamp time.Time `json:"timestamp"`
}

// SpreadPercent returns the bid/ask spread as a percentage of LTP.
func (g GreeksSnapshot) SpreadPercent() float64 {
	if g.LTP <= 0 {
		return 0
	}
	return (g.Ask - g.Bid) / g.LTP * 100
}

// Quoted reports whether bid, ask and ltp are all positive.
func (g GreeksSnapshot) Quoted() bool {
	return g.Bid > 0 && g.Ask > 0 && g.LTP > 0
}

// Tick is an underlying spot price update with its exchange timestamp.
type Tick struct {
	Underlying string    `json:"underlying"`
	LTP        float64   `json:"ltp"`
	Timestamp  time.Time `json:"timestamp"`
}

// Age returns how old the tick is.
func (t Tick) Age() time.Duration {
	return time.Since(t.Timestamp)
}

// OrderRequest describes an order to submit through the broker.
type OrderRequest struct {
	Exchange string      `json:"exchange"`
	Symbol   string      `json:"symbol"`
	Action   OrderAction `json:"action"`
	Type     OrderType   `json:"type"`
	Price    float64     `json:"price"`
	Quantity int         `json:"quantity"`
	Product  string      `json:"product"`
}

// OrderResponse is the broker's reply to an order submission.
type OrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"orderid,omitempty"`
	Message string `json:"message,omitempty"`
}

// Accepted reports whether the broker acknowledged the order with an id.
func (r *OrderResponse) Accepted() bool {
	return r != nil && r.Status == "success" && r.OrderID != ""
}

// OrderStatus is the broker's view of a previously placed order.
type OrderStatus struct {
	OrderID     string  `json:"orderid"`
	Status      string  `json:"status"`
	FilledQty   int     `json:"filled_qty"`
	AveragePx   float64 `json:"average_price"`
	PendingQty  int     `json:"pending_qty"`
	RejectedMsg string  `json:"rejected_msg,omitempty"`
}
