package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MockClient simulates the broker for demo mode. Quotes random-walk around
// a base spot; Greeks are derived from moneyness so the chain looks sane.
type MockClient struct {
	mu            sync.Mutex
	spot          float64
	underlying    string
	authenticated bool
	orderSeq      int
	orders        map[string]*OrderStatus
	rng           *rand.Rand

	// Scripted snapshots override the simulation when present (tests).
	scripted map[string][]GreeksSnapshot
	cursor   map[string]int
}

// NewMockClient creates a simulated broker around a base spot price.
func NewMockClient(underlying string, baseSpot float64) *MockClient {
	return &MockClient{
		spot:       baseSpot,
		underlying: underlying,
		orders:     make(map[string]*OrderStatus),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		scripted:   make(map[string][]GreeksSnapshot),
		cursor:     make(map[string]int),
	}
}

// Script queues fixed snapshots for a symbol; GetOptionQuote pops them in order,
// repeating the last one when exhausted.
func (m *MockClient) Script(symbol string, snaps ...GreeksSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[symbol] = append(m.scripted[symbol], snaps...)
}

func (m *MockClient) Login(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticated = true
	return nil
}

func (m *MockClient) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *MockClient) StartAutoRefresh() {}
func (m *MockClient) StopAutoRefresh()  {}

func (m *MockClient) GetLTPWithTimestamp(ctx context.Context, underlying string) (Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Gentle random walk, roughly 0.02% per tick.
	m.spot += m.spot * (m.rng.Float64() - 0.5) * 0.0004
	return Tick{Underlying: underlying, LTP: m.spot, Timestamp: time.Now()}, nil
}

func (m *MockClient) GetOptionQuote(ctx context.Context, symbol, exchange string) (GreeksSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snaps, ok := m.scripted[symbol]; ok && len(snaps) > 0 {
		i := m.cursor[symbol]
		if i >= len(snaps) {
			i = len(snaps) - 1
		} else {
			m.cursor[symbol] = i + 1
		}
		snap := snaps[i]
		snap.Symbol = symbol
		snap.Exchange = exchange
		if snap.Timestamp.IsZero() {
			snap.Timestamp = time.Now()
		}
		return snap, nil
	}

	strike := parseStrikeFromSymbol(symbol)
	isCall := strings.HasSuffix(symbol, string(OptionCall))

	moneyness := (m.spot - strike) / m.spot
	if !isCall {
		moneyness = -moneyness
	}

	// Delta shaped by moneyness, clamped to the usual short-dated band.
	delta := 0.5 + moneyness*8
	delta = math.Max(0.05, math.Min(0.95, delta))
	if !isCall {
		delta = -delta
	}

	premium := math.Max(2, m.spot*0.005*(1+moneyness*10))
	iv := 18 + m.rng.Float64()*8

	return GreeksSnapshot{
		Symbol:    symbol,
		Exchange:  exchange,
		LTP:       premium,
		Bid:       premium * 0.995,
		Ask:       premium * 1.005,
		Volume:    1000 + m.rng.Float64()*500,
		OI:        500000 + m.rng.Float64()*50000,
		Delta:     delta,
		Gamma:     0.003 + m.rng.Float64()*0.002,
		Theta:     -(5 + m.rng.Float64()*10),
		Vega:      8 + m.rng.Float64()*4,
		IV:        iv,
		Timestamp: time.Now(),
	}, nil
}

func (m *MockClient) SubscribeLTP(instruments []string) error { return nil }

func (m *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orderSeq++
	id := fmt.Sprintf("MOCK-%d", m.orderSeq)
	m.orders[id] = &OrderStatus{
		OrderID:   id,
		Status:    "complete",
		FilledQty: req.Quantity,
		AveragePx: req.Price,
	}
	return &OrderResponse{Status: "success", OrderID: id}, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.orders[orderID]; ok {
		st.Status = "cancelled"
		return &OrderResponse{Status: "success", OrderID: orderID}, nil
	}
	return &OrderResponse{Status: "error", Message: "unknown order"}, nil
}

func (m *MockClient) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.orders[orderID]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, fmt.Errorf("unknown order %s", orderID)
}

func parseStrikeFromSymbol(symbol string) float64 {
	// Strip the CE/PE suffix, then read trailing digits as the strike.
	s := strings.TrimSuffix(strings.TrimSuffix(symbol, "CE"), "PE")
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	var strike float64
	fmt.Sscanf(s[i:], "%f", &strike)
	return strike
}
