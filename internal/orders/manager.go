package orders

import (
	"context"
	"fmt"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/events"
	"options-scalping-bot/internal/logging"
)

// Manager is a thin, idempotent wrapper around the broker seam. Every
// response is validated for a non-empty order id; failures never retry
// here, retries are the caller's decision.
type Manager struct {
	client  broker.Client
	symbols broker.SymbolBuilder
	bus     *events.EventBus
	log     *logging.Logger
	product string
}

// NewManager creates an order manager trading intraday (MIS) product.
func NewManager(client broker.Client, symbols broker.SymbolBuilder, bus *events.EventBus, log *logging.Logger) *Manager {
	return &Manager{
		client:  client,
		symbols: symbols,
		bus:     bus,
		log:     log.WithComponent("orders"),
		product: broker.ProductIntraday,
	}
}

// Symbols exposes the symbology seam for callers that build contract names.
func (m *Manager) Symbols() broker.SymbolBuilder { return m.symbols }

// PlaceEntry submits a market BUY for a leg. A failed placement returns an
// error and no trade may be created from it.
func (m *Manager) PlaceEntry(ctx context.Context, symbol string, quantity int, refPrice float64) (string, error) {
	return m.place(ctx, broker.OrderRequest{
		Exchange: broker.ExchangeNFO,
		Symbol:   symbol,
		Action:   broker.ActionBuy,
		Type:     broker.OrderMarket,
		Price:    refPrice,
		Quantity: quantity,
		Product:  m.product,
	})
}

// PlaceStopLoss submits the linked SELL stop for an open leg.
func (m *Manager) PlaceStopLoss(ctx context.Context, symbol string, quantity int, slPrice float64) (string, error) {
	return m.place(ctx, broker.OrderRequest{
		Exchange: broker.ExchangeNFO,
		Symbol:   symbol,
		Action:   broker.ActionSell,
		Type:     broker.OrderLimit,
		Price:    slPrice,
		Quantity: quantity,
		Product:  m.product,
	})
}

// PlaceExit submits a market SELL closing part or all of a leg.
func (m *Manager) PlaceExit(ctx context.Context, symbol string, quantity int, refPrice float64) (string, error) {
	return m.place(ctx, broker.OrderRequest{
		Exchange: broker.ExchangeNFO,
		Symbol:   symbol,
		Action:   broker.ActionSell,
		Type:     broker.OrderMarket,
		Price:    refPrice,
		Quantity: quantity,
		Product:  m.product,
	})
}

// Cancel cancels a pending order by id.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	resp, err := m.client.CancelOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}
	if resp == nil || resp.Status != "success" {
		return fmt.Errorf("cancel %s rejected: %s", orderID, respMessage(resp))
	}
	return nil
}

// Status fetches the broker's view of an order.
func (m *Manager) Status(ctx context.Context, orderID string) (*broker.OrderStatus, error) {
	return m.client.GetOrderStatus(ctx, orderID)
}

func (m *Manager) place(ctx context.Context, req broker.OrderRequest) (string, error) {
	resp, err := m.client.PlaceOrder(ctx, req)
	if err != nil {
		m.publishRejected(req, err.Error())
		return "", fmt.Errorf("place %s %s: %w", req.Action, req.Symbol, err)
	}
	if !resp.Accepted() {
		msg := respMessage(resp)
		m.publishRejected(req, msg)
		return "", fmt.Errorf("place %s %s rejected: %s", req.Action, req.Symbol, msg)
	}

	m.log.Info("order placed",
		"order_id", resp.OrderID, "symbol", req.Symbol,
		"action", string(req.Action), "quantity", req.Quantity)
	if m.bus != nil {
		m.bus.Publish(events.Event{
			Type: events.EventOrderPlaced,
			Data: map[string]interface{}{
				"order_id": resp.OrderID,
				"symbol":   req.Symbol,
				"action":   string(req.Action),
				"quantity": req.Quantity,
				"price":    req.Price,
			},
		})
	}
	return resp.OrderID, nil
}

func (m *Manager) publishRejected(req broker.OrderRequest, reason string) {
	m.log.Error("order rejected", "symbol", req.Symbol, "action", string(req.Action), "reason", reason)
	if m.bus != nil {
		m.bus.Publish(events.Event{
			Type: events.EventOrderRejected,
			Data: map[string]interface{}{
				"symbol": req.Symbol,
				"action": string(req.Action),
				"reason": reason,
			},
		})
	}
}

func respMessage(resp *broker.OrderResponse) string {
	if resp == nil {
		return "nil response"
	}
	if resp.Message != "" {
		return resp.Message
	}
	if resp.OrderID == "" {
		return "missing order id"
	}
	return resp.Status
}
