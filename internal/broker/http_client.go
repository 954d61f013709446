package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"options-scalping-bot/internal/logging"
)

// HTTPClient talks to a SmartAPI-compatible options gateway over REST.
// All market-data and order calls go through a circuit breaker so a dying
// gateway degrades to fast failures instead of piling up timeouts.
type HTTPClient struct {
	apiKey     string
	clientCode string
	password   string
	totpSecret string
	baseURL    string

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *logging.Logger

	mu            sync.RWMutex
	sessionToken  string
	authenticated bool
	refreshStop   chan struct{}
}

// HTTPClientConfig holds broker connection settings.
type HTTPClientConfig struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string
	BaseURL    string
	Timeout    time.Duration
}

// NewHTTPClient creates a live broker client.
func NewHTTPClient(cfg HTTPClientConfig, log *logging.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker-api",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &HTTPClient{
		apiKey:     cfg.APIKey,
		clientCode: cfg.ClientCode,
		password:   cfg.Password,
		totpSecret: cfg.TOTPSecret,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		log:        log.WithComponent("broker"),
	}
}

// Login authenticates with the gateway and stores the session token.
func (c *HTTPClient) Login(ctx context.Context) error {
	payload := map[string]string{
		"clientcode": c.clientCode,
		"password":   c.password,
		"totp":       c.totpSecret,
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			SessionToken string `json:"session_token"`
		} `json:"data"`
	}

	if err := c.post(ctx, "/api/v1/login", payload, &result); err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	if result.Status != "success" || result.Data.SessionToken == "" {
		return fmt.Errorf("login rejected: %s", result.Message)
	}

	c.mu.Lock()
	c.sessionToken = result.Data.SessionToken
	c.authenticated = true
	c.mu.Unlock()

	c.log.Info("broker session established", "client", c.clientCode)
	return nil
}

// IsAuthenticated reports whether a session token is held.
func (c *HTTPClient) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// StartAutoRefresh renews the session token periodically until stopped.
func (c *HTTPClient) StartAutoRefresh() {
	c.mu.Lock()
	if c.refreshStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.refreshStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(25 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := c.Login(ctx); err != nil {
					c.log.Error("session refresh failed", "error", err)
				}
				cancel()
			}
		}
	}()
}

// StopAutoRefresh stops the session refresh worker.
func (c *HTTPClient) StopAutoRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshStop != nil {
		close(c.refreshStop)
		c.refreshStop = nil
	}
}

// GetLTPWithTimestamp fetches the underlying spot price with its exchange timestamp.
func (c *HTTPClient) GetLTPWithTimestamp(ctx context.Context, underlying string) (Tick, error) {
	var result struct {
		Status string `json:"status"`
		Data   struct {
			LTP       float64 `json:"ltp"`
			Timestamp int64   `json:"timestamp"` // epoch millis
		} `json:"data"`
	}

	path := fmt.Sprintf("/api/v1/ltp?symbol=%s&exchange=%s", underlying, ExchangeNSE)
	if err := c.get(ctx, path, &result); err != nil {
		return Tick{}, err
	}
	if result.Status != "success" {
		return Tick{}, fmt.Errorf("ltp fetch failed for %s", underlying)
	}

	return Tick{
		Underlying: underlying,
		LTP:        result.Data.LTP,
		Timestamp:  time.UnixMilli(result.Data.Timestamp),
	}, nil
}

// GetOptionQuote fetches a full quote + Greeks snapshot for one contract.
func (c *HTTPClient) GetOptionQuote(ctx context.Context, symbol, exchange string) (GreeksSnapshot, error) {
	var result struct {
		Status string         `json:"status"`
		Data   GreeksSnapshot `json:"data"`
	}

	path := fmt.Sprintf("/api/v1/quote?symbol=%s&exchange=%s&greeks=true", symbol, exchange)
	if err := c.get(ctx, path, &result); err != nil {
		return GreeksSnapshot{}, err
	}
	if result.Status != "success" {
		return GreeksSnapshot{}, fmt.Errorf("quote fetch failed for %s", symbol)
	}

	snap := result.Data
	snap.Symbol = symbol
	snap.Exchange = exchange
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	return snap, nil
}

// SubscribeLTP registers instruments on the gateway's streaming feed.
func (c *HTTPClient) SubscribeLTP(instruments []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/api/v1/subscribe", map[string]interface{}{"instruments": instruments}, &result); err != nil {
		return err
	}
	if result.Status != "success" {
		return fmt.Errorf("subscribe rejected for %d instruments", len(instruments))
	}
	return nil
}

// PlaceOrder submits an order. The response is returned verbatim; the
// order manager owns validation and never retries here.
func (c *HTTPClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	var result OrderResponse
	if err := c.post(ctx, "/api/v1/orders", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelOrder cancels a pending order by id.
func (c *HTTPClient) CancelOrder(ctx context.Context, orderID string) (*OrderResponse, error) {
	var result OrderResponse
	if err := c.post(ctx, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOrderStatus fetches the current state of an order.
func (c *HTTPClient) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	var result struct {
		Status string      `json:"status"`
		Data   OrderStatus `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/v1/orders/%s", orderID), &result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("order status fetch failed for %s", orderID)
	}
	return &result.Data, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request: %w", err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)

		c.mu.RLock()
		token := c.sessionToken
		c.mu.RUnlock()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.mu.Lock()
			c.authenticated = false
			c.mu.Unlock()
			return nil, fmt.Errorf("session expired (401)")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("broker API error %d: %s", resp.StatusCode, string(data))
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("parse response: %w", err)
			}
		}
		return nil, nil
	})
	return err
}
