package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"options-scalping-bot/internal/logging"
)

// TickStream maintains a websocket connection to the gateway's LTP feed
// and pushes decoded ticks to a handler. It reconnects with backoff and
// keeps the last tick per underlying for pull-style consumers.
type TickStream struct {
	url     string
	token   string
	handler func(Tick)
	log     *logging.Logger

	mu       sync.RWMutex
	lastTick map[string]Tick
	conn     *websocket.Conn
	stop     chan struct{}
	running  bool
}

// NewTickStream creates a tick stream for the given feed URL.
func NewTickStream(url, token string, handler func(Tick), log *logging.Logger) *TickStream {
	return &TickStream{
		url:      url,
		token:    token,
		handler:  handler,
		log:      log.WithComponent("tick-stream"),
		lastTick: make(map[string]Tick),
	}
}

// Start launches the read loop. Safe to call once.
func (ts *TickStream) Start() {
	ts.mu.Lock()
	if ts.running {
		ts.mu.Unlock()
		return
	}
	ts.running = true
	ts.stop = make(chan struct{})
	ts.mu.Unlock()

	go ts.run()
}

// Stop closes the connection and ends the read loop.
func (ts *TickStream) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.running {
		return
	}
	ts.running = false
	close(ts.stop)
	if ts.conn != nil {
		ts.conn.Close()
	}
}

// LastTick returns the most recent tick seen for an underlying.
func (ts *TickStream) LastTick(underlying string) (Tick, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	tick, ok := ts.lastTick[underlying]
	return tick, ok
}

func (ts *TickStream) run() {
	backoff := time.Second
	for {
		select {
		case <-ts.stop:
			return
		default:
		}

		header := map[string][]string{}
		if ts.token != "" {
			header["Authorization"] = []string{"Bearer " + ts.token}
		}

		conn, _, err := websocket.DefaultDialer.Dial(ts.url, header)
		if err != nil {
			ts.log.Warn("feed connect failed, retrying", "error", err, "backoff", backoff.String())
			select {
			case <-ts.stop:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()
		ts.log.Info("tick feed connected", "url", ts.url)

		ts.readPump(conn)

		select {
		case <-ts.stop:
			return
		default:
			ts.log.Warn("tick feed disconnected, reconnecting")
		}
	}
}

type wireTick struct {
	Symbol    string  `json:"symbol"`
	LTP       float64 `json:"ltp"`
	Timestamp int64   `json:"ts"` // epoch millis
}

func (ts *TickStream) readPump(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var wt wireTick
		if err := json.Unmarshal(data, &wt); err != nil {
			ts.log.Debug("unparseable feed message skipped", "error", err)
			continue
		}

		tick := Tick{
			Underlying: wt.Symbol,
			LTP:        wt.LTP,
			Timestamp:  time.UnixMilli(wt.Timestamp),
		}

		ts.mu.Lock()
		ts.lastTick[tick.Underlying] = tick
		ts.mu.Unlock()

		if ts.handler != nil {
			ts.handler(tick)
		}
	}
}
