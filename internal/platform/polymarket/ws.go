package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

const (
	writeWait = 10 * time.Second

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TradeHandler is called for every trade by a tracked wallet seen on the
// live-data stream.
type TradeHandler func(domain.RawTrade)

// TradeStream is the live-data websocket client for the activity topic. It
// cuts detection latency below the poll interval; the poller remains the
// source of truth, so anything the stream drops is picked up on the next
// poll.
type TradeStream struct {
	wsURL string
	conn  *websocket.Conn

	mu      sync.RWMutex
	closed  bool
	wallets map[string]bool

	handlerMu sync.RWMutex
	handlers  []TradeHandler

	done chan struct{}
}

// NewTradeStream creates a TradeStream for the given live-data endpoint,
// e.g. "wss://ws-live-data.polymarket.com". Only trades by the given wallets
// are delivered.
func NewTradeStream(wsURL string, wallets []string) *TradeStream {
	set := make(map[string]bool, len(wallets))
	for _, w := range wallets {
		set[strings.ToLower(w)] = true
	}
	return &TradeStream{
		wsURL:   wsURL,
		wallets: set,
		done:    make(chan struct{}),
	}
}

// Connect establishes the websocket connection and subscribes to the
// activity topic.
func (s *TradeStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	s.conn = conn

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readLoop()
	go s.pingLoop()

	if err := s.sendSubscribe(); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe activity: %w", err)
	}
	return nil
}

// OnTrade registers a handler invoked for every tracked-wallet trade.
func (s *TradeStream) OnTrade(handler TradeHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Close shuts down the stream permanently.
func (s *TradeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}
	return nil
}

// sendSubscribe sends the activity-topic subscription. Caller holds s.mu.
func (s *TradeStream) sendSubscribe() error {
	cmd := wsCommand{
		Action: "subscribe",
		Subscriptions: []wsSubscription{
			{Topic: "activity", Type: "trades"},
		},
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *TradeStream) readLoop() {
	defer func() {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.reconnect()
			return
		}
		s.handleMessage(message)
	}
}

func (s *TradeStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one activity message and delivers tracked-wallet
// trades to the handlers. Unparseable messages are dropped silently.
func (s *TradeStream) handleMessage(raw []byte) {
	var msg wsActivityMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Topic != "activity" || msg.Type != "trades" {
		return
	}

	var trade APITrade
	if err := json.Unmarshal(msg.Payload, &trade); err != nil {
		return
	}

	s.mu.RLock()
	tracked := s.wallets[strings.ToLower(trade.ProxyWallet)]
	s.mu.RUnlock()
	if !tracked {
		return
	}

	raw2 := trade.ToRawTrade()
	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()
	for _, h := range handlers {
		h(raw2)
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (s *TradeStream) reconnect() {
	delay := reconnectDelay
	for {
		select {
		case <-s.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
