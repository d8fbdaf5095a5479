package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second

	wsPongWait   = 30 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second
)

// FillHandler is called for every execution reported on the fill channel.
type FillHandler func(Fill)

// FillStream subscribes to the authenticated fill channel so resting orders
// that execute after the REST response are still observed. The stream
// reconnects itself with exponential backoff until Close.
type FillStream struct {
	wsURL  string
	client *Client // signs the upgrade request
	conn   *websocket.Conn

	mu     sync.RWMutex
	closed bool
	cmdID  int64

	handlerMu sync.RWMutex
	handlers  []FillHandler

	done chan struct{}
}

// NewFillStream creates a FillStream. wsURL is the websocket endpoint, e.g.
// "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewFillStream(wsURL string, client *Client) *FillStream {
	return &FillStream{
		wsURL:  wsURL,
		client: client,
		done:   make(chan struct{}),
	}
}

// Connect dials the websocket, authenticates, and subscribes to fills.
func (s *FillStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("kalshi/ws: stream is closed")
	}

	// The upgrade request carries the same signed headers as REST calls.
	header := http.Header{}
	if err := s.client.signRequest(header, http.MethodGet, "/ws"); err != nil {
		return fmt.Errorf("kalshi/ws: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	s.conn = conn

	s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go s.readLoop()
	go s.pingLoop()

	if err := s.sendSubscribe(); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe fills: %w", err)
	}
	return nil
}

// OnFill registers a handler invoked for every fill.
func (s *FillStream) OnFill(handler FillHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Close shuts the stream down permanently.
func (s *FillStream) Close() error {
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

// sendSubscribe sends the fill-channel subscription. Caller holds s.mu.
func (s *FillStream) sendSubscribe() error {
	s.cmdID++
	cmd := wsSubscribe{
		ID:     s.cmdID,
		Cmd:    "subscribe",
		Params: wsSubscribeParams{Channels: []string{"fill"}},
	}

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *FillStream) readLoop() {
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

func (s *FillStream) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
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
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *FillStream) handleMessage(raw []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.Type != "fill" {
		return
	}

	var fill Fill
	if err := json.Unmarshal(envelope.Msg, &fill); err != nil {
		return
	}

	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()
	for _, h := range handlers {
		h(fill)
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (s *FillStream) reconnect() {
	delay := wsReconnectDelay
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
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}
