package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/domain"
)

// snapshotMessage is the wire form pushed by the feed service: a VIX
// reading plus per-symbol quotes.
type snapshotMessage struct {
	VIX       float64 `json:"vix"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Quotes    []struct {
		Symbol string  `json:"symbol"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Last   float64 `json:"last"`
		Volume int64   `json:"volume"`
	} `json:"quotes"`
}

type subscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// StreamClient consumes a market-snapshot websocket feed and serves the
// latest snapshot through the Source interface. Reconnection policy is the
// caller's concern; a dropped connection surfaces as an error from Poll.
type StreamClient struct {
	url     string
	symbols []string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	latest    *domain.MarketSnapshot
}

// NewStreamClient creates a client for the feed at url, subscribing to the
// given underlying symbols on connect.
func NewStreamClient(url string, symbols []string) *StreamClient {
	return &StreamClient{url: url, symbols: symbols}
}

// Connect dials the feed and sends the subscription request.
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return fmt.Errorf("stream already connected")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial feed %s: %w", s.url, err)
	}

	sub := subscribeMessage{Action: "subscribe", Symbols: s.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	s.conn = conn
	s.connected = true
	log.Info().Str("url", s.url).Strs("symbols", s.symbols).Msg("Market feed connected")
	return nil
}

// Poll reads the next snapshot message from the feed and caches it as the
// latest. Blocks until a message arrives or the read deadline passes.
func (s *StreamClient) Poll(ctx context.Context, timeout time.Duration) (*domain.MarketSnapshot, error) {
	s.mu.RLock()
	conn := s.conn
	connected := s.connected
	s.mu.RUnlock()
	if !connected {
		return nil, fmt.Errorf("stream not connected")
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read feed message: %w", err)
	}

	var msg snapshotMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode feed message: %w", err)
	}
	snap := msg.toSnapshot()

	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
	return snap, nil
}

// Snapshot serves the most recent snapshot, satisfying Source. It does not
// block on the feed: a nil snapshot means nothing has arrived yet.
func (s *StreamClient) Snapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, fmt.Errorf("no snapshot received yet")
	}
	cp := *s.latest
	return &cp, nil
}

// Close tears down the websocket connection.
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	err := s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m snapshotMessage) toSnapshot() *domain.MarketSnapshot {
	snap := &domain.MarketSnapshot{
		VIX:       m.VIX,
		Timestamp: time.UnixMilli(m.Timestamp),
		Quotes:    make([]domain.Quote, 0, len(m.Quotes)),
	}
	for _, q := range m.Quotes {
		snap.Quotes = append(snap.Quotes, domain.Quote{
			Symbol: q.Symbol,
			Open:   q.Open,
			High:   q.High,
			Low:    q.Low,
			Last:   q.Last,
			Volume: q.Volume,
		})
	}
	return snap
}
