package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"riskvault/internal/config"
	"riskvault/internal/feed"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Stream keeps a websocket subscription to Hermes alive and pushes every
// price update into the feed store. Reconnects re-issue the subscription.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	feeds          *feed.Store
	log            *zap.Logger

	// feed id (lowercase, no 0x) -> instrument symbol
	symbols map[string]string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStream(cfg config.HermesConfig, feeds *feed.Store, log *zap.Logger) *Stream {
	symbols := make(map[string]string, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		symbols[normalizeID(f.ID)] = f.Symbol
	}
	return &Stream{
		url:            cfg.WSURL,
		reconnectDelay: cfg.ReconnectDelay,
		feeds:          feeds,
		log:            log,
		symbols:        symbols,
	}
}

// Run blocks until the context is cancelled, reconnecting on read failure.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logf("hermes connect failed", err)
		} else {
			err := s.readLoop(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logf("hermes read loop ended", err)
			s.reset()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(s.symbols))
	for id := range s.symbols {
		ids = append(ids, id)
	}
	sub, err := json.Marshal(subscribeRequest{Type: "subscribe", IDs: ids})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encode subscribe")
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe")
		return err
	}
	s.conn = conn
	return nil
}

func (s *Stream) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("hermes: not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.handle(data)
	}
}

// handle processes one frame. Malformed frames and rejected samples are
// logged and dropped; the stream itself keeps going.
func (s *Stream) handle(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logf("hermes frame decode failed", err)
		return
	}
	switch msg.Type {
	case "price_update":
	case "response":
		if msg.Status != "success" {
			s.logf("hermes subscription rejected", errors.New(msg.Error))
		}
		return
	default:
		return
	}
	symbol, ok := s.symbols[normalizeID(msg.PriceFeed.ID)]
	if !ok {
		return
	}
	sample, err := msg.PriceFeed.Price.Sample()
	if err != nil {
		s.logf("hermes sample rejected", err)
		return
	}
	if err := s.feeds.Update(symbol, sample); err != nil {
		// Duplicate or stale-ordered publishes are routine on reconnect.
		if s.log != nil {
			s.log.Debug("price sample dropped",
				zap.String("instrument", symbol), zap.Error(err))
		}
	}
}

func (s *Stream) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "reset")
		s.conn = nil
	}
}

func (s *Stream) logf(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, zap.Error(err))
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimPrefix(id, "0x"))
}
