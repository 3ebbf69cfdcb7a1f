package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// control is the frame sent upstream to join or leave a channel.
type control struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// WebSocket is a Bridge fed by an upstream websocket server that pushes
// JSON Messages. Run keeps the connection up; subscriptions survive
// reconnects and are replayed on every new connection.
type WebSocket struct {
	url    string
	logger *slog.Logger
	reg    *registry

	mu   sync.Mutex
	conn *ws.Conn
}

func NewWebSocket(url string, logger *slog.Logger) *WebSocket {
	return &WebSocket{
		url:    url,
		logger: logger,
		reg:    newRegistry(),
	}
}

func (b *WebSocket) Subscribe(ctx context.Context, channel string, h Handler) (func(), error) {
	s, first, err := b.reg.add(channel, h)
	if err != nil {
		return nil, err
	}
	if first {
		b.sendControl(ctx, "subscribe", channel)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if b.reg.remove(channel, s) {
				b.sendControl(context.Background(), "unsubscribe", channel)
			}
		})
	}, nil
}

// sendControl is best effort: with no live connection the subscription is
// sent when the next connection comes up.
func (b *WebSocket) sendControl(ctx context.Context, action, channel string) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	if err := wsjson.Write(ctx, conn, control{Action: action, Channel: channel}); err != nil {
		b.logger.Debug("bridge control write failed", "action", action, "channel", channel, "error", err)
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff when the connection drops.
func (b *WebSocket) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		connected, err := b.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = minBackoff
		}
		b.logger.Warn("bridge disconnected", "url", b.url, "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Close drops every subscription. Run stops with its context.
func (b *WebSocket) Close() error {
	b.reg.close()
	return nil
}

func (b *WebSocket) connect(ctx context.Context) (bool, error) {
	conn, _, err := ws.Dial(ctx, b.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", b.url, err)
	}
	defer conn.CloseNow()

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
	}()

	for _, channel := range b.reg.channels() {
		if err := wsjson.Write(ctx, conn, control{Action: "subscribe", Channel: channel}); err != nil {
			return true, fmt.Errorf("subscribe %s: %w", channel, err)
		}
	}
	b.logger.Info("bridge connected", "url", b.url)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Warn("bridge dropped malformed message", "error", err)
			continue
		}
		b.reg.dispatch(msg)
	}
}
