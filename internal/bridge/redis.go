package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bridge over Redis pub/sub. Payloads are JSON objects with
// type and data fields; the channel comes from Redis.
type Redis struct {
	client *redis.Client
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	pubsubs map[*redis.PubSub]struct{}
}

var (
	_ Bridge    = (*Redis)(nil)
	_ Publisher = (*Redis)(nil)
)

// NewRedis wraps client. Close closes client.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		client:  client,
		logger:  logger,
		pubsubs: make(map[*redis.PubSub]struct{}),
	}
}

func (r *Redis) Subscribe(ctx context.Context, channel string, h Handler) (func(), error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	r.mu.Lock()
	r.pubsubs[ps] = struct{}{}
	r.mu.Unlock()

	go func() {
		for m := range ps.Channel() {
			msg, err := decodePayload(m.Channel, m.Payload)
			if err != nil {
				r.logger.Warn("bridge dropped malformed message", "channel", m.Channel, "error", err)
				continue
			}
			h(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.pubsubs, ps)
			r.mu.Unlock()
			if err := ps.Close(); err != nil {
				r.logger.Debug("close pubsub", "channel", channel, "error", err)
			}
		})
	}, nil
}

// Publish sends a message of msgType with data encoded as JSON.
func (r *Redis) Publish(ctx context.Context, channel, msgType string, data any) error {
	msg, err := NewMessage(channel, msgType, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}{msg.Type, msg.Data})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close ends every subscription made through r and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	r.closed = true
	pubsubs := r.pubsubs
	r.pubsubs = make(map[*redis.PubSub]struct{})
	r.mu.Unlock()

	for ps := range pubsubs {
		ps.Close()
	}
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func decodePayload(channel, payload string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Message{}, fmt.Errorf("decode payload: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode payload: missing type")
	}
	msg.Channel = channel
	return msg, nil
}
