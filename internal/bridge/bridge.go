// Package bridge delivers server-pushed messages to in-process subscribers.
// A Bridge is a publish/subscribe client keyed by channel name; the
// transports here are an in-process Local bus, an upstream websocket feed
// and Redis pub/sub.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when subscribing to a bridge that has been closed.
var ErrClosed = errors.New("bridge closed")

// Message is one pushed event. Data is left raw so each consumer decodes
// the shape it expects for Type.
type Message struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Handler receives messages for a subscribed channel.
type Handler func(Message)

// Bridge is a publish/subscribe client.
type Bridge interface {
	// Subscribe registers h for channel. The returned func removes the
	// subscription and is safe to call more than once.
	Subscribe(ctx context.Context, channel string, h Handler) (func(), error)
}

// Publisher sends a message of msgType to every subscriber of channel.
type Publisher interface {
	Publish(ctx context.Context, channel, msgType string, data any) error
}

type subscription struct {
	h Handler
}

// registry tracks handlers per channel. Dispatch iterates over a snapshot
// so handlers may subscribe or unsubscribe while a message is delivered.
type registry struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool
}

func newRegistry() *registry {
	return &registry{subs: make(map[string][]*subscription)}
}

// add registers h and reports whether it is the first handler on channel.
func (r *registry) add(channel string, h Handler) (*subscription, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrClosed
	}
	s := &subscription{h: h}
	first := len(r.subs[channel]) == 0
	r.subs[channel] = append(r.subs[channel], s)
	return s, first, nil
}

// remove drops s and reports whether channel has no handlers left.
func (r *registry) remove(channel string, s *subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[channel]
	for i, cur := range list {
		if cur == s {
			next := make([]*subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(r.subs, channel)
				return true
			}
			r.subs[channel] = next
			return false
		}
	}
	return false
}

func (r *registry) channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subs))
	for c := range r.subs {
		out = append(out, c)
	}
	return out
}

func (r *registry) dispatch(msg Message) {
	r.mu.RLock()
	snapshot := r.subs[msg.Channel]
	r.mu.RUnlock()

	for _, s := range snapshot {
		s.h(msg)
	}
}

func (r *registry) close() {
	r.mu.Lock()
	r.closed = true
	r.subs = make(map[string][]*subscription)
	r.mu.Unlock()
}

// Local is an in-process Bridge. Publish delivers synchronously on the
// caller's goroutine.
type Local struct {
	reg *registry
	mu  sync.Mutex
}

var (
	_ Bridge    = (*Local)(nil)
	_ Publisher = (*Local)(nil)
)

func NewLocal() *Local {
	return &Local{reg: newRegistry()}
}

func (l *Local) Subscribe(_ context.Context, channel string, h Handler) (func(), error) {
	s, _, err := l.reg.add(channel, h)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.reg.remove(channel, s) })
	}, nil
}

// Publish marshals data and delivers it to every handler on channel.
// Concurrent publishes are delivered one at a time.
func (l *Local) Publish(ctx context.Context, channel, msgType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := NewMessage(channel, msgType, data)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reg.dispatch(msg)
	return nil
}

func (l *Local) Close() error {
	l.reg.close()
	return nil
}

// NewMessage builds a Message with data encoded as JSON.
func NewMessage(channel, msgType string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s data: %w", msgType, err)
	}
	return Message{Channel: channel, Type: msgType, Data: raw}, nil
}
