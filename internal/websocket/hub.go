package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const queueSize = 16

// peer is one connected dashboard as seen by the Hub.
type peer struct {
	queue chan []byte
	// gone is closed when the hub drops the peer.
	gone chan struct{}
}

func newPeer() *peer {
	return &peer{
		queue: make(chan []byte, queueSize),
		gone:  make(chan struct{}),
	}
}

// Hub fans messages out to connected dashboards. A peer whose queue is full
// is evicted: it reconnects and refetches instead of missing a change.
type Hub struct {
	mu     sync.Mutex
	peers  map[*peer]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		peers:  make(map[*peer]struct{}),
		logger: logger,
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
}

// remove drops p and closes p.gone. Safe to call more than once.
func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	h.drop(p)
	h.mu.Unlock()
}

// drop requires h.mu.
func (h *Hub) drop(p *peer) {
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.gone)
	}
}

// Broadcast queues msg for every peer and returns how many accepted it.
func (h *Hub) Broadcast(msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for p := range h.peers {
		select {
		case p.queue <- data:
			sent++
		default:
			h.drop(p)
			h.logger.Warn("evicted slow websocket peer", "type", msg.Type)
		}
	}
	return sent
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}
