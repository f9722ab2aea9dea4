// Package server hosts the subscriber hub behind the publish boundary:
// every tick's snapshot fans out once to each connected websocket.
package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"citypulse/server/internal/net/proto"
	"citypulse/server/internal/sim"
	"citypulse/server/internal/telemetry"
)

const defaultWriteWait = 10 * time.Second

// HubConfig tunes the broadcast behavior.
type HubConfig struct {
	WriteWait time.Duration
	Logger    telemetry.Logger
}

// DefaultHubConfig returns the production defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{WriteWait: defaultWriteWait}
}

// Conn is the websocket surface the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type subscriber struct {
	conn Conn
	mu   sync.Mutex
}

// Hub tracks snapshot subscribers and implements sim.SnapshotPublisher.
// Delivery is at-most-once per tick; a failed write drops the
// subscriber.
type Hub struct {
	cfg    HubConfig
	logger telemetry.Logger

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

func NewHubWithConfig(cfg HubConfig) *Hub {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a connection and returns its subscriber id.
func (h *Hub) Subscribe(conn Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.subscribers[id] = &subscriber{conn: conn}
	h.mu.Unlock()
	return id
}

// Unsubscribe drops a subscriber. The caller owns closing the
// connection.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// PublishSnapshot sends one tick's snapshot to every subscriber.
// Subscribers whose write fails are disconnected; the snapshot is not
// retried or replayed.
func (h *Hub) PublishSnapshot(snapshot *sim.TickSnapshot, tick uint64, events []sim.EventView) {
	if snapshot == nil {
		return
	}
	data, err := json.Marshal(proto.State(snapshot, tick, events))
	if err != nil {
		h.logger.Printf("failed to marshal state message: %v", err)
		return
	}

	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
		err := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if err != nil {
			h.logger.Printf("failed to send update to %s: %v", id, err)
			h.Unsubscribe(id)
			sub.conn.Close()
		}
	}
}

var _ sim.SnapshotPublisher = (*Hub)(nil)
