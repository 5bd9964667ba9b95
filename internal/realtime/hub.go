// Package realtime pushes event activity (confirmations, payments, message delivery) to
// organizer dashboards over WebSocket, fanned out across instances through Redis pub/sub.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains event_id -> set of dashboard connections.
type Hub struct {
	events   map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes to Redis for cross-instance broadcast.
type RedisPublisher interface {
	PublishEvent(eventID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to an event channel and invokes handler for incoming messages.
type RedisSubscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a hub. Both Redis sides may be nil for a single-instance deployment.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		events:   make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to an event room. The first client starts the Redis subscription,
// which is opened without holding the hub lock.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.events[c.EventID]
	if !ok {
		room = make(map[string]*Client)
		h.events[c.EventID] = room
	}
	room[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("dashboard joined", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))

	if !ok && h.redisSub != nil {
		h.subscribe(c.EventID)
	}
}

// subscribe opens the event's Redis subscription and keeps it only while the room still exists
// and has no subscription yet.
func (h *Hub) subscribe(eventID uuid.UUID) {
	cancel, err := h.redisSub.SubscribeEvent(eventID, func(event string, payload []byte) {
		h.Broadcast(eventID, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return
	}
	h.mu.Lock()
	_, roomOpen := h.events[eventID]
	_, subscribed := h.subs[eventID]
	keep := roomOpen && !subscribed
	if keep {
		h.subs[eventID] = cancel
	}
	h.mu.Unlock()
	if !keep {
		cancel()
	}
}

// Unregister removes a client. The last client cancels the Redis subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.events[c.EventID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.events, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("dashboard left", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Broadcast sends a message to this instance's clients of an event.
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal realtime payload", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.events[eventID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToEventAndPublish delivers to every instance's clients. With Redis, the message is
// published only and each instance's subscriber (this one included) broadcasts it once.
func (h *Hub) BroadcastToEventAndPublish(eventID uuid.UUID, event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(eventID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal realtime payload", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishEvent(eventID, event, data); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.String("event_id", eventID.String()), zap.Error(err))
		h.Broadcast(eventID, event, json.RawMessage(data))
	}
}

// ViewerCount returns the number of connected dashboards for an event on this instance.
func (h *Hub) ViewerCount(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events[eventID])
}
