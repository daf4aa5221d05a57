package ws

import (
	"fmt"
	"sync"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/telemetry"
)

const defaultSendBuffer = 16

type Subscriber struct {
	SessionID string
	UserID    string
	Portfolio bool
	AssetIDs  map[string]struct{}

	send chan serverMessage
}

func (s *Subscriber) wants(assetID string) bool {
	if s.Portfolio {
		return true
	}
	_, ok := s.AssetIDs[assetID]
	return ok
}

// Hub tracks live sessions and fans holdings changes out to the sessions of
// the owner that subscribed to them.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
}

func NewHub() *Hub {
	return NewHubWithBuffer(defaultSendBuffer)
}

// NewHubWithBuffer sets how many undelivered messages a session may queue
// before further notifications are dropped.
func NewHubWithBuffer(size int) *Hub {
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &Hub{subscribers: make(map[string]*Subscriber), bufferSize: size}
}

// Add registers a session and returns the channel its writer drains. The
// channel is closed by Remove.
func (h *Hub) Add(sessionID, userID string) (<-chan serverMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessionID == "" || userID == "" {
		return nil, fmt.Errorf("sessionID and userID are required")
	}
	if _, ok := h.subscribers[sessionID]; ok {
		return nil, fmt.Errorf("session already exists")
	}
	sub := &Subscriber{
		SessionID: sessionID,
		UserID:    userID,
		AssetIDs:  map[string]struct{}{},
		send:      make(chan serverMessage, h.bufferSize),
	}
	h.subscribers[sessionID] = sub
	return sub.send, nil
}

func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	delete(h.subscribers, sessionID)
	close(sub.send)
}

// Subscription returns a copy of the session's current subscriptions.
func (h *Hub) Subscription(sessionID string) (Subscriber, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.subscribers[sessionID]
	if !ok {
		return Subscriber{}, false
	}
	out := Subscriber{
		SessionID: sub.SessionID,
		UserID:    sub.UserID,
		Portfolio: sub.Portfolio,
		AssetIDs:  make(map[string]struct{}, len(sub.AssetIDs)),
	}
	for id := range sub.AssetIDs {
		out.AssetIDs[id] = struct{}{}
	}
	return out, true
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) SubscribePortfolio(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	sub.Portfolio = true
}

func (h *Hub) UnsubscribePortfolio(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	sub.Portfolio = false
}

func (h *Hub) SubscribeAsset(sessionID, assetID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	sub.AssetIDs[assetID] = struct{}{}
}

func (h *Hub) UnsubscribeAsset(sessionID, assetID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	delete(sub.AssetIDs, assetID)
}

// NotifyHoldingsChanged never blocks: a session whose buffer is full misses
// the message.
func (h *Hub) NotifyHoldingsChanged(owner, assetID string) {
	msg := serverMessage{Type: "holdings_changed", AssetID: assetID}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		if sub.UserID != owner || !sub.wants(assetID) {
			continue
		}
		select {
		case sub.send <- msg:
		default:
			telemetry.WSMessageDropped()
		}
	}
}
