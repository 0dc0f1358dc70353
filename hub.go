package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Hub owns the connected sessions and pushes fixes to the ones the
// registry lists for a vehicle.
type Hub struct {
	registry   *Registry
	sendBuffer int

	mu       sync.RWMutex
	sessions map[string]*session

	stats *relayStats
	log   *logrus.Entry
}

func newHub(registry *Registry, sendBuffer int, stats *relayStats, logger *logrus.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		registry:   registry,
		sendBuffer: sendBuffer,
		sessions:   make(map[string]*session),
		stats:      stats,
		log:        logger.WithField("component", "hub"),
	}
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

// remove forgets the session and drops all of its subscriptions.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	h.registry.RemoveSession(id)
}

func (h *Hub) get(id string) (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish queues fix for every session subscribed to its vehicle and
// returns how many sessions accepted it. It never blocks on a session.
func (h *Hub) Publish(fix LocationFix) int {
	ids := h.registry.SubscribersOf(fix.VehicleID)
	if len(ids) == 0 {
		return 0
	}
	data, err := json.Marshal(newLocationUpdate(fix))
	if err != nil {
		h.log.WithError(err).Error("marshal location update")
		return 0
	}
	delivered := 0
	for _, id := range ids {
		if h.deliver(id, data) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) sendFix(sessionID string, fix LocationFix) bool {
	data, err := json.Marshal(newLocationUpdate(fix))
	if err != nil {
		return false
	}
	return h.deliver(sessionID, data)
}

func (h *Hub) sendMessage(sessionID string, msg serverMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return h.deliver(sessionID, data)
}

// deliver enqueues data on the session's outbound queue. A session whose
// queue is full is closed as a slow consumer.
func (h *Hub) deliver(sessionID string, data []byte) bool {
	s, ok := h.get(sessionID)
	if !ok {
		return false
	}
	err := s.enqueue(data)
	if err == nil {
		return true
	}
	if errors.Is(err, errSessionClosed) {
		return false
	}
	h.stats.DeliveriesDropped.Add(1)
	h.log.WithField("session_id", sessionID).
		WithError(fmt.Errorf("%w: %v", ErrDelivery, err)).
		Warn("closing slow session")
	s.closeWith(websocket.ClosePolicyViolation, "slow consumer")
	return false
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.closeWith(websocket.CloseGoingAway, "relay shutting down")
	}
}
