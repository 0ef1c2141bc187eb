// Package hub fans out real-time events to connected dashboard clients.
// Clients join named groups (per-server metric streams, global alerts and
// reports streams); presence broadcasts go to every connection.
package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"monitord/internal/models"
)

// Group names. Per-server metric streams use ServerGroup.
const (
	GroupAlerts  = "alerts"
	GroupReports = "reports"
)

func ServerGroup(serverID int64) string {
	return fmt.Sprintf("server_%d", serverID)
}

// Sink is one client connection's outbound side. Send must not block
// indefinitely; a failed send is logged and never retried.
type Sink interface {
	Send(event string, payload any) error
}

type conn struct {
	userID string
	sink   Sink
}

// Hub owns the presence set and the group membership table. All maps are
// guarded by a single mutex; publishes deliver to a snapshot taken under
// the lock so a slow sink cannot hold membership hostage.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	conns  map[string]conn
	groups map[string]map[string]struct{}
}

func New(logger *slog.Logger) *Hub {
	return &Hub{
		log:    logger,
		conns:  map[string]conn{},
		groups: map[string]map[string]struct{}{},
	}
}

// Connect registers a connection and broadcasts the new presence count to
// every connection, the new one included.
func (h *Hub) Connect(connID, userID string, sink Sink) {
	h.mu.Lock()
	h.conns[connID] = conn{userID: userID, sink: sink}
	total := h.onlineCountLocked()
	targets := h.allSinksLocked()
	h.mu.Unlock()

	h.log.Info("client connected", "conn_id", connID, "user", userID, "online", total)
	h.send(targets, models.EventUserPresence, models.UserPresenceEvent{UserID: userID, IsOnline: true, TotalOnline: total})
}

// Disconnect removes a connection from the presence set and every group,
// then broadcasts the updated count.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)
	for name, members := range h.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, name)
		}
	}
	total := h.onlineCountLocked()
	targets := h.allSinksLocked()
	h.mu.Unlock()

	h.log.Info("client disconnected", "conn_id", connID, "user", c.userID, "online", total)
	h.send(targets, models.EventUserPresence, models.UserPresenceEvent{UserID: c.userID, IsOnline: false, TotalOnline: total})
}

func (h *Hub) JoinGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = map[string]struct{}{}
		h.groups[group] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) LeaveGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Publish delivers an event to the connections currently in the group.
// A client that joins after the event was published never receives it.
func (h *Hub) Publish(group, event string, payload any) {
	h.mu.Lock()
	var targets []Sink
	for connID := range h.groups[group] {
		if c, ok := h.conns[connID]; ok {
			targets = append(targets, c.sink)
		}
	}
	h.mu.Unlock()
	h.send(targets, event, payload)
}

// PublishAll delivers an event to every connection regardless of groups.
func (h *Hub) PublishAll(event string, payload any) {
	h.mu.Lock()
	targets := h.allSinksLocked()
	h.mu.Unlock()
	h.send(targets, event, payload)
}

// OnlineCount returns the number of distinct online users. Two
// connections of the same user count once.
func (h *Hub) OnlineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onlineCountLocked()
}

func (h *Hub) onlineCountLocked() int {
	users := map[string]struct{}{}
	for _, c := range h.conns {
		users[c.userID] = struct{}{}
	}
	return len(users)
}

func (h *Hub) allSinksLocked() []Sink {
	out := make([]Sink, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c.sink)
	}
	return out
}

func (h *Hub) send(targets []Sink, event string, payload any) {
	for _, s := range targets {
		if err := s.Send(event, payload); err != nil {
			h.log.Warn("publish failed", "event", event, "err", err)
		}
	}
}
