package ws

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/metrics"
)

// Stream groups a client can join.
const (
	GroupGEX       = "gex"
	GroupCVD       = "cvd"
	GroupFootprint = "footprint"
	GroupAlerts    = "alerts"
)

var validGroups = map[string]bool{
	GroupGEX: true, GroupCVD: true, GroupFootprint: true, GroupAlerts: true,
}

// Hub manages WebSocket connections and group subscriptions.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				// Remove from all groups
				for group := range client.groups {
					if clients, ok := h.groups[group]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.groups, group)
						}
					}
				}
				close(client.send)
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))
		}
	}
}

// add registers a client. It refuses once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[c] = true
	metrics.WebSocketClients.Inc()
	h.logger.Debug("client registered", zap.String("connID", c.connID))
	return true
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WebSocketClients.Dec()
	}
	h.groups = make(map[string]map[*Client]bool)
	close(h.done)
}

// JoinGroup adds a registered client to a group. Unknown groups are refused.
func (h *Hub) JoinGroup(client *Client, group string) bool {
	if !validGroups[group] {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return false
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true

	h.logger.Debug("client joined group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
	return true
}

// LeaveGroup removes a client from a group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)

	h.logger.Debug("client left group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// ActiveGroups returns all groups with at least one subscriber, sorted.
func (h *Hub) ActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var groups []string
	for group, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)
	return groups
}

// HasSubscribers reports whether anyone listens on group.
func (h *Hub) HasSubscribers(group string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group]) > 0
}

// Broadcast sends a frame to all clients in a group. Each client receives
// the rendering for its negotiated protocol. Sends never block; the read
// lock keeps the hub from closing a send channel mid-broadcast.
func (h *Hub) Broadcast(group string, frame Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.groups[group] {
		msg := frame.JSON
		if client.protocol == ProtocolProtobuf {
			msg = frame.Protobuf
		}
		select {
		case client.send <- msg:
		default:
			// Buffer full, schedule disconnect
			go h.drop(client)
		}
	}
}

// drop schedules a client for removal; a no-op once the hub has stopped.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// send queues a control message for one client without blocking.
func (h *Hub) send(c *Client, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		go h.drop(c)
	}
}
