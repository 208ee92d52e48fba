package websocket

import (
	"encoding/json"
	"sync"

	"towtrace-backend/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Hub maintains dispatcher WebSocket connections and fans out duty-status
// events to the clients of the matching tenant
type Hub struct {
	// Registered clients (client ID -> Client)
	clients map[string]*Client

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

// Message is a payload addressed to every client of one tenant
type Message struct {
	TenantID string
	Data     interface{}
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			metrics.LiveFeedClients.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			metrics.LiveFeedClients.Set(float64(count))
			log.Info().
				Str("user_id", client.UserID).
				Str("tenant_id", client.TenantID).
				Int("clients", count).
				Msg("✅ [WEBSOCKET] Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.LiveFeedClients.Set(float64(count))
			log.Info().
				Str("user_id", client.UserID).
				Int("clients", count).
				Msg("🔴 [WEBSOCKET] Client disconnected")

		case message := <-h.broadcast:
			data, err := json.Marshal(message.Data)
			if err != nil {
				log.Error().Err(err).Msg("❌ Failed to marshal broadcast message")
				continue
			}

			h.mu.Lock()
			for id, client := range h.clients {
				if client.TenantID != message.TenantID {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client buffer full, disconnect
					close(client.send)
					delete(h.clients, id)
					log.Warn().Str("user_id", client.UserID).Msg("⚠️ Client buffer full, disconnecting")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run and closes every client
func (h *Hub) Stop() {
	close(h.done)
}

// BroadcastToTenant queues data for every client of a tenant. It never
// blocks the caller; events are dropped when the queue is full.
func (h *Hub) BroadcastToTenant(tenantID string, data interface{}) {
	select {
	case h.broadcast <- &Message{TenantID: tenantID, Data: data}:
	default:
		log.Warn().Str("tenant_id", tenantID).Msg("⚠️ Broadcast queue full, dropping event")
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
