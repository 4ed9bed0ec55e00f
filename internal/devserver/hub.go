// Package devserver is a self-contained stub of the SajiloKaam messaging
// backend: the REST endpoints plus the per-conversation push channel. It
// backs local development and the integration tests; it is not a production
// server.
package devserver

import "log"

// Hub maintains the set of connected push-channel clients per conversation
// topic and fans broadcast frames out to them.
type Hub struct {
	// topics maps conversationID to the set of subscribed clients
	topics map[string]map[*client]bool

	// register requests from clients
	register chan *client

	// unregister requests from clients
	unregister chan *client

	// broadcast carries frames to fan out to one topic
	broadcast chan *broadcastFrame
}

// broadcastFrame is one encoded event addressed to a conversation topic.
type broadcastFrame struct {
	ConversationID string
	Frame          []byte
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *broadcastFrame, 64),
	}
}

// Run starts the hub's event loop. Call in a goroutine: go hub.Run().
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			if h.topics[c.conversationID] == nil {
				h.topics[c.conversationID] = make(map[*client]bool)
			}
			h.topics[c.conversationID][c] = true
			log.Printf("[Hub] Subscriber joined conversation %s (total: %d)",
				c.conversationID, len(h.topics[c.conversationID]))

		case c := <-h.unregister:
			if clients, ok := h.topics[c.conversationID]; ok {
				if _, exists := clients[c]; exists {
					delete(clients, c)
					close(c.send)
					if len(clients) == 0 {
						delete(h.topics, c.conversationID)
					}
				}
			}

		case bf := <-h.broadcast:
			for c := range h.topics[bf.ConversationID] {
				select {
				case c.send <- bf.Frame:
				default:
					// Subscriber can't keep up, drop it
					delete(h.topics[bf.ConversationID], c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast fans one encoded event out to every subscriber of a conversation.
// Subscribers include the original sender, which is what exercises the
// client's echo reconciliation.
func (h *Hub) Broadcast(conversationID string, frame []byte) {
	h.broadcast <- &broadcastFrame{ConversationID: conversationID, Frame: frame}
}
