package devserver

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any origin (CORS handled by middleware)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS handles subscription requests at /ws/conversations/{id}.
// One connection subscribes to exactly one conversation topic.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		http.Error(w, "conversation id required", http.StatusBadRequest)
		return
	}

	who := identityFromToken(r.URL.Query().Get("token"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Hub] Upgrade failed: %v", err)
		return
	}

	log.Printf("[Hub] New subscription: conversation=%s user=%s", conversationID, who.ID)

	c := newClient(h.hub, conn, conversationID)
	h.hub.register <- c

	go c.writePump()
	go c.readPump()
}
