package devserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sudip6164/sajilokaam-sub003/internal/models"
)

// Handler contains the HTTP handlers for the stub messaging API.
type Handler struct {
	svc *ChatService
	hub *Hub
}

// NewHandler creates a Handler backed by the given service and hub.
func NewHandler(svc *ChatService, hub *Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// identityFromRequest derives the caller's identity from the bearer token.
// The dev server accepts tokens of the form "dev:<user-id>:<display-name>";
// anything else maps to an anonymous identity. Real authentication is out of
// scope for a local stub.
func identityFromRequest(r *http.Request) models.Identity {
	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return identityFromToken(auth)
}

func identityFromToken(token string) models.Identity {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) == 3 && parts[0] == "dev" && parts[1] != "" {
		return models.Identity{ID: parts[1], Name: parts[2]}
	}
	return models.Identity{ID: "anonymous", Name: "Anonymous"}
}

// createConversationRequest is the request body for creating a conversation.
type createConversationRequest struct {
	Participant models.Participant `json:"participant"`
	ProjectRef  string             `json:"project_ref,omitempty"`
}

// CreateConversation handles POST /api/conversations
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant.ID == "" {
		http.Error(w, "participant id is required", http.StatusBadRequest)
		return
	}

	conv := h.svc.CreateConversation(req.Participant, req.ProjectRef)
	writeJSON(w, http.StatusCreated, conv)
}

// ListConversations handles GET /api/conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ListConversationsResponse{
		Conversations: h.svc.ListConversations(),
	})
}

// DeleteConversation handles DELETE /api/conversations/{id}
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := h.svc.DeleteConversation(conversationID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages handles GET /api/conversations/{id}/messages
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	messages, err := h.svc.GetMessages(conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	wire := make([]models.WireMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, m.Wire())
	}
	writeJSON(w, http.StatusOK, models.ListMessagesResponse{Messages: wire})
}

// SendMessage handles POST /api/conversations/{id}/messages
// The stored message is returned to the sender and broadcast to every
// push-channel subscriber of the conversation, the sender included.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	msg, err := h.svc.AddMessage(conversationID, identityFromRequest(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.broadcastEvent(models.EventMessageNew, msg)
	writeJSON(w, http.StatusCreated, msg.Wire())
}

// EditMessage handles PUT /api/conversations/{id}/messages/{messageID}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	messageID, ok := parseMessageID(w, r)
	if !ok {
		return
	}

	var req models.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	msg, err := h.svc.EditMessage(conversationID, messageID, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.broadcastEvent(models.EventMessageEdited, msg)
	writeJSON(w, http.StatusOK, msg.Wire())
}

// DeleteMessage handles DELETE /api/conversations/{id}/messages/{messageID}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	messageID, ok := parseMessageID(w, r)
	if !ok {
		return
	}

	msg, err := h.svc.DeleteMessage(conversationID, messageID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.broadcastEvent(models.EventMessageDeleted, msg)
	w.WriteHeader(http.StatusNoContent)
}

// broadcastEvent encodes one event and fans it out on the conversation topic.
func (h *Handler) broadcastEvent(eventType string, msg models.Message) {
	frame, err := models.EncodeEvent(eventType, msg)
	if err != nil {
		log.Printf("[Chat] Failed to encode %s event for message %d: %v", eventType, msg.ID, err)
		return
	}
	h.hub.Broadcast(msg.ConversationID, frame)
}

func parseMessageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "messageID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
