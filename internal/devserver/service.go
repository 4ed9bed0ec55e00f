package devserver

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudip6164/sajilokaam-sub003/internal/models"
)

// Sentinel errors returned by the chat service.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// ChatService holds the stub backend's conversations and messages in memory
// and assigns authoritative message ids. Ids are monotonically increasing
// integers shared across conversations, matching the wire contract.
type ChatService struct {
	mu sync.RWMutex

	// conversations maps conversationID -> conversation metadata
	conversations map[string]*models.Conversation

	// messages maps conversationID -> messages in creation order
	messages map[string][]models.Message

	// nextID is the last assigned message id
	nextID int64
}

// NewChatService creates an empty ChatService instance.
func NewChatService() *ChatService {
	return &ChatService{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

// CreateConversation registers a new conversation with the given counterpart
// and returns it. The id is a generated UUID.
func (s *ChatService) CreateConversation(participant models.Participant, projectRef string) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := models.Conversation{
		ID:          uuid.New().String(),
		Participant: participant,
		ProjectRef:  projectRef,
	}
	s.conversations[conv.ID] = &conv
	return conv
}

// ListConversations returns all conversations with their last message
// previews derived from the stored messages.
func (s *ChatService) ListConversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.conversations))
	for id, c := range s.conversations {
		conv := *c
		if last, ok := lastVisible(s.messages[id]); ok {
			conv.LastMessage = &models.MessagePreview{
				Content:   last.Content,
				Timestamp: last.Timestamp,
				IsRead:    true,
			}
		}
		out = append(out, conv)
	}
	return out
}

// GetMessages returns a conversation's messages in creation order.
func (s *ChatService) GetMessages(conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}
	list := s.messages[conversationID]
	out := make([]models.Message, len(list))
	copy(out, list)
	return out, nil
}

// AddMessage stores a new message, assigning the next server id and the
// server clock timestamp. The sender's client token is carried through so
// the sender can recognize its own push echo.
func (s *ChatService) AddMessage(conversationID string, sender models.Identity, req models.SendMessageRequest) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return models.Message{}, ErrConversationNotFound
	}

	s.nextID++
	msg := models.Message{
		ID:             s.nextID,
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		SenderAvatar:   sender.Avatar,
		Content:        req.Content,
		Timestamp:      time.Now().UTC(),
		Attachments:    req.Attachments,
		ClientToken:    req.ClientToken,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg, nil
}

// EditMessage replaces a message's content in place and flags it edited.
func (s *ChatService) EditMessage(conversationID string, messageID int64, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return models.Message{}, ErrConversationNotFound
	}
	list := s.messages[conversationID]
	for i := range list {
		if list[i].ID == messageID {
			list[i].Content = content
			list[i].IsEdited = true
			return list[i], nil
		}
	}
	return models.Message{}, ErrMessageNotFound
}

// DeleteMessage soft-deletes a message: the entry stays in the list flagged
// deleted, mirroring what clients render.
func (s *ChatService) DeleteMessage(conversationID string, messageID int64) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return models.Message{}, ErrConversationNotFound
	}
	list := s.messages[conversationID]
	for i := range list {
		if list[i].ID == messageID {
			list[i].IsDeleted = true
			return list[i], nil
		}
	}
	return models.Message{}, ErrMessageNotFound
}

// DeleteConversation removes a conversation together with its messages.
func (s *ChatService) DeleteConversation(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return ErrConversationNotFound
	}
	count := len(s.messages[conversationID])
	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	if count > 0 {
		log.Printf("[Chat] Deleted conversation %s with %d messages", conversationID, count)
	}
	return nil
}

func lastVisible(list []models.Message) (models.Message, bool) {
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].IsDeleted {
			return list[i], true
		}
	}
	return models.Message{}, false
}
