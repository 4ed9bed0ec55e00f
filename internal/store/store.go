// Package store holds the client session's in-memory conversation state.
//
// The store is the single mutable resource of the sync flow: REST fetches,
// optimistic sends and push events all land here through the same upsert
// contract, which is what makes the echo race deterministic.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/sudip6164/sajilokaam-sub003/internal/models"
)

// Store maps conversation ids to their ordered message lists and keeps the
// per-conversation summary (last message preview, unread counter) consistent
// with every mutation.
type Store struct {
	mu sync.RWMutex

	// conversations maps conversationID -> summary metadata
	conversations map[string]*models.Conversation

	// messages maps conversationID -> messages in arrival order
	messages map[string][]models.Message

	// self is the authenticated user's id, used to tell own messages from
	// others' when computing the preview read flag
	self string
}

// New creates an empty store for the given user.
func New(selfID string) *Store {
	return &Store{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		self:          selfID,
	}
}

// SetConversations replaces the conversation list from a REST fetch.
// Message lists already held for surviving conversations are kept; the REST
// list is authoritative for which conversations exist.
func (s *Store) SetConversations(convs []models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(convs))
	for _, c := range convs {
		c := c
		seen[c.ID] = true
		if prev, ok := s.conversations[c.ID]; ok {
			// Keep locally tracked unread state across refreshes
			c.UnreadCount = prev.UnreadCount
		}
		s.conversations[c.ID] = &c
		s.refreshSummaryLocked(c.ID)
	}
	for id := range s.conversations {
		if !seen[id] {
			delete(s.conversations, id)
			delete(s.messages, id)
		}
	}
}

// Conversation returns a copy of one conversation's summary.
func (s *Store) Conversation(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return *c, true
}

// Conversations returns the list ordered for display: pinned first, then by
// last message recency, newest first.
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		at, bt := previewTime(a), previewTime(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ID < b.ID
	})
	return out
}

// SetHistory replaces a conversation's message list from the authoritative
// REST fetch. Provisional client-local entries (negative ids) survive at the
// tail so an in-flight send is not silently lost by a refetch.
func (s *Store) SetHistory(conversationID string, msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tail []models.Message
	for _, m := range s.messages[conversationID] {
		if m.Provisional() {
			tail = append(tail, m)
		}
	}

	list := make([]models.Message, 0, len(msgs)+len(tail))
	seen := make(map[int64]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		list = append(list, m)
	}
	s.messages[conversationID] = append(list, tail...)
	s.refreshSummaryLocked(conversationID)
}

// Upsert applies a message to a conversation's list. If an entry with the
// same id exists it is replaced in place, preserving its position; this is
// how edits and soft-deletes are applied. Otherwise the message is appended.
// Returns true when a new entry was appended.
func (s *Store) Upsert(conversationID string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	appended := s.upsertLocked(conversationID, msg)
	s.refreshSummaryLocked(conversationID)
	return appended
}

func (s *Store) upsertLocked(conversationID string, msg models.Message) bool {
	list := s.messages[conversationID]
	for i := range list {
		if list[i].ID == msg.ID {
			list[i] = msg
			return false
		}
	}
	s.messages[conversationID] = append(list, msg)
	return true
}

// Reconcile retires a provisional message in favor of its server-confirmed
// form. Whichever of the send response and the push echo lands first calls
// this; the second arrival finds the final id already present and the
// provisional gone, so it degrades to a position-preserving replace.
func (s *Store) Reconcile(conversationID string, provisionalID int64, final models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[conversationID]
	finalAt, provisionalAt := -1, -1
	for i := range list {
		switch list[i].ID {
		case final.ID:
			finalAt = i
		case provisionalID:
			provisionalAt = i
		}
	}

	switch {
	case finalAt >= 0:
		// The other racer already installed the final id; drop the leftover
		// provisional entry if it is still around.
		list[finalAt] = final
		if provisionalAt >= 0 {
			list = append(list[:provisionalAt], list[provisionalAt+1:]...)
		}
		s.messages[conversationID] = list
	case provisionalAt >= 0:
		list[provisionalAt] = final
	default:
		s.messages[conversationID] = append(list, final)
	}
	s.refreshSummaryLocked(conversationID)
}

// MarkFailed flags a provisional message whose send request errored. The
// entry stays in the list so the user can see and retry the failed send.
func (s *Store) MarkFailed(conversationID string, provisionalID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[conversationID]
	for i := range list {
		if list[i].ID == provisionalID {
			list[i].Pending = false
			list[i].Failed = true
			break
		}
	}
	s.refreshSummaryLocked(conversationID)
}

// SoftDelete marks a message deleted without removing it from the list.
func (s *Store) SoftDelete(conversationID string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[conversationID]
	for i := range list {
		if list[i].ID == id {
			list[i].IsDeleted = true
			break
		}
	}
	s.refreshSummaryLocked(conversationID)
}

// Messages returns a copy of a conversation's message list in arrival order.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.messages[conversationID]
	out := make([]models.Message, len(list))
	copy(out, list)
	return out
}

// IncrementUnread bumps the unread counter for an inbound message on a
// conversation the user is not currently viewing.
func (s *Store) IncrementUnread(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[conversationID]; ok {
		c.UnreadCount++
		s.refreshSummaryLocked(conversationID)
	}
}

// ClearUnread resets the unread counter when a conversation becomes active.
func (s *Store) ClearUnread(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[conversationID]; ok {
		c.UnreadCount = 0
		s.refreshSummaryLocked(conversationID)
	}
}

// DeleteConversation removes a conversation and its messages in one step.
// Callers never observe a state where one exists without the other.
func (s *Store) DeleteConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
}

// refreshSummaryLocked recomputes a conversation's last message preview from
// the most recently arrived non-deleted message. Caller holds s.mu.
func (s *Store) refreshSummaryLocked(conversationID string) {
	c, ok := s.conversations[conversationID]
	if !ok {
		return
	}

	list := s.messages[conversationID]
	for i := len(list) - 1; i >= 0; i-- {
		m := list[i]
		if m.IsDeleted || m.Failed {
			continue
		}
		c.LastMessage = &models.MessagePreview{
			Content:   m.Content,
			Timestamp: m.Timestamp,
			IsRead:    m.SenderID == s.self || c.UnreadCount == 0,
		}
		return
	}
	c.LastMessage = nil
}

func previewTime(c models.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return time.Time{}
}
