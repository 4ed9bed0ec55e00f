// Package session ties the REST client, the push transport and the
// conversation store together into the message synchronization flow: initial
// history fetch, optimistic sends reconciled against their push echo, and
// subscription lifecycle when the active conversation changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudip6164/sajilokaam-sub003/internal/models"
	"github.com/sudip6164/sajilokaam-sub003/internal/store"
	"github.com/sudip6164/sajilokaam-sub003/internal/transport"
)

// ErrEmptyMessage is returned when a send is attempted with no content after
// trimming and no attachments. No provisional message is created.
var ErrEmptyMessage = errors.New("message content is empty")

// API is the subset of the REST client the session depends on.
type API interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID string, req models.SendMessageRequest) (models.Message, error)
	EditMessage(ctx context.Context, conversationID string, messageID int64, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, conversationID string, messageID int64) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// SubscribeFunc opens a push subscription for one conversation and returns
// its disposer. *transport.Subscription satisfies the io.Closer return.
type SubscribeFunc func(conversationID string, handler transport.Handler) io.Closer

// Option configures a Session.
type Option func(*Session)

// WithNotify registers a callback invoked after every store mutation, with
// the id of the conversation that changed. The UI layer uses it to re-render.
func WithNotify(fn func(conversationID string)) Option {
	return func(s *Session) { s.notify = fn }
}

// WithSendErrorHandler registers a callback for failed sends, invoked with
// the conversation, the provisional message id and the error. The provisional
// message is kept in the store marked failed; there is no automatic retry.
func WithSendErrorHandler(fn func(conversationID string, provisionalID int64, err error)) Option {
	return func(s *Session) { s.onSendError = fn }
}

// pendingSend tracks one in-flight optimistic send, keyed by client token.
type pendingSend struct {
	conversationID string
	provisionalID  int64
}

// Session is the per-user messaging client state. All mutations funnel into
// the store; the session only decides which store operation applies.
type Session struct {
	api       API
	subscribe SubscribeFunc
	store     *store.Store
	self      models.Identity

	notify      func(conversationID string)
	onSendError func(conversationID string, provisionalID int64, err error)

	mu       sync.Mutex
	active   string
	sub      io.Closer
	nextProv int64
	pending  map[string]pendingSend
}

// New creates a session for the given identity.
func New(api API, subscribe SubscribeFunc, st *store.Store, self models.Identity, opts ...Option) *Session {
	s := &Session{
		api:       api,
		subscribe: subscribe,
		store:     st,
		self:      self,
		pending:   make(map[string]pendingSend),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the conversation store for reads.
func (s *Session) Store() *store.Store {
	return s.store
}

// Active returns the id of the currently open conversation, if any.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Refresh reloads the conversation list from the REST API.
func (s *Session) Refresh(ctx context.Context) error {
	convs, err := s.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	s.store.SetConversations(convs)
	s.notifyConversation("")
	return nil
}

// Open makes a conversation active: the previous subscription is disposed
// first, history is fetched over REST, the push subscription is established
// and the unread counter is cleared. At most one subscription is live at any
// time.
//
// A history fetch failure leaves the conversation selectable but empty; the
// error is returned for the UI to surface with a manual retry (calling Open
// again). The push subscription is still established so live messages flow.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	prev := s.sub
	s.sub = nil
	s.active = conversationID
	s.mu.Unlock()

	// Close outside the lock: the disposer waits for the subscription's read
	// goroutine to exit, and that goroutine may be inside handleEvent needing
	// s.mu. Closing while holding the lock would deadlock.
	if prev != nil {
		prev.Close()
	}

	msgs, fetchErr := s.api.ListMessages(ctx, conversationID)
	if fetchErr == nil {
		s.store.SetHistory(conversationID, msgs)
	}
	s.store.ClearUnread(conversationID)

	s.mu.Lock()
	// The user may have switched again while the fetch was in flight; only
	// attach the subscription if this conversation is still the active one.
	if s.active == conversationID && s.sub == nil {
		s.sub = s.subscribe(conversationID, s.handleEvent)
	}
	s.mu.Unlock()

	s.notifyConversation(conversationID)
	if fetchErr != nil {
		return fmt.Errorf("failed to load history for conversation %s: %w", conversationID, fetchErr)
	}
	return nil
}

// Close disposes the active subscription, if any. In-flight sends are not
// cancelled; their eventual completion still lands in the store.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.sub
	s.sub = nil
	s.active = ""
	s.mu.Unlock()

	// Same lock-ordering rule as Open: never close a subscription while
	// holding s.mu.
	if prev != nil {
		prev.Close()
	}
}

// Send performs an optimistic send: a provisional message with a client-local
// negative id is inserted immediately and the request is dispatched in the
// background. The returned message is the provisional one.
func (s *Session) Send(ctx context.Context, conversationID, content string, attachments []models.Attachment) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return models.Message{}, ErrEmptyMessage
	}

	token := uuid.New().String()
	s.mu.Lock()
	s.nextProv--
	provisionalID := s.nextProv
	s.pending[token] = pendingSend{conversationID: conversationID, provisionalID: provisionalID}
	s.mu.Unlock()

	provisional := models.Message{
		ID:             provisionalID,
		ConversationID: conversationID,
		SenderID:       s.self.ID,
		SenderName:     s.self.Name,
		SenderAvatar:   s.self.Avatar,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		Attachments:    attachments,
		ClientToken:    token,
		Pending:        true,
	}
	s.store.Upsert(conversationID, provisional)
	s.notifyConversation(conversationID)

	go s.dispatchSend(ctx, token, provisional)
	return provisional, nil
}

// dispatchSend issues the REST call and reconciles the result. The push echo
// of the same message may land first; both paths go through the same
// token-then-id dedup so exactly one entry remains either way.
func (s *Session) dispatchSend(ctx context.Context, token string, provisional models.Message) {
	confirmed, err := s.api.SendMessage(ctx, provisional.ConversationID, models.SendMessageRequest{
		Content:     provisional.Content,
		Attachments: provisional.Attachments,
		ClientToken: token,
	})
	if err != nil {
		s.takePending(token)
		s.store.MarkFailed(provisional.ConversationID, provisional.ID)
		log.Printf("[Session] Send failed in conversation %s: %v", provisional.ConversationID, err)
		if s.onSendError != nil {
			s.onSendError(provisional.ConversationID, provisional.ID, err)
		}
		s.notifyConversation(provisional.ConversationID)
		return
	}

	if p, ok := s.takePending(token); ok {
		s.store.Reconcile(p.conversationID, p.provisionalID, confirmed)
	} else {
		// The push echo won the race and already retired the provisional
		// entry; upserting the confirmed id is a position-preserving replace.
		s.store.Upsert(provisional.ConversationID, confirmed)
	}
	s.notifyConversation(provisional.ConversationID)
}

// Edit changes a message's content and applies the updated message in place.
func (s *Session) Edit(ctx context.Context, conversationID string, messageID int64, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	updated, err := s.api.EditMessage(ctx, conversationID, messageID, content)
	if err != nil {
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	s.store.Upsert(conversationID, updated)
	s.notifyConversation(conversationID)
	return nil
}

// Delete soft-deletes a message. The entry stays in the list flagged deleted.
func (s *Session) Delete(ctx context.Context, conversationID string, messageID int64) error {
	if err := s.api.DeleteMessage(ctx, conversationID, messageID); err != nil {
		return fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	s.store.SoftDelete(conversationID, messageID)
	s.notifyConversation(conversationID)
	return nil
}

// DeleteConversation removes the conversation and its messages. If it was the
// active one, its subscription is disposed first.
func (s *Session) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.api.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}

	s.mu.Lock()
	var prev io.Closer
	if s.active == conversationID {
		prev = s.sub
		s.sub = nil
		s.active = ""
	}
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	s.store.DeleteConversation(conversationID)
	s.notifyConversation(conversationID)
	return nil
}

// handleEvent applies one push event to the store. Invoked from the
// subscription's read goroutine.
func (s *Session) handleEvent(ev models.Event) {
	msg := ev.Message
	conversationID := msg.ConversationID

	switch ev.Type {
	case models.EventMessageNew:
		// A new message carrying one of our client tokens is the echo of an
		// in-flight optimistic send: reconcile instead of inserting.
		if msg.ClientToken != "" {
			if p, ok := s.takePending(msg.ClientToken); ok {
				s.store.Reconcile(p.conversationID, p.provisionalID, msg)
				s.notifyConversation(p.conversationID)
				return
			}
		}
		appended := s.store.Upsert(conversationID, msg)
		if appended && msg.SenderID != s.self.ID && s.Active() != conversationID {
			s.store.IncrementUnread(conversationID)
		}
	case models.EventMessageEdited, models.EventMessageDeleted:
		// Replace-in-place by id; position is preserved and deleted entries
		// stay in the list.
		s.store.Upsert(conversationID, msg)
	default:
		log.Printf("[Session] Ignoring unexpected event type %q", ev.Type)
		return
	}
	s.notifyConversation(conversationID)
}

// takePending removes and returns the pending send for a token, if any.
func (s *Session) takePending(token string) (pendingSend, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[token]
	if ok {
		delete(s.pending, token)
	}
	return p, ok
}

func (s *Session) notifyConversation(conversationID string) {
	if s.notify != nil {
		s.notify(conversationID)
	}
}
