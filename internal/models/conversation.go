package models

import "time"

// Participant is the other party of a conversation as shown in the list.
type Participant struct {
	// ID is the participant's user id
	ID string `json:"id"`

	// DisplayName is the name shown in the conversation list
	DisplayName string `json:"display_name"`

	// Avatar is the participant's avatar reference
	Avatar string `json:"avatar,omitempty"`

	// Role is the participant's marketplace role (client or freelancer)
	Role string `json:"role,omitempty"`
}

// MessagePreview is the derived "last message" summary shown in the
// conversation list. It is recomputed whenever the owning conversation's
// message list changes.
type MessagePreview struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// Conversation is a participant-pair message channel with the summary
// metadata the conversation list renders.
type Conversation struct {
	// ID is the opaque conversation identifier, stable for the session
	ID string `json:"id"`

	// Participant is the other party
	Participant Participant `json:"participant"`

	// LastMessage is the derived preview, nil until a message exists
	LastMessage *MessagePreview `json:"last_message,omitempty"`

	// UnreadCount is the number of inbound messages not yet seen
	UnreadCount int `json:"unread_count"`

	// ProjectRef optionally links the conversation to a job posting
	ProjectRef string `json:"project_ref,omitempty"`

	// Pinned conversations sort before the rest of the list
	Pinned bool `json:"pinned,omitempty"`
}

// Identity is the authenticated user on whose behalf the client operates.
// It stamps the sender fields of optimistic sends and distinguishes own
// messages from others'.
type Identity struct {
	ID     string
	Name   string
	Avatar string
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// ClientToken lets the sender recognize its own push echo
	ClientToken string `json:"client_token,omitempty"`
}

// EditMessageRequest is the request body for editing a message.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// ListMessagesResponse is the response for fetching a conversation's history.
type ListMessagesResponse struct {
	Messages []WireMessage `json:"messages"`
}

// ListConversationsResponse is the response for fetching the conversation list.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}
