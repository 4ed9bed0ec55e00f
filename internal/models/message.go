package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Attachment kinds supported by the messaging API.
const (
	AttachmentImage = "image"
	AttachmentFile  = "file"
)

// Attachment is a file or image attached to a message.
type Attachment struct {
	// Kind is either "image" or "file"
	Kind string `json:"kind"`

	// Ref is the storage reference (URL or object key) for the payload
	Ref string `json:"ref"`

	// Name is the original file name shown to users
	Name string `json:"name"`

	// Size is the payload size in bytes
	Size int64 `json:"size"`
}

// Message is the canonical client-side representation of a chat message.
// Both the REST layer and the push channel are normalized into this shape
// before anything reaches the conversation store.
type Message struct {
	// ID is the server-assigned message id. Provisional messages created by
	// an optimistic send carry a negative client-local id until reconciled.
	ID int64 `json:"id"`

	// ConversationID is the conversation this message belongs to
	ConversationID string `json:"conversation_id"`

	// SenderID identifies the author
	SenderID string `json:"sender_id"`

	// SenderName is the author's display name
	SenderName string `json:"sender_name"`

	// SenderAvatar is the author's avatar reference
	SenderAvatar string `json:"sender_avatar,omitempty"`

	// Content is the text payload. May be empty for attachment-only messages.
	Content string `json:"content"`

	// Timestamp is the server-assigned creation time. Provisional messages
	// use the client clock until reconciled.
	Timestamp time.Time `json:"timestamp"`

	// IsEdited is set once the message content has been changed
	IsEdited bool `json:"is_edited,omitempty"`

	// IsDeleted marks a soft-deleted message. Deleted messages stay in the
	// list and are rendered as removed, never spliced out.
	IsDeleted bool `json:"is_deleted,omitempty"`

	// Attachments in the order they were attached
	Attachments []Attachment `json:"attachments,omitempty"`

	// ClientToken is the sender-generated token used to match a push echo
	// against an in-flight optimistic send. Empty for ordinary messages.
	ClientToken string `json:"client_token,omitempty"`

	// Pending marks a provisional message still awaiting its send response.
	// Client-side only, never sent on the wire.
	Pending bool `json:"-"`

	// Failed marks a provisional message whose send request errored.
	// Client-side only, never sent on the wire.
	Failed bool `json:"-"`
}

// Provisional reports whether the message still carries a client-local id.
func (m Message) Provisional() bool {
	return m.ID < 0
}

// FlexID decodes a message id that backends deliver either as a JSON number
// or as a quoted string. Comparing the two representations loosely is a
// classic source of duplicate-display bugs, so everything is normalized to
// int64 here at the wire boundary.
type FlexID int64

// UnmarshalJSON accepts 42, "42" and null.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid message id %s: %w", data, err)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id %q: %w", s, err)
		}
		*f = FlexID(n)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %s: %w", data, err)
	}
	*f = FlexID(n)
	return nil
}

// MarshalJSON always emits the numeric form.
func (f FlexID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(f), 10)), nil
}

// WireMessage is the message shape as delivered by the REST API and the push
// channel. Ids may arrive as strings or numbers; timestamps are RFC 3339.
type WireMessage struct {
	ID             FlexID       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name"`
	SenderAvatar   string       `json:"sender_avatar,omitempty"`
	Content        string       `json:"content"`
	Timestamp      time.Time    `json:"timestamp"`
	IsEdited       bool         `json:"is_edited,omitempty"`
	IsDeleted      bool         `json:"is_deleted,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ClientToken    string       `json:"client_token,omitempty"`
}

// Canonical converts a wire message into the canonical Message shape.
func (w WireMessage) Canonical() Message {
	return Message{
		ID:             int64(w.ID),
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		SenderName:     w.SenderName,
		SenderAvatar:   w.SenderAvatar,
		Content:        w.Content,
		Timestamp:      w.Timestamp,
		IsEdited:       w.IsEdited,
		IsDeleted:      w.IsDeleted,
		Attachments:    w.Attachments,
		ClientToken:    w.ClientToken,
	}
}

// Wire converts a canonical message back to its wire shape.
func (m Message) Wire() WireMessage {
	return WireMessage{
		ID:             FlexID(m.ID),
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderAvatar:   m.SenderAvatar,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		IsEdited:       m.IsEdited,
		IsDeleted:      m.IsDeleted,
		Attachments:    m.Attachments,
		ClientToken:    m.ClientToken,
	}
}

// Push event types delivered on a conversation's channel.
const (
	EventMessageNew     = "message:new"
	EventMessageEdited  = "message:edited"
	EventMessageDeleted = "message:deleted"
)

// Event is a parsed push-channel event.
type Event struct {
	Type    string
	Message Message
}

// wireEvent is the envelope format on the push channel.
type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEvent decodes a raw push-channel frame into an Event. The payload is
// normalized through WireMessage so string and numeric ids collapse to the
// same canonical id.
func ParseEvent(raw []byte) (Event, error) {
	var env wireEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("failed to parse event envelope: %w", err)
	}

	switch env.Type {
	case EventMessageNew, EventMessageEdited, EventMessageDeleted:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", env.Type)
	}

	var wire WireMessage
	if err := json.Unmarshal(env.Payload, &wire); err != nil {
		return Event{}, fmt.Errorf("failed to parse %s payload: %w", env.Type, err)
	}
	if wire.ID == 0 {
		return Event{}, fmt.Errorf("%s payload missing message id", env.Type)
	}

	return Event{Type: env.Type, Message: wire.Canonical()}, nil
}

// EncodeEvent builds a push-channel frame for the given event type and message.
func EncodeEvent(eventType string, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg.Wire())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return json.Marshal(wireEvent{Type: eventType, Payload: payload})
}
