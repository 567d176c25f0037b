package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

type EventType string

const (
	EventTypeMessage     EventType = ""
	EventTypeOnlineUsers EventType = "online_users_list"
	EventTypeStatus      EventType = "status"
	EventTypeRead        EventType = "messages_read"
	EventTypeError       EventType = "error"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// Event is one decoded frame of the live stream. The concrete types are
// PresenceSnapshot, PresenceUpdate, ReadReceipt, ChatMessage and ServerError.
type Event interface {
	Type() EventType
}

type PresenceSnapshot struct {
	UserIDs []string
}

type PresenceUpdate struct {
	UserID string
	Status PresenceStatus
}

type ReadReceipt struct {
	ConversationID string
	MessageIDs     []string
}

type ChatMessage struct {
	Message Message
}

// ServerError is sent by the backend when a message could not be stored.
type ServerError struct {
	Content string
}

func (PresenceSnapshot) Type() EventType { return EventTypeOnlineUsers }
func (PresenceUpdate) Type() EventType   { return EventTypeStatus }
func (ReadReceipt) Type() EventType      { return EventTypeRead }
func (ChatMessage) Type() EventType      { return EventTypeMessage }
func (ServerError) Type() EventType      { return EventTypeError }

// WebSocketFrame is the union of every field the backend puts on the wire.
type WebSocketFrame struct {
	Type           EventType      `json:"type,omitempty"`
	UserIDs        []string       `json:"user_ids,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Status         string         `json:"status,omitempty"`
	MessageIDs     []string       `json:"message_ids,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ID             string         `json:"id,omitempty"`
	Sender         *User          `json:"sender,omitempty"`
	Content        string         `json:"content,omitempty"`
	CreatedAt      *jsonTimestamp `json:"created_at,omitempty"`
}

// ParseEvent decodes a raw text frame. Any error wraps ErrMalformedEvent or
// ErrUnknownEvent and the frame must be dropped.
func ParseEvent(data []byte) (Event, error) {
	var frame WebSocketFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch frame.Type {
	case EventTypeOnlineUsers:
		ids := frame.UserIDs
		if ids == nil {
			ids = []string{}
		}
		return PresenceSnapshot{UserIDs: ids}, nil

	case EventTypeStatus:
		if frame.UserID == "" {
			return nil, fmt.Errorf("%w: status without user_id", ErrMalformedEvent)
		}
		status := PresenceStatus(frame.Status)
		if status != PresenceOnline && status != PresenceOffline {
			return nil, fmt.Errorf("%w: presence status %q", ErrMalformedEvent, frame.Status)
		}
		return PresenceUpdate{UserID: frame.UserID, Status: status}, nil

	case EventTypeRead:
		return ReadReceipt{ConversationID: frame.ConversationID, MessageIDs: frame.MessageIDs}, nil

	case EventTypeError:
		return ServerError{Content: frame.Content}, nil

	case EventTypeMessage:
		if frame.ID == "" || frame.ConversationID == "" {
			return nil, fmt.Errorf("%w: chat message without id or conversation_id", ErrMalformedEvent)
		}
		return frame.chatMessage(), nil

	default:
		// Any other type that carries a message is a chat message.
		if frame.ID != "" && frame.ConversationID != "" {
			return frame.chatMessage(), nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
	}
}

func (f WebSocketFrame) chatMessage() ChatMessage {
	msg := Message{
		ID:             f.ID,
		ConversationID: f.ConversationID,
		Content:        f.Content,
		Status:         MessageStatus(f.Status),
	}
	if f.Sender != nil {
		msg.Sender = *f.Sender
	}
	if f.CreatedAt != nil {
		msg.CreatedAt = f.CreatedAt.Time
	}
	if msg.Status == "" {
		msg.Status = StatusSent
	}
	return ChatMessage{Message: msg}
}
