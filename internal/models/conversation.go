package models

import "time"

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// Advance returns the later of s and next. Status never moves backwards.
func (s MessageStatus) Advance(next MessageStatus) MessageStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Sender         User          `json:"sender"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         MessageStatus `json:"status"`
}

type Conversation struct {
	ID            string     `json:"id"`
	Name          *string    `json:"name,omitempty"`
	IsGroupChat   bool       `json:"is_group_chat"`
	Participants  []User     `json:"participants"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	HasUnread     bool       `json:"has_unread"`
}

type LoginRequest struct {
	Username string
	Password string
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type CreateConversationRequest struct {
	UserIDs []string `json:"user_ids"`
	Name    *string  `json:"name"`
}
