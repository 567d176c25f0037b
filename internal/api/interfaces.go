package api

import (
	"context"

	"chatflow/internal/models"
)

type AuthAPI interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, error)
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
}

type UserAPI interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

type ConversationAPI interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, req *models.CreateConversationRequest) (*models.Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

type MessageAPI interface {
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

type Backend interface {
	AuthAPI
	UserAPI
	ConversationAPI
	MessageAPI
	SetToken(token string)
	Token() string
}
