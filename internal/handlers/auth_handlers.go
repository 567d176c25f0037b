package handlers

import (
	"context"
	"io"

	"chatflow/internal/auth"
	"chatflow/internal/models"
	"chatflow/pkg/logger"
)

type AuthHandlers struct {
	authService *auth.Service
	out         *console
}

func NewAuthHandlers(authService *auth.Service, out io.Writer) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		out:         newConsole(out),
	}
}

func (h *AuthHandlers) Login(ctx context.Context, username, password string) error {
	session, err := h.authService.Login(ctx, username, password)
	if err != nil {
		logger.Error("Login error: %v", err)
		return err
	}
	h.printSession(session)
	return nil
}

func (h *AuthHandlers) Register(ctx context.Context, req *models.RegisterRequest) error {
	session, err := h.authService.Register(ctx, req)
	if err != nil {
		logger.Error("Registration error: %v", err)
		return err
	}
	h.printSession(session)
	return nil
}

func (h *AuthHandlers) printSession(session *auth.Session) {
	h.out.Printf("Logged in as %s\n", session.Username)
	if !session.ExpiresAt.IsZero() {
		h.out.Printf("Token expires at %s\n", session.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	h.out.Printf("export CHATFLOW_TOKEN=%s\n", session.Token)
}
