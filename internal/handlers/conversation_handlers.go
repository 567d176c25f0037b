package handlers

import (
	"context"
	"io"

	"chatflow/internal/api"
	"chatflow/internal/services"
	"chatflow/pkg/logger"
)

type ConversationHandlers struct {
	conversations *services.ConversationService
	users         api.UserAPI
	me            string
	out           *console
}

func NewConversationHandlers(conversations *services.ConversationService, users api.UserAPI, me string, out io.Writer) *ConversationHandlers {
	return &ConversationHandlers{
		conversations: conversations,
		users:         users,
		me:            me,
		out:           newConsole(out),
	}
}

// ListUsers prints everyone the current user can start a conversation with.
func (h *ConversationHandlers) ListUsers(ctx context.Context) error {
	users, err := h.users.ListUsers(ctx)
	if err != nil {
		logger.Error("List users error: %v", err)
		return err
	}

	for _, u := range users {
		if u.Username == h.me {
			continue
		}
		h.out.Printf("%-36s  %s\n", u.ID, u.Username)
	}
	return nil
}

func (h *ConversationHandlers) ListConversations(ctx context.Context) error {
	if err := h.conversations.Refresh(ctx); err != nil {
		logger.Error("List conversations error: %v", err)
		return err
	}

	list := h.conversations.List()
	if len(list) == 0 {
		h.out.Printf("No conversations yet\n")
		return nil
	}
	for _, c := range list {
		marker := " "
		if c.HasUnread {
			marker = "*"
		}
		last := ""
		if c.LastMessageAt != nil {
			last = c.LastMessageAt.Local().Format("2006-01-02 15:04")
		}
		h.out.Printf("%s %-36s  %-24s  %s\n", marker, c.ID, services.DisplayName(c, h.me), last)
	}
	return nil
}

func (h *ConversationHandlers) Create(ctx context.Context, userIDs []string, name string) error {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		parsed, err := parseID(id)
		if err != nil {
			return err
		}
		ids = append(ids, parsed)
	}

	conv, err := h.conversations.Create(ctx, ids, name)
	if err != nil {
		logger.Error("Create conversation error: %v", err)
		return err
	}
	h.out.Printf("Created conversation %s (%s)\n", conv.ID, services.DisplayName(*conv, h.me))
	return nil
}
