package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatflow/internal/api"
	"chatflow/internal/models"
	"chatflow/pkg/logger"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNoParticipants       = errors.New("select at least one user")
)

const backgroundRefreshTimeout = 15 * time.Second

// ConversationService holds the conversation list and its unread flags.
type ConversationService struct {
	api api.ConversationAPI

	mu            sync.RWMutex
	conversations []models.Conversation
	activeID      string
	onChange      func([]models.Conversation)

	refreshing atomic.Bool
	wg         sync.WaitGroup
}

func NewConversationService(conversationAPI api.ConversationAPI) *ConversationService {
	return &ConversationService{api: conversationAPI}
}

// OnChange registers fn to receive the list after every change.
func (s *ConversationService) OnChange(fn func([]models.Conversation)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *ConversationService) Refresh(ctx context.Context) error {
	conversations, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conversations = conversations
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(slices.Clone(conversations))
	}
	return nil
}

func (s *ConversationService) List() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conversations)
}

func (s *ConversationService) Get(conversationID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(conversationID); i >= 0 {
		return s.conversations[i], true
	}
	return models.Conversation{}, false
}

func (s *ConversationService) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Select makes conversationID the active conversation. An unread
// conversation is acknowledged to the server and the list reloaded.
func (s *ConversationService) Select(ctx context.Context, conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	i := s.indexLocked(conversationID)
	if i < 0 {
		s.mu.Unlock()
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	s.activeID = conversationID
	conv := s.conversations[i]
	s.mu.Unlock()

	if !conv.HasUnread {
		return conv, nil
	}

	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		logger.Warn("Failed to mark conversation %s as read: %v", conversationID, err)
		return conv, nil
	}
	if err := s.Refresh(ctx); err != nil {
		logger.Warn("Failed to refresh conversations: %v", err)
	}
	if refreshed, ok := s.Get(conversationID); ok {
		conv = refreshed
	}
	return conv, nil
}

// NotifyNewMessage flags the message's conversation as unread unless it is
// active. A message for a conversation not in the list triggers a reload.
func (s *ConversationService) NotifyNewMessage(msg models.Message) {
	s.mu.Lock()
	i := s.indexLocked(msg.ConversationID)
	if i < 0 {
		s.mu.Unlock()
		s.refreshInBackground()
		return
	}
	if msg.ConversationID == s.activeID || s.conversations[i].HasUnread {
		s.mu.Unlock()
		return
	}

	next := slices.Clone(s.conversations)
	next[i].HasUnread = true
	s.conversations = next
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(slices.Clone(next))
	}
}

// Create starts a conversation with userIDs. The name is only sent for
// group chats.
func (s *ConversationService) Create(ctx context.Context, userIDs []string, name string) (*models.Conversation, error) {
	if len(userIDs) == 0 {
		return nil, ErrNoParticipants
	}

	req := &models.CreateConversationRequest{UserIDs: userIDs}
	if name = strings.TrimSpace(name); len(userIDs) > 1 && name != "" {
		req.Name = &name
	}

	conv, err := s.api.CreateConversation(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		logger.Warn("Failed to refresh conversations: %v", err)
	}
	return conv, nil
}

// Wait blocks until background reloads have finished.
func (s *ConversationService) Wait() {
	s.wg.Wait()
}

func (s *ConversationService) refreshInBackground() {
	if !s.refreshing.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), backgroundRefreshTimeout)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			logger.Warn("Failed to refresh conversations: %v", err)
		}
	}()
}

func (s *ConversationService) indexLocked(conversationID string) int {
	return slices.IndexFunc(s.conversations, func(c models.Conversation) bool { return c.ID == conversationID })
}

// DisplayName is the group name for group chats and the other
// participant's username for direct chats.
func DisplayName(conv models.Conversation, me string) string {
	if conv.IsGroupChat {
		if conv.Name != nil && *conv.Name != "" {
			return *conv.Name
		}
		return "Unknown Group"
	}
	if peer, ok := Peer(conv, me); ok {
		return peer.Username
	}
	return "Unknown User"
}

// Peer returns the other participant of a direct chat.
func Peer(conv models.Conversation, me string) (models.User, bool) {
	if conv.IsGroupChat {
		return models.User{}, false
	}
	for _, p := range conv.Participants {
		if p.Username != me {
			return p, true
		}
	}
	return models.User{}, false
}
