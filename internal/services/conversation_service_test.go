package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"chatflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversationAPI struct {
	mu            sync.Mutex
	conversations []models.Conversation
	lists         int
	marked        []string
	markErr       error
	created       []*models.CreateConversationRequest
}

func (f *fakeConversationAPI) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return slices.Clone(f.conversations), nil
}

func (f *fakeConversationAPI) CreateConversation(ctx context.Context, req *models.CreateConversationRequest) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	conv := models.Conversation{ID: "new", IsGroupChat: len(req.UserIDs) > 1, Name: req.Name}
	f.conversations = append(f.conversations, conv)
	return &conv, nil
}

func (f *fakeConversationAPI) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, conversationID)
	for i := range f.conversations {
		if f.conversations[i].ID == conversationID {
			f.conversations[i].HasUnread = false
		}
	}
	return nil
}

func (f *fakeConversationAPI) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func strPtr(s string) *string { return &s }

func seededConversations() *fakeConversationAPI {
	alice := models.User{ID: "u1", Username: "alice"}
	bob := models.User{ID: "u2", Username: "bob"}
	carol := models.User{ID: "u3", Username: "carol"}
	return &fakeConversationAPI{conversations: []models.Conversation{
		{ID: "c1", Participants: []models.User{alice, bob}},
		{ID: "c2", IsGroupChat: true, Name: strPtr("team"), Participants: []models.User{alice, bob, carol}, HasUnread: true},
	}}
}

func TestConversationRefreshAndList(t *testing.T) {
	fake := seededConversations()
	svc := NewConversationService(fake)
	var seen [][]models.Conversation
	svc.OnChange(func(list []models.Conversation) { seen = append(seen, list) })

	require.NoError(t, svc.Refresh(context.Background()))

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
	require.Len(t, seen, 1)

	conv, ok := svc.Get("c2")
	require.True(t, ok)
	assert.True(t, conv.HasUnread)
	_, ok = svc.Get("missing")
	assert.False(t, ok)
}

func TestSelectUnreadMarksReadAndRefreshes(t *testing.T) {
	fake := seededConversations()
	svc := NewConversationService(fake)
	require.NoError(t, svc.Refresh(context.Background()))

	conv, err := svc.Select(context.Background(), "c2")
	require.NoError(t, err)

	assert.Equal(t, "c2", svc.ActiveID())
	assert.False(t, conv.HasUnread)
	assert.Equal(t, []string{"c2"}, fake.marked)
	assert.Equal(t, 2, fake.listCalls())
}

func TestSelectReadConversationSkipsAck(t *testing.T) {
	fake := seededConversations()
	svc := NewConversationService(fake)
	require.NoError(t, svc.Refresh(context.Background()))

	_, err := svc.Select(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, fake.marked)
	assert.Equal(t, 1, fake.listCalls())

	_, err = svc.Select(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Equal(t, "c1", svc.ActiveID())
}

func TestSelectKeepsGoingWhenAckFails(t *testing.T) {
	fake := seededConversations()
	fake.markErr = errors.New("offline")
	svc := NewConversationService(fake)
	require.NoError(t, svc.Refresh(context.Background()))

	conv, err := svc.Select(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", conv.ID)
	assert.Equal(t, "c2", svc.ActiveID())
}

func TestNotifyNewMessage(t *testing.T) {
	fake := seededConversations()
	svc := NewConversationService(fake)
	require.NoError(t, svc.Refresh(context.Background()))
	_, err := svc.Select(context.Background(), "c1")
	require.NoError(t, err)

	// active conversation stays read
	svc.NotifyNewMessage(models.Message{ID: "m1", ConversationID: "c1"})
	conv, _ := svc.Get("c1")
	assert.False(t, conv.HasUnread)

	_, err = svc.Select(context.Background(), "c2")
	require.NoError(t, err)
	svc.NotifyNewMessage(models.Message{ID: "m2", ConversationID: "c1"})
	conv, _ = svc.Get("c1")
	assert.True(t, conv.HasUnread)

	calls := fake.listCalls()
	fake.mu.Lock()
	fake.conversations = append(fake.conversations, models.Conversation{ID: "c3"})
	fake.mu.Unlock()

	svc.NotifyNewMessage(models.Message{ID: "m3", ConversationID: "c3"})
	svc.Wait()

	assert.Equal(t, calls+1, fake.listCalls())
	_, ok := svc.Get("c3")
	assert.True(t, ok)
}

func TestCreateConversation(t *testing.T) {
	fake := seededConversations()
	svc := NewConversationService(fake)

	_, err := svc.Create(context.Background(), nil, "x")
	assert.ErrorIs(t, err, ErrNoParticipants)

	conv, err := svc.Create(context.Background(), []string{"u2"}, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "new", conv.ID)
	assert.Nil(t, fake.created[0].Name)

	_, err = svc.Create(context.Background(), []string{"u2", "u3"}, "  squad ")
	require.NoError(t, err)
	require.NotNil(t, fake.created[1].Name)
	assert.Equal(t, "squad", *fake.created[1].Name)

	_, err = svc.Create(context.Background(), []string{"u2", "u3"}, "")
	require.NoError(t, err)
	assert.Nil(t, fake.created[2].Name)

	assert.Len(t, svc.List(), 5)
}

func TestDisplayNameAndPeer(t *testing.T) {
	alice := models.User{ID: "u1", Username: "alice"}
	bob := models.User{ID: "u2", Username: "bob"}

	tests := []struct {
		name string
		conv models.Conversation
		want string
	}{
		{"named group", models.Conversation{IsGroupChat: true, Name: strPtr("team")}, "team"},
		{"unnamed group", models.Conversation{IsGroupChat: true}, "Unknown Group"},
		{"direct", models.Conversation{Participants: []models.User{alice, bob}}, "bob"},
		{"direct without peer", models.Conversation{Participants: []models.User{alice}}, "Unknown User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.conv, "alice"))
		})
	}

	peer, ok := Peer(models.Conversation{Participants: []models.User{alice, bob}}, "bob")
	require.True(t, ok)
	assert.Equal(t, "u1", peer.ID)

	_, ok = Peer(models.Conversation{IsGroupChat: true, Participants: []models.User{alice, bob}}, "alice")
	assert.False(t, ok)
}
