package services

import (
	"slices"
	"testing"
	"time"

	"chatflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, conversationID, content string, status models.MessageStatus) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         models.User{ID: "u1", Username: "alice"},
		Content:        content,
		CreatedAt:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Status:         status,
	}
}

func activeState(conversationID string) State {
	return State{ConversationID: conversationID, Phase: PhaseLive, Online: NewPresenceSet()}
}

func TestSnapshotThenReadReceipt(t *testing.T) {
	st := MergeSnapshot(activeState("c1"), []models.Message{msg("m1", "c1", "hello", models.StatusSent)})

	st, fwd := Reduce(st, models.ReadReceipt{MessageIDs: []string{"m1"}})

	assert.Nil(t, fwd)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, models.StatusRead, st.Messages[0].Status)
}

func TestReadReceiptLaw(t *testing.T) {
	st := MergeSnapshot(activeState("c1"), []models.Message{
		msg("m1", "c1", "a", models.StatusSent),
		msg("m2", "c1", "b", models.StatusSent),
		msg("m3", "c1", "c", models.StatusDelivered),
	})
	before := slices.Clone(st.Messages)

	st, _ = Reduce(st, models.ReadReceipt{MessageIDs: []string{"m1", "m3", "missing"}})

	require.Len(t, st.Messages, 3)
	assert.Equal(t, models.StatusRead, st.Messages[0].Status)
	assert.Equal(t, before[1], st.Messages[1])
	assert.Equal(t, models.StatusRead, st.Messages[2].Status)

	// the previous state is left as it was
	assert.Equal(t, models.StatusSent, before[0].Status)
}

func TestChatMessageForOtherConversationIsForwarded(t *testing.T) {
	st := MergeSnapshot(activeState("c1"), []models.Message{msg("m1", "c1", "hello", models.StatusSent)})

	next, fwd := Reduce(st, models.ChatMessage{Message: msg("m2", "c2", "elsewhere", models.StatusSent)})

	require.NotNil(t, fwd)
	assert.Equal(t, "c2", fwd.ConversationID)
	assert.Equal(t, "m2", fwd.ID)
	assert.Equal(t, st.Messages, next.Messages)
}

func TestChatMessageAppendsAndDeduplicates(t *testing.T) {
	st := activeState("c1")

	st, _ = Reduce(st, models.ChatMessage{Message: msg("m1", "c1", "one", models.StatusSent)})
	st, _ = Reduce(st, models.ChatMessage{Message: msg("m2", "c1", "two", models.StatusSent)})
	st, _ = Reduce(st, models.ReadReceipt{MessageIDs: []string{"m1"}})
	st, _ = Reduce(st, models.ChatMessage{Message: msg("m1", "c1", "one edited", models.StatusSent)})

	require.Len(t, st.Messages, 2)
	assert.Equal(t, "m1", st.Messages[0].ID)
	assert.Equal(t, "one edited", st.Messages[0].Content)
	assert.Equal(t, models.StatusRead, st.Messages[0].Status, "status must not move back")
	assert.Equal(t, "m2", st.Messages[1].ID)
}

func TestPresenceLaw(t *testing.T) {
	st := activeState("c1")

	st, _ = Reduce(st, models.PresenceSnapshot{UserIDs: []string{"u1", "u3"}})
	assert.Equal(t, []string{"u1", "u3"}, st.Online.IDs())

	st, _ = Reduce(st, models.PresenceUpdate{UserID: "u2", Status: models.PresenceOnline})
	assert.True(t, st.Online.Has("u2"))

	snapshot := st.Online
	st, _ = Reduce(st, models.PresenceUpdate{UserID: "u1", Status: models.PresenceOffline})
	assert.False(t, st.Online.Has("u1"))
	assert.True(t, snapshot.Has("u1"), "earlier state must not change")

	st, _ = Reduce(st, models.PresenceSnapshot{UserIDs: []string{}})
	st, _ = Reduce(st, models.PresenceUpdate{UserID: "u2", Status: models.PresenceOnline})
	assert.Equal(t, []string{"u2"}, st.Online.IDs())
}

func TestOnlyActiveChatMessagesGrowTheList(t *testing.T) {
	st := MergeSnapshot(activeState("c1"), []models.Message{msg("m1", "c1", "hello", models.StatusSent)})
	events := []models.Event{
		models.PresenceUpdate{UserID: "u2", Status: models.PresenceOnline},
		models.ReadReceipt{MessageIDs: []string{"m1"}},
		models.PresenceSnapshot{UserIDs: []string{"u9"}},
		models.ServerError{Content: "Message failed to send"},
		models.ChatMessage{Message: msg("x1", "c9", "other", models.StatusSent)},
		models.ChatMessage{Message: msg("m2", "c1", "mine", models.StatusSent)},
		models.PresenceUpdate{UserID: "u2", Status: models.PresenceOffline},
	}

	counts := []int{len(st.Messages)}
	for _, ev := range events {
		st, _ = Reduce(st, ev)
		counts = append(counts, len(st.Messages))
	}

	assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 2, 2}, counts)
}

func TestMergeSnapshotIsIdempotent(t *testing.T) {
	history := []models.Message{
		msg("m1", "c1", "hello", models.StatusRead),
		msg("m2", "c1", "world", models.StatusSent),
	}

	once := MergeSnapshot(activeState("c1"), history)
	twice := MergeSnapshot(once, history)

	assert.Equal(t, once.Messages, twice.Messages)
	assert.Len(t, twice.Messages, 2)
}

func TestMergeSnapshotKeepsEarlierLiveMessages(t *testing.T) {
	st := activeState("c1")
	st, _ = Reduce(st, models.ChatMessage{Message: msg("m3", "c1", "live", models.StatusSent)})
	st, _ = Reduce(st, models.ChatMessage{Message: msg("m2", "c1", "also in history", models.StatusRead)})

	st = MergeSnapshot(st, []models.Message{
		msg("m1", "c1", "old", models.StatusRead),
		msg("m2", "c1", "also in history", models.StatusSent),
	})

	ids := make([]string, 0, len(st.Messages))
	for _, m := range st.Messages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	assert.Equal(t, models.StatusRead, st.Messages[1].Status)
}

func TestFilterMessages(t *testing.T) {
	messages := []models.Message{
		msg("m1", "c1", "Hello there!", models.StatusRead),
		msg("m2", "c1", "Hi! This is a TEST message.", models.StatusSent),
		msg("m3", "c1", "testing again", models.StatusSent),
	}

	all := slices.Collect(FilterMessages(messages, ""))
	assert.Equal(t, messages, all)
	assert.Equal(t, messages, slices.Collect(FilterMessages(messages, "   ")))

	seq := FilterMessages(messages, "Test")
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Len(t, first, 2)
	assert.Equal(t, "m2", first[0].ID)
	assert.Equal(t, "m3", first[1].ID)
	assert.Equal(t, first, second, "sequence must be restartable")

	assert.Empty(t, slices.Collect(FilterMessages(messages, "absent")))

	for m := range FilterMessages(messages, "e") {
		assert.Equal(t, "m1", m.ID)
		break
	}
}
