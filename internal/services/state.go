package services

import (
	"iter"
	"slices"
	"strings"

	"chatflow/internal/models"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLive
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLive:
		return "live"
	default:
		return "idle"
	}
}

// PresenceSet holds the ids of users online in the active conversation.
// Values are never mutated after construction; updates return a new set.
type PresenceSet map[string]struct{}

func NewPresenceSet(userIDs ...string) PresenceSet {
	set := make(PresenceSet, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	return set
}

func (p PresenceSet) Has(userID string) bool {
	_, ok := p[userID]
	return ok
}

func (p PresenceSet) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (p PresenceSet) with(userID string) PresenceSet {
	if p.Has(userID) {
		return p
	}
	next := make(PresenceSet, len(p)+1)
	for id := range p {
		next[id] = struct{}{}
	}
	next[userID] = struct{}{}
	return next
}

func (p PresenceSet) without(userID string) PresenceSet {
	if !p.Has(userID) {
		return p
	}
	next := make(PresenceSet, len(p))
	for id := range p {
		if id != userID {
			next[id] = struct{}{}
		}
	}
	return next
}

// State is the synchronised view of one active conversation. States are
// values: Reduce and MergeSnapshot never modify the slices or sets of the
// state they are given, so a State may be shared with readers freely.
type State struct {
	ConversationID string
	Phase          Phase
	Connected      bool
	Messages       []models.Message
	Online         PresenceSet
}

// Reduce applies one live event. A chat message for a conversation other
// than the active one does not touch the state and is returned as forward.
func Reduce(st State, ev models.Event) (next State, forward *models.Message) {
	switch e := ev.(type) {
	case models.PresenceSnapshot:
		st.Online = NewPresenceSet(e.UserIDs...)

	case models.PresenceUpdate:
		if e.Status == models.PresenceOnline {
			st.Online = st.Online.with(e.UserID)
		} else {
			st.Online = st.Online.without(e.UserID)
		}

	case models.ReadReceipt:
		st.Messages = markRead(st.Messages, e.MessageIDs)

	case models.ChatMessage:
		msg := e.Message
		if msg.ConversationID != st.ConversationID {
			return st, &msg
		}
		st.Messages = upsert(st.Messages, msg)
	}
	return st, nil
}

// MergeSnapshot replaces the message list with history. Messages that
// arrived live and are not part of history stay after it in arrival order,
// and no status moves backwards.
func MergeSnapshot(st State, history []models.Message) State {
	merged := make([]models.Message, 0, len(history)+len(st.Messages))
	seen := make(map[string]int, len(history))

	for _, msg := range history {
		if i, dup := seen[msg.ID]; dup {
			merged[i] = msg
			continue
		}
		seen[msg.ID] = len(merged)
		merged = append(merged, msg)
	}
	for _, live := range st.Messages {
		if i, ok := seen[live.ID]; ok {
			merged[i].Status = merged[i].Status.Advance(live.Status)
			continue
		}
		merged = append(merged, live)
	}

	st.Messages = merged
	return st
}

func markRead(messages []models.Message, ids []string) []models.Message {
	if len(ids) == 0 {
		return messages
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var out []models.Message
	for i, msg := range messages {
		if _, ok := wanted[msg.ID]; !ok || msg.Status == models.StatusRead {
			continue
		}
		if out == nil {
			out = slices.Clone(messages)
		}
		out[i].Status = models.StatusRead
	}
	if out == nil {
		return messages
	}
	return out
}

func upsert(messages []models.Message, msg models.Message) []models.Message {
	for i := range messages {
		if messages[i].ID != msg.ID {
			continue
		}
		out := slices.Clone(messages)
		msg.Status = messages[i].Status.Advance(msg.Status)
		out[i] = msg
		return out
	}
	out := make([]models.Message, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, msg)
}

// FilterMessages yields the messages whose content contains query, ignoring
// case, in list order. A blank query yields every message.
func FilterMessages(messages []models.Message, query string) iter.Seq[models.Message] {
	if strings.TrimSpace(query) == "" {
		return slices.Values(messages)
	}
	needle := strings.ToLower(query)
	return func(yield func(models.Message) bool) {
		for _, msg := range messages {
			if !strings.Contains(strings.ToLower(msg.Content), needle) {
				continue
			}
			if !yield(msg) {
				return
			}
		}
	}
}
