package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// The backend emits ISO-8601 timestamps that may or may not carry an offset.
// Naive timestamps are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

type jsonTimestamp struct {
	time.Time
}

func (t *jsonTimestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// UnmarshalJSON accepts the backend's timestamp formats for created_at.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	aux := struct {
		*plain
		CreatedAt jsonTimestamp `json:"created_at"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.CreatedAt = aux.CreatedAt.Time
	return nil
}

// UnmarshalJSON accepts the backend's timestamp formats for last_message_at.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	type plain Conversation
	aux := struct {
		*plain
		LastMessageAt *jsonTimestamp `json:"last_message_at"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.LastMessageAt = nil
	if aux.LastMessageAt != nil && !aux.LastMessageAt.IsZero() {
		ts := aux.LastMessageAt.Time
		c.LastMessageAt = &ts
	}
	return nil
}
