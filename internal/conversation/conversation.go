// Package conversation persists agent conversations with optional
// encryption, retention, and AND-combined query filters, grounded on the
// teacher's internal/sessions package (Store interface, MemoryStore's
// clone-on-access discipline, CockroachStore's prepared-statement SQL
// shape) generalized from sessions (agent/channel keyed, reset-on-schedule)
// to conversations (userId/chatId/agentName keyed, retention-day cleanup).
package conversation

import (
	"time"
)

// Message is one append-only entry in a conversation's history.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Conversation is one persisted conversation record.
type Conversation struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	ChatID    string         `json:"chatId"`
	AgentName string         `json:"agentName"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	ExpiresAt time.Time      `json:"expiresAt,omitempty"`
}

// Patch describes a partial update applied by Update. A nil field leaves
// that part of the record unchanged.
type Patch struct {
	AppendMessages []Message
	Metadata       map[string]any
	ExpiresAt      *time.Time
}

// Filter selects conversations for List. Zero-valued fields are ignored;
// every non-zero field is AND-combined.
type Filter struct {
	UserID    string
	ChatID    string
	AgentName string
	After     time.Time
	Before    time.Time
	Limit     int
	Offset    int
}

// Stats summarizes the store's current contents.
type Stats struct {
	TotalConversations int
	TotalMessages      int
}

func clone(c *Conversation) *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func matches(c *Conversation, f Filter) bool {
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.ChatID != "" && c.ChatID != f.ChatID {
		return false
	}
	if f.AgentName != "" && c.AgentName != f.AgentName {
		return false
	}
	if !f.After.IsZero() && c.CreatedAt.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && c.CreatedAt.After(f.Before) {
		return false
	}
	return true
}

func paginate(items []*Conversation, limit, offset int) []*Conversation {
	start := offset
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		return []*Conversation{}
	}
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

// expired reports whether c should be removed by cleanup: past explicit
// ExpiresAt, or past retentionDays since CreatedAt, whichever is earlier.
func expired(c *Conversation, now time.Time, retentionDays int) bool {
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return true
	}
	if retentionDays > 0 {
		cutoff := c.CreatedAt.Add(time.Duration(retentionDays) * 24 * time.Hour)
		if now.After(cutoff) {
			return true
		}
	}
	return false
}
