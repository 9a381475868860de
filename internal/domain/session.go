// Package domain contains core domain types for the SHSH practice panel.
package domain

import (
	"time"
)

// ConversationKey identifies one practice session: a user working on a challenge.
// It scopes both the elapsed-time timer and the chat history feed.
type ConversationKey struct {
	UserID      string `json:"user_id"`
	ChallengeID string `json:"challenge_id"`
}

// String returns the key in "user:challenge" form for logging and map keys.
func (k ConversationKey) String() string {
	return k.UserID + ":" + k.ChallengeID
}

// IsZero reports whether the key has no user and no challenge.
func (k ConversationKey) IsZero() bool {
	return k.UserID == "" && k.ChallengeID == ""
}

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser marks a message written by the learner.
	RoleUser Role = "user"
	// RoleAssistant marks a message written by the tutor.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry of a practice conversation.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Timestamp parses CreatedAt as an ISO-8601 instant.
// The second return value is false when the value is missing or unparseable.
func (m ChatMessage) Timestamp() (time.Time, bool) {
	if m.CreatedAt == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, m.CreatedAt); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Page is one reverse-chronological slice of a conversation as served upstream.
type Page struct {
	Messages []ChatMessage `json:"messages"` // newest first
	Next     *string       `json:"next"`
}

// PageRequest asks for one page of history. An empty Cursor requests the latest page.
type PageRequest struct {
	Key      ConversationKey
	PageSize int
	Cursor   string
}
