package models

import (
	"time"
)

// Message roles as sent to the completion API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one role-tagged record of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation represents a user's dialogue transcript in chronological order
type Conversation struct {
	UserID    int64     `json:"user_id"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Append adds a record and refreshes the activity timestamp
func (c *Conversation) Append(role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
	c.UpdatedAt = time.Now()
}

// Trim drops the oldest records so that at most max remain.
// max <= 0 means unlimited.
func (c *Conversation) Trim(max int) {
	if max <= 0 || len(c.Messages) <= max {
		return
	}
	c.Messages = c.Messages[len(c.Messages)-max:]
}

// UserSettings represents user-specific settings
type UserSettings struct {
	UserID   int64  `json:"user_id"`
	Language string `json:"language"`
}

// Stat counter names for UserStats increments.
const (
	StatMessages   = "messages"
	StatFiles      = "files"
	StatAIRequests = "ai_requests"
)

// UserStats represents per-user usage counters
type UserStats struct {
	UserID       int64     `json:"user_id"`
	Messages     int64     `json:"messages"`
	Files        int64     `json:"files"`
	AIRequests   int64     `json:"ai_requests"`
	LastActivity time.Time `json:"last_activity"`
}

// CacheEntry is a cached answer to a question asked at a given history depth
type CacheEntry struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	HistoryLen int       `json:"history_len"`
	CreatedAt  time.Time `json:"created_at"`
}
