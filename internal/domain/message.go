package domain

import "time"

// Message is immutable once persisted. IDs are ULIDs, so ordering by ID
// matches ordering by creation time within a session.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Body       string    `json:"body"`
	IsSystem   bool      `json:"is_system"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessagePage is one page of a session's history, ascending.
type MessagePage struct {
	SessionID  string    `json:"session_id"`
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// SystemSenderID marks messages written by the service itself.
const SystemSenderID = "system"
