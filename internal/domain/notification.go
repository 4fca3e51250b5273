package domain

import "time"

const (
	NotificationTypeChatMessage = "chat_message"
	TargetTypeChat              = "chat"
)

// Notification is the durable fallback for a live push that could not be
// delivered. Only the read state changes after creation.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipient_id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	TargetID    string     `json:"target_id"`
	TargetType  string     `json:"target_type"`
	ActionURL   string     `json:"action_url"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type NotificationPage struct {
	Items []Notification `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
