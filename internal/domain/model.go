package domain

import (
	"time"

	"gorm.io/gorm"
)

// UserModel is the GORM model for the storefront users table. Only the
// columns needed to build an Identity are mapped.
type UserModel struct {
	ID          string         `gorm:"type:varchar(36);primaryKey"`
	Email       string         `gorm:"type:varchar(255);uniqueIndex;not null"`
	DisplayName string         `gorm:"type:varchar(100)"`
	Role        string         `gorm:"type:varchar(20);not null;default:customer"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToIdentity converts UserModel to an Identity. Unknown roles fall back to
// customer, the least privileged role.
func (m *UserModel) ToIdentity() *Identity {
	role, err := ParseRole(m.Role)
	if err != nil {
		role = RoleCustomer
	}
	name := m.DisplayName
	if name == "" {
		name = m.Email
	}
	return &Identity{
		ID:          m.ID,
		DisplayName: name,
		Role:        role,
	}
}

// ChatSessionModel is the GORM model for chat_sessions.
type ChatSessionModel struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	CustomerID string    `gorm:"type:varchar(36);index:idx_session_customer_status;not null"`
	AgentID    string    `gorm:"type:varchar(36);index"`
	Subject    string    `gorm:"type:varchar(255);not null"`
	Status     string    `gorm:"type:varchar(20);index:idx_session_customer_status;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (ChatSessionModel) TableName() string {
	return "chat_sessions"
}

func (m *ChatSessionModel) ToDomain() *ChatSession {
	return &ChatSession{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		AgentID:    m.AgentID,
		Subject:    m.Subject,
		Status:     SessionStatus(m.Status),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func SessionToModel(s *ChatSession) *ChatSessionModel {
	return &ChatSessionModel{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		AgentID:    s.AgentID,
		Subject:    s.Subject,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// MessageModel is the GORM model for chat_messages. Rows are never updated.
type MessageModel struct {
	ID         string    `gorm:"type:char(26);primaryKey"`
	SessionID  string    `gorm:"type:varchar(36);index:idx_message_session_id,priority:1;not null"`
	SenderID   string    `gorm:"type:varchar(36);not null"`
	SenderName string    `gorm:"type:varchar(100)"`
	Body       string    `gorm:"type:text;not null"`
	IsSystem   bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (MessageModel) TableName() string {
	return "chat_messages"
}

func (m *MessageModel) ToDomain() Message {
	return Message{
		ID:         m.ID,
		SessionID:  m.SessionID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		IsSystem:   m.IsSystem,
		CreatedAt:  m.CreatedAt,
	}
}

func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Body:       msg.Body,
		IsSystem:   msg.IsSystem,
		CreatedAt:  msg.CreatedAt,
	}
}

// NotificationModel is the GORM model for notifications.
type NotificationModel struct {
	ID          string     `gorm:"type:char(26);primaryKey"`
	RecipientID string     `gorm:"type:varchar(36);index:idx_notification_recipient_read;not null"`
	Type        string     `gorm:"type:varchar(50);not null"`
	Title       string     `gorm:"type:varchar(255);not null"`
	Body        string     `gorm:"type:text"`
	TargetID    string     `gorm:"type:varchar(36)"`
	TargetType  string     `gorm:"type:varchar(50)"`
	ActionURL   string     `gorm:"type:varchar(255)"`
	IsRead      bool       `gorm:"index:idx_notification_recipient_read;not null;default:false"`
	ReadAt      *time.Time `gorm:"default:null"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

func (m *NotificationModel) ToDomain() Notification {
	return Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Type:        m.Type,
		Title:       m.Title,
		Body:        m.Body,
		TargetID:    m.TargetID,
		TargetType:  m.TargetType,
		ActionURL:   m.ActionURL,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
}

func NotificationToModel(n *Notification) *NotificationModel {
	return &NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		TargetID:    n.TargetID,
		TargetType:  n.TargetType,
		ActionURL:   n.ActionURL,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}

// Models lists every table this service migrates.
func Models() []interface{} {
	return []interface{}{
		&UserModel{},
		&ChatSessionModel{},
		&MessageModel{},
		&NotificationModel{},
	}
}
