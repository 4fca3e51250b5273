package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-support-chat/internal/domain"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrEmailExists   = errors.New("email already exists")
	ErrSessionClosed = errors.New("session already closed")
)

// UserRepository resolves identities from the storefront users table.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	Upsert(ctx context.Context, identity *domain.Identity, email string) error
}

// SessionRepository persists chat sessions. Every state change is written
// together with its system message in one transaction.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.ChatSession, opening *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.ChatSession, error)
	FindOpenByCustomer(ctx context.Context, customerID string) (*domain.ChatSession, error)
	Assign(ctx context.Context, id, agentID string, note *domain.Message) (*domain.ChatSession, error)
	Close(ctx context.Context, id string, note *domain.Message) (*domain.ChatSession, error)
	ListForIdentity(ctx context.Context, identity domain.Identity, offset, limit int) ([]domain.ChatSession, int64, error)
}

// MessageRepository appends and reads messages, ascending by ID.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListRecent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	ListAfter(ctx context.Context, sessionID, afterID string, limit int) ([]domain.Message, bool, error)
	ListAll(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// NotificationRepository persists offline notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, recipientID string, unreadOnly bool, offset, limit int) ([]domain.Notification, int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}
