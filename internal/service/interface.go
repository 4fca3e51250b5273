package service

import (
	"context"
	"time"

	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
)

// ChatService runs the session state machine and the message relay for
// connected clients, plus the read side used by the HTTP surface.
type ChatService interface {
	Connect(ctx context.Context, client *hub.Client) error
	Disconnect(ctx context.Context, client *hub.Client)
	StartSession(ctx context.Context, client *hub.Client, subject string) (*domain.ChatSession, error)
	JoinSession(ctx context.Context, client *hub.Client, sessionID string) (*domain.ChatSession, error)
	AdmitAgent(ctx context.Context, client *hub.Client, sessionID string) (*domain.ChatSession, error)
	CloseSession(ctx context.Context, client *hub.Client, sessionID string) (*domain.ChatSession, error)
	Send(ctx context.Context, client *hub.Client, sessionID, body string) (*domain.Message, error)
	MarkRead(ctx context.Context, client *hub.Client, notificationID string) error
	ListSessions(ctx context.Context, identity domain.Identity, page, limit int) ([]domain.ChatSession, int64, error)
	History(ctx context.Context, identity domain.Identity, sessionID, cursor string, limit int) (*domain.MessagePage, error)
	Stop() error
}

// NotificationService is the offline fallback and the notification read side.
type NotificationService interface {
	NotifyOffline(ctx context.Context, recipientID string, msg *domain.Message) (*domain.Notification, error)
	List(ctx context.Context, recipientID string, unreadOnly bool, page, limit int) (*domain.NotificationPage, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	PushUnreadCount(ctx context.Context, recipientID string)
}

// IDGenerator hands out time-ordered ids together with their creation time.
type IDGenerator interface {
	Generate() (string, time.Time, error)
}

// Archiver stores the transcript of a closed session.
type Archiver interface {
	Archive(ctx context.Context, session domain.ChatSession) error
}
