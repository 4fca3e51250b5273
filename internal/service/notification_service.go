package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/internal/repository"
	"github.com/weiawesome/wes-support-chat/pkg/log"
)

const (
	notificationBodyMax  = 140
	defaultActionURL     = "/support/chats/%s"
	notificationMaxLimit = 100
)

type notificationService struct {
	hub       *hub.Hub
	repo      repository.NotificationRepository
	ids       IDGenerator
	actionURL string
}

// NewNotificationService creates the offline fallback. actionURL is a format
// string taking the session id.
func NewNotificationService(
	h *hub.Hub,
	repo repository.NotificationRepository,
	ids IDGenerator,
	actionURL string,
) NotificationService {
	if actionURL == "" {
		actionURL = defaultActionURL
	}
	return &notificationService{
		hub:       h,
		repo:      repo,
		ids:       ids,
		actionURL: actionURL,
	}
}

// NotifyOffline always persists one notification. If the recipient turns out
// to be connected anyway, the notification and a fresh unread count are
// pushed best-effort.
func (s *notificationService) NotifyOffline(ctx context.Context, recipientID string, msg *domain.Message) (*domain.Notification, error) {
	id, createdAt, err := s.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate notification id: %w", err)
	}

	sender := msg.SenderName
	if sender == "" {
		sender = "support"
	}

	n := &domain.Notification{
		ID:          id,
		RecipientID: recipientID,
		Type:        domain.NotificationTypeChatMessage,
		Title:       "New message from " + sender,
		Body:        truncateRunes(msg.Body, notificationBodyMax),
		TargetID:    msg.SessionID,
		TargetType:  domain.TargetTypeChat,
		ActionURL:   fmt.Sprintf(s.actionURL, msg.SessionID),
		CreatedAt:   createdAt,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, &domain.TransientStoreError{Op: "create notification", Err: err}
	}

	if c, ok := s.hub.LookupIdentity(recipientID); ok {
		if err := c.SendMessage(&domain.NewNotificationEvent{
			Type:         domain.MsgTypeNewNotification,
			Notification: *n,
		}); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, recipientID).Msg("failed to push notification")
		}
		s.pushCount(ctx, c, recipientID)
	}

	return n, nil
}

func (s *notificationService) List(ctx context.Context, recipientID string, unreadOnly bool, page, limit int) (*domain.NotificationPage, error) {
	page, limit = normalizePage(page, limit, notificationMaxLimit)

	items, total, err := s.repo.List(ctx, recipientID, unreadOnly, (page-1)*limit, limit)
	if err != nil {
		return nil, &domain.TransientStoreError{Op: "list notifications", Err: err}
	}

	return &domain.NotificationPage{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, &domain.TransientStoreError{Op: "count unread notifications", Err: err}
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	if err := s.repo.MarkRead(ctx, recipientID, notificationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.NotFoundError{Kind: "notification", ID: notificationID}
		}
		return &domain.TransientStoreError{Op: "mark notification read", Err: err}
	}
	s.PushUnreadCount(ctx, recipientID)
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	changed, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, &domain.TransientStoreError{Op: "mark all notifications read", Err: err}
	}
	s.PushUnreadCount(ctx, recipientID)
	return changed, nil
}

// PushUnreadCount sends the current unread count to the recipient's live
// connection, if any.
func (s *notificationService) PushUnreadCount(ctx context.Context, recipientID string) {
	if c, ok := s.hub.LookupIdentity(recipientID); ok {
		s.pushCount(ctx, c, recipientID)
	}
}

func (s *notificationService) pushCount(ctx context.Context, c *hub.Client, recipientID string) {
	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, recipientID).Msg("failed to count unread notifications")
		return
	}
	if err := c.SendMessage(&domain.UnreadCountEvent{Type: domain.MsgTypeUnreadCount, Count: count}); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, recipientID).Msg("failed to push unread count")
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// normalizePage clamps 1-based page numbers and limits.
func normalizePage(page, limit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
