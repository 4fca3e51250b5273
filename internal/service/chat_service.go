package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/wes-support-chat/internal/audit"
	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/internal/idgen"
	"github.com/weiawesome/wes-support-chat/internal/repository"
	"github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/pubsub"
)

const sessionMaxLimit = 100

type chatService struct {
	hub       *hub.Hub
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	notifier  NotificationService
	publisher pubsub.Publisher
	archiver  Archiver
	ids       IDGenerator
	cfg       config.ChatConfig

	sessionLocks  *keyedMutex
	customerLocks *keyedMutex
	background    sync.WaitGroup
}

// NewChatService wires the session manager and relay. publisher and
// archiver may be nil.
func NewChatService(
	h *hub.Hub,
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	notifier NotificationService,
	publisher pubsub.Publisher,
	archiver Archiver,
	ids IDGenerator,
	cfg config.ChatConfig,
) ChatService {
	if publisher == nil {
		publisher = pubsub.NopPublisher{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = 4000
	}
	if cfg.MaxSubject <= 0 {
		cfg.MaxSubject = 200
	}
	if cfg.DefaultSubject == "" {
		cfg.DefaultSubject = "Support request"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	return &chatService{
		hub:           h,
		sessions:      sessions,
		messages:      messages,
		notifier:      notifier,
		publisher:     publisher,
		archiver:      archiver,
		ids:           ids,
		cfg:           cfg,
		sessionLocks:  newKeyedMutex(),
		customerLocks: newKeyedMutex(),
	}
}

// Connect registers an authenticated client in the presence directory and
// greets it with its identity and unread count.
func (s *chatService) Connect(ctx context.Context, c *hub.Client) error {
	if prev := s.hub.Register(c); prev != nil {
		l := log.Ctx(ctx)
		l.Info().Str("replaced_conn_id", prev.ID).Msg("presence entry replaced by newer connection")
	}

	audit.Log(ctx, audit.ActionAuth, c.Identity.ID, "websocket connected")

	if err := c.SendMessage(&domain.ConnectedEvent{Type: domain.MsgTypeConnected, Identity: c.Identity}); err != nil {
		return err
	}

	count, err := s.notifier.UnreadCount(ctx, c.Identity.ID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to load unread count on connect")
		return nil
	}
	return c.SendMessage(&domain.UnreadCountEvent{Type: domain.MsgTypeUnreadCount, Count: count})
}

// Disconnect removes every trace of the connection from the hub.
func (s *chatService) Disconnect(ctx context.Context, c *hub.Client) {
	s.hub.Unregister(c)
	audit.Log(ctx, audit.ActionDisconnect, c.Identity.ID, "websocket disconnected")
}

func (s *chatService) MarkRead(ctx context.Context, c *hub.Client, notificationID string) error {
	if notificationID == "" {
		return &domain.ValidationError{Field: "notification_id", Reason: "is required"}
	}
	if err := s.notifier.MarkRead(ctx, c.Identity.ID, notificationID); err != nil {
		return err
	}
	audit.LogTarget(ctx, audit.ActionMarkRead, c.Identity.ID, notificationID, "notification marked read")
	return nil
}

func (s *chatService) ListSessions(ctx context.Context, identity domain.Identity, page, limit int) ([]domain.ChatSession, int64, error) {
	page, limit = normalizePage(page, limit, sessionMaxLimit)

	sessions, total, err := s.sessions.ListForIdentity(ctx, identity, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, &domain.TransientStoreError{Op: "list sessions", Err: err}
	}
	return sessions, total, nil
}

// History pages through a session's messages in ascending order. cursor is
// the last message id the caller has seen.
func (s *chatService) History(ctx context.Context, identity domain.Identity, sessionID, cursor string, limit int) (*domain.MessagePage, error) {
	if cursor != "" {
		if ok, reason := idgen.Validate(cursor); !ok {
			return nil, &domain.ValidationError{Field: "cursor", Reason: reason}
		}
	}
	if limit < 1 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CanAccess(identity) {
		return nil, &domain.PermissionError{ActorID: identity.ID, Action: "read session " + sessionID}
	}

	msgs, hasMore, err := s.messages.ListAfter(ctx, sessionID, cursor, limit)
	if err != nil {
		return nil, &domain.TransientStoreError{Op: "list messages", Err: err}
	}

	page := &domain.MessagePage{
		SessionID: sessionID,
		Messages:  msgs,
		HasMore:   hasMore,
	}
	if hasMore && len(msgs) > 0 {
		page.NextCursor = msgs[len(msgs)-1].ID
	}
	return page, nil
}

// Stop waits for background archive uploads and closes the event bus.
func (s *chatService) Stop() error {
	s.background.Wait()
	return s.publisher.Close()
}

func (s *chatService) getSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.NotFoundError{Kind: "session", ID: sessionID}
		}
		return nil, &domain.TransientStoreError{Op: "load session", Err: err}
	}
	return session, nil
}

// systemMessage builds a not yet persisted system note for a session.
func (s *chatService) systemMessage(sessionID, body string) (*domain.Message, error) {
	id, createdAt, err := s.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	return &domain.Message{
		ID:        id,
		SessionID: sessionID,
		SenderID:  domain.SystemSenderID,
		Body:      body,
		IsSystem:  true,
		CreatedAt: createdAt,
	}, nil
}

// sendHistory pushes the latest messages of a session to one client.
func (s *chatService) sendHistory(ctx context.Context, c *hub.Client, sessionID string) error {
	msgs, err := s.messages.ListRecent(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return &domain.TransientStoreError{Op: "load history", Err: err}
	}
	return c.SendMessage(&domain.HistoryEvent{
		Type:      domain.MsgTypeHistory,
		SessionID: sessionID,
		Messages:  msgs,
	})
}

// publish forwards a lifecycle event to the event bus. Failures are logged
// only; the bus is never on the delivery path.
func (s *chatService) publish(ctx context.Context, eventType, sessionID string, payload interface{}) {
	ctx = log.WithSession(ctx, sessionID)
	event, err := pubsub.NewEvent(eventType, sessionID, payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, pubsub.SessionChannel(sessionID), event); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// archive uploads the transcript of a closed session in the background.
func (s *chatService) archive(ctx context.Context, session domain.ChatSession) {
	if s.archiver == nil {
		return
	}

	l := log.Ctx(log.WithSession(ctx, session.ID))
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		bg := log.WithLogger(context.Background(), l)
		if err := s.archiver.Archive(bg, session); err != nil {
			l.Warn().Err(err).Msg("failed to archive transcript")
		}
	}()
}
