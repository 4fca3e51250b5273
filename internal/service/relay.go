package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/weiawesome/wes-support-chat/internal/audit"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/pubsub"
)

// Send persists a message and multicasts it to the session room. Recipients
// that were not in the room get one offline notification each.
func (s *chatService) Send(ctx context.Context, c *hub.Client, sessionID, body string) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &domain.ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(body); n > s.cfg.MaxBodyLength {
		return nil, &domain.ValidationError{Field: "body", Reason: "too long"}
	}

	msg, offline, err := s.relay(ctx, c, sessionID, body)
	if err != nil {
		return nil, err
	}

	for _, recipientID := range offline {
		if _, err := s.notifier.NotifyOffline(ctx, recipientID, msg); err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldUserID, recipientID).Str("message_id", msg.ID).Msg("offline notification failed")
		}
	}

	return msg, nil
}

// relay does the serialized part of Send and returns the recipients that
// were absent from the room at multicast time.
func (s *chatService) relay(ctx context.Context, c *hub.Client, sessionID, body string) (*domain.Message, []string, error) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.IsClosed() {
		return nil, nil, &domain.SessionClosedError{SessionID: sessionID}
	}

	sender := c.Identity
	switch {
	case sender.IsCustomer():
		if sender.ID != session.CustomerID {
			return nil, nil, &domain.PermissionError{ActorID: sender.ID, Action: "send to session " + sessionID}
		}
	case sender.IsAgent():
		if session.AgentID == "" {
			// An agent writing into an unclaimed session takes it.
			if session, err = s.admitLocked(ctx, c, session); err != nil {
				return nil, nil, err
			}
			if session.IsClosed() {
				return nil, nil, &domain.SessionClosedError{SessionID: sessionID}
			}
		} else if session.AgentID != sender.ID {
			return nil, nil, &domain.PermissionError{ActorID: sender.ID, Action: "send to session " + sessionID}
		}
	default:
		return nil, nil, &domain.PermissionError{ActorID: sender.ID, Action: "send to session " + sessionID}
	}

	id, createdAt, err := s.ids.Generate()
	if err != nil {
		return nil, nil, err
	}
	msg := &domain.Message{
		ID:         id,
		SessionID:  sessionID,
		SenderID:   sender.ID,
		SenderName: displayName(sender),
		Body:       body,
		CreatedAt:  createdAt,
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, &domain.TransientStoreError{Op: "append message", Err: err}
	}

	// The sender follows the room it writes to, e.g. after reconnecting.
	if !s.hub.IsMember(c, sessionID) {
		s.hub.Join(c, sessionID)
	}

	reached, err := s.hub.Broadcast(sessionID, &domain.NewMessageEvent{Type: domain.MsgTypeNewMessage, Message: *msg})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("message_id", msg.ID).Msg("failed to broadcast message")
	}

	var offline []string
	for _, recipientID := range session.Recipients(sender.ID) {
		if _, ok := reached[recipientID]; !ok {
			offline = append(offline, recipientID)
		}
	}

	s.publish(ctx, pubsub.EventMessageSent, sessionID, msg)
	audit.LogTarget(ctx, audit.ActionSendMessage, sender.ID, sessionID, "message sent")

	return msg, offline, nil
}
