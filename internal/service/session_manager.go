package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/weiawesome/wes-support-chat/internal/audit"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/internal/repository"
	"github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/pubsub"
)

// StartSession opens a support session for a customer, or hands back the
// customer's session that is still open.
func (s *chatService) StartSession(ctx context.Context, c *hub.Client, subject string) (*domain.ChatSession, error) {
	if !c.Identity.IsCustomer() {
		return nil, &domain.PermissionError{ActorID: c.Identity.ID, Action: "start session"}
	}
	subject = s.normalizeSubject(subject)

	unlock := s.customerLocks.Lock(c.Identity.ID)
	defer unlock()

	existing, err := s.sessions.FindOpenByCustomer(ctx, c.Identity.ID)
	switch {
	case err == nil:
		session, resumed, err := s.resume(ctx, c, existing.ID)
		if err != nil {
			return nil, err
		}
		if resumed {
			return session, nil
		}
		// Closed after the lookup; open a fresh one below.
	case !errors.Is(err, repository.ErrNotFound):
		return nil, &domain.TransientStoreError{Op: "find open session", Err: err}
	}

	session := &domain.ChatSession{
		ID:         uuid.New().String(),
		CustomerID: c.Identity.ID,
		Subject:    subject,
		Status:     domain.SessionPending,
	}

	opening, err := s.systemMessage(session.ID, "Session started")
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, session, opening); err != nil {
		return nil, &domain.TransientStoreError{Op: "create session", Err: err}
	}

	s.hub.Join(c, session.ID)
	if err := c.SendMessage(&domain.SessionCreatedEvent{
		Type:      domain.MsgTypeSessionCreated,
		SessionID: session.ID,
		Subject:   session.Subject,
		Status:    session.Status,
	}); err != nil {
		return nil, err
	}

	announce := &domain.NewSessionEvent{Type: domain.MsgTypeNewSession, Session: *session}
	for _, agent := range s.hub.Agents() {
		if err := agent.SendMessage(announce); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldConnID, agent.ID).Msg("failed to announce new session")
		}
	}

	s.publish(ctx, pubsub.EventSessionStarted, session.ID, session)
	audit.LogTarget(ctx, audit.ActionStartSession, c.Identity.ID, session.ID, "support session started")

	return session, nil
}

// resume rejoins a customer to the open session StartSession found. The
// session is re-read under its lock; resumed is false when it was closed in
// the meantime.
func (s *chatService) resume(ctx context.Context, c *hub.Client, sessionID string) (session *domain.ChatSession, resumed bool, err error) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	session, err = s.getSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if session.IsClosed() {
		return nil, false, nil
	}

	s.hub.Join(c, session.ID)
	if err := c.SendMessage(&domain.SessionCreatedEvent{
		Type:      domain.MsgTypeSessionCreated,
		SessionID: session.ID,
		Subject:   session.Subject,
		Status:    session.Status,
	}); err != nil {
		return nil, false, err
	}
	if err := s.sendHistory(ctx, c, session.ID); err != nil {
		return nil, false, err
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldSessionID, session.ID).Msg("reusing open session")
	return session, true, nil
}

// JoinSession (re)attaches a connection to a session room and sends the
// history. Closed sessions only get the history.
func (s *chatService) JoinSession(ctx context.Context, c *hub.Client, sessionID string) (*domain.ChatSession, error) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CanAccess(c.Identity) {
		return nil, &domain.PermissionError{ActorID: c.Identity.ID, Action: "join session " + sessionID}
	}

	// History is read before joining so a failed read leaves membership
	// untouched; the lock keeps new messages out until both are done.
	msgs, err := s.messages.ListRecent(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, &domain.TransientStoreError{Op: "load history", Err: err}
	}

	if !session.IsClosed() {
		s.hub.Join(c, sessionID)
	}

	if err := c.SendMessage(&domain.HistoryEvent{
		Type:      domain.MsgTypeHistory,
		SessionID: sessionID,
		Messages:  msgs,
	}); err != nil {
		return nil, err
	}
	return session, nil
}

// AdmitAgent assigns the calling agent to a session. Re-admitting an
// in-progress session reassigns it; the previous agent is not told.
func (s *chatService) AdmitAgent(ctx context.Context, c *hub.Client, sessionID string) (*domain.ChatSession, error) {
	if !c.Identity.IsAgent() {
		return nil, &domain.PermissionError{ActorID: c.Identity.ID, Action: "admit agent"}
	}

	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return session, nil
	}
	return s.admitLocked(ctx, c, session)
}

// admitLocked runs with the session lock held.
func (s *chatService) admitLocked(ctx context.Context, c *hub.Client, session *domain.ChatSession) (*domain.ChatSession, error) {
	previous := session.AgentID

	note, err := s.systemMessage(session.ID, fmt.Sprintf("%s joined the chat", displayName(c.Identity)))
	if err != nil {
		return nil, err
	}

	updated, err := s.sessions.Assign(ctx, session.ID, c.Identity.ID, note)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionClosed):
			return s.getSession(ctx, session.ID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, &domain.NotFoundError{Kind: "session", ID: session.ID}
		default:
			return nil, &domain.TransientStoreError{Op: "assign agent", Err: err}
		}
	}

	if _, err := s.hub.Broadcast(session.ID, &domain.NewMessageEvent{Type: domain.MsgTypeNewMessage, Message: *note}); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to broadcast admit note")
	}

	s.hub.Join(c, session.ID)
	if err := s.sendHistory(ctx, c, session.ID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to send history to admitted agent")
	}

	if customer, ok := s.hub.Lookup(domain.RoleCustomer, updated.CustomerID); ok {
		if err := customer.SendMessage(&domain.AgentJoinedEvent{
			Type:      domain.MsgTypeAgentJoined,
			SessionID: session.ID,
			AgentID:   c.Identity.ID,
			AgentName: displayName(c.Identity),
		}); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("failed to push agent_joined")
		}
	}

	if previous != "" && previous != c.Identity.ID {
		l := log.Ctx(ctx)
		l.Info().Str(log.FieldSessionID, session.ID).Str("previous_agent_id", previous).Msg("session reassigned")
	}

	s.publish(ctx, pubsub.EventAgentAdmitted, session.ID, updated)
	audit.LogTarget(ctx, audit.ActionAdmitAgent, c.Identity.ID, session.ID, "agent admitted")

	return updated, nil
}

// CloseSession moves a session to its terminal state. Closing a closed
// session is a no-op.
func (s *chatService) CloseSession(ctx context.Context, c *hub.Client, sessionID string) (*domain.ChatSession, error) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.Identity.IsAgent() && c.Identity.ID != session.CustomerID {
		return nil, &domain.PermissionError{ActorID: c.Identity.ID, Action: "close session " + sessionID}
	}
	if session.IsClosed() {
		return session, nil
	}

	note, err := s.systemMessage(sessionID, fmt.Sprintf("Session closed by %s", displayName(c.Identity)))
	if err != nil {
		return nil, err
	}

	updated, err := s.sessions.Close(ctx, sessionID, note)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionClosed):
			return s.getSession(ctx, sessionID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, &domain.NotFoundError{Kind: "session", ID: sessionID}
		default:
			return nil, &domain.TransientStoreError{Op: "close session", Err: err}
		}
	}

	if _, err := s.hub.Broadcast(sessionID, &domain.NewMessageEvent{Type: domain.MsgTypeNewMessage, Message: *note}); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to broadcast close note")
	}
	if _, err := s.hub.Broadcast(sessionID, &domain.SessionClosedEvent{Type: domain.MsgTypeSessionClosed, SessionID: sessionID}); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to broadcast session_closed")
	}
	s.hub.EvictRoom(sessionID)

	s.publish(ctx, pubsub.EventSessionClosed, sessionID, updated)
	s.archive(ctx, *updated)
	audit.LogTarget(ctx, audit.ActionCloseSession, c.Identity.ID, sessionID, "support session closed")

	return updated, nil
}

func (s *chatService) normalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return s.cfg.DefaultSubject
	}
	if utf8.RuneCountInString(subject) > s.cfg.MaxSubject {
		subject = strings.TrimSpace(truncateRunes(subject, s.cfg.MaxSubject))
	}
	return subject
}

func displayName(id domain.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return id.ID
}
