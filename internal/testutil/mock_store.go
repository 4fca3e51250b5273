package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/repository"
)

// MockStore is a thread-safe in-memory backing for every repository
// interface. Each repository view shares the store's lock, so a test can
// inspect the whole state at once.
type MockStore struct {
	mu sync.Mutex

	Identities    map[string]domain.Identity
	Sessions      map[string]domain.ChatSession
	Messages      map[string][]domain.Message // sessionID -> ascending
	Notifications []domain.Notification

	// Injected failures, returned by every call of the matching repository
	// until reset.
	UserErr         error
	SessionErr      error
	MessageErr      error
	NotificationErr error

	UserLookups int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Identities: make(map[string]domain.Identity),
		Sessions:   make(map[string]domain.ChatSession),
		Messages:   make(map[string][]domain.Message),
	}
}

// AddIdentity seeds a user.
func (m *MockStore) AddIdentity(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Identities[id.ID] = id
}

// SetErrors replaces the injected failures.
func (m *MockStore) SetErrors(user, session, message, notification error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserErr = user
	m.SessionErr = session
	m.MessageErr = message
	m.NotificationErr = notification
}

// Session returns a copy of a stored session.
func (m *MockStore) Session(id string) (domain.ChatSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[id]
	return s, ok
}

// Transcript returns a copy of a session's messages.
func (m *MockStore) Transcript(sessionID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.Messages[sessionID]...)
}

// NotificationsFor returns a copy of a recipient's notifications in creation
// order.
func (m *MockStore) NotificationsFor(recipientID string) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.Notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

// Lookups returns how many times the user repository was read.
func (m *MockStore) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UserLookups
}

func (m *MockStore) Users() *MockUserRepository {
	return &MockUserRepository{m}
}

func (m *MockStore) SessionRepo() *MockSessionRepository {
	return &MockSessionRepository{m}
}

func (m *MockStore) MessageRepo() *MockMessageRepository {
	return &MockMessageRepository{m}
}

func (m *MockStore) NotificationRepo() *MockNotificationRepository {
	return &MockNotificationRepository{m}
}

// appendLocked keeps a session's messages sorted by ID. Callers hold mu.
func (m *MockStore) appendLocked(msg domain.Message) {
	msgs := append(m.Messages[msg.SessionID], msg)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	m.Messages[msg.SessionID] = msgs
}

// MockUserRepository implements repository.UserRepository.
type MockUserRepository struct{ m *MockStore }

func (r *MockUserRepository) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.UserLookups++
	if r.m.UserErr != nil {
		return nil, r.m.UserErr
	}
	identity, ok := r.m.Identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &identity, nil
}

func (r *MockUserRepository) Upsert(_ context.Context, identity *domain.Identity, _ string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.UserErr != nil {
		return r.m.UserErr
	}
	r.m.Identities[identity.ID] = *identity
	return nil
}

// MockSessionRepository implements repository.SessionRepository.
type MockSessionRepository struct{ m *MockStore }

func (r *MockSessionRepository) Create(_ context.Context, session *domain.ChatSession, opening *domain.Message) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.SessionErr != nil {
		return r.m.SessionErr
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.m.Sessions[session.ID] = *session
	if opening != nil {
		r.m.appendLocked(*opening)
	}
	return nil
}

func (r *MockSessionRepository) GetByID(_ context.Context, id string) (*domain.ChatSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.SessionErr != nil {
		return nil, r.m.SessionErr
	}
	s, ok := r.m.Sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *MockSessionRepository) FindOpenByCustomer(_ context.Context, customerID string) (*domain.ChatSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.SessionErr != nil {
		return nil, r.m.SessionErr
	}
	var found *domain.ChatSession
	for _, s := range r.m.Sessions {
		if s.CustomerID != customerID || s.IsClosed() {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			s := s
			found = &s
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *MockSessionRepository) Assign(_ context.Context, id, agentID string, note *domain.Message) (*domain.ChatSession, error) {
	return r.transition(id, note, func(s *domain.ChatSession) {
		s.AgentID = agentID
		s.Status = domain.SessionInProgress
	})
}

func (r *MockSessionRepository) Close(_ context.Context, id string, note *domain.Message) (*domain.ChatSession, error) {
	return r.transition(id, note, func(s *domain.ChatSession) {
		s.Status = domain.SessionClosed
	})
}

func (r *MockSessionRepository) transition(id string, note *domain.Message, apply func(*domain.ChatSession)) (*domain.ChatSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.SessionErr != nil {
		return nil, r.m.SessionErr
	}
	s, ok := r.m.Sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.IsClosed() {
		return nil, repository.ErrSessionClosed
	}
	apply(&s)
	s.UpdatedAt = time.Now().UTC()
	r.m.Sessions[id] = s
	if note != nil {
		r.m.appendLocked(*note)
	}
	return &s, nil
}

func (r *MockSessionRepository) ListForIdentity(_ context.Context, identity domain.Identity, offset, limit int) ([]domain.ChatSession, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.SessionErr != nil {
		return nil, 0, r.m.SessionErr
	}
	var all []domain.ChatSession
	for _, s := range r.m.Sessions {
		owner := s.CustomerID
		if identity.IsAgent() {
			owner = s.AgentID
		}
		if owner == identity.ID {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, offset, limit), int64(len(all)), nil
}

// MockMessageRepository implements repository.MessageRepository.
type MockMessageRepository struct{ m *MockStore }

func (r *MockMessageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.MessageErr != nil {
		return r.m.MessageErr
	}
	r.m.appendLocked(*msg)
	return nil
}

func (r *MockMessageRepository) ListRecent(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.MessageErr != nil {
		return nil, r.m.MessageErr
	}
	msgs := r.m.Messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message{}, msgs...), nil
}

func (r *MockMessageRepository) ListAfter(_ context.Context, sessionID, afterID string, limit int) ([]domain.Message, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.MessageErr != nil {
		return nil, false, r.m.MessageErr
	}
	out := []domain.Message{}
	for _, msg := range r.m.Messages[sessionID] {
		if afterID == "" || msg.ID > afterID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		return out[:limit], true, nil
	}
	return out, false, nil
}

func (r *MockMessageRepository) ListAll(_ context.Context, sessionID string) ([]domain.Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.MessageErr != nil {
		return nil, r.m.MessageErr
	}
	return append([]domain.Message{}, r.m.Messages[sessionID]...), nil
}

// MockNotificationRepository implements repository.NotificationRepository.
type MockNotificationRepository struct{ m *MockStore }

func (r *MockNotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.NotificationErr != nil {
		return r.m.NotificationErr
	}
	n.CreatedAt = time.Now().UTC()
	r.m.Notifications = append(r.m.Notifications, *n)
	return nil
}

func (r *MockNotificationRepository) List(_ context.Context, recipientID string, unreadOnly bool, offset, limit int) ([]domain.Notification, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.NotificationErr != nil {
		return nil, 0, r.m.NotificationErr
	}
	var all []domain.Notification
	for i := len(r.m.Notifications) - 1; i >= 0; i-- {
		n := r.m.Notifications[i]
		if n.RecipientID == recipientID && (!unreadOnly || !n.IsRead) {
			all = append(all, n)
		}
	}
	return page(all, offset, limit), int64(len(all)), nil
}

func (r *MockNotificationRepository) CountUnread(_ context.Context, recipientID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.NotificationErr != nil {
		return 0, r.m.NotificationErr
	}
	var count int64
	for _, n := range r.m.Notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MockNotificationRepository) MarkRead(_ context.Context, recipientID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.NotificationErr != nil {
		return r.m.NotificationErr
	}
	for i := range r.m.Notifications {
		n := &r.m.Notifications[i]
		if n.ID != id || n.RecipientID != recipientID {
			continue
		}
		if !n.IsRead {
			now := time.Now().UTC()
			n.IsRead = true
			n.ReadAt = &now
		}
		return nil
	}
	return repository.ErrNotFound
}

func (r *MockNotificationRepository) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.NotificationErr != nil {
		return 0, r.m.NotificationErr
	}
	var changed int64
	now := time.Now().UTC()
	for i := range r.m.Notifications {
		n := &r.m.Notifications[i]
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &now
			changed++
		}
	}
	return changed, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

var (
	_ repository.UserRepository         = (*MockUserRepository)(nil)
	_ repository.SessionRepository      = (*MockSessionRepository)(nil)
	_ repository.MessageRepository      = (*MockMessageRepository)(nil)
	_ repository.NotificationRepository = (*MockNotificationRepository)(nil)
)
