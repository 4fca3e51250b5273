package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func systemMessage(sessionID, body string) *domain.Message {
	return &domain.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		SenderID:  domain.SystemSenderID,
		Body:      body,
		IsSystem:  true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, &domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleCustomer}, "alice@example.com"))
	id, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleCustomer}, *id)

	// Upsert refreshes the role in place.
	require.NoError(t, repo.Upsert(ctx, &domain.Identity{ID: "u1", DisplayName: "Alice", Role: domain.RoleAgent}, "alice@example.com"))
	id, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAgent, id.Role)

	err = repo.Upsert(ctx, &domain.Identity{ID: "u2", DisplayName: "Mallory", Role: domain.RoleCustomer}, "alice@example.com")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessions := NewGormSessionRepository(db)
	messages := NewGormMessageRepository(db)

	s := &domain.ChatSession{ID: "s1", CustomerID: "c1", Subject: "order question", Status: domain.SessionPending}
	require.NoError(t, sessions.Create(ctx, s, systemMessage("s1", "session started")))
	assert.False(t, s.CreatedAt.IsZero())

	open, err := sessions.FindOpenByCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", open.ID)

	assigned, err := sessions.Assign(ctx, "s1", "a1", systemMessage("s1", "agent joined"))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, assigned.Status)
	assert.Equal(t, "a1", assigned.AgentID)

	// Re-admit overwrites the assignment.
	assigned, err = sessions.Assign(ctx, "s1", "a2", systemMessage("s1", "agent joined"))
	require.NoError(t, err)
	assert.Equal(t, "a2", assigned.AgentID)

	closed, err := sessions.Close(ctx, "s1", systemMessage("s1", "closed"))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionClosed, closed.Status)

	_, err = sessions.Close(ctx, "s1", systemMessage("s1", "closed again"))
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = sessions.Assign(ctx, "s1", "a3", systemMessage("s1", "late"))
	assert.ErrorIs(t, err, ErrSessionClosed)

	// Rejected transitions leave no system message behind.
	all, err := messages.ListAll(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "closed", all[3].Body)

	_, err = sessions.FindOpenByCustomer(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = sessions.Close(ctx, "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = sessions.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepository_ListForIdentity(t *testing.T) {
	ctx := context.Background()
	sessions := NewGormSessionRepository(newTestDB(t))

	for i := 0; i < 3; i++ {
		s := &domain.ChatSession{
			ID:         fmt.Sprintf("s%d", i),
			CustomerID: "c1",
			Subject:    "q",
			Status:     domain.SessionPending,
			CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, sessions.Create(ctx, s, nil))
	}
	_, err := sessions.Assign(ctx, "s1", "a1", nil)
	require.NoError(t, err)

	list, total, err := sessions.ListForIdentity(ctx, domain.Identity{ID: "c1", Role: domain.RoleCustomer}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)

	list, total, err = sessions.ListForIdentity(ctx, domain.Identity{ID: "a1", Role: domain.RoleAgent}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)
}

func TestMessageRepository_Ordering(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMessageRepository(newTestDB(t))

	entropy := ulid.Monotonic(strings.NewReader(strings.Repeat("x", 4096)), 0)
	now := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		id := ulid.MustNew(ulid.Timestamp(now), entropy).String()
		ids = append(ids, id)
		require.NoError(t, repo.Create(ctx, &domain.Message{
			ID:        id,
			SessionID: "s1",
			SenderID:  "c1",
			Body:      fmt.Sprintf("m%d", i),
			CreatedAt: now.UTC(),
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.Message{ID: ulid.Make().String(), SessionID: "other", SenderID: "c9", Body: "x", CreatedAt: now}))

	recent, err := repo.ListRecent(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"m2", "m3", "m4"}, bodies(recent))

	page, more, err := repo.ListAfter(ctx, "s1", "", 2)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, []string{"m0", "m1"}, bodies(page))

	page, more, err = repo.ListAfter(ctx, "s1", ids[1], 10)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []string{"m2", "m3", "m4"}, bodies(page))

	all, err := repo.ListAll(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestNotificationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormNotificationRepository(newTestDB(t))

	var ids []string
	for i := 0; i < 3; i++ {
		n := &domain.Notification{
			ID:          ulid.Make().String(),
			RecipientID: "c1",
			Type:        domain.NotificationTypeChatMessage,
			Title:       "New message",
			TargetID:    "s1",
			TargetType:  domain.TargetTypeChat,
			ActionURL:   "/support/chats/s1",
		}
		require.NoError(t, repo.Create(ctx, n))
		ids = append(ids, n.ID)
	}

	count, err := repo.CountUnread(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, repo.MarkRead(ctx, "c1", ids[0]))
	require.NoError(t, repo.MarkRead(ctx, "c1", ids[0]))
	assert.ErrorIs(t, repo.MarkRead(ctx, "someone-else", ids[1]), ErrNotFound)

	unread, total, err := repo.List(ctx, "c1", true, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, unread, 2)

	changed, err := repo.MarkAllRead(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	count, err = repo.CountUnread(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, count)

	all, total, err := repo.List(ctx, "c1", false, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 3)
	assert.True(t, all[0].IsRead)
	assert.NotNil(t, all[0].ReadAt)
}

func bodies(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}
