package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/internal/idgen"
	"github.com/weiawesome/wes-support-chat/internal/testutil"
)

type recordingArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (a *recordingArchiver) Archive(_ context.Context, session domain.ChatSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, session.ID)
	return nil
}

type fixture struct {
	svc      ChatService
	notifier NotificationService
	hub      *hub.Hub
	store    *testutil.MockStore
	pub      *testutil.RecordingPublisher
	archiver *recordingArchiver
	ctx      context.Context
	conns    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := hub.NewHub()
	store := testutil.NewMockStore()
	ids := idgen.NewULIDGenerator()
	pub := &testutil.RecordingPublisher{}
	arch := &recordingArchiver{}
	notifier := NewNotificationService(h, store.NotificationRepo(), ids, "")
	svc := NewChatService(h, store.SessionRepo(), store.MessageRepo(), notifier, pub, arch, ids, config.ChatConfig{})
	return &fixture{
		svc:      svc,
		notifier: notifier,
		hub:      h,
		store:    store,
		pub:      pub,
		archiver: arch,
		ctx:      context.Background(),
	}
}

// connect opens a connection for an identity and discards the greeting.
func (f *fixture) connect(t *testing.T, id, name string, role domain.Role) *hub.Client {
	t.Helper()
	f.conns++
	identity := domain.Identity{ID: id, DisplayName: name, Role: role}
	f.store.AddIdentity(identity)
	c := hub.NewClient(fmt.Sprintf("%s-conn-%d", id, f.conns), identity, f.hub, nil, config.WebSocketConfig{SendBuffer: 1024})
	require.NoError(t, f.svc.Connect(f.ctx, c))
	require.Equal(t, []string{domain.MsgTypeConnected, domain.MsgTypeUnreadCount}, types(events(c)))
	return c
}

type event struct {
	Type         string              `json:"type"`
	SessionID    string              `json:"session_id"`
	AgentID      string              `json:"agent_id"`
	Status       string              `json:"status"`
	Count        int64               `json:"count"`
	Code         string              `json:"code"`
	Message      domain.Message      `json:"message"`
	Messages     []domain.Message    `json:"messages"`
	Session      domain.ChatSession  `json:"session"`
	Notification domain.Notification `json:"notification"`
}

// events drains everything queued for a client without blocking.
func events(c *hub.Client) []event {
	var out []event
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var e event
			if err := json.Unmarshal(data, &e); err == nil {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func types(evts []event) []string {
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

func ofType(evts []event, typ string) []event {
	var out []event
	for _, e := range evts {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
