package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-support-chat/internal/auth"
	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/hub"
	"github.com/weiawesome/wes-support-chat/internal/idgen"
	"github.com/weiawesome/wes-support-chat/internal/service"
	"github.com/weiawesome/wes-support-chat/internal/testutil"
	"github.com/weiawesome/wes-support-chat/pkg/jwt"
	"github.com/weiawesome/wes-support-chat/pkg/middleware"
)

type fixture struct {
	hub      *hub.Hub
	store    *testutil.MockStore
	ids      *idgen.ULIDGenerator
	tokens   *jwt.Manager
	chat     service.ChatService
	notifier service.NotificationService
	engine   *gin.Engine
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := jwt.NewManager("handler-test-secret", "storefront", time.Hour)
	require.NoError(t, err)

	store := testutil.NewMockStore()
	store.AddIdentity(domain.Identity{ID: "c1", DisplayName: "Carol", Role: domain.RoleCustomer})
	store.AddIdentity(domain.Identity{ID: "c2", DisplayName: "Chris", Role: domain.RoleCustomer})
	store.AddIdentity(domain.Identity{ID: "a1", DisplayName: "Alex", Role: domain.RoleAgent})

	h := hub.NewHub()
	ids := idgen.NewULIDGenerator()
	notifier := service.NewNotificationService(h, store.NotificationRepo(), ids, "/support/chats/%s")
	chat := service.NewChatService(h, store.SessionRepo(), store.MessageRepo(), notifier,
		&testutil.RecordingPublisher{}, nil, ids, config.ChatConfig{})
	authenticator := auth.NewAuthenticator(tokens, store.Users(), nil, time.Minute)

	engine := gin.New()
	NewHTTPHandler(chat, notifier, middleware.NewAuthMiddleware(tokens), authenticator, nil).RegisterRoutes(engine)

	mux := http.NewServeMux()
	NewWSHandler(h, chat, authenticator, config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 8192,
		SendBuffer:     64,
	}).RegisterRoutes(mux, zerolog.Nop())
	mux.Handle("/", engine)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
	})

	return &fixture{
		hub:      h,
		store:    store,
		ids:      ids,
		tokens:   tokens,
		chat:     chat,
		notifier: notifier,
		engine:   engine,
		server:   srv,
	}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := f.tokens.Issue(userID, userID, "")
	require.NoError(t, err)
	return token
}

// seedSession stores a session with one customer message and returns it.
func (f *fixture) seedSession(t *testing.T, customerID, body string) (domain.ChatSession, domain.Message) {
	t.Helper()
	ctx := context.Background()

	sid, created, err := f.ids.Generate()
	require.NoError(t, err)
	mid, _, err := f.ids.Generate()
	require.NoError(t, err)

	session := domain.ChatSession{
		ID:         sid,
		CustomerID: customerID,
		Subject:    "Order question",
		Status:     domain.SessionPending,
	}
	msg := domain.Message{
		ID:        mid,
		SessionID: sid,
		SenderID:  customerID,
		Body:      body,
		CreatedAt: created,
	}
	require.NoError(t, f.store.SessionRepo().Create(ctx, &session, &msg))
	return session, msg
}
