package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-support-chat/internal/domain"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type pageBody[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

func (f *fixture) do(t *testing.T, method, path, userID string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var body apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestHTTP_RequiresToken(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/v1/chats", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, body.Success)
}

func TestHTTP_UnknownUserIsUnauthorized(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/v1/chats", "ghost")
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, domain.ErrCodeUnauthorized, body.Error.Code)
}

func TestHTTP_ListChatsScopedToCustomer(t *testing.T) {
	f := newFixture(t)
	mine, _ := f.seedSession(t, "c1", "hello")
	f.seedSession(t, "c2", "other")

	code, body := f.do(t, http.MethodGet, "/api/v1/chats", "c1")
	require.Equal(t, http.StatusOK, code)

	var page pageBody[domain.ChatSession]
	require.NoError(t, json.Unmarshal(body.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, mine.ID, page.Items[0].ID)
	assert.EqualValues(t, 1, page.Total)

	// agents list what is assigned to them; nothing is yet
	code, body = f.do(t, http.MethodGet, "/api/v1/chats", "a1")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.EqualValues(t, 0, page.Total)
}

func TestHTTP_ListChatsRejectsBadPaging(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodGet, "/api/v1/chats?page=0", "c1")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/chats?limit=abc", "c1")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTP_GetMessages(t *testing.T) {
	f := newFixture(t)
	session, msg := f.seedSession(t, "c1", "where is my parcel")

	code, body := f.do(t, http.MethodGet, "/api/v1/chats/"+session.ID+"/messages", "c1")
	require.Equal(t, http.StatusOK, code)

	var page domain.MessagePage
	require.NoError(t, json.Unmarshal(body.Data, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
	assert.False(t, page.HasMore)

	code, _ = f.do(t, http.MethodGet, "/api/v1/chats/"+session.ID+"/messages", "a1")
	assert.Equal(t, http.StatusOK, code)
}

func TestHTTP_GetMessagesErrors(t *testing.T) {
	f := newFixture(t)
	session, _ := f.seedSession(t, "c1", "private")

	code, body := f.do(t, http.MethodGet, "/api/v1/chats/"+session.ID+"/messages", "c2")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, domain.ErrCodeForbidden, body.Error.Code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/chats/01ARZ3NDEKTSV4RRFFQ69G5FAV/messages", "a1")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/chats/"+session.ID+"/messages?cursor=nope", "c1")
	assert.Equal(t, http.StatusBadRequest, code)

	f.store.SetErrors(nil, assert.AnError, nil, nil)
	code, body = f.do(t, http.MethodGet, "/api/v1/chats/"+session.ID+"/messages", "c1")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, domain.ErrCodeUnavailable, body.Error.Code)
}

func TestHTTP_Notifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, msg := f.seedSession(t, "c1", "ping")

	first, err := f.notifier.NotifyOffline(ctx, "a1", &msg)
	require.NoError(t, err)
	_, err = f.notifier.NotifyOffline(ctx, "a1", &msg)
	require.NoError(t, err)

	code, body := f.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "a1")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":2}`, string(body.Data))

	code, _ = f.do(t, http.MethodPatch, "/api/v1/notifications/"+first.ID+"/read", "a1")
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodGet, "/api/v1/notifications?unread_only=true", "a1")
	require.Equal(t, http.StatusOK, code)
	var page pageBody[domain.Notification]
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.EqualValues(t, 1, page.Total)
	assert.NotEqual(t, first.ID, page.Items[0].ID)

	code, body = f.do(t, http.MethodPost, "/api/v1/notifications/read-all", "a1")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":1}`, string(body.Data))

	code, body = f.do(t, http.MethodGet, "/api/v1/notifications", "a1")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.EqualValues(t, 2, page.Total)
}

func TestHTTP_MarkReadForeignNotification(t *testing.T) {
	f := newFixture(t)
	_, msg := f.seedSession(t, "c1", "ping")

	n, err := f.notifier.NotifyOffline(context.Background(), "a1", &msg)
	require.NoError(t, err)

	code, _ := f.do(t, http.MethodPatch, "/api/v1/notifications/"+n.ID+"/read", "c1")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHTTP_Health(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
