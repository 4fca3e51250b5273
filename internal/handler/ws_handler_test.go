package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-support-chat/internal/domain"
)

type wsEvent struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id"`
	AgentID   string             `json:"agent_id"`
	Subject   string             `json:"subject"`
	Status    string             `json:"status"`
	Code      string             `json:"code"`
	Reason    string             `json:"reason"`
	Count     int64              `json:"count"`
	Message   domain.Message     `json:"message"`
	Messages  []domain.Message   `json:"messages"`
	Session   domain.ChatSession `json:"session"`
}

func (f *fixture) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
}

func (f *fixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(f.token(t, userID)), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	readUntil(t, conn, domain.MsgTypeUnreadCount)
	return conn
}

func writeIntent(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		var e wsEvent
		require.NoError(t, json.Unmarshal(data, &e))
		if e.Type == typ {
			return e
		}
	}
}

func TestHandshake_RejectsBadToken(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("not-a-token"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body wsEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.MsgTypeError, body.Type)
	assert.Equal(t, domain.ErrCodeUnauthorized, body.Code)
	assert.Equal(t, string(domain.AuthInvalid), body.Reason)
	assert.Equal(t, 0, f.hub.ClientCount())
}

func TestHandshake_RejectsUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(f.token(t, "ghost")), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshake_StoreDownIsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.SetErrors(assert.AnError, nil, nil, nil)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(f.token(t, "c1")), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocket_SupportConversation(t *testing.T) {
	f := newFixture(t)

	agent := f.dial(t, "a1")
	customer := f.dial(t, "c1")

	writeIntent(t, customer, domain.StartSessionMessage{Type: domain.MsgTypeStartSession, Subject: "Where is my order?"})
	created := readUntil(t, customer, domain.MsgTypeSessionCreated)
	sid := created.SessionID
	require.NotEmpty(t, sid)
	assert.Equal(t, string(domain.SessionPending), created.Status)
	assert.Equal(t, "Where is my order?", created.Subject)

	announced := readUntil(t, agent, domain.MsgTypeNewSession)
	assert.Equal(t, sid, announced.Session.ID)

	writeIntent(t, agent, domain.SessionRefMessage{Type: domain.MsgTypeAdmitAgent, SessionID: sid})
	history := readUntil(t, agent, domain.MsgTypeHistory)
	assert.Equal(t, sid, history.SessionID)
	assert.NotEmpty(t, history.Messages)

	joined := readUntil(t, customer, domain.MsgTypeAgentJoined)
	assert.Equal(t, "a1", joined.AgentID)

	writeIntent(t, customer, domain.SendMessageMessage{Type: domain.MsgTypeSendMessage, SessionID: sid, Body: "Order 1042 never arrived"})
	relayed := readUntil(t, agent, domain.MsgTypeNewMessage)
	for relayed.Message.IsSystem {
		relayed = readUntil(t, agent, domain.MsgTypeNewMessage)
	}
	assert.Equal(t, "Order 1042 never arrived", relayed.Message.Body)
	assert.Equal(t, "c1", relayed.Message.SenderID)

	writeIntent(t, agent, domain.SessionRefMessage{Type: domain.MsgTypeCloseSession, SessionID: sid})
	closed := readUntil(t, customer, domain.MsgTypeSessionClosed)
	assert.Equal(t, sid, closed.SessionID)

	session, ok := f.store.Session(sid)
	require.True(t, ok)
	assert.Equal(t, domain.SessionClosed, session.Status)
	assert.Equal(t, "a1", session.AgentID)
}

func TestWebSocket_OfflineAgentGetsNotification(t *testing.T) {
	f := newFixture(t)

	customer := f.dial(t, "c1")
	writeIntent(t, customer, domain.StartSessionMessage{Type: domain.MsgTypeStartSession})
	sid := readUntil(t, customer, domain.MsgTypeSessionCreated).SessionID

	// the agent takes the session, then drops off
	agent := f.dial(t, "a1")
	writeIntent(t, agent, domain.SessionRefMessage{Type: domain.MsgTypeAdmitAgent, SessionID: sid})
	readUntil(t, agent, domain.MsgTypeHistory)
	require.NoError(t, agent.Close())

	require.Eventually(t, func() bool {
		_, present := f.hub.LookupIdentity("a1")
		return !present
	}, 2*time.Second, 10*time.Millisecond)

	writeIntent(t, customer, domain.SendMessageMessage{Type: domain.MsgTypeSendMessage, SessionID: sid, Body: "anyone there?"})
	require.Eventually(t, func() bool {
		return len(f.store.NotificationsFor("a1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	n := f.store.NotificationsFor("a1")[0]
	assert.Equal(t, sid, n.TargetID)
	assert.Equal(t, "anyone there?", n.Body)
	assert.False(t, n.IsRead)
}

func TestWebSocket_ErrorsGoToSenderOnly(t *testing.T) {
	f := newFixture(t)
	customer := f.dial(t, "c1")

	writeIntent(t, customer, map[string]string{"type": "dance"})
	e := readUntil(t, customer, domain.MsgTypeError)
	assert.Equal(t, domain.ErrCodeBadRequest, e.Code)

	writeIntent(t, customer, domain.SessionRefMessage{Type: domain.MsgTypeJoinSession})
	e = readUntil(t, customer, domain.MsgTypeError)
	assert.Equal(t, domain.ErrCodeBadRequest, e.Code)

	writeIntent(t, customer, domain.SessionRefMessage{Type: domain.MsgTypeAdmitAgent, SessionID: "missing"})
	e = readUntil(t, customer, domain.MsgTypeError)
	assert.Equal(t, domain.ErrCodeForbidden, e.Code)

	require.NoError(t, customer.WriteMessage(websocket.TextMessage, []byte("{not json")))
	e = readUntil(t, customer, domain.MsgTypeError)
	assert.Equal(t, domain.ErrCodeBadRequest, e.Code)

	// the connection survives every rejected intent
	writeIntent(t, customer, domain.BaseMessage{Type: domain.MsgTypePing})
	readUntil(t, customer, domain.MsgTypePong)
}

func TestWebSocket_ClosingReplacedConnectionKeepsPresence(t *testing.T) {
	f := newFixture(t)

	first := f.dial(t, "c1")
	second := f.dial(t, "c1")
	require.Equal(t, 2, f.hub.ClientCount())

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return f.hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, present := f.hub.LookupIdentity("c1")
	assert.True(t, present)

	writeIntent(t, second, domain.BaseMessage{Type: domain.MsgTypePing})
	readUntil(t, second, domain.MsgTypePong)
}
