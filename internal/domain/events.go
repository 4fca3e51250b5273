package domain

// WebSocket message types from client.
const (
	MsgTypeStartSession = "start_session"
	MsgTypeJoinSession  = "join_session"
	MsgTypeSendMessage  = "send_message"
	MsgTypeAdmitAgent   = "admit_agent"
	MsgTypeCloseSession = "close_session"
	MsgTypeMarkRead     = "mark_read"
	MsgTypePing         = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeConnected       = "connected"
	MsgTypeSessionCreated  = "session_created"
	MsgTypeNewSession      = "new_session"
	MsgTypeAgentJoined     = "agent_joined"
	MsgTypeHistory         = "history"
	MsgTypeNewMessage      = "new_message"
	MsgTypeSessionClosed   = "session_closed"
	MsgTypeNewNotification = "new_notification"
	MsgTypeUnreadCount     = "unread_count"
	MsgTypeError           = "error"
	MsgTypePong            = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type StartSessionMessage struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
}

// SessionRefMessage covers join_session, admit_agent and close_session.
type SessionRefMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type SendMessageMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Body      string `json:"body"`
}

type MarkReadMessage struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id"`
}

// Server -> Client messages

type ConnectedEvent struct {
	Type     string   `json:"type"`
	Identity Identity `json:"identity"`
}

type SessionCreatedEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Subject   string        `json:"subject"`
	Status    SessionStatus `json:"status"`
}

type NewSessionEvent struct {
	Type    string      `json:"type"`
	Session ChatSession `json:"session"`
}

type AgentJoinedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

type HistoryEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

type NewMessageEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

type SessionClosedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type NewNotificationEvent struct {
	Type         string       `json:"type"`
	Notification Notification `json:"notification"`
}

type UnreadCountEvent struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type ErrorEvent struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func NewErrorEvent(code, reason string) *ErrorEvent {
	return &ErrorEvent{
		Type:   MsgTypeError,
		Code:   code,
		Reason: reason,
	}
}

// ErrorEventFrom converts a taxonomy error into the event sent back to the
// originating connection.
func ErrorEventFrom(err error) *ErrorEvent {
	code, reason := ErrorCode(err)
	return NewErrorEvent(code, reason)
}
