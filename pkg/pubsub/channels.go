package pubsub

import "fmt"

// Channel naming conventions for support chat events.
const (
	// Every lifecycle event of one chat session goes to the same channel so
	// that consumers see them in order.
	ChannelSessionEvents = "support:session:%s:events"
)

// Event types published by the chat service.
const (
	EventSessionStarted = "session_started"
	EventAgentAdmitted  = "agent_admitted"
	EventMessageSent    = "message_sent"
	EventSessionClosed  = "session_closed"
)

// SessionChannel returns the channel name for a chat session's events.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf(ChannelSessionEvents, sessionID)
}
