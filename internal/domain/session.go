package domain

import "time"

// SessionStatus is the lifecycle state of a chat session.
// pending -> in_progress -> closed; closed is terminal.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionClosed     SessionStatus = "closed"
)

type ChatSession struct {
	ID         string        `json:"id"`
	CustomerID string        `json:"customer_id"`
	AgentID    string        `json:"agent_id,omitempty"`
	Subject    string        `json:"subject"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (s *ChatSession) IsClosed() bool {
	return s.Status == SessionClosed
}

// CanAccess reports whether id may read the session: its customer, or any
// agent.
func (s *ChatSession) CanAccess(id Identity) bool {
	return id.IsAgent() || id.ID == s.CustomerID
}

// Recipients returns the identities that should receive a message from
// senderID: the customer and the assigned agent, minus the sender.
func (s *ChatSession) Recipients(senderID string) []string {
	out := make([]string, 0, 2)
	for _, id := range []string{s.CustomerID, s.AgentID} {
		if id != "" && id != senderID {
			out = append(out, id)
		}
	}
	return out
}
