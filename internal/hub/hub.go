package hub

import (
	"encoding/json"
	"sync"

	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/pkg/log"
)

// Hub owns the presence directory and room membership. Every send to a
// client goes through the hub so nothing is written to a Send channel after
// Unregister closed it.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client                 // connID -> client
	directory map[domain.Role]map[string]*Client // role -> identityID -> client
	rooms     map[string]map[string]*Client      // sessionID -> connID -> client
	joined    map[string]map[string]struct{}     // connID -> sessionIDs
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		directory: map[domain.Role]map[string]*Client{
			domain.RoleCustomer: make(map[string]*Client),
			domain.RoleAgent:    make(map[string]*Client),
		},
		rooms:  make(map[string]map[string]*Client),
		joined: make(map[string]map[string]struct{}),
	}
}

// Register makes the client reachable under its identity. A previous
// connection for the same identity is returned; it stays open and keeps its
// room memberships but can no longer be looked up.
func (h *Hub) Register(client *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	byID, ok := h.directory[client.Identity.Role]
	if !ok {
		byID = make(map[string]*Client)
		h.directory[client.Identity.Role] = byID
	}
	prev := byID[client.Identity.ID]
	byID[client.Identity.ID] = client

	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Str(log.FieldUserID, client.Identity.ID).Msg("client registered")

	if prev == client {
		return nil
	}
	return prev
}

// Unregister removes the client from the directory and from every room, then
// closes its Send channel. It reports false when the client was already gone.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}

	for sessionID := range h.joined[client.ID] {
		if members, ok := h.rooms[sessionID]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, sessionID)
			}
		}
	}
	delete(h.joined, client.ID)

	// A newer connection for the same identity keeps its entry.
	if byID, ok := h.directory[client.Identity.Role]; ok && byID[client.Identity.ID] == client {
		delete(byID, client.Identity.ID)
	}

	delete(h.clients, client.ID)
	close(client.Send)

	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Str(log.FieldUserID, client.Identity.ID).Msg("client unregistered")
	return true
}

// Lookup returns the live connection of an identity in one role partition.
func (h *Hub) Lookup(role domain.Role, identityID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.directory[role][identityID]
	return c, ok
}

// LookupIdentity searches every role partition.
func (h *Hub) LookupIdentity(identityID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, byID := range h.directory {
		if c, ok := byID[identityID]; ok {
			return c, true
		}
	}
	return nil, false
}

// Agents returns the present agent connections.
func (h *Hub) Agents() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.directory[domain.RoleAgent]))
	for _, c := range h.directory[domain.RoleAgent] {
		out = append(out, c)
	}
	return out
}

// Join adds the client to a session room. It returns false if the client has
// already disconnected.
func (h *Hub) Join(client *Client, sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.ID] != client {
		return false
	}

	members, ok := h.rooms[sessionID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[sessionID] = members
	}
	members[client.ID] = client

	sessions, ok := h.joined[client.ID]
	if !ok {
		sessions = make(map[string]struct{})
		h.joined[client.ID] = sessions
	}
	sessions[sessionID] = struct{}{}

	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Str(log.FieldSessionID, sessionID).Msg("client joined room")
	return true
}

// EvictRoom drops a room and returns how many connections were in it.
func (h *Hub) EvictRoom(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[sessionID]
	for connID := range members {
		if sessions, ok := h.joined[connID]; ok {
			delete(sessions, sessionID)
		}
	}
	delete(h.rooms, sessionID)
	return len(members)
}

func (h *Hub) IsMember(client *Client, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[sessionID][client.ID]
	return ok
}

// RoomSize returns the number of connections joined to a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues message to every connection in the session room and
// returns the identity IDs it reached. A connection whose buffer is full is
// dropped and does not count as reached.
func (h *Hub) Broadcast(sessionID string, message interface{}) (map[string]struct{}, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	reached := make(map[string]struct{}, len(h.rooms[sessionID]))
	for _, client := range h.rooms[sessionID] {
		if h.sendLocked(client, data) {
			reached[client.Identity.ID] = struct{}{}
		}
	}
	return reached, nil
}

// SendJSON queues message for one connection. It is a no-op for a client
// that is no longer registered.
func (h *Hub) SendJSON(client *Client, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.SendRaw(client, data)
	return nil
}

// SendRaw queues data for one connection and reports whether it was queued.
func (h *Hub) SendRaw(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sendLocked(client, data)
}

// sendLocked must be called with mu held for reading.
func (h *Hub) sendLocked(client *Client, data []byte) bool {
	if h.clients[client.ID] != client {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		l := log.L()
		l.Warn().Str(log.FieldConnID, client.ID).Msg("send buffer full, dropping connection")
		go h.Unregister(client)
		return false
	}
}

// CloseAll unregisters every connection. Their write pumps send a close frame
// and exit.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
