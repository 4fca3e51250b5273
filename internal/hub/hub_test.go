package hub

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-support-chat/internal/config"
	"github.com/weiawesome/wes-support-chat/internal/domain"
)

func newTestClient(h *Hub, connID, identityID string, role domain.Role, buffer int) *Client {
	return NewClient(connID, domain.Identity{ID: identityID, Role: role}, h, nil, config.WebSocketConfig{SendBuffer: buffer})
}

func drain(c *Client) []string {
	var types []string
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return types
			}
			var base domain.BaseMessage
			_ = json.Unmarshal(data, &base)
			types = append(types, base.Type)
		default:
			return types
		}
	}
}

func TestRegister_ReplacesPriorConnection(t *testing.T) {
	h := NewHub()
	first := newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 4)
	second := newTestClient(h, "conn-2", "c1", domain.RoleCustomer, 4)

	assert.Nil(t, h.Register(first))
	assert.Same(t, first, h.Register(second))

	got, ok := h.Lookup(domain.RoleCustomer, "c1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 2, h.ClientCount())

	// Dropping the replaced connection must not remove the newer entry.
	assert.True(t, h.Unregister(first))
	got, ok = h.Lookup(domain.RoleCustomer, "c1")
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.True(t, h.Unregister(second))
	_, ok = h.LookupIdentity("c1")
	assert.False(t, ok)
	assert.False(t, h.Unregister(second))
}

func TestRegister_PartitionsByRole(t *testing.T) {
	h := NewHub()
	h.Register(newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 4))
	h.Register(newTestClient(h, "conn-2", "a1", domain.RoleAgent, 4))
	h.Register(newTestClient(h, "conn-3", "a2", domain.RoleAgent, 4))

	_, ok := h.Lookup(domain.RoleAgent, "c1")
	assert.False(t, ok)
	_, ok = h.LookupIdentity("c1")
	assert.True(t, ok)
	assert.Len(t, h.Agents(), 2)
}

func TestUnregister_RemovesRoomMembership(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 4)
	h.Register(c)
	require.True(t, h.Join(c, "s1"))
	require.True(t, h.Join(c, "s2"))

	h.Unregister(c)
	assert.Equal(t, 0, h.RoomSize("s1"))
	assert.Equal(t, 0, h.RoomSize("s2"))
	assert.False(t, h.Join(c, "s3"))

	_, open := <-c.Send
	assert.False(t, open)
}

func TestBroadcast_ReachesRoomMembersOnly(t *testing.T) {
	h := NewHub()
	cust := newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 4)
	agent := newTestClient(h, "conn-2", "a1", domain.RoleAgent, 4)
	other := newTestClient(h, "conn-3", "a2", domain.RoleAgent, 4)
	for _, c := range []*Client{cust, agent, other} {
		h.Register(c)
	}
	h.Join(cust, "s1")
	h.Join(agent, "s1")

	reached, err := h.Broadcast("s1", domain.SessionClosedEvent{Type: domain.MsgTypeSessionClosed, SessionID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, reached, "c1")
	assert.Contains(t, reached, "a1")
	assert.NotContains(t, reached, "a2")

	assert.Equal(t, []string{domain.MsgTypeSessionClosed}, drain(cust))
	assert.Equal(t, []string{domain.MsgTypeSessionClosed}, drain(agent))
	assert.Empty(t, drain(other))
}

func TestBroadcast_SlowConsumerIsDropped(t *testing.T) {
	h := NewHub()
	slow := newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 1)
	h.Register(slow)
	h.Join(slow, "s1")

	evt := domain.SessionClosedEvent{Type: domain.MsgTypeSessionClosed, SessionID: "s1"}
	reached, err := h.Broadcast("s1", evt)
	require.NoError(t, err)
	assert.Contains(t, reached, "c1")

	reached, err = h.Broadcast("s1", evt)
	require.NoError(t, err)
	assert.NotContains(t, reached, "c1")

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.RoomSize("s1"))
}

func TestEvictRoom(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 4)
	h.Register(c)
	h.Join(c, "s1")

	assert.Equal(t, 1, h.EvictRoom("s1"))
	assert.False(t, h.IsMember(c, "s1"))
	reached, err := h.Broadcast("s1", map[string]string{"type": "x"})
	require.NoError(t, err)
	assert.Empty(t, reached)
}

func TestSendJSON_AfterUnregisterIsNoop(t *testing.T) {
	h := NewHub()
	c := newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 4)
	h.Register(c)
	h.Unregister(c)

	assert.NotPanics(t, func() {
		assert.NoError(t, c.SendMessage(map[string]string{"type": domain.MsgTypePong}))
	})
}

func TestConcurrentRegisterBroadcastUnregister(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newTestClient(h, "conn-"+string(rune('A'+i)), "c1", domain.RoleCustomer, 8)
			h.Register(c)
			h.Join(c, "s1")
			_, _ = h.Broadcast("s1", map[string]string{"type": "tick"})
			h.Unregister(c)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, h.ClientCount())
	_, ok := h.LookupIdentity("c1")
	assert.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	h := NewHub()
	h.Register(newTestClient(h, "conn-1", "c1", domain.RoleCustomer, 4))
	h.Register(newTestClient(h, "conn-2", "a1", domain.RoleAgent, 4))

	h.CloseAll()
	assert.Equal(t, 0, h.ClientCount())
	assert.Empty(t, h.Agents())
}
