package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	topic, key, err := channelToTopicAndKey(SessionChannel("S1"))
	require.NoError(t, err)
	assert.Equal(t, "support-session-events", topic)
	assert.Equal(t, "S1", key)

	for _, bad := range []string{"", "support:room:S1:events", "support:session::events", "a:b"} {
		_, _, err := channelToTopicAndKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewEvent_RoundTripPayload(t *testing.T) {
	type payload struct {
		Body string `json:"body"`
	}

	evt, err := NewEvent(EventMessageSent, "S1", payload{Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "S1", evt.SessionID)
	assert.False(t, evt.Timestamp.IsZero())

	var got payload
	require.NoError(t, evt.UnmarshalPayload(&got))
	assert.Equal(t, "hi", got.Body)
}

func TestNewPublisher_NoneAndUnknown(t *testing.T) {
	p, err := NewPublisher(Config{Driver: "none"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), SessionChannel("S1"), &Event{}))
	require.NoError(t, p.Close())

	_, err = NewPublisher(Config{Driver: "nats"})
	assert.Error(t, err)
}
