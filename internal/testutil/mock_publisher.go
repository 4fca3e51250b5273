package testutil

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-support-chat/pkg/pubsub"
)

// RecordingPublisher captures published events.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []*pubsub.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, _ string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Types returns the published event types in order.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}
