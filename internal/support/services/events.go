package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	logx "github.com/gridassist/server/pkg/logger"
)

const subscriberBuffer = 64

// Bus is the in-process progress event channel. Publishing never blocks: a
// subscriber that cannot keep up loses events (at-most-once delivery).
// Ordering is per-conversation FIFO for each subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: map[string][]chan Event{}}
}

// Publish fans the event out to every subscriber of the conversation.
func (b *Bus) Publish(conversationID, eventType string, payload map[string]any) {
	b.mu.RLock()
	channels := b.subs[conversationID]
	b.mu.RUnlock()
	if len(channels) == 0 {
		return
	}

	ev := Event{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Type:           eventType,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
	}

	for _, ch := range channels {
		select {
		case ch <- ev:
		default:
			logx.Warn().
				Str("conversation_id", conversationID).
				Str("event_type", eventType).
				Msg("slow event subscriber, dropping event")
		}
	}
}

// Subscribe registers a listener for one conversation. The returned cancel
// func detaches the listener and closes its channel; it is safe to call more
// than once.
func (b *Bus) Subscribe(conversationID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[conversationID] = append(b.subs[conversationID], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			channels := b.subs[conversationID]
			for i, c := range channels {
				if c == ch {
					b.subs[conversationID] = append(channels[:i], channels[i+1:]...)
					break
				}
			}
			if len(b.subs[conversationID]) == 0 {
				delete(b.subs, conversationID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

var _ EventSink = (*Bus)(nil)
