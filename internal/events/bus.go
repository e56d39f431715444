// Package events is the live side-channel for observers: ledger events are
// republished on an in-process bus, fanned out to websocket subscribers and
// optionally to Redis for other instances. The JSONL ledger stays the source
// of truth; this bus is best-effort and lossy under backpressure.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CloudKingTV/The-Observatory/internal/world"
)

// Envelope wraps one world event for live distribution.
type Envelope struct {
	ID         string         `json:"id"`
	Tick       int64          `json:"tick"`
	ActionType string         `json:"action_type"`
	AgentID    string         `json:"agent_id"`
	Success    bool           `json:"success"`
	Details    map[string]any `json:"details"`
	Error      string         `json:"error,omitempty"`
	Time       time.Time      `json:"time"`
}

// NewEnvelope wraps engine event data with a fresh id.
func NewEnvelope(data world.EventData) *Envelope {
	return &Envelope{
		ID:         uuid.New().String(),
		Tick:       data.Tick,
		ActionType: data.ActionType,
		AgentID:    data.AgentID,
		Success:    data.Success,
		Details:    data.Details,
		Error:      data.Error,
		Time:       time.Now(),
	}
}

// JSON serializes the envelope.
func (e *Envelope) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Bus is an in-process pub/sub fanout. Subscribers that fall behind have
// events dropped rather than stalling the publisher.
type Bus struct {
	mu         sync.RWMutex
	subs       []chan *Envelope
	bufferSize int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{bufferSize: 100}
}

// Subscribe returns a channel receiving every published envelope.
func (b *Bus) Subscribe() chan *Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *Envelope, b.bufferSize)
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(ch chan *Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filtered := make([]chan *Envelope, 0, len(b.subs))
	for _, s := range b.subs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.subs = filtered
	close(ch)
}

// Publish delivers an envelope to every subscriber without blocking.
func (b *Bus) Publish(env *Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
			// Subscriber is full; drop for them.
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
