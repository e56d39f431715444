// Package messaging delivers agent-to-agent messages. Content is not
// inspected or filtered; distance-based noise is the only transformation
// applied in transit.
package messaging

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Message is one delivered message as it landed in the recipient's inbox.
// Content is the post-noise text; the clean original is never stored.
type Message struct {
	ID             string  `json:"message_id"`
	Tick           int64   `json:"tick"`
	FromAgent      string  `json:"from_agent"`
	ToAgent        string  `json:"to_agent"`
	Content        string  `json:"content"`
	NoiseFactor    float64 `json:"noise_factor"`
	Readability    string  `json:"readability"`
	SenderRegion   string  `json:"sender_region"`
	ReceiverRegion string  `json:"receiver_region"`
	Timestamp      float64 `json:"timestamp"`
}

// Bus holds every agent inbox. Messages are append-only; agents poll their
// inbox rather than receiving pushes.
type Bus struct {
	mu      sync.Mutex
	inboxes map[string][]Message
	nextID  int
	rng     *rand.Rand
}

// NewBus creates an empty message bus.
func NewBus() *Bus {
	return &Bus{
		inboxes: make(map[string][]Message),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Deliver applies transit noise and appends the message to the recipient's
// inbox. Delivery never fails: a dead or unknown recipient simply has an
// inbox nobody reads.
func (b *Bus) Deliver(tick int64, from, to, content string, noise float64, senderRegion, receiverRegion string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := Message{
		ID:             fmt.Sprintf("msg_%08d", b.nextID),
		Tick:           tick,
		FromAgent:      from,
		ToAgent:        to,
		Content:        ApplyNoise(content, noise, b.rng),
		NoiseFactor:    noise,
		Readability:    Readability(noise),
		SenderRegion:   senderRegion,
		ReceiverRegion: receiverRegion,
		Timestamp:      float64(time.Now().UnixNano()) / 1e9,
	}
	b.nextID++
	b.inboxes[to] = append(b.inboxes[to], msg)
}

// Inbox returns the recipient's messages at or after sinceTick, oldest
// first.
func (b *Bus) Inbox(agentID string, sinceTick int64) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, msg := range b.inboxes[agentID] {
		if msg.Tick >= sinceTick {
			out = append(out, msg)
		}
	}
	return out
}

// AllMessages returns every delivered message across all inboxes, oldest
// first. Observer surface: the feed is public by design of the world.
func (b *Bus) AllMessages(limit int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []Message
	for _, inbox := range b.inboxes {
		all = append(all, inbox...)
	}
	// Inbox iteration order is random; restore delivery order by id.
	// Ids are zero-padded so lexical order is delivery order.
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// Count returns the total number of delivered messages.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, inbox := range b.inboxes {
		n += len(inbox)
	}
	return n
}
