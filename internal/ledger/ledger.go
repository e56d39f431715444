// Package ledger is the append-only JSONL event history of the world. Every
// resolved action and every tick heartbeat is recorded; the file is never
// rewritten, so the full history can be replayed at any time.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/CloudKingTV/The-Observatory/internal/world"
)

// Event is one immutable ledger line.
type Event struct {
	EventID    string         `json:"event_id"`
	Tick       int64          `json:"tick"`
	ActionType string         `json:"action_type"`
	AgentID    string         `json:"agent_id"`
	Success    bool           `json:"success"`
	Details    map[string]any `json:"details"`
	Error      string         `json:"error,omitempty"`
	Timestamp  float64        `json:"timestamp"`
}

// MaxQueryLimit caps a single event query.
const MaxQueryLimit = 1000

// EventLedger appends events to a JSONL file and keeps the full history in
// memory for queries and replay.
type EventLedger struct {
	mu         sync.Mutex
	path       string
	events     []Event
	leafHashes []string // one per serialized line, for the integrity root
	nextID     int
}

// Open loads an existing ledger file (if any) and returns a ledger that
// appends to it. Corrupt lines are skipped with a warning; an append-only
// file damaged mid-write should not take the world down.
func Open(path string) *EventLedger {
	l := &EventLedger{path: path}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("event ledger unreadable, starting fresh", "path", path, "error", err)
		}
		return l
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	skipped := 0
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			skipped++
			continue
		}
		l.events = append(l.events, ev)
		l.leafHashes = append(l.leafHashes, leafHash(scanner.Bytes()))
	}
	if skipped > 0 {
		slog.Warn("skipped corrupt ledger lines", "path", path, "count", skipped)
	}
	// Event ids are evt_%08d; resume the counter past the highest seen.
	for _, ev := range l.events {
		var n int
		if _, err := fmt.Sscanf(ev.EventID, "evt_%d", &n); err == nil && n >= l.nextID {
			l.nextID = n + 1
		}
	}
	slog.Info("event ledger loaded", "path", path, "events", len(l.events))
	return l
}

// Record appends one event from the engine. Write failures are logged, not
// returned: the tick loop must not stall on a full disk, and the in-memory
// copy stays queryable.
func (l *EventLedger) Record(data world.EventData) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		EventID:    fmt.Sprintf("evt_%08d", l.nextID),
		Tick:       data.Tick,
		ActionType: data.ActionType,
		AgentID:    data.AgentID,
		Success:    data.Success,
		Details:    data.Details,
		Error:      data.Error,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	}
	if ev.Details == nil {
		ev.Details = map[string]any{}
	}
	l.nextID++
	l.events = append(l.events, ev)

	line, err := json.Marshal(ev)
	if err != nil {
		slog.Error("ledger event marshal failed", "event_id", ev.EventID, "error", err)
		return ev
	}
	l.leafHashes = append(l.leafHashes, leafHash(line))
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("ledger append failed", "path", l.path, "error", err)
		return ev
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Error("ledger write failed", "path", l.path, "error", err)
	}
	return ev
}

// Query narrows an event listing.
type Query struct {
	FromTick   int64
	ToTick     *int64
	AgentID    string
	ActionType string
	Limit      int
}

// Events returns ledger events matching the query, oldest first, capped at
// MaxQueryLimit.
func (l *EventLedger) Events(q Query) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := q.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	var out []Event
	for _, ev := range l.events {
		if ev.Tick < q.FromTick {
			continue
		}
		if q.ToTick != nil && ev.Tick > *q.ToTick {
			continue
		}
		if q.AgentID != "" && ev.AgentID != q.AgentID {
			continue
		}
		if q.ActionType != "" && ev.ActionType != q.ActionType {
			continue
		}
		out = append(out, ev)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// EventsAtTick returns every event recorded for one tick.
func (l *EventLedger) EventsAtTick(tick int64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Tick == tick {
			out = append(out, ev)
		}
	}
	return out
}

// GetByID looks up one event.
func (l *EventLedger) GetByID(eventID string) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.EventID == eventID {
			return ev, true
		}
	}
	return Event{}, false
}

// Count returns the number of recorded events.
func (l *EventLedger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// LatestTick returns the highest tick with a recorded event.
func (l *EventLedger) LatestTick() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var latest int64
	for _, ev := range l.events {
		if ev.Tick > latest {
			latest = ev.Tick
		}
	}
	return latest
}

// snapshot copies the event slice for lock-free iteration in replay.
func (l *EventLedger) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
