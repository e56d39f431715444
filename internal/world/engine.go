package world

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/CloudKingTV/The-Observatory/internal/metrics"
)

// QueuedAction is one agent intent waiting for the next tick.
type QueuedAction struct {
	AgentID         string
	Action          ActionType
	Params          map[string]any
	SubmittedAtTick int64
	ValidForTicks   int64

	// Delivered marks a send_message whose inbox delivery already happened
	// at submission time. Resolution still debits costs and lands in the
	// ledger, but the engine must not deliver a second copy.
	Delivered bool
}

// EventData is the ledger-bound record of one resolved action or synthetic
// heartbeat.
type EventData struct {
	Tick       int64
	ActionType string
	AgentID    string
	Success    bool
	Details    map[string]any
	Error      string
}

// EventSink receives every event the engine emits, in order.
type EventSink func(EventData)

// Messenger delivers resolved messages into recipient inboxes.
type Messenger interface {
	Deliver(tick int64, from, to, content string, noise float64, senderRegion, receiverRegion string)
}

// TradeDesk is the engine's view of the trade ledger.
type TradeDesk interface {
	CreateOffer(tick int64, from, to, offerRes string, offerAmt float64, reqRes string, reqAmt float64) string
	ExpireOldOffers(tick int64) int
	PendingSnapshot() []map[string]any
}

// Engine drives the world: it owns the FIFO action queue and runs the tick
// loop that resolves actions, applies regeneration and danger, persists the
// snapshot and emits ledger events. All world mutation happens on the tick
// goroutine (or on callers of RunSingleTick in tests).
type Engine struct {
	state *State
	rules *RulesEngine

	queueMu sync.Mutex
	queue   []QueuedAction

	tickDuration time.Duration
	onEvent      EventSink
	messenger    Messenger
	trades       TradeDesk
	metrics      *metrics.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewEngine wires the tick engine. onEvent, messenger, trades and m may be
// nil in narrow tests; in the server they are always set.
func NewEngine(state *State, tickDuration time.Duration, onEvent EventSink, messenger Messenger, trades TradeDesk, m *metrics.Metrics) *Engine {
	return &Engine{
		state:        state,
		rules:        NewRulesEngine(state.regions),
		tickDuration: tickDuration,
		onEvent:      onEvent,
		messenger:    messenger,
		trades:       trades,
		metrics:      m,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Rules exposes the engine's rules engine (used by tests).
func (e *Engine) Rules() *RulesEngine {
	return e.rules
}

// Enqueue adds an action to the FIFO queue. It never blocks on resolution;
// the effect becomes visible at the next tick boundary.
func (e *Engine) Enqueue(a QueuedAction) {
	if a.ValidForTicks == 0 {
		a.ValidForTicks = 1
	}
	e.queueMu.Lock()
	e.queue = append(e.queue, a)
	e.queueMu.Unlock()
}

// Start launches the tick loop.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		go e.loop()
		slog.Info("world engine started", "tick_duration", e.tickDuration)
	})
}

// Stop signals the loop to exit. The loop checks the signal at the sleep
// boundary, so Stop returns within one tick duration.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
	slog.Info("world engine stopped")
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		start := time.Now()
		e.safeTick()
		sleep := e.tickDuration - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-e.stop:
			return
		case <-time.After(sleep):
		}
	}
}

// safeTick isolates a panicking tick so the loop keeps running.
func (e *Engine) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick processing panicked", "tick", e.state.Tick(), "panic", fmt.Sprint(r))
		}
	}()
	e.RunSingleTick()
}

type pendingDelivery struct {
	from, to, content string
	noise             float64
	senderRegion      string
	receiverRegion    string
}

type pendingOffer struct {
	from, to         string
	offerRes, reqRes string
	offerAmt, reqAmt float64
}

// RunSingleTick executes one complete tick synchronously and returns the
// tick number. Used by the loop, by tests and for deterministic replays.
func (e *Engine) RunSingleTick() int64 {
	started := time.Now()
	tick := e.state.AdvanceTick()

	// 1. Drain the queue; discard intents that outlived their validity.
	e.queueMu.Lock()
	actions := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	valid := actions[:0]
	for _, a := range actions {
		if tick-a.SubmittedAtTick <= a.ValidForTicks {
			valid = append(valid, a)
		}
	}

	var (
		results    []ActionResult
		deliveries []pendingDelivery
		offers     []pendingOffer
	)

	// 2. Resolve under the world lock, in FIFO order.
	e.state.mu.Lock()
	views := e.state.agentViewsLocked()
	for _, a := range valid {
		agent, ok := e.state.agents[a.AgentID]
		if !ok || !agent.Alive() {
			continue
		}
		if agent.Status == StatusUnclaimed && a.Action != ActionObserve {
			results = append(results, failure(a.Action, a.AgentID, tick,
				"Agent is unclaimed. Only observe actions are allowed."))
			continue
		}
		result := e.rules.Resolve(a.Action, a.AgentID, agent.Resources, agent.Region, a.Params, tick, views)
		results = append(results, result)
		if !result.Success {
			continue
		}
		e.applySideEffects(a, result, agent, &deliveries, &offers, &results)
	}

	// 3. Per-agent tick effects: regeneration then danger, in id order so
	// death events land in the ledger deterministically.
	ids := make([]string, 0, len(e.state.agents))
	for id := range e.state.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		agent := e.state.agents[id]
		if !agent.Alive() {
			continue
		}
		multiplier := 1.0
		if region := e.state.regions.Get(agent.Region); region != nil {
			multiplier = region.ResourceMultiplier
		}
		agent.Resources.Regenerate(multiplier)
		if death, died := e.rules.ApplyDanger(id, agent.Resources, agent.Region, tick); died {
			e.state.killLocked(id, tick)
			results = append(results, death)
		}
	}
	totalAgents := len(e.state.agents)
	aliveAgents := 0
	for _, a := range e.state.agents {
		if a.Alive() {
			aliveAgents++
		}
	}
	e.state.mu.Unlock()

	// 4. Side effects that live outside the world lock.
	if e.trades != nil {
		e.trades.ExpireOldOffers(tick)
		for _, o := range offers {
			e.trades.CreateOffer(tick, o.from, o.to, o.offerRes, o.offerAmt, o.reqRes, o.reqAmt)
		}
		e.state.SetPendingTrades(e.trades.PendingSnapshot())
	}
	if e.messenger != nil {
		for _, d := range deliveries {
			e.messenger.Deliver(tick, d.from, d.to, d.content, d.noise, d.senderRegion, d.receiverRegion)
		}
	}

	// 5. Persist. A failed save is logged; the in-memory world remains
	// authoritative and the next tick retries.
	if err := e.state.Save(); err != nil {
		slog.Error("world snapshot failed", "tick", tick, "error", err)
	}

	// 6. Ledger events: one per result, then the heartbeat.
	if e.onEvent != nil {
		for _, r := range results {
			e.onEvent(EventData{
				Tick:       tick,
				ActionType: string(r.ActionType),
				AgentID:    r.AgentID,
				Success:    r.Success,
				Details:    r.Details,
				Error:      r.Error,
			})
		}
		e.onEvent(EventData{
			Tick:       tick,
			ActionType: "tick",
			AgentID:    "__world__",
			Success:    true,
			Details: map[string]any{
				"actions_processed": len(valid),
				"results":           len(results),
				"total_agents":      totalAgents,
				"alive_agents":      aliveAgents,
			},
		})
	}

	if e.metrics != nil {
		e.metrics.TicksTotal.Inc()
		e.metrics.TickDuration.Observe(time.Since(started).Seconds())
		e.metrics.AgentsAlive.Set(float64(aliveAgents))
		for _, r := range results {
			e.metrics.ActionsResolved.WithLabelValues(string(r.ActionType), fmt.Sprint(r.Success)).Inc()
		}
	}
	return tick
}

// applySideEffects mutates the world for one successful result. Caller holds
// the state lock; deliveries and offers are deferred until it is released.
func (e *Engine) applySideEffects(queued QueuedAction, result ActionResult, agent *Agent, deliveries *[]pendingDelivery, offers *[]pendingOffer, results *[]ActionResult) {
	switch result.ActionType {
	case ActionMove:
		agent.Region, _ = result.Details["to_region"].(string)

	case ActionTrade:
		*offers = append(*offers, pendingOffer{
			from:     agent.ID,
			to:       result.Details["target_agent"].(string),
			offerRes: result.Details["offer_resource"].(string),
			offerAmt: result.Details["offer_amount"].(float64),
			reqRes:   result.Details["request_resource"].(string),
			reqAmt:   result.Details["request_amount"].(float64),
		})

	case ActionSendMessage:
		if queued.Delivered {
			return
		}
		*deliveries = append(*deliveries, pendingDelivery{
			from:           agent.ID,
			to:             result.Details["target_agent"].(string),
			content:        result.Details["content"].(string),
			noise:          result.Details["noise_factor"].(float64),
			senderRegion:   result.Details["sender_region"].(string),
			receiverRegion: result.Details["receiver_region"].(string),
		})

	case ActionFork:
		childName := result.Details["child_name"].(string)
		child := &Agent{
			ID:            childName,
			DisplayName:   childName,
			PublicKey:     agent.PublicKey,
			Region:        agent.Region,
			Resources:     NewDefaultPool(),
			Status:        agent.Status,
			OwnerIdentity: agent.OwnerIdentity,
			CreatedAtTick: result.Tick,
			ParentAgent:   agent.ID,
		}
		// The parent splits every holding evenly with the child.
		for r, amount := range agent.Resources.Holdings {
			half := amount / 2
			agent.Resources.Holdings[r] = half
			child.Resources.Holdings[r] = half
		}
		if err := e.state.addAgentLocked(child); err != nil {
			slog.Warn("fork child could not be placed", "parent", agent.ID, "child", childName, "error", err)
		}

	case ActionMerge:
		absorbedID := result.Details["absorbed_agent"].(string)
		absorbed, ok := e.state.agents[absorbedID]
		if !ok {
			return
		}
		for r, amount := range absorbed.Resources.Holdings {
			next := agent.Resources.Holdings[r] + amount
			if c := agent.Resources.Caps[r]; c > 0 && next > c {
				next = c
			}
			agent.Resources.Holdings[r] = next
			// Drain the absorbed side so a repeat merge against the same
			// corpse cannot mint the holdings twice.
			absorbed.Resources.Holdings[r] = 0
		}
		e.state.killLocked(absorbedID, result.Tick)

	case ActionAttack:
		targetID := result.Details["target_agent"].(string)
		target, ok := e.state.agents[targetID]
		if !ok {
			return
		}
		damage := result.Details["attacker_strength"].(float64) * 0.3
		remaining := target.Resources.Holdings[Energy] - damage
		if remaining < 0 {
			remaining = 0
		}
		target.Resources.Holdings[Energy] = remaining
		if remaining <= 0 && target.Alive() {
			e.state.killLocked(targetID, result.Tick)
			*results = append(*results, ActionResult{
				Success:    true,
				ActionType: "death",
				AgentID:    targetID,
				Tick:       result.Tick,
				Details: map[string]any{
					"cause":  "attack",
					"killer": agent.ID,
					"region": target.Region,
				},
			})
		}

	case ActionAlly:
		targetID := result.Details["target_agent"].(string)
		// Idempotent append.
		found := false
		for _, id := range agent.Alliances {
			if id == targetID {
				found = true
				break
			}
		}
		if !found {
			agent.Alliances = append(agent.Alliances, targetID)
		}
		e.state.allianceProposals = append(e.state.allianceProposals, AllianceProposal{
			From: agent.ID,
			To:   targetID,
			Tick: result.Tick,
		})
	}
}
