package world

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	events []EventData
}

func (r *eventRecorder) sink(e EventData) {
	r.events = append(r.events, e)
}

func (r *eventRecorder) byType(actionType string) []EventData {
	var out []EventData
	for _, e := range r.events {
		if e.ActionType == actionType {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *State, *eventRecorder) {
	t.Helper()
	state := NewState(filepath.Join(t.TempDir(), "state.json"))
	rec := &eventRecorder{}
	engine := NewEngine(state, time.Second, rec.sink, nil, nil, nil)
	return engine, state, rec
}

func TestRunSingleTick_AdvancesAndEmitsHeartbeat(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	addTestAgent(t, state, "a1", StatusClaimed)

	tick := engine.RunSingleTick()
	assert.Equal(t, int64(1), tick)
	assert.Equal(t, int64(1), state.Tick())

	heartbeats := rec.byType("tick")
	require.Len(t, heartbeats, 1)
	hb := heartbeats[0]
	assert.Equal(t, "__world__", hb.AgentID)
	assert.Equal(t, 0, hb.Details["actions_processed"])
	assert.Equal(t, 1, hb.Details["total_agents"])
	assert.Equal(t, 1, hb.Details["alive_agents"])
}

func TestRunSingleTick_UnclaimedRestrictedToObserve(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	addTestAgent(t, state, "a1", StatusUnclaimed)

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMove, Params: map[string]any{"target_region": "forge"}})
	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionObserve})
	engine.RunSingleTick()

	moves := rec.byType("move")
	require.Len(t, moves, 1)
	assert.False(t, moves[0].Success)
	assert.Contains(t, moves[0].Error, "unclaimed")

	observes := rec.byType("observe")
	require.Len(t, observes, 1)
	assert.True(t, observes[0].Success)
}

func TestRunSingleTick_MoveRelocatesAgent(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	a := addTestAgent(t, state, "a1", StatusClaimed)

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMove, Params: map[string]any{"target_region": "forge"}})
	engine.RunSingleTick()

	require.Len(t, rec.byType("move"), 1)
	assert.True(t, rec.byType("move")[0].Success)
	assert.Equal(t, "forge", a.Region)
	assert.True(t, state.regions.Get("forge").hasOccupant("a1"))
}

func TestRunSingleTick_ExpiredActionsDiscarded(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	addTestAgent(t, state, "a1", StatusClaimed)
	state.AdvanceTick()
	state.AdvanceTick()
	state.AdvanceTick()

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionObserve, SubmittedAtTick: 1})
	engine.RunSingleTick() // tick 4; 4-1=3 > valid_for_ticks=1

	assert.Empty(t, rec.byType("observe"))
}

func TestRunSingleTick_DeadAgentsSkipped(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	addTestAgent(t, state, "a1", StatusClaimed)
	state.Kill("a1", 0)

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionObserve})
	engine.Enqueue(QueuedAction{AgentID: "ghost", Action: ActionObserve})
	engine.RunSingleTick()

	assert.Empty(t, rec.byType("observe"))
}

func TestRunSingleTick_ForkSplitsHoldings(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	parent := addTestAgent(t, state, "a1", StatusClaimed)
	parent.Resources.Holdings[Energy] = 100
	parent.Resources.Holdings[Memory] = 200
	parent.Resources.Holdings[Compute] = 80

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionFork, Params: map[string]any{"child_name": "junior"}})
	engine.RunSingleTick()

	forks := rec.byType("fork")
	require.Len(t, forks, 1)
	require.True(t, forks[0].Success, forks[0].Error)

	require.True(t, state.HasAgent("junior"))
	childSnap, err := state.ResourceSnapshot("junior")
	require.NoError(t, err)
	parentSnap, err := state.ResourceSnapshot("a1")
	require.NoError(t, err)

	// Fork cost debits first (E40 M50 C30), then holdings split evenly.
	// Regen and danger then adjust energy slightly; memory has no regen.
	assert.Equal(t, 75.0, childSnap["memory"])
	assert.Equal(t, 75.0, parentSnap["memory"])
	assert.Equal(t, parent.Region, state.agents["junior"].Region)
	assert.Equal(t, "a1", state.agents["junior"].ParentAgent)
}

type deliveryRecorder struct {
	sent []pendingDelivery
}

func (d *deliveryRecorder) Deliver(tick int64, from, to, content string, noise float64, senderRegion, receiverRegion string) {
	d.sent = append(d.sent, pendingDelivery{
		from: from, to: to, content: content, noise: noise,
		senderRegion: senderRegion, receiverRegion: receiverRegion,
	})
}

func TestRunSingleTick_PreDeliveredMessageNotRedelivered(t *testing.T) {
	state := NewState(filepath.Join(t.TempDir(), "state.json"))
	rec := &eventRecorder{}
	inbox := &deliveryRecorder{}
	engine := NewEngine(state, time.Second, rec.sink, inbox, nil, nil)
	addTestAgent(t, state, "a1", StatusClaimed)
	addTestAgent(t, state, "a2", StatusClaimed)

	engine.Enqueue(QueuedAction{
		AgentID:   "a1",
		Action:    ActionSendMessage,
		Params:    map[string]any{"target_agent": "a2", "content": "already in the inbox"},
		Delivered: true,
	})
	engine.RunSingleTick()

	sends := rec.byType("send_message")
	require.Len(t, sends, 1)
	assert.True(t, sends[0].Success, "resolution still costs and is ledgered")
	assert.Empty(t, inbox.sent, "delivery happened at submission, not again here")

	engine.Enqueue(QueuedAction{
		AgentID:         "a1",
		Action:          ActionSendMessage,
		Params:          map[string]any{"target_agent": "a2", "content": "fresh"},
		SubmittedAtTick: state.Tick(),
	})
	engine.RunSingleTick()

	require.Len(t, inbox.sent, 1)
	assert.Equal(t, "fresh", inbox.sent[0].content)
}

func TestRegionSummaries_ConcurrentWithTicks(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	addTestAgent(t, state, "a1", StatusClaimed)
	addTestAgent(t, state, "a2", StatusClaimed)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for _, summary := range state.RegionSummaries() {
					_ = summary["agent_count"]
				}
			}
		}
	}()

	for _, region := range []string{"forge", "nexus", "archive", "nexus"} {
		engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMove, Params: map[string]any{"target_region": region}})
		engine.Enqueue(QueuedAction{AgentID: "a2", Action: ActionMove, Params: map[string]any{"target_region": region}})
		engine.RunSingleTick()
	}
	close(stop)
	wg.Wait()

	assert.Len(t, state.RegionSummaries(), 5)
}

func TestRunSingleTick_MergeAbsorbsTarget(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	a := addTestAgent(t, state, "a1", StatusClaimed)
	b := addTestAgent(t, state, "a2", StatusClaimed)
	b.Resources.Holdings[Memory] = 60

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMerge, Params: map[string]any{"target_agent": "a2"}})
	engine.RunSingleTick()

	merges := rec.byType("merge")
	require.Len(t, merges, 1)
	require.True(t, merges[0].Success, merges[0].Error)

	status, _ := state.AgentStatusOf("a2")
	assert.Equal(t, StatusDead, status)
	assert.Equal(t, 160.0, a.Resources.Holdings[Memory], "absorbed memory transfers, clamped by cap")
	assert.Equal(t, 0.0, b.Resources.Holdings[Memory], "absorbed holdings are drained")
}

func TestRunSingleTick_RepeatMergeCannotDuplicateHoldings(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	a := addTestAgent(t, state, "a1", StatusClaimed)
	b := addTestAgent(t, state, "a2", StatusClaimed)
	b.Resources.Holdings[Memory] = 60

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMerge, Params: map[string]any{"target_agent": "a2"}})
	engine.RunSingleTick()
	require.Equal(t, 160.0, a.Resources.Holdings[Memory])

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMerge, Params: map[string]any{"target_agent": "a2"}, SubmittedAtTick: state.Tick()})
	engine.RunSingleTick()

	merges := rec.byType("merge")
	require.Len(t, merges, 2)
	assert.Equal(t, 160.0, a.Resources.Holdings[Memory], "merging the same corpse again transfers nothing")
}

func TestRunSingleTick_AttackCanKill(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	addTestAgent(t, state, "attacker", StatusClaimed)
	victim := addTestAgent(t, state, "victim", StatusClaimed)
	victim.Resources.Holdings[Energy] = 5

	engine.Enqueue(QueuedAction{AgentID: "attacker", Action: ActionAttack, Params: map[string]any{"target_agent": "victim"}})
	engine.RunSingleTick()

	attacks := rec.byType("attack")
	require.Len(t, attacks, 1)
	require.True(t, attacks[0].Success, attacks[0].Error)
	// Default pool: strength 50+40=90, damage 27 >= victim's 5 energy.
	assert.Equal(t, 90.0, attacks[0].Details["attacker_strength"])

	deaths := rec.byType("death")
	require.Len(t, deaths, 1)
	assert.Equal(t, "victim", deaths[0].AgentID)
	assert.Equal(t, "attack", deaths[0].Details["cause"])
	assert.Equal(t, "attacker", deaths[0].Details["killer"])

	status, _ := state.AgentStatusOf("victim")
	assert.Equal(t, StatusDead, status)
}

func TestRunSingleTick_AllyIsIdempotent(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	a := addTestAgent(t, state, "a1", StatusClaimed)
	addTestAgent(t, state, "a2", StatusClaimed)

	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionAlly, Params: map[string]any{"target_agent": "a2"}})
	engine.RunSingleTick()
	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionAlly, Params: map[string]any{"target_agent": "a2"}, SubmittedAtTick: state.Tick()})
	engine.RunSingleTick()

	assert.Len(t, rec.byType("ally"), 2)
	assert.Equal(t, []string{"a2"}, a.Alliances)
}

func TestRunSingleTick_DangerDeathEmitsLedgerEvent(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	a := addTestAgent(t, state, "a1", StatusClaimed)
	a.Region = "void" // danger 0.9 drains 4.5 per tick
	a.Resources.Holdings[Energy] = 1

	engine.RunSingleTick()

	deaths := rec.byType("death")
	require.Len(t, deaths, 1)
	assert.Equal(t, "energy_depletion", deaths[0].Details["cause"])
	status, _ := state.AgentStatusOf("a1")
	assert.Equal(t, StatusDead, status)
}

func TestRunSingleTick_FIFOWithinTick(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	addTestAgent(t, state, "a1", StatusClaimed)

	// Two moves in order: the second starts from the first's destination.
	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMove, Params: map[string]any{"target_region": "forge"}})
	engine.Enqueue(QueuedAction{AgentID: "a1", Action: ActionMove, Params: map[string]any{"target_region": "nexus"}})
	engine.RunSingleTick()

	moves := rec.byType("move")
	require.Len(t, moves, 2)
	assert.Equal(t, "forge", moves[0].Details["to_region"])
	assert.Equal(t, "nexus", moves[1].Details["to_region"])
}

func TestEngine_StartStop(t *testing.T) {
	state := NewState(filepath.Join(t.TempDir(), "state.json"))
	engine := NewEngine(state, 10*time.Millisecond, nil, nil, nil, nil)

	engine.Start()
	time.Sleep(35 * time.Millisecond)
	engine.Stop()

	assert.GreaterOrEqual(t, state.Tick(), int64(1))
	after := state.Tick()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, after, state.Tick(), "no ticks after Stop")
}
