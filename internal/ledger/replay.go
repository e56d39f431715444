package ledger

// ReplayAgent is an agent's reconstructed state at a point in history.
// Resources are not replayed — regeneration and danger drain are not in the
// ledger at full precision — so replay answers "who existed, where, alive or
// dead", which is what post-hoc analysis needs.
type ReplayAgent struct {
	AgentID     string   `json:"agent_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Region      string   `json:"region"`
	Status      string   `json:"status"`
	Alive       bool     `json:"alive"`
	ParentAgent string   `json:"parent_agent,omitempty"`
	Alliances   []string `json:"alliances,omitempty"`
	BornAtTick  int64    `json:"born_at_tick"`
	DiedAtTick  *int64   `json:"died_at_tick,omitempty"`
}

// ReplayState is the full reconstructed world at one tick.
type ReplayState struct {
	Tick   int64                   `json:"tick"`
	Agents map[string]*ReplayAgent `json:"agents"`
}

// ReconstructAtTick folds the ledger up to and including the given tick into
// an agent roster. The ledger is authoritative: any state the snapshot holds
// must be derivable from here.
func (l *EventLedger) ReconstructAtTick(tick int64) ReplayState {
	state := ReplayState{Tick: tick, Agents: make(map[string]*ReplayAgent)}
	for _, ev := range l.snapshot() {
		if ev.Tick > tick {
			break
		}
		applyEvent(&state, ev)
	}
	return state
}

func applyEvent(state *ReplayState, ev Event) {
	agent := func(id string) *ReplayAgent {
		a, ok := state.Agents[id]
		if !ok {
			a = &ReplayAgent{AgentID: id, Region: "nexus", Status: "unclaimed", Alive: true, BornAtTick: ev.Tick}
			state.Agents[id] = a
		}
		return a
	}

	switch ev.ActionType {
	case "register":
		a := agent(ev.AgentID)
		a.BornAtTick = ev.Tick
		if name, ok := ev.Details["display_name"].(string); ok {
			a.DisplayName = name
		}
		if region, ok := ev.Details["region"].(string); ok {
			a.Region = region
		}

	case "claim":
		agent(ev.AgentID).Status = "claimed"

	case "move":
		if !ev.Success {
			return
		}
		if to, ok := ev.Details["to_region"].(string); ok {
			agent(ev.AgentID).Region = to
		}

	case "fork":
		if !ev.Success {
			return
		}
		parent := agent(ev.AgentID)
		if childID, ok := ev.Details["child_name"].(string); ok {
			child := agent(childID)
			child.ParentAgent = parent.AgentID
			child.Region = parent.Region
			child.Status = parent.Status
			child.BornAtTick = ev.Tick
		}

	case "merge":
		if !ev.Success {
			return
		}
		if absorbedID, ok := ev.Details["absorbed_agent"].(string); ok {
			markDead(agent(absorbedID), ev.Tick)
		}

	case "ally":
		if !ev.Success {
			return
		}
		if targetID, ok := ev.Details["target_agent"].(string); ok {
			a := agent(ev.AgentID)
			for _, id := range a.Alliances {
				if id == targetID {
					return
				}
			}
			a.Alliances = append(a.Alliances, targetID)
		}

	case "death":
		markDead(agent(ev.AgentID), ev.Tick)
	}
}

func markDead(a *ReplayAgent, tick int64) {
	if !a.Alive {
		return
	}
	a.Alive = false
	a.Status = "dead"
	t := tick
	a.DiedAtTick = &t
}

// Timeline returns one agent's events in ledger order: its life story, from
// registration to (possibly) death.
func (l *EventLedger) Timeline(agentID string) []Event {
	var out []Event
	for _, ev := range l.snapshot() {
		if ev.AgentID != agentID {
			continue
		}
		out = append(out, ev)
	}
	return out
}
