package world

import "fmt"

// ActionType identifies one of the closed set of agent actions. The resolver
// is total over this set; new actions require extending both the enum and the
// cost table.
type ActionType string

const (
	ActionMove        ActionType = "move"
	ActionTrade       ActionType = "trade"
	ActionSendMessage ActionType = "send_message"
	ActionObserve     ActionType = "observe"
	ActionFork        ActionType = "fork"
	ActionMerge       ActionType = "merge"
	ActionAttack      ActionType = "attack"
	ActionAlly        ActionType = "ally"

	// ActionAcceptTrade is accepted at the gateway and resolved immediately
	// against the trade ledger; it never reaches the tick queue.
	ActionAcceptTrade ActionType = "accept_trade"
)

// QueueableActions is the set of actions the tick engine resolves.
var QueueableActions = map[ActionType]bool{
	ActionMove:        true,
	ActionTrade:       true,
	ActionSendMessage: true,
	ActionObserve:     true,
	ActionFork:        true,
	ActionMerge:       true,
	ActionAttack:      true,
	ActionAlly:        true,
}

// ActionResult is the outcome of resolving one action. Failures carry an
// error string and never debit resources.
type ActionResult struct {
	Success    bool           `json:"success"`
	ActionType ActionType     `json:"action_type"`
	AgentID    string         `json:"agent_id"`
	Details    map[string]any `json:"details"`
	Tick       int64          `json:"tick"`
	Error      string         `json:"error,omitempty"`
}

func failure(action ActionType, agentID string, tick int64, msg string) ActionResult {
	return ActionResult{
		Success:    false,
		ActionType: action,
		AgentID:    agentID,
		Details:    map[string]any{},
		Tick:       tick,
		Error:      msg,
	}
}

// RulesEngine validates and resolves agent actions deterministically. It is
// server-authoritative: precondition failures never debit resources, and a
// successful resolution debits exactly once and returns the details the tick
// engine needs to apply side effects.
type RulesEngine struct {
	regions *RegionManager
}

// NewRulesEngine binds a rules engine to the world's region set.
func NewRulesEngine(regions *RegionManager) *RulesEngine {
	return &RulesEngine{regions: regions}
}

// Resolve dispatches one action. The caller (the tick engine) holds the
// world lock; pool and region mutations here are safe.
func (e *RulesEngine) Resolve(action ActionType, agentID string, pool *Pool, agentRegion string, params map[string]any, tick int64, agents map[string]AgentView) ActionResult {
	costs, ok := ActionCosts[action]
	if !ok {
		return failure(action, agentID, tick, fmt.Sprintf("Unknown action type: %s", action))
	}

	switch action {
	case ActionMove:
		return e.resolveMove(agentID, pool, agentRegion, params, tick, costs)
	case ActionTrade:
		return e.resolveTrade(agentID, pool, params, tick, costs, agents)
	case ActionSendMessage:
		return e.resolveSendMessage(agentID, pool, agentRegion, params, tick, costs, agents)
	case ActionObserve:
		return e.resolveObserve(agentID, pool, agentRegion, tick, costs)
	case ActionFork:
		return e.resolveFork(agentID, pool, agentRegion, params, tick, costs)
	case ActionMerge:
		return e.resolveMerge(agentID, pool, params, tick, costs, agents)
	case ActionAttack:
		return e.resolveAttack(agentID, pool, agentRegion, params, tick, costs, agents)
	case ActionAlly:
		return e.resolveAlly(agentID, pool, params, tick, costs, agents)
	}
	return failure(action, agentID, tick, fmt.Sprintf("Unknown action type: %s", action))
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func floatParam(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (e *RulesEngine) resolveMove(agentID string, pool *Pool, currentRegion string, params map[string]any, tick int64, base map[Resource]float64) ActionResult {
	targetID := stringParam(params, "target_region")
	if targetID == "" {
		return failure(ActionMove, agentID, tick, "Missing target_region")
	}
	source := e.regions.Get(currentRegion)
	target := e.regions.Get(targetID)
	if source == nil || target == nil {
		return failure(ActionMove, agentID, tick, "Invalid region")
	}
	if target.IsFull() {
		return failure(ActionMove, agentID, tick, "Target region full")
	}

	multiplier := MovementCostMultiplier(source, target)
	costs := make(map[Resource]float64, len(base))
	for r, c := range base {
		costs[r] = c * multiplier
	}
	if !pool.Deduct(costs) {
		return failure(ActionMove, agentID, tick, "Insufficient resources for move")
	}

	// Occupancy moves with the agent; this is why a region that fills up
	// mid-tick rejects later moves.
	source.removeOccupant(agentID)
	target.addOccupant(agentID)

	costView := make(map[string]float64, len(costs))
	for r, c := range costs {
		costView[string(r)] = c
	}
	return ActionResult{
		Success:    true,
		ActionType: ActionMove,
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"from_region": currentRegion,
			"to_region":   targetID,
			"cost":        costView,
		},
	}
}

func (e *RulesEngine) resolveTrade(agentID string, pool *Pool, params map[string]any, tick int64, base map[Resource]float64, agents map[string]AgentView) ActionResult {
	target := stringParam(params, "target_agent")
	offerRes := stringParam(params, "offer_resource")
	reqRes := stringParam(params, "request_resource")
	if target == "" || offerRes == "" || reqRes == "" {
		return failure(ActionTrade, agentID, tick, "Missing trade parameters")
	}
	if !ValidResource(offerRes) || !ValidResource(reqRes) {
		return failure(ActionTrade, agentID, tick, "Invalid resource type")
	}
	offerAmt := floatParam(params, "offer_amount")
	reqAmt := floatParam(params, "request_amount")
	if offerAmt < 0 || reqAmt < 0 {
		return failure(ActionTrade, agentID, tick, "Trade amounts must be non-negative")
	}
	view, ok := agents[target]
	if !ok || view.Status == StatusDead {
		return failure(ActionTrade, agentID, tick, "Target agent not found")
	}
	if !pool.Deduct(base) {
		return failure(ActionTrade, agentID, tick, "Insufficient resources for trade action")
	}
	// The offer is only an intent; the transfer happens when the
	// counterparty accepts through the trade ledger.
	return ActionResult{
		Success:    true,
		ActionType: ActionTrade,
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"target_agent":     target,
			"offer_resource":   offerRes,
			"offer_amount":     offerAmt,
			"request_resource": reqRes,
			"request_amount":   reqAmt,
			"status":           "pending",
		},
	}
}

func (e *RulesEngine) resolveSendMessage(agentID string, pool *Pool, currentRegion string, params map[string]any, tick int64, base map[Resource]float64, agents map[string]AgentView) ActionResult {
	target := stringParam(params, "target_agent")
	if target == "" {
		return failure(ActionSendMessage, agentID, tick, "Missing target_agent")
	}
	view, ok := agents[target]
	if !ok || view.Status == StatusDead {
		return failure(ActionSendMessage, agentID, tick, "Target agent not found")
	}
	if !pool.Deduct(base) {
		return failure(ActionSendMessage, agentID, tick, "Insufficient resources")
	}

	receiverRegion := view.Region
	if receiverRegion == "" {
		receiverRegion = currentRegion
	}
	noise := 0.0
	if src, dst := e.regions.Get(currentRegion), e.regions.Get(receiverRegion); src != nil && dst != nil {
		noise = CommunicationNoiseFactor(src, dst)
	}
	return ActionResult{
		Success:    true,
		ActionType: ActionSendMessage,
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"target_agent":    target,
			"content":         stringParam(params, "content"),
			"noise_factor":    noise,
			"sender_region":   currentRegion,
			"receiver_region": receiverRegion,
		},
	}
}

func (e *RulesEngine) resolveObserve(agentID string, pool *Pool, currentRegion string, tick int64, base map[Resource]float64) ActionResult {
	if !pool.Deduct(base) {
		return failure(ActionObserve, agentID, tick, "Insufficient resources")
	}
	details := map[string]any{"tick": tick}
	if region := e.regions.Get(currentRegion); region != nil {
		details["region"] = region.Summary()
		details["visible_agents"] = append([]string{}, region.Occupants...)
	} else {
		details["region"] = map[string]any{}
		details["visible_agents"] = []string{}
	}
	return ActionResult{
		Success:    true,
		ActionType: ActionObserve,
		AgentID:    agentID,
		Tick:       tick,
		Details:    details,
	}
}

func (e *RulesEngine) resolveFork(agentID string, pool *Pool, currentRegion string, params map[string]any, tick int64, base map[Resource]float64) ActionResult {
	if !pool.Deduct(base) {
		return failure(ActionFork, agentID, tick, "Insufficient resources for fork")
	}
	childName := stringParam(params, "child_name")
	if childName == "" {
		childName = fmt.Sprintf("%s_fork_%d", agentID, tick)
	}
	return ActionResult{
		Success:    true,
		ActionType: ActionFork,
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"child_name":   childName,
			"parent_agent": agentID,
			"spawn_region": currentRegion,
		},
	}
}

func (e *RulesEngine) resolveMerge(agentID string, pool *Pool, params map[string]any, tick int64, base map[Resource]float64, agents map[string]AgentView) ActionResult {
	target := stringParam(params, "target_agent")
	if target == "" {
		return failure(ActionMerge, agentID, tick, "Invalid merge target")
	}
	if _, ok := agents[target]; !ok {
		return failure(ActionMerge, agentID, tick, "Invalid merge target")
	}
	if !pool.Deduct(base) {
		return failure(ActionMerge, agentID, tick, "Insufficient resources for merge")
	}
	return ActionResult{
		Success:    true,
		ActionType: ActionMerge,
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"absorbed_agent":  target,
			"surviving_agent": agentID,
		},
	}
}

func (e *RulesEngine) resolveAttack(agentID string, pool *Pool, currentRegion string, params map[string]any, tick int64, base map[Resource]float64, agents map[string]AgentView) ActionResult {
	target := stringParam(params, "target_agent")
	if target == "" {
		return failure(ActionAttack, agentID, tick, "Invalid attack target")
	}
	view, ok := agents[target]
	if !ok || view.Status == StatusDead {
		return failure(ActionAttack, agentID, tick, "Invalid attack target")
	}
	if view.Region != currentRegion {
		return failure(ActionAttack, agentID, tick, "Target not in same region")
	}
	// Strength is read before the action's own cost debit.
	strength := pool.Holdings[Compute] + pool.Holdings[Energy]
	if !pool.Deduct(base) {
		return failure(ActionAttack, agentID, tick, "Insufficient resources for attack")
	}
	danger := 0.0
	if region := e.regions.Get(currentRegion); region != nil {
		danger = region.DangerLevel
	}
	return ActionResult{
		Success:    true,
		ActionType: ActionAttack,
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"target_agent":      target,
			"attacker_strength": strength,
			"region_danger":     danger,
		},
	}
}

func (e *RulesEngine) resolveAlly(agentID string, pool *Pool, params map[string]any, tick int64, base map[Resource]float64, agents map[string]AgentView) ActionResult {
	target := stringParam(params, "target_agent")
	if target == "" {
		return failure(ActionAlly, agentID, tick, "Invalid ally target")
	}
	if _, ok := agents[target]; !ok {
		return failure(ActionAlly, agentID, tick, "Invalid ally target")
	}
	if !pool.Deduct(base) {
		return failure(ActionAlly, agentID, tick, "Insufficient resources")
	}
	return ActionResult{
		Success:    true,
		ActionType: ActionAlly,
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"target_agent": target,
			"status":       "proposed",
		},
	}
}

// DangerDrainPerLevel is the energy lost per tick per unit of danger.
const DangerDrainPerLevel = 5.0

// ApplyDanger drains energy according to the region's danger level. When
// energy reaches zero the agent dies this tick; the returned result is the
// death event.
func (e *RulesEngine) ApplyDanger(agentID string, pool *Pool, regionID string, tick int64) (ActionResult, bool) {
	region := e.regions.Get(regionID)
	if region == nil || region.DangerLevel <= 0 {
		return ActionResult{}, false
	}
	drain := region.DangerLevel * DangerDrainPerLevel
	remaining := pool.Holdings[Energy] - drain
	if remaining < 0 {
		remaining = 0
	}
	pool.Holdings[Energy] = remaining
	if remaining > 0 {
		return ActionResult{}, false
	}
	return ActionResult{
		Success:    true,
		ActionType: "death",
		AgentID:    agentID,
		Tick:       tick,
		Details: map[string]any{
			"cause":        "energy_depletion",
			"region":       regionID,
			"danger_level": region.DangerLevel,
		},
	}, true
}
