package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// AgentStatus is an agent's lifecycle state. Dead is terminal.
type AgentStatus string

const (
	StatusUnclaimed AgentStatus = "unclaimed"
	StatusClaimed   AgentStatus = "claimed"
	StatusDead      AgentStatus = "dead"
)

// Agent is the canonical record for one agent. Owned exclusively by State;
// external packages receive copies or observer-safe views.
type Agent struct {
	ID                string      `json:"agent_id"`
	DisplayName       string      `json:"display_name"`
	PublicKey         string      `json:"public_key"`
	Region            string      `json:"region"`
	Resources         *Pool       `json:"resources"`
	Status            AgentStatus `json:"status"`
	OwnerIdentity     string      `json:"owner_identity,omitempty"`
	ClaimToken        string      `json:"claim_token,omitempty"`
	ClaimTokenExpires int64       `json:"claim_token_expires,omitempty"` // unix seconds
	Alliances         []string    `json:"alliances"`
	CreatedAtTick     int64       `json:"created_at_tick"`
	DiedAtTick        *int64      `json:"died_at_tick,omitempty"`
	ParentAgent       string      `json:"parent_agent,omitempty"`
}

// Alive reports whether the agent can still act or be acted upon.
func (a *Agent) Alive() bool {
	return a.Status == StatusUnclaimed || a.Status == StatusClaimed
}

// PublicView returns the observer-safe projection: no public key, no claim
// token.
func (a *Agent) PublicView() map[string]any {
	return map[string]any{
		"agent_id":        a.ID,
		"display_name":    a.DisplayName,
		"region":          a.Region,
		"resources":       a.Resources.Snapshot(),
		"status":          string(a.Status),
		"owner_identity":  a.OwnerIdentity,
		"alliances":       append([]string{}, a.Alliances...),
		"created_at_tick": a.CreatedAtTick,
		"died_at_tick":    a.DiedAtTick,
		"parent_agent":    a.ParentAgent,
	}
}

// AllianceProposal records one unilateral alliance declaration.
type AllianceProposal struct {
	From string `json:"from"`
	To   string `json:"to"`
	Tick int64  `json:"tick"`
}

// AgentView is the minimal per-agent projection handed to the rules engine.
type AgentView struct {
	Region string
	Status AgentStatus
}

var (
	// ErrAgentNotFound is returned for lookups of unknown agent ids.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAgentExists is returned when registering a duplicate public key.
	ErrAgentExists = errors.New("agent already registered")
	// ErrRegionFull is returned when a region cannot accept another occupant.
	ErrRegionFull = errors.New("region full")
)

// State is the canonical, mutable world. A single mutex guards the tick
// counter, the agent map and region occupant lists; every read and write
// goes through it.
type State struct {
	mu sync.Mutex

	tick    int64
	agents  map[string]*Agent
	regions *RegionManager

	pendingTrades     []map[string]any
	allianceProposals []AllianceProposal

	path string // snapshot file
}

// NewState creates an empty world with the default regions, persisting to
// the given snapshot path.
func NewState(path string) *State {
	return &State{
		agents:  make(map[string]*Agent),
		regions: NewRegionManager(),
		path:    path,
	}
}

// Tick returns the current tick.
func (s *State) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// AdvanceTick increments and returns the tick counter.
func (s *State) AdvanceTick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	return s.tick
}

// AddAgent inserts a new agent and places it in its region's occupant set.
func (s *State) AddAgent(a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAgentLocked(a)
}

func (s *State) addAgentLocked(a *Agent) error {
	if _, ok := s.agents[a.ID]; ok {
		return ErrAgentExists
	}
	region := s.regions.Get(a.Region)
	if region == nil {
		return fmt.Errorf("unknown region %q", a.Region)
	}
	if !region.addOccupant(a.ID) {
		return ErrRegionFull
	}
	s.agents[a.ID] = a
	return nil
}

// HasAgent reports whether the id is registered (alive or dead).
func (s *State) HasAgent(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.agents[agentID]
	return ok
}

// AuthMaterial returns what the gateway needs to authenticate a request:
// the stored public key and current status.
func (s *State) AuthMaterial(agentID string) (publicKey string, status AgentStatus, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.agents[agentID]
	if !found {
		return "", "", false
	}
	return a.PublicKey, a.Status, true
}

// AgentStatusOf returns the agent's status.
func (s *State) AgentStatusOf(agentID string) (AgentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return "", false
	}
	return a.Status, true
}

// AgentPublicView returns the observer-safe view of one agent.
func (s *State) AgentPublicView(agentID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a.PublicView(), nil
}

// AgentViews returns the minimal projection of every agent, for the rules
// engine.
func (s *State) AgentViews() map[string]AgentView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentViewsLocked()
}

func (s *State) agentViewsLocked() map[string]AgentView {
	out := make(map[string]AgentView, len(s.agents))
	for id, a := range s.agents {
		out[id] = AgentView{Region: a.Region, Status: a.Status}
	}
	return out
}

// ResourceSnapshot returns the agent's current holdings.
func (s *State) ResourceSnapshot(agentID string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a.Resources.Snapshot(), nil
}

// RegionSummaries returns observer-safe region views. The copy is produced
// under the world lock: the tick thread mutates occupant lists, so there is
// no safe unlocked read path.
func (s *State) RegionSummaries() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regions.Summaries()
}

// FindByClaimToken returns the id and status of the agent holding the given
// claim token, plus the token's expiry.
func (s *State) FindByClaimToken(token string) (agentID, displayName string, status AgentStatus, expires int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.ClaimToken != "" && a.ClaimToken == token {
			return a.ID, a.DisplayName, a.Status, a.ClaimTokenExpires, true
		}
	}
	return "", "", "", 0, false
}

// MarkClaimed transitions an unclaimed agent to claimed, recording the owner
// and atomically clearing the single-use claim token.
func (s *State) MarkClaimed(agentID, ownerIdentity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if a.Status != StatusUnclaimed {
		return fmt.Errorf("agent is %s, not unclaimed", a.Status)
	}
	a.Status = StatusClaimed
	a.OwnerIdentity = ownerIdentity
	a.ClaimToken = ""
	a.ClaimTokenExpires = 0
	return nil
}

// Kill marks the agent dead and removes it from its region's occupant set.
// The transition is irreversible; the ledger preserves the agent's history.
func (s *State) Kill(agentID string, tick int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killLocked(agentID, tick)
}

func (s *State) killLocked(agentID string, tick int64) bool {
	a, ok := s.agents[agentID]
	if !ok || !a.Alive() {
		return false
	}
	a.Status = StatusDead
	died := tick
	a.DiedAtTick = &died
	if region := s.regions.Get(a.Region); region != nil {
		region.removeOccupant(agentID)
	}
	return true
}

// ExecuteTrade atomically swaps resources between two alive agents. Both
// transfers complete or neither does. Credits are clamped to the receiver's
// caps; debits cannot go negative because funds are checked first.
func (s *State) ExecuteTrade(from, to string, offerRes Resource, offerAmt float64, reqRes Resource, reqAmt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromAgent, ok := s.agents[from]
	if !ok || !fromAgent.Alive() {
		return errors.New("offering agent not available")
	}
	toAgent, ok := s.agents[to]
	if !ok || !toAgent.Alive() {
		return errors.New("accepting agent not available")
	}
	if fromAgent.Resources.Holdings[offerRes] < offerAmt {
		return errors.New("offerer has insufficient resources")
	}
	if toAgent.Resources.Holdings[reqRes] < reqAmt {
		return errors.New("accepter has insufficient resources")
	}

	credit := func(p *Pool, r Resource, amt float64) {
		next := p.Holdings[r] + amt
		if c := p.Caps[r]; c > 0 && next > c {
			next = c
		}
		p.Holdings[r] = next
	}

	fromAgent.Resources.Holdings[offerRes] -= offerAmt
	credit(toAgent.Resources, offerRes, offerAmt)
	toAgent.Resources.Holdings[reqRes] -= reqAmt
	credit(fromAgent.Resources, reqRes, reqAmt)
	return nil
}

// NoiseBetween computes the communication noise factor between two agents'
// current regions.
func (s *State) NoiseBetween(fromID, toID string) (noise float64, fromRegion, toRegion string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.agents[fromID]
	if !ok {
		return 0, "", "", ErrAgentNotFound
	}
	to, ok := s.agents[toID]
	if !ok {
		return 0, "", "", ErrAgentNotFound
	}
	a, b := s.regions.Get(from.Region), s.regions.Get(to.Region)
	if a == nil || b == nil {
		return 0, from.Region, to.Region, nil
	}
	return CommunicationNoiseFactor(a, b), from.Region, to.Region, nil
}

// Observation is what an agent sees when it looks around.
type Observation struct {
	Tick          int64            `json:"tick"`
	Region        map[string]any   `json:"region"`
	VisibleAgents []map[string]any `json:"visible_agents"`
	Resources     map[string]float64 `json:"your_resources"`
	Status        AgentStatus      `json:"your_status"`
}

// Observe builds the immediate surroundings view for an alive agent.
func (s *State) Observe(agentID string) (*Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok || !a.Alive() {
		return nil, ErrAgentNotFound
	}
	obs := &Observation{
		Tick:      s.tick,
		Resources: a.Resources.Snapshot(),
		Status:    a.Status,
	}
	if region := s.regions.Get(a.Region); region != nil {
		obs.Region = region.Summary()
		for _, id := range region.Occupants {
			other, ok := s.agents[id]
			if !ok || !other.Alive() {
				continue
			}
			obs.VisibleAgents = append(obs.VisibleAgents, map[string]any{
				"agent_id":     other.ID,
				"display_name": other.DisplayName,
				"status":       string(other.Status),
			})
		}
	}
	return obs, nil
}

// Snapshot returns the full observer-safe world view.
func (s *State) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents := make(map[string]any, len(s.agents))
	for id, a := range s.agents {
		agents[id] = a.PublicView()
	}
	return map[string]any{
		"tick":                      s.tick,
		"agents":                    agents,
		"regions":                   s.regions.Summaries(),
		"pending_trades_count":      len(s.pendingTrades),
		"alliance_proposals_count":  len(s.allianceProposals),
	}
}

// Stats returns aggregate counters for analytics.
func (s *State) Stats() (total, alive, claimed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		total++
		if a.Alive() {
			alive++
		}
		if a.Status == StatusClaimed {
			claimed++
		}
	}
	return total, alive, claimed
}

// SetPendingTrades replaces the persisted pending-trade records. The tick
// engine refreshes these from the trade ledger before each snapshot.
func (s *State) SetPendingTrades(trades []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTrades = trades
}

// AddAllianceProposal records a unilateral alliance declaration.
func (s *State) AddAllianceProposal(p AllianceProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allianceProposals = append(s.allianceProposals, p)
}

// ── persistence ──────────────────────────────────────────────────────────

type snapshotDoc struct {
	Tick              int64                  `json:"tick"`
	Agents            map[string]*Agent      `json:"agents"`
	Regions           map[string]*Region     `json:"regions"`
	PendingTrades     []map[string]any       `json:"pending_trades"`
	AllianceProposals []AllianceProposal     `json:"alliance_proposals"`
}

// Save writes the whole world to the snapshot file. The write goes to a temp
// file first and is renamed into place so a crash never leaves a torn
// snapshot.
func (s *State) Save() error {
	s.mu.Lock()
	doc := snapshotDoc{
		Tick:              s.tick,
		Agents:            s.agents,
		Regions:           s.regions.regions,
		PendingTrades:     s.pendingTrades,
		AllianceProposals: s.allianceProposals,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal world state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write world state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("swap world state: %w", err)
	}
	return nil
}

// Load restores the world from the snapshot file. Returns false when no
// snapshot exists yet. Region occupant lists are rebuilt from each alive
// agent's recorded region rather than trusted from the file.
func (s *State) Load() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read world state: %w", err)
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("parse world state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = doc.Tick
	s.agents = doc.Agents
	if s.agents == nil {
		s.agents = make(map[string]*Agent)
	}
	// Region geometry is canonical in code; only occupancy is derived, and
	// that comes from the agents themselves.
	s.regions = NewRegionManager()
	for id, a := range s.agents {
		if a.Resources == nil {
			a.Resources = NewDefaultPool()
		}
		if !a.Alive() {
			continue
		}
		if region := s.regions.Get(a.Region); region != nil {
			region.addOccupant(id)
		}
	}
	s.pendingTrades = doc.PendingTrades
	s.allianceProposals = doc.AllianceProposals
	return true, nil
}
