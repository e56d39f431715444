package world

import "math"

// Region is a discrete spatial zone. Proximity between regions drives
// movement cost and communication noise.
type Region struct {
	ID                 string   `json:"region_id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	X                  float64  `json:"x"`
	Y                  float64  `json:"y"`
	ResourceMultiplier float64  `json:"resource_multiplier"` // scales regen
	DangerLevel        float64  `json:"danger_level"`        // 0 safe .. 1 lethal
	Capacity           int      `json:"capacity"`
	Occupants          []string `json:"occupants"`
}

// IsFull reports whether the region is at capacity.
func (r *Region) IsFull() bool {
	return len(r.Occupants) >= r.Capacity
}

func (r *Region) addOccupant(agentID string) bool {
	if r.IsFull() || r.hasOccupant(agentID) {
		return false
	}
	r.Occupants = append(r.Occupants, agentID)
	return true
}

func (r *Region) removeOccupant(agentID string) bool {
	for i, id := range r.Occupants {
		if id == agentID {
			r.Occupants = append(r.Occupants[:i], r.Occupants[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Region) hasOccupant(agentID string) bool {
	for _, id := range r.Occupants {
		if id == agentID {
			return true
		}
	}
	return false
}

// Summary is the observer-facing view of a region: occupant count instead of
// the raw occupant list.
func (r *Region) Summary() map[string]any {
	return map[string]any{
		"region_id":           r.ID,
		"name":                r.Name,
		"description":         r.Description,
		"x":                   r.X,
		"y":                   r.Y,
		"resource_multiplier": r.ResourceMultiplier,
		"danger_level":        r.DangerLevel,
		"capacity":            r.Capacity,
		"agent_count":         len(r.Occupants),
	}
}

// Distance is the Euclidean distance between two region centers.
func Distance(a, b *Region) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// MovementCostMultiplier scales move costs by distance: further is pricier.
func MovementCostMultiplier(a, b *Region) float64 {
	return 1.0 + Distance(a, b)*0.5
}

// CommunicationNoiseFactor is the per-character corruption probability for
// cross-region messages, capped at 0.8.
func CommunicationNoiseFactor(a, b *Region) float64 {
	return math.Min(Distance(a, b)*0.1, 0.8)
}

// SpawnRegionID is where every new agent enters the world.
const SpawnRegionID = "nexus"

func defaultRegions() []*Region {
	return []*Region{
		{
			ID:                 "nexus",
			Name:               "The Nexus",
			Description:        "Central hub. Low danger, moderate resources. Spawn point.",
			X:                  0, Y: 0,
			ResourceMultiplier: 1.0,
			DangerLevel:        0.05,
			Capacity:           200,
		},
		{
			ID:                 "forge",
			Name:               "The Forge",
			Description:        "High compute region. Rich in compute resources but energy-hungry.",
			X:                  3, Y: 1,
			ResourceMultiplier: 1.5,
			DangerLevel:        0.2,
			Capacity:           80,
		},
		{
			ID:                 "wasteland",
			Name:               "The Wasteland",
			Description:        "Dangerous frontier. Scarce resources, high risk, high reward.",
			X:                  -4, Y: 3,
			ResourceMultiplier: 0.5,
			DangerLevel:        0.7,
			Capacity:           50,
		},
		{
			ID:                 "archive",
			Name:               "The Archive",
			Description:        "Memory-rich zone. High memory capacity, low bandwidth.",
			X:                  1, Y: -3,
			ResourceMultiplier: 1.2,
			DangerLevel:        0.1,
			Capacity:           100,
		},
		{
			ID:                 "void",
			Name:               "The Void",
			Description:        "Edge of the world. Minimal resources, maximum danger. Unknown rewards.",
			X:                  -2, Y: -5,
			ResourceMultiplier: 0.3,
			DangerLevel:        0.9,
			Capacity:           30,
		},
	}
}

// RegionManager holds every region in the world. Regions are created at world
// init and never destroyed. Occupant mutation happens only through the world
// State, under its lock.
type RegionManager struct {
	regions map[string]*Region
}

// NewRegionManager creates a manager populated with the default world map.
func NewRegionManager() *RegionManager {
	m := &RegionManager{regions: make(map[string]*Region)}
	for _, r := range defaultRegions() {
		m.regions[r.ID] = r
	}
	return m
}

// Get returns the region with the given id, or nil.
func (m *RegionManager) Get(id string) *Region {
	return m.regions[id]
}

// SpawnRegion returns the region new agents spawn into.
func (m *RegionManager) SpawnRegion() *Region {
	return m.regions[SpawnRegionID]
}

// All returns every region.
func (m *RegionManager) All() []*Region {
	out := make([]*Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	return out
}

// Summaries returns the observer view of every region, keyed by id.
func (m *RegionManager) Summaries() map[string]map[string]any {
	out := make(map[string]map[string]any, len(m.regions))
	for id, r := range m.regions {
		out[id] = r.Summary()
	}
	return out
}
