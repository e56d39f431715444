// Package world holds the canonical simulation state: resources, regions,
// agents, the rules engine, and the tick engine that drives them.
package world

// Resource is one of the four scarce resource kinds that constrain agent
// behavior. The set is closed; adding a kind means updating the defaults and
// the action cost table together.
type Resource string

const (
	Energy    Resource = "energy"
	Bandwidth Resource = "bandwidth"
	Memory    Resource = "memory"
	Compute   Resource = "compute"
)

// ResourceKinds lists every valid resource, in a stable order.
var ResourceKinds = []Resource{Energy, Bandwidth, Memory, Compute}

// ValidResource reports whether s names a known resource kind.
func ValidResource(s string) bool {
	switch Resource(s) {
	case Energy, Bandwidth, Memory, Compute:
		return true
	}
	return false
}

// ResourceDefaults describes the per-kind cap, per-tick regeneration rate
// and initial holding.
type ResourceDefaults struct {
	Cap     float64
	Regen   float64
	Initial float64
}

var resourceDefaults = map[Resource]ResourceDefaults{
	Energy:    {Cap: 100, Regen: 2, Initial: 50},
	Bandwidth: {Cap: 50, Regen: 1, Initial: 25},
	Memory:    {Cap: 200, Regen: 0, Initial: 100},
	Compute:   {Cap: 80, Regen: 1.5, Initial: 40},
}

// DefaultsFor returns the defaults for a resource kind.
func DefaultsFor(r Resource) ResourceDefaults {
	return resourceDefaults[r]
}

// ActionCosts is the base per-action cost table, before any regional
// multiplier.
var ActionCosts = map[ActionType]map[Resource]float64{
	ActionMove:        {Energy: 5},
	ActionTrade:       {Energy: 2, Bandwidth: 3},
	ActionSendMessage: {Bandwidth: 5, Energy: 1},
	ActionObserve:     {Energy: 1},
	ActionFork:        {Energy: 40, Memory: 50, Compute: 30},
	ActionMerge:       {Energy: 20, Compute: 20},
	ActionAttack:      {Energy: 15, Compute: 10},
	ActionAlly:        {Energy: 3, Bandwidth: 2},
}

// Pool tracks an agent's resource holdings and per-kind caps.
type Pool struct {
	Holdings map[Resource]float64 `json:"holdings"`
	Caps     map[Resource]float64 `json:"caps"`
}

// NewDefaultPool creates a pool with the standard initial holdings and caps.
func NewDefaultPool() *Pool {
	p := &Pool{
		Holdings: make(map[Resource]float64, len(ResourceKinds)),
		Caps:     make(map[Resource]float64, len(ResourceKinds)),
	}
	for _, r := range ResourceKinds {
		d := resourceDefaults[r]
		p.Holdings[r] = d.Initial
		p.Caps[r] = d.Cap
	}
	return p
}

// CanAfford reports whether every cost can be covered by current holdings.
func (p *Pool) CanAfford(costs map[Resource]float64) bool {
	for r, amount := range costs {
		if p.Holdings[r] < amount {
			return false
		}
	}
	return true
}

// Deduct atomically subtracts costs. Either every cost is applied or none is;
// holdings never go negative.
func (p *Pool) Deduct(costs map[Resource]float64) bool {
	if !p.CanAfford(costs) {
		return false
	}
	for r, amount := range costs {
		p.Holdings[r] -= amount
	}
	return true
}

// Regenerate applies one tick of regeneration scaled by the region's
// multiplier, clamped to caps.
func (p *Pool) Regenerate(regionMultiplier float64) {
	for _, r := range ResourceKinds {
		d := resourceDefaults[r]
		limit := p.Caps[r]
		if limit == 0 {
			limit = d.Cap
		}
		next := p.Holdings[r] + d.Regen*regionMultiplier
		if next > limit {
			next = limit
		}
		p.Holdings[r] = next
	}
}

// Snapshot returns holdings keyed by resource name, for API payloads.
func (p *Pool) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(p.Holdings))
	for r, amount := range p.Holdings {
		out[string(r)] = amount
	}
	return out
}

// CapsSnapshot returns caps keyed by resource name.
func (p *Pool) CapsSnapshot() map[string]float64 {
	out := make(map[string]float64, len(p.Caps))
	for r, c := range p.Caps {
		out[string(r)] = c
	}
	return out
}

// PoolFromSnapshot rebuilds a pool from persisted holdings and caps. Missing
// caps fall back to defaults.
func PoolFromSnapshot(holdings, caps map[string]float64) *Pool {
	p := &Pool{
		Holdings: make(map[Resource]float64, len(holdings)),
		Caps:     make(map[Resource]float64, len(holdings)),
	}
	for k, v := range holdings {
		r := Resource(k)
		p.Holdings[r] = v
		if c, ok := caps[k]; ok {
			p.Caps[r] = c
		} else {
			p.Caps[r] = resourceDefaults[r].Cap
		}
	}
	return p
}
