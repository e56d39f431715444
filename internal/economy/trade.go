package economy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CloudKingTV/The-Observatory/internal/metrics"
	"github.com/CloudKingTV/The-Observatory/internal/world"
)

// OfferStatus tracks a trade offer through its lifecycle.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferExecuted OfferStatus = "executed"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

// OfferWindowTicks is how many ticks an offer stays acceptable.
const OfferWindowTicks = 10

// Offer is one pending or settled trade proposal.
type Offer struct {
	ID              string      `json:"offer_id"`
	Tick            int64       `json:"tick"`
	FromAgent       string      `json:"from_agent"`
	ToAgent         string      `json:"to_agent"`
	OfferResource   string      `json:"offer_resource"`
	OfferAmount     float64     `json:"offer_amount"`
	RequestResource string      `json:"request_resource"`
	RequestAmount   float64     `json:"request_amount"`
	Status          OfferStatus `json:"status"`
	CreatedAt       float64     `json:"created_at"`
	ExpiresAtTick   int64       `json:"expires_at_tick"`
}

func (o *Offer) view() map[string]any {
	return map[string]any{
		"offer_id":         o.ID,
		"tick":             o.Tick,
		"from_agent":       o.FromAgent,
		"to_agent":         o.ToAgent,
		"offer_resource":   o.OfferResource,
		"offer_amount":     o.OfferAmount,
		"request_resource": o.RequestResource,
		"request_amount":   o.RequestAmount,
		"status":           string(o.Status),
		"expires_at_tick":  o.ExpiresAtTick,
	}
}

// TradeLedger stores every offer and settles acceptances against the world
// state. Offers are immutable once settled.
type TradeLedger struct {
	state      *world.State
	accounting *Accounting
	metrics    *metrics.Metrics

	mu     sync.Mutex
	offers map[string]*Offer
	order  []string // insertion order, for stable listings
	nextID int
}

// NewTradeLedger creates an empty trade ledger.
func NewTradeLedger(state *world.State, accounting *Accounting, m *metrics.Metrics) *TradeLedger {
	return &TradeLedger{
		state:      state,
		accounting: accounting,
		metrics:    m,
		offers:     make(map[string]*Offer),
	}
}

// CreateOffer records a pending offer. The proposer's action cost was
// already debited by the rules engine; nothing transfers until acceptance.
func (t *TradeLedger) CreateOffer(tick int64, from, to, offerRes string, offerAmt float64, reqRes string, reqAmt float64) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	offer := &Offer{
		ID:              fmt.Sprintf("trade_%08d", t.nextID),
		Tick:            tick,
		FromAgent:       from,
		ToAgent:         to,
		OfferResource:   offerRes,
		OfferAmount:     offerAmt,
		RequestResource: reqRes,
		RequestAmount:   reqAmt,
		Status:          OfferPending,
		CreatedAt:       float64(time.Now().UnixNano()) / 1e9,
		ExpiresAtTick:   tick + OfferWindowTicks,
	}
	t.offers[offer.ID] = offer
	t.order = append(t.order, offer.ID)
	t.nextID++
	return offer.ID
}

// AcceptResult reports an executed trade.
type AcceptResult struct {
	OfferID        string `json:"offer_id"`
	ExecutedAtTick int64  `json:"executed_at_tick"`
}

// AcceptOffer validates and executes a pending offer. Execution is atomic:
// both transfers complete through the world state or neither does, and two
// accounting records are written sharing the offer id.
func (t *TradeLedger) AcceptOffer(offerID, acceptingAgent string, tick int64) (AcceptResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	offer, ok := t.offers[offerID]
	if !ok {
		return AcceptResult{}, errors.New("offer not found")
	}
	if offer.Status != OfferPending {
		return AcceptResult{}, fmt.Errorf("offer is %s", offer.Status)
	}
	if offer.ToAgent != acceptingAgent {
		return AcceptResult{}, errors.New("not the intended recipient")
	}
	if tick > offer.ExpiresAtTick {
		offer.Status = OfferExpired
		return AcceptResult{}, errors.New("offer expired")
	}
	if !world.ValidResource(offer.OfferResource) || !world.ValidResource(offer.RequestResource) {
		offer.Status = OfferRejected
		return AcceptResult{}, errors.New("invalid resource type")
	}

	// Funds and liveness are checked at acceptance time, inside the world
	// lock, so the transfer cannot race a concurrent mutation.
	err := t.state.ExecuteTrade(
		offer.FromAgent, offer.ToAgent,
		world.Resource(offer.OfferResource), offer.OfferAmount,
		world.Resource(offer.RequestResource), offer.RequestAmount,
	)
	if err != nil {
		offer.Status = OfferRejected
		return AcceptResult{}, err
	}
	offer.Status = OfferExecuted

	meta := map[string]any{"trade_id": offer.ID}
	t.accounting.RecordTransfer(tick, offer.FromAgent, offer.ToAgent, offer.OfferResource, offer.OfferAmount, meta)
	t.accounting.RecordTransfer(tick, offer.ToAgent, offer.FromAgent, offer.RequestResource, offer.RequestAmount, meta)

	if err := t.state.Save(); err != nil {
		// In-memory state stays authoritative; the next tick persists again.
		slog.Error("persist after trade failed", "offer_id", offer.ID, "error", err)
	}
	if t.metrics != nil {
		t.metrics.TradesExecuted.Inc()
	}
	return AcceptResult{OfferID: offer.ID, ExecutedAtTick: tick}, nil
}

// ExpireOldOffers sweeps pending offers past their window. Returns the
// number expired.
func (t *TradeLedger) ExpireOldOffers(tick int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, offer := range t.offers {
		if offer.Status == OfferPending && tick > offer.ExpiresAtTick {
			offer.Status = OfferExpired
			count++
		}
	}
	if t.metrics != nil && count > 0 {
		t.metrics.OffersExpired.Add(float64(count))
	}
	return count
}

// OffersForAgent returns pending offers where the agent is either party.
func (t *TradeLedger) OffersForAgent(agentID string) []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []map[string]any
	for _, id := range t.order {
		o := t.offers[id]
		if o.Status == OfferPending && (o.FromAgent == agentID || o.ToAgent == agentID) {
			out = append(out, o.view())
		}
	}
	return out
}

// PendingSnapshot returns every pending offer, in creation order.
func (t *TradeLedger) PendingSnapshot() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []map[string]any
	for _, id := range t.order {
		if o := t.offers[id]; o.Status == OfferPending {
			out = append(out, o.view())
		}
	}
	return out
}
