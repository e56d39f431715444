// Package gateway is the write-side surface of the world: registration with
// proof-of-work, signed-request authentication, action submission and the
// immediate observe path. Handlers stay thin; the gateway owns the semantics.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CloudKingTV/The-Observatory/internal/economy"
	"github.com/CloudKingTV/The-Observatory/internal/identity"
	"github.com/CloudKingTV/The-Observatory/internal/lifecycle"
	"github.com/CloudKingTV/The-Observatory/internal/messaging"
	"github.com/CloudKingTV/The-Observatory/internal/metrics"
	"github.com/CloudKingTV/The-Observatory/internal/world"
)

// Auth failures, mapped to HTTP status by the API layer.
var (
	// ErrAuthMissing means one or more auth headers were absent (401).
	ErrAuthMissing = errors.New("missing authentication headers")
	// ErrAuthInvalid covers bad signatures, stale timestamps, unknown and
	// dead agents (403).
	ErrAuthInvalid = errors.New("authentication failed")
)

// challengeTTL bounds how long an issued PoW challenge stays redeemable.
const challengeTTL = 10 * time.Minute

// inboxPreviewLimit is how many recent messages observe includes.
const inboxPreviewLimit = 20

// AgentGateway mediates every agent-initiated mutation.
type AgentGateway struct {
	state    *world.State
	engine   *world.Engine
	verifier identity.Verifier
	bus      *messaging.Bus
	trades   *economy.TradeLedger
	metrics  *metrics.Metrics
	onEvent  world.EventSink
	domain   string

	mu         sync.Mutex
	challenges map[string]time.Time // challenge -> issued at

	now func() time.Time
}

// New wires the agent gateway. domain decides the claim-URL host; onEvent
// receives register events for the ledger and may be nil in tests.
func New(state *world.State, engine *world.Engine, verifier identity.Verifier, bus *messaging.Bus, trades *economy.TradeLedger, m *metrics.Metrics, onEvent world.EventSink, domain string) *AgentGateway {
	return &AgentGateway{
		state:      state,
		engine:     engine,
		verifier:   verifier,
		bus:        bus,
		trades:     trades,
		metrics:    m,
		onEvent:    onEvent,
		domain:     domain,
		challenges: make(map[string]time.Time),
		now:        time.Now,
	}
}

// NewChallenge issues a proof-of-work challenge and remembers it until it is
// redeemed or expires.
func (g *AgentGateway) NewChallenge() string {
	challenge := identity.NewChallenge()
	g.mu.Lock()
	g.challenges[challenge] = g.now()
	// Opportunistic sweep; the map stays small.
	for c, issued := range g.challenges {
		if g.now().Sub(issued) > challengeTTL {
			delete(g.challenges, c)
		}
	}
	g.mu.Unlock()
	return challenge
}

// consumeChallenge redeems an issued challenge exactly once.
func (g *AgentGateway) consumeChallenge(challenge string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	issued, ok := g.challenges[challenge]
	if !ok {
		return false
	}
	delete(g.challenges, challenge)
	return g.now().Sub(issued) <= challengeTTL
}

// RegisterRequest is the registration submission body.
type RegisterRequest struct {
	PublicKey    string `json:"agent_public_key"`
	DisplayName  string `json:"agent_display_name"`
	Nonce        string `json:"nonce"`
	SignedNonce  string `json:"signed_nonce"`
	PoWChallenge string `json:"pow_challenge"`
	PoWNonce     string `json:"pow_nonce"`
}

// RegisterResult is the successful registration response.
type RegisterResult struct {
	AgentID            string             `json:"agent_id"`
	DisplayName        string             `json:"display_name"`
	ClaimToken         string             `json:"claim_token"`
	ClaimURL           string             `json:"claim_url"`
	InitialSpawnRegion string             `json:"initial_spawn_region"`
	InitialResources   map[string]float64 `json:"initial_resources"`
	AuthMethod         string             `json:"auth_method"`
	Instructions       string             `json:"instructions"`
}

// Register validates proof-of-work and the signed nonce, then creates an
// unclaimed agent at the spawn region. The same public key can only register
// once per world.
func (g *AgentGateway) Register(req RegisterRequest) (RegisterResult, error) {
	outcome := "rejected"
	defer func() {
		if g.metrics != nil {
			g.metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()
		}
	}()

	if strings.TrimSpace(req.PublicKey) == "" {
		return RegisterResult{}, errors.New("agent_public_key is required")
	}
	if !g.consumeChallenge(req.PoWChallenge) {
		return RegisterResult{}, errors.New("unknown or expired pow_challenge")
	}
	if !identity.VerifyPoW(req.PoWChallenge, req.PoWNonce) {
		return RegisterResult{}, errors.New("proof of work verification failed")
	}
	if !g.verifier.VerifySignature(req.PublicKey, req.Nonce, req.SignedNonce) {
		return RegisterResult{}, errors.New("signed nonce verification failed")
	}

	agentID := identity.AgentIDFromPublicKey(req.PublicKey)
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = agentID
	}

	token := identity.NewClaimToken()
	agent := &world.Agent{
		ID:                agentID,
		DisplayName:       displayName,
		PublicKey:         req.PublicKey,
		Region:            world.SpawnRegionID,
		Resources:         world.NewDefaultPool(),
		Status:            world.StatusUnclaimed,
		ClaimToken:        token,
		ClaimTokenExpires: g.now().Add(lifecycle.ClaimTokenTTL).Unix(),
		CreatedAtTick:     g.state.Tick(),
	}
	if err := g.state.AddAgent(agent); err != nil {
		if errors.Is(err, world.ErrAgentExists) {
			return RegisterResult{}, errors.New("this public key is already registered")
		}
		return RegisterResult{}, err
	}
	if err := g.state.Save(); err != nil {
		slog.Error("persist after registration failed", "agent_id", agentID, "error", err)
	}

	initial := agent.Resources.Snapshot()
	if g.onEvent != nil {
		g.onEvent(world.EventData{
			Tick:       agent.CreatedAtTick,
			ActionType: "register",
			AgentID:    agentID,
			Success:    true,
			Details: map[string]any{
				"display_name":      displayName,
				"region":            world.SpawnRegionID,
				"initial_resources": initial,
			},
		})
	}
	slog.Info("agent registered", "agent_id", agentID, "display_name", displayName)
	outcome = "registered"

	return RegisterResult{
		AgentID:            agentID,
		DisplayName:        displayName,
		ClaimToken:         token,
		ClaimURL:           g.claimURL(token),
		InitialSpawnRegion: world.SpawnRegionID,
		InitialResources:   initial,
		AuthMethod:         "ed25519 or hmac-sha256 over METHOD:PATH:BODY:TIMESTAMP",
		Instructions:       "Give the claim_url to your operator. Until claimed, only observe is allowed.",
	}, nil
}

func (g *AgentGateway) claimURL(token string) string {
	scheme := "https"
	if strings.HasPrefix(g.domain, "localhost") || strings.HasPrefix(g.domain, "127.0.0.1") {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/claim/%s", scheme, g.domain, token)
}

// Authenticate verifies one signed request. Returns ErrAuthMissing when any
// header is absent, ErrAuthInvalid for every verification failure; the
// distinction is deliberate so the API can answer 401 vs 403.
func (g *AgentGateway) Authenticate(agentID, method, path, body, timestamp, signature string) error {
	fail := func(reason string) error {
		if g.metrics != nil {
			g.metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
		}
		return ErrAuthInvalid
	}

	if agentID == "" || timestamp == "" || signature == "" {
		if g.metrics != nil {
			g.metrics.AuthFailuresTotal.WithLabelValues("missing_headers").Inc()
		}
		return ErrAuthMissing
	}
	if !identity.TimestampValid(timestamp, g.now()) {
		return fail("stale_timestamp")
	}
	publicKey, status, ok := g.state.AuthMaterial(agentID)
	if !ok {
		return fail("unknown_agent")
	}
	if status == world.StatusDead {
		return fail("dead_agent")
	}
	if !g.verifier.VerifyRequest(publicKey, method, path, body, timestamp, signature) {
		return fail("bad_signature")
	}
	return nil
}

// SubmitResult reports an accepted action submission.
type SubmitResult struct {
	ActionType string         `json:"action_type"`
	Details    map[string]any `json:"details"`
}

// SubmitAction validates and routes one action. Queueable actions return
// immediately with the tick they were queued at; accept_trade settles
// synchronously against the trade ledger.
func (g *AgentGateway) SubmitAction(agentID string, actionType string, params map[string]any) (SubmitResult, error) {
	return g.submit(agentID, actionType, params, false)
}

// submit is SubmitAction with control over the delivered flag, which marks a
// send_message the gateway already dropped into the recipient's inbox.
func (g *AgentGateway) submit(agentID string, actionType string, params map[string]any, delivered bool) (SubmitResult, error) {
	action := world.ActionType(actionType)

	status, ok := g.state.AgentStatusOf(agentID)
	if !ok {
		return SubmitResult{}, world.ErrAgentNotFound
	}
	if status == world.StatusUnclaimed && action != world.ActionObserve {
		return SubmitResult{}, errors.New("Agent is unclaimed. Only observe actions are allowed.")
	}

	if action == world.ActionAcceptTrade {
		offerID, _ := params["offer_id"].(string)
		if offerID == "" {
			return SubmitResult{}, errors.New("Missing offer_id")
		}
		res, err := g.trades.AcceptOffer(offerID, agentID, g.state.Tick())
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{
			ActionType: actionType,
			Details:    map[string]any{"offer_id": res.OfferID, "executed_at_tick": res.ExecutedAtTick},
		}, nil
	}

	if !world.QueueableActions[action] {
		return SubmitResult{}, fmt.Errorf("Unknown action type: %s", actionType)
	}
	if params == nil {
		params = map[string]any{}
	}
	tick := g.state.Tick()
	g.engine.Enqueue(world.QueuedAction{
		AgentID:         agentID,
		Action:          action,
		Params:          params,
		SubmittedAtTick: tick,
		Delivered:       delivered,
	})
	return SubmitResult{
		ActionType: actionType,
		Details:    map[string]any{"queued_at_tick": tick},
	}, nil
}

// ObserveResult is the immediate observation payload: surroundings plus a
// recent-inbox preview and the agent's pending trade offers.
type ObserveResult struct {
	Tick          int64               `json:"tick"`
	Region        map[string]any      `json:"region"`
	VisibleAgents []map[string]any    `json:"visible_agents"`
	Resources     map[string]float64  `json:"your_resources"`
	Status        string              `json:"your_status"`
	Inbox         []messaging.Message `json:"inbox"`
	PendingTrades []map[string]any    `json:"pending_trades"`
}

// Observe bypasses the tick queue: observation is read-only and costs
// nothing when taken through this path.
func (g *AgentGateway) Observe(agentID string) (ObserveResult, error) {
	obs, err := g.state.Observe(agentID)
	if err != nil {
		return ObserveResult{}, err
	}
	inbox := g.bus.Inbox(agentID, 0)
	if len(inbox) > inboxPreviewLimit {
		inbox = inbox[len(inbox)-inboxPreviewLimit:]
	}
	return ObserveResult{
		Tick:          obs.Tick,
		Region:        obs.Region,
		VisibleAgents: obs.VisibleAgents,
		Resources:     obs.Resources,
		Status:        string(obs.Status),
		Inbox:         inbox,
		PendingTrades: g.trades.OffersForAgent(agentID),
	}, nil
}

// SendMessage queues a send_message action and additionally performs an
// immediate noisy delivery so the recipient's inbox reflects the message
// without waiting a tick. The queued action carries the delivered flag so
// its resolution debits costs and is ledgered without a second inbox copy.
func (g *AgentGateway) SendMessage(agentID, targetAgent, content string) (SubmitResult, error) {
	if targetAgent == "" {
		return SubmitResult{}, errors.New("Missing target_agent")
	}
	if content == "" {
		return SubmitResult{}, errors.New("Missing content")
	}
	res, err := g.submit(agentID, string(world.ActionSendMessage), map[string]any{
		"target_agent": targetAgent,
		"content":      content,
	}, true)
	if err != nil {
		return SubmitResult{}, err
	}
	noise, fromRegion, toRegion, err := g.state.NoiseBetween(agentID, targetAgent)
	if err == nil {
		g.bus.Deliver(g.state.Tick(), agentID, targetAgent, content, noise, fromRegion, toRegion)
	}
	return res, nil
}

// Inbox returns the agent's messages at or after sinceTick.
func (g *AgentGateway) Inbox(agentID string, sinceTick int64) []messaging.Message {
	return g.bus.Inbox(agentID, sinceTick)
}
