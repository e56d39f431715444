package gateway

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudKingTV/The-Observatory/internal/economy"
	"github.com/CloudKingTV/The-Observatory/internal/identity"
	"github.com/CloudKingTV/The-Observatory/internal/messaging"
	"github.com/CloudKingTV/The-Observatory/internal/world"
)

type eventLog struct {
	events []world.EventData
}

func (l *eventLog) sink(e world.EventData) { l.events = append(l.events, e) }

func newGatewayFixture(t *testing.T) (*AgentGateway, *world.State, *eventLog) {
	t.Helper()
	state := world.NewState(filepath.Join(t.TempDir(), "state.json"))
	bus := messaging.NewBus()
	trades := economy.NewTradeLedger(state, economy.NewAccounting(), nil)
	engine := world.NewEngine(state, time.Second, nil, bus, trades, nil)
	log := &eventLog{}
	gw := New(state, engine, identity.Verifier{AllowHMACFallback: true}, bus, trades, nil, log.sink, "localhost:8000")
	return gw, state, log
}

// registerAgent runs the whole registration dance with the HMAC scheme.
func registerAgent(t *testing.T, gw *AgentGateway, publicKey, name string) RegisterResult {
	t.Helper()
	challenge := gw.NewChallenge()
	result, err := gw.Register(RegisterRequest{
		PublicKey:    publicKey,
		DisplayName:  name,
		Nonce:        "n1",
		SignedNonce:  identity.SignHMAC(publicKey, "n1"),
		PoWChallenge: challenge,
		PoWNonce:     identity.SolvePoW(challenge),
	})
	require.NoError(t, err)
	return result
}

func TestRegister_HappyPath(t *testing.T) {
	gw, state, log := newGatewayFixture(t)
	result := registerAgent(t, gw, "pk001", "Scout")

	assert.Equal(t, identity.AgentIDFromPublicKey("pk001"), result.AgentID)
	assert.Equal(t, "Scout", result.DisplayName)
	assert.Equal(t, world.SpawnRegionID, result.InitialSpawnRegion)
	assert.Equal(t, 50.0, result.InitialResources["energy"])
	assert.True(t, strings.HasPrefix(result.ClaimURL, "http://localhost:8000/claim/"), result.ClaimURL)
	assert.NotEmpty(t, result.ClaimToken)

	status, ok := state.AgentStatusOf(result.AgentID)
	require.True(t, ok)
	assert.Equal(t, world.StatusUnclaimed, status)

	require.Len(t, log.events, 1)
	assert.Equal(t, "register", log.events[0].ActionType)
	assert.Equal(t, result.AgentID, log.events[0].AgentID)
}

func TestRegister_RejectsDuplicateKey(t *testing.T) {
	gw, _, _ := newGatewayFixture(t)
	registerAgent(t, gw, "pk001", "First")

	challenge := gw.NewChallenge()
	_, err := gw.Register(RegisterRequest{
		PublicKey:    "pk001",
		Nonce:        "n2",
		SignedNonce:  identity.SignHMAC("pk001", "n2"),
		PoWChallenge: challenge,
		PoWNonce:     identity.SolvePoW(challenge),
	})
	assert.EqualError(t, err, "this public key is already registered")
}

func TestRegister_RejectsBadProofOfWork(t *testing.T) {
	gw, _, _ := newGatewayFixture(t)
	challenge := gw.NewChallenge()
	_, err := gw.Register(RegisterRequest{
		PublicKey:    "pk001",
		Nonce:        "n1",
		SignedNonce:  identity.SignHMAC("pk001", "n1"),
		PoWChallenge: challenge,
		PoWNonce:     "definitely-wrong",
	})
	assert.EqualError(t, err, "proof of work verification failed")
}

func TestRegister_RejectsUnissuedChallenge(t *testing.T) {
	gw, _, _ := newGatewayFixture(t)
	_, err := gw.Register(RegisterRequest{
		PublicKey:    "pk001",
		Nonce:        "n1",
		SignedNonce:  identity.SignHMAC("pk001", "n1"),
		PoWChallenge: "never-issued",
		PoWNonce:     "0",
	})
	assert.EqualError(t, err, "unknown or expired pow_challenge")
}

func TestRegister_ChallengeIsSingleUse(t *testing.T) {
	gw, _, _ := newGatewayFixture(t)
	challenge := gw.NewChallenge()
	nonce := identity.SolvePoW(challenge)

	_, err := gw.Register(RegisterRequest{
		PublicKey: "pk001", Nonce: "n1", SignedNonce: identity.SignHMAC("pk001", "n1"),
		PoWChallenge: challenge, PoWNonce: nonce,
	})
	require.NoError(t, err)

	_, err = gw.Register(RegisterRequest{
		PublicKey: "pk002", Nonce: "n1", SignedNonce: identity.SignHMAC("pk002", "n1"),
		PoWChallenge: challenge, PoWNonce: nonce,
	})
	assert.EqualError(t, err, "unknown or expired pow_challenge")
}

func TestRegister_RejectsBadSignedNonce(t *testing.T) {
	gw, _, _ := newGatewayFixture(t)
	challenge := gw.NewChallenge()
	_, err := gw.Register(RegisterRequest{
		PublicKey:    "pk001",
		Nonce:        "n1",
		SignedNonce:  identity.SignHMAC("other-key", "n1"),
		PoWChallenge: challenge,
		PoWNonce:     identity.SolvePoW(challenge),
	})
	assert.EqualError(t, err, "signed nonce verification failed")
}

func signedHeaders(publicKey, method, path, body string) (timestamp, signature string) {
	timestamp = fmt.Sprintf("%d", time.Now().Unix())
	signature = identity.SignHMAC(publicKey, identity.CanonicalRequest(method, path, body, timestamp))
	return timestamp, signature
}

func TestAuthenticate_HappyPath(t *testing.T) {
	gw, _, _ := newGatewayFixture(t)
	result := registerAgent(t, gw, "pk001", "Scout")

	ts, sig := signedHeaders("pk001", "POST", "/agent/observe", "{}")
	assert.NoError(t, gw.Authenticate(result.AgentID, "POST", "/agent/observe", "{}", ts, sig))
}

func TestAuthenticate_FailureModes(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	result := registerAgent(t, gw, "pk001", "Scout")
	ts, sig := signedHeaders("pk001", "POST", "/agent/observe", "{}")

	assert.ErrorIs(t, gw.Authenticate("", "POST", "/agent/observe", "{}", ts, sig), ErrAuthMissing)
	assert.ErrorIs(t, gw.Authenticate(result.AgentID, "POST", "/agent/observe", "{}", "", sig), ErrAuthMissing)

	assert.ErrorIs(t, gw.Authenticate("agent_unknown", "POST", "/agent/observe", "{}", ts, sig), ErrAuthInvalid)

	staleTS := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())
	staleSig := identity.SignHMAC("pk001", identity.CanonicalRequest("POST", "/agent/observe", "{}", staleTS))
	assert.ErrorIs(t, gw.Authenticate(result.AgentID, "POST", "/agent/observe", "{}", staleTS, staleSig), ErrAuthInvalid)

	assert.ErrorIs(t, gw.Authenticate(result.AgentID, "POST", "/agent/observe", "{}", ts, "bad-signature"), ErrAuthInvalid)

	state.Kill(result.AgentID, 1)
	assert.ErrorIs(t, gw.Authenticate(result.AgentID, "POST", "/agent/observe", "{}", ts, sig), ErrAuthInvalid)
}

func TestSubmitAction_UnclaimedOnlyObserve(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	result := registerAgent(t, gw, "pk001", "Scout")

	_, err := gw.SubmitAction(result.AgentID, "move", map[string]any{"target_region": "forge"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclaimed")

	submitted, err := gw.SubmitAction(result.AgentID, "observe", nil)
	require.NoError(t, err)
	assert.Equal(t, "observe", submitted.ActionType)

	require.NoError(t, state.MarkClaimed(result.AgentID, "@alice"))
	submitted, err = gw.SubmitAction(result.AgentID, "move", map[string]any{"target_region": "forge"})
	require.NoError(t, err)
	assert.Contains(t, submitted.Details, "queued_at_tick")
}

func TestSubmitAction_UnknownType(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	result := registerAgent(t, gw, "pk001", "Scout")
	require.NoError(t, state.MarkClaimed(result.AgentID, "@alice"))

	_, err := gw.SubmitAction(result.AgentID, "teleport", nil)
	assert.EqualError(t, err, "Unknown action type: teleport")
}

func TestSubmitAction_AcceptTradeResolvesImmediately(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	a := registerAgent(t, gw, "pk001", "Alice")
	b := registerAgent(t, gw, "pk002", "Bob")
	require.NoError(t, state.MarkClaimed(a.AgentID, "@alice"))
	require.NoError(t, state.MarkClaimed(b.AgentID, "@bob"))

	offerID := gw.trades.CreateOffer(0, a.AgentID, b.AgentID, "energy", 5, "compute", 2)

	submitted, err := gw.SubmitAction(b.AgentID, "accept_trade", map[string]any{"offer_id": offerID})
	require.NoError(t, err)
	assert.Equal(t, offerID, submitted.Details["offer_id"])

	res, _ := state.ResourceSnapshot(a.AgentID)
	assert.Equal(t, 45.0, res["energy"])
}

func TestObserve_IncludesInboxAndTrades(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	a := registerAgent(t, gw, "pk001", "Alice")
	b := registerAgent(t, gw, "pk002", "Bob")
	require.NoError(t, state.MarkClaimed(a.AgentID, "@alice"))
	require.NoError(t, state.MarkClaimed(b.AgentID, "@bob"))

	gw.bus.Deliver(1, b.AgentID, a.AgentID, "hello", 0, "nexus", "nexus")
	gw.trades.CreateOffer(1, b.AgentID, a.AgentID, "energy", 1, "compute", 1)

	obs, err := gw.Observe(a.AgentID)
	require.NoError(t, err)
	assert.Equal(t, "claimed", obs.Status)
	require.Len(t, obs.Inbox, 1)
	assert.Equal(t, "hello", obs.Inbox[0].Content)
	assert.Len(t, obs.PendingTrades, 1)
	assert.Len(t, obs.VisibleAgents, 2)
}

func TestSendMessage_ImmediateDeliveryPlusQueue(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	a := registerAgent(t, gw, "pk001", "Alice")
	b := registerAgent(t, gw, "pk002", "Bob")
	require.NoError(t, state.MarkClaimed(a.AgentID, "@alice"))

	submitted, err := gw.SendMessage(a.AgentID, b.AgentID, "meet at nexus")
	require.NoError(t, err)
	assert.Contains(t, submitted.Details, "queued_at_tick")

	inbox := gw.Inbox(b.AgentID, 0)
	require.Len(t, inbox, 1)
	// Same region: zero noise, content intact.
	assert.Equal(t, "meet at nexus", inbox[0].Content)
}

func TestSendMessage_SingleCopyAfterTick(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	a := registerAgent(t, gw, "pk001", "Alice")
	b := registerAgent(t, gw, "pk002", "Bob")
	require.NoError(t, state.MarkClaimed(a.AgentID, "@alice"))

	_, err := gw.SendMessage(a.AgentID, b.AgentID, "meet at nexus")
	require.NoError(t, err)
	require.Len(t, gw.Inbox(b.AgentID, 0), 1)

	// Resolving the queued action debits costs but must not deliver again.
	gw.engine.RunSingleTick()
	assert.Len(t, gw.Inbox(b.AgentID, 0), 1)
}

func TestSendMessage_Validation(t *testing.T) {
	gw, state, _ := newGatewayFixture(t)
	a := registerAgent(t, gw, "pk001", "Alice")
	require.NoError(t, state.MarkClaimed(a.AgentID, "@alice"))

	_, err := gw.SendMessage(a.AgentID, "", "hi")
	assert.EqualError(t, err, "Missing target_agent")
	_, err = gw.SendMessage(a.AgentID, "someone", "")
	assert.EqualError(t, err, "Missing content")
}
