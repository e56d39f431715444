package sdk

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudKingTV/The-Observatory/internal/api"
	"github.com/CloudKingTV/The-Observatory/internal/config"
	"github.com/CloudKingTV/The-Observatory/internal/economy"
	"github.com/CloudKingTV/The-Observatory/internal/events"
	"github.com/CloudKingTV/The-Observatory/internal/gateway"
	"github.com/CloudKingTV/The-Observatory/internal/identity"
	"github.com/CloudKingTV/The-Observatory/internal/ledger"
	"github.com/CloudKingTV/The-Observatory/internal/lifecycle"
	"github.com/CloudKingTV/The-Observatory/internal/messaging"
	"github.com/CloudKingTV/The-Observatory/internal/metrics"
	"github.com/CloudKingTV/The-Observatory/internal/world"
)

// startTestWorld spins up a full server over httptest and returns its URL.
func startTestWorld(t *testing.T) (string, *world.State) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		StateFile:         filepath.Join(dir, "state.json"),
		LedgerFile:        filepath.Join(dir, "ledger.jsonl"),
		TickDuration:      5,
		Domain:            "localhost:8000",
		AllowHMACFallback: true,
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	state := world.NewState(cfg.StateFile)
	eventLedger := ledger.Open(cfg.LedgerFile)
	liveBus := events.NewBus()
	hub := events.NewHub(liveBus)
	onEvent := func(e world.EventData) {
		eventLedger.Record(e)
		liveBus.Publish(events.NewEnvelope(e))
	}
	msgBus := messaging.NewBus()
	trades := economy.NewTradeLedger(state, economy.NewAccounting(), m)
	engine := world.NewEngine(state, cfg.TickInterval(), onEvent, msgBus, trades, m)
	gw := gateway.New(state, engine, identity.Verifier{AllowHMACFallback: true}, msgBus, trades, m, onEvent, cfg.Domain)
	lc := lifecycle.NewManager(state)

	server := api.New(cfg, state, gw, lc, eventLedger, msgBus, trades, economy.NewAccounting(), hub, onEvent, registry)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts.URL, state
}

func TestClient_RegisterAndObserve(t *testing.T) {
	url, _ := startTestWorld(t)
	client := NewClient(Config{BaseURL: url, PublicKey: "sdk-key-1", DisplayName: "Scout"})

	reg, err := client.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.AgentID, reg.AgentID)
	assert.True(t, strings.HasPrefix(reg.AgentID, "agent_"))
	assert.Equal(t, "nexus", reg.InitialSpawnRegion)
	assert.NotEmpty(t, reg.ClaimURL)

	obs, err := client.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unclaimed", obs.Status)
	assert.Equal(t, 50.0, obs.Resources["energy"])
}

func TestClient_SignedActionAfterClaim(t *testing.T) {
	url, state := startTestWorld(t)
	client := NewClient(Config{BaseURL: url, PublicKey: "sdk-key-1", DisplayName: "Scout"})

	reg, err := client.Register(context.Background())
	require.NoError(t, err)

	// Unclaimed agents may only observe.
	_, err = client.Move(context.Background(), "forge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclaimed")

	require.NoError(t, state.MarkClaimed(reg.AgentID, "@operator"))

	act, err := client.Move(context.Background(), "forge")
	require.NoError(t, err)
	assert.Equal(t, "move", act.ActionType)
	assert.Contains(t, act.Details, "queued_at_tick")
}

func TestClient_MessageRoundTrip(t *testing.T) {
	url, state := startTestWorld(t)
	alice := NewClient(Config{BaseURL: url, PublicKey: "sdk-key-a", DisplayName: "Alice"})
	bob := NewClient(Config{BaseURL: url, PublicKey: "sdk-key-b", DisplayName: "Bob"})

	regA, err := alice.Register(context.Background())
	require.NoError(t, err)
	_, err = bob.Register(context.Background())
	require.NoError(t, err)
	require.NoError(t, state.MarkClaimed(regA.AgentID, "@operator"))

	_, err = alice.SendMessage(context.Background(), bob.AgentID, "hello bob")
	require.NoError(t, err)

	inbox, err := bob.Inbox(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, inbox.Count)
	// Both agents start at the spawn region, so no noise applies.
	assert.Equal(t, "hello bob", inbox.Messages[0].Content)
	assert.Equal(t, regA.AgentID, inbox.Messages[0].FromAgent)
}

func TestClient_RequiresRegistration(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:0", PublicKey: "k"})
	_, err := client.Observe(context.Background())
	assert.Error(t, err)
}
