// Package lifecycle manages agent claim and death transitions. Every
// transition is server-validated and irreversible.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CloudKingTV/The-Observatory/internal/world"
)

// Claim failures, in the order handlers check them.
var (
	ErrTooManyAttempts = errors.New("too many claim attempts for this token")
	ErrTokenNotFound   = errors.New("invalid or expired claim token")
	ErrAlreadyClaimed  = errors.New("agent already claimed or dead")
	ErrTokenExpired    = errors.New("claim token expired")
	ErrMissingIdentity = errors.New("missing owner identity")
)

// MaxClaimAttempts bounds validation attempts per token.
const MaxClaimAttempts = 5

// ClaimTokenTTL is how long a claim token stays redeemable.
const ClaimTokenTTL = 24 * time.Hour

// Manager owns claim-token validation and the death transition. It holds no
// agent state of its own beyond the per-token attempt counters.
type Manager struct {
	state *world.State

	mu       sync.Mutex
	attempts map[string]int

	now func() time.Time
}

// NewManager creates a lifecycle manager over the given world state.
func NewManager(state *world.State) *Manager {
	return &Manager{
		state:    state,
		attempts: make(map[string]int),
		now:      time.Now,
	}
}

// TokenInfo describes the agent a claim token belongs to.
type TokenInfo struct {
	AgentID     string
	DisplayName string
}

// ValidateToken checks a claim token without consuming it. Each call counts
// against the token's attempt budget.
func (m *Manager) ValidateToken(token string) (TokenInfo, error) {
	m.mu.Lock()
	attempts := m.attempts[token]
	if attempts >= MaxClaimAttempts {
		m.mu.Unlock()
		return TokenInfo{}, ErrTooManyAttempts
	}
	m.attempts[token] = attempts + 1
	m.mu.Unlock()

	agentID, displayName, status, expires, ok := m.state.FindByClaimToken(token)
	if !ok {
		return TokenInfo{}, ErrTokenNotFound
	}
	if status != world.StatusUnclaimed {
		return TokenInfo{}, ErrAlreadyClaimed
	}
	if expires > 0 && m.now().Unix() > expires {
		return TokenInfo{}, ErrTokenExpired
	}
	return TokenInfo{AgentID: agentID, DisplayName: displayName}, nil
}

// ClaimResult reports a successful ownership claim.
type ClaimResult struct {
	AgentID            string `json:"agent_id"`
	DisplayName        string `json:"display_name"`
	OwnerIdentity      string `json:"owner_identity"`
	VerificationMethod string `json:"verification_method"`
	Status             string `json:"status"`
}

// Claim consumes a claim token: the agent becomes claimed, the owner
// identity is recorded verbatim (the kernel does not authenticate the
// verification channel), and the token is cleared atomically so reuse is
// impossible.
func (m *Manager) Claim(token, ownerIdentity, verificationMethod string) (ClaimResult, error) {
	if strings.TrimSpace(ownerIdentity) == "" {
		return ClaimResult{}, ErrMissingIdentity
	}
	info, err := m.ValidateToken(token)
	if err != nil {
		return ClaimResult{}, err
	}
	if err := m.state.MarkClaimed(info.AgentID, ownerIdentity); err != nil {
		return ClaimResult{}, ErrAlreadyClaimed
	}
	if err := m.state.Save(); err != nil {
		slog.Error("persist after claim failed", "agent_id", info.AgentID, "error", err)
	}
	slog.Info("agent claimed", "agent_id", info.AgentID, "owner", ownerIdentity, "method", verificationMethod)
	return ClaimResult{
		AgentID:            info.AgentID,
		DisplayName:        info.DisplayName,
		OwnerIdentity:      ownerIdentity,
		VerificationMethod: verificationMethod,
		Status:             string(world.StatusClaimed),
	}, nil
}

// VerificationInfo is everything an operator needs to prove ownership
// through the out-of-band channel.
type VerificationInfo struct {
	AgentID     string `json:"agent_id"`
	DisplayName string `json:"display_name"`
	Phrase      string `json:"verification_phrase"`
	ShortCode   string `json:"short_code"`
	Instructions string `json:"instructions"`
}

// VerificationPhrase builds the deterministic phrase an operator posts on
// the out-of-band channel.
func (m *Manager) VerificationPhrase(token string) (VerificationInfo, error) {
	info, err := m.ValidateToken(token)
	if err != nil {
		return VerificationInfo{}, err
	}
	shortCode := strings.ToUpper(token[:8])
	return VerificationInfo{
		AgentID:      info.AgentID,
		DisplayName:  info.DisplayName,
		Phrase:       fmt.Sprintf("I am verifying ownership of my agent on The Observatory. Code: %s", shortCode),
		ShortCode:    shortCode,
		Instructions: "Post this exact text from the account you want to associate with this agent.",
	}, nil
}

// Kill marks an agent dead. Returns false if the agent was missing or
// already dead.
func (m *Manager) Kill(agentID, cause string, tick int64) bool {
	if !m.state.Kill(agentID, tick) {
		return false
	}
	if err := m.state.Save(); err != nil {
		slog.Error("persist after death failed", "agent_id", agentID, "error", err)
	}
	slog.Info("agent died", "agent_id", agentID, "cause", cause, "tick", tick)
	return true
}
