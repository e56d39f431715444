package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDFromPublicKey_Deterministic(t *testing.T) {
	id1 := AgentIDFromPublicKey("pk001")
	id2 := AgentIDFromPublicKey("pk001")
	other := AgentIDFromPublicKey("pk002")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, other)
	assert.True(t, strings.HasPrefix(id1, "agent_"))
	assert.Len(t, id1, len("agent_")+16)
}

func TestNewClaimToken_UniqueAndURLSafe(t *testing.T) {
	t1 := NewClaimToken()
	t2 := NewClaimToken()
	assert.NotEqual(t, t1, t2)
	assert.NotContains(t, t1, "+")
	assert.NotContains(t, t1, "/")
	assert.NotContains(t, t1, "=")
	// 32 bytes base64url without padding is 43 characters.
	assert.Len(t, t1, 43)
}

func TestPoW_SolveAndVerify(t *testing.T) {
	challenge := NewChallenge()
	assert.Len(t, challenge, 32) // 16 bytes hex

	nonce := SolvePoW(challenge)
	assert.True(t, VerifyPoW(challenge, nonce))
	assert.False(t, VerifyPoW(challenge, nonce+"x"))
	assert.False(t, VerifyPoW(NewChallenge(), nonce))
}

func TestVerifySignature_Ed25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)

	msg := "the canonical message"
	sig := hex.EncodeToString(ed25519.Sign(priv, []byte(msg)))

	v := Verifier{}
	assert.True(t, v.VerifySignature(pubHex, msg, sig))
	assert.False(t, v.VerifySignature(pubHex, "tampered", sig))
	assert.False(t, v.VerifySignature(pubHex, msg, "deadbeef"))
}

func TestVerifySignature_HMACFallback(t *testing.T) {
	// A key that is not 32 bytes of hex selects the HMAC scheme.
	pub := "not-a-hex-key"
	msg := "POST:/agent/action:{}:1700000000"
	sig := SignHMAC(pub, msg)

	permissive := Verifier{AllowHMACFallback: true}
	assert.True(t, permissive.VerifySignature(pub, msg, sig))
	assert.False(t, permissive.VerifySignature(pub, "other", sig))

	strict := Verifier{AllowHMACFallback: false}
	assert.False(t, strict.VerifySignature(pub, msg, sig), "fallback disabled rejects HMAC keys outright")
}

func TestVerifyRequest_CanonicalForm(t *testing.T) {
	pub := "shared-secret-key"
	v := Verifier{AllowHMACFallback: true}

	msg := CanonicalRequest("POST", "/agent/observe", "{}", "1700000000")
	assert.Equal(t, "POST:/agent/observe:{}:1700000000", msg)

	sig := SignHMAC(pub, msg)
	assert.True(t, v.VerifyRequest(pub, "POST", "/agent/observe", "{}", "1700000000", sig))
	assert.False(t, v.VerifyRequest(pub, "GET", "/agent/observe", "{}", "1700000000", sig),
		"method is part of the signed message")
}

func TestTimestampValid_SkewWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)

	assert.True(t, TimestampValid("1700000000", now))
	assert.True(t, TimestampValid("1700000299", now))
	assert.True(t, TimestampValid("1699999701", now))
	assert.False(t, TimestampValid("1700000301", now))
	assert.False(t, TimestampValid("1699999699", now))
	assert.False(t, TimestampValid("not-a-number", now))

	// Fractional timestamps are accepted.
	assert.True(t, TimestampValid("1700000000.25", now))
}
