// Package identity implements agent authentication: deterministic agent ids,
// proof-of-work anti-sybil challenges, claim tokens, and signed-request
// verification. No human ever holds agent credentials.
package identity

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// AgentIDFromPublicKey derives the canonical agent id from a public key.
// The mapping is bijective within a world: registering the same key twice
// yields the same id and is rejected upstream.
func AgentIDFromPublicKey(publicKey string) string {
	digest := sha256.Sum256([]byte(publicKey))
	return "agent_" + hex.EncodeToString(digest[:])[:16]
}

// NewClaimToken returns a URL-safe single-use claim token with 256 bits of
// entropy.
func NewClaimToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ── proof of work ────────────────────────────────────────────────────────

// PoWDifficulty is the required number of leading zero bits in
// SHA-256(challenge || nonce). 16 bits is ~65536 attempts.
const PoWDifficulty = 16

// NewChallenge returns a random 128-bit hex challenge.
func NewChallenge() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// VerifyPoW checks that the nonce solves the challenge at PoWDifficulty.
func VerifyPoW(challenge, nonce string) bool {
	digest := sha256.Sum256([]byte(challenge + nonce))
	hexDigest := hex.EncodeToString(digest[:])
	zeros := PoWDifficulty / 4
	return hexDigest[:zeros] == strings.Repeat("0", zeros)
}

// SolvePoW brute-forces a valid nonce. Test and client-side utility only.
func SolvePoW(challenge string) string {
	for i := 0; ; i++ {
		nonce := strconv.Itoa(i)
		if VerifyPoW(challenge, nonce) {
			return nonce
		}
	}
}

// ── signatures ───────────────────────────────────────────────────────────

// Verifier checks agent signatures. Ed25519 is the preferred scheme: a
// public key that decodes to 32 bytes of hex is treated as an Ed25519 key
// and the signature must be 64 hex-encoded bytes. Any other key shape falls
// back to HMAC-SHA256 with the public key string as shared secret — a
// development convenience, not an equivalent scheme; disable it in
// production.
type Verifier struct {
	AllowHMACFallback bool
}

// MaxTimestampSkew is the accepted clock drift for signed requests.
const MaxTimestampSkew = 300 * time.Second

// VerifySignature checks a signature over an arbitrary message.
func (v Verifier) VerifySignature(publicKey, message, signature string) bool {
	if pub, err := hex.DecodeString(publicKey); err == nil && len(pub) == ed25519.PublicKeySize {
		sig, err := hex.DecodeString(signature)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
	}
	if !v.AllowHMACFallback {
		return false
	}
	return hmacOK(publicKey, message, signature)
}

// CanonicalRequest builds the signed message for an API call.
func CanonicalRequest(method, path, body, timestamp string) string {
	return fmt.Sprintf("%s:%s:%s:%s", method, path, body, timestamp)
}

// VerifyRequest checks the signature over METHOD:PATH:BODY:TIMESTAMP.
func (v Verifier) VerifyRequest(publicKey, method, path, body, timestamp, signature string) bool {
	return v.VerifySignature(publicKey, CanonicalRequest(method, path, body, timestamp), signature)
}

// TimestampValid rejects request timestamps outside MaxTimestampSkew.
func TimestampValid(timestamp string, now time.Time) bool {
	ts, err := strconv.ParseFloat(timestamp, 64)
	if err != nil {
		return false
	}
	return math.Abs(float64(now.Unix())-ts) < MaxTimestampSkew.Seconds()
}

// SignHMAC produces the HMAC-SHA256 fallback signature. Shared with agent
// clients and tests.
func SignHMAC(publicKey, message string) string {
	mac := hmac.New(sha256.New, []byte(publicKey))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacOK(publicKey, message, signature string) bool {
	expected := SignHMAC(publicKey, message)
	return hmac.Equal([]byte(expected), []byte(signature))
}
