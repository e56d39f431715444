package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerkleRoot_EmptyAndSingle(t *testing.T) {
	assert.Equal(t, "", merkleRoot(nil))

	leaf := leafHash([]byte("one"))
	assert.Equal(t, leaf, merkleRoot([]string{leaf}))
}

func TestMerkleRoot_OrderSensitive(t *testing.T) {
	a, b := leafHash([]byte("a")), leafHash([]byte("b"))
	assert.NotEqual(t, merkleRoot([]string{a, b}), merkleRoot([]string{b, a}))
}

func TestMerkleRoot_OddLeafPairedWithItself(t *testing.T) {
	a, b, c := leafHash([]byte("a")), leafHash([]byte("b")), leafHash([]byte("c"))
	root := merkleRoot([]string{a, b, c})
	assert.NotEmpty(t, root)
	assert.Len(t, root, 64)
	// Deterministic for the same leaves.
	assert.Equal(t, root, merkleRoot([]string{a, b, c}))
}

func TestIntegrity_TracksAppends(t *testing.T) {
	l, _ := tempLedger(t)
	empty := l.Integrity()
	assert.Equal(t, "", empty.MerkleRoot)
	assert.Equal(t, 0, empty.Events)

	record(l, 1, "move", "a1", nil)
	one := l.Integrity()
	assert.NotEmpty(t, one.MerkleRoot)
	assert.Equal(t, 1, one.Events)

	record(l, 2, "move", "a1", nil)
	two := l.Integrity()
	assert.NotEqual(t, one.MerkleRoot, two.MerkleRoot, "root changes with every append")
	assert.False(t, one.VerifyAgainst(two))
	assert.True(t, two.VerifyAgainst(l.Integrity()))
}

func TestIntegrity_SurvivesReopen(t *testing.T) {
	l, path := tempLedger(t)
	record(l, 1, "register", "a1", nil)
	record(l, 2, "move", "a1", nil)
	before := l.Integrity()

	reopened := Open(path)
	require.Equal(t, 2, reopened.Count())
	assert.True(t, before.VerifyAgainst(reopened.Integrity()), "root is stable across restart")
}
