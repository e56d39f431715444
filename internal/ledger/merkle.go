package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// leafHash is the SHA-256 of one serialized ledger line.
func leafHash(line []byte) string {
	sum := sha256.Sum256(line)
	return hex.EncodeToString(sum[:])
}

// merkleRoot folds leaf hashes pairwise up to a single root. An odd node at
// any level is paired with itself. Empty input yields the empty string.
func merkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	level := leaves
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			sum := sha256.Sum256([]byte(left + right))
			next = append(next, hex.EncodeToString(sum[:]))
		}
		level = next
	}
	return level[0]
}

// Integrity summarizes the ledger's tamper-evidence state: a Merkle root over
// every serialized event line plus the leaf count. Two ledgers with the same
// root hold byte-identical histories.
type Integrity struct {
	MerkleRoot string `json:"merkle_root"`
	Events     int    `json:"events"`
}

// Integrity computes the current Merkle root. Recomputed per call from the
// retained leaf hashes; appends only ever extend the leaf list.
func (l *EventLedger) Integrity() Integrity {
	l.mu.Lock()
	leaves := make([]string, len(l.leafHashes))
	copy(leaves, l.leafHashes)
	l.mu.Unlock()
	return Integrity{MerkleRoot: merkleRoot(leaves), Events: len(leaves)}
}

// VerifyAgainst reports whether another integrity summary describes the same
// history prefix-compatible with this one. Equal roots with equal counts mean
// identical ledgers.
func (i Integrity) VerifyAgainst(other Integrity) bool {
	return i.Events == other.Events && i.MerkleRoot == other.MerkleRoot
}
