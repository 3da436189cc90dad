// Package merkle builds the fixed five-leaf Merkle tree that aggregates a
// step's witness hashes into a single root. The leaf order is immutable:
// percept, model_contract, value_table, risk_gate, exec. The tree is a
// binary tree with odd-level duplication, operating on lowercase hex
// digest strings (matching canon.Hash output) rather than raw 32-byte
// slices.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptyLeaves is returned when Root is called with no leaves.
var ErrEmptyLeaves = errors.New("merkle: cannot build tree from empty leaves")

// LeafNames is the immutable leaf order; replay depends on it.
var LeafNames = []string{"percept", "model_contract", "value_table", "risk_gate", "exec"}

// Pair combines two hex hashes into their parent hash: sha256(canon([h1,h2])),
// matching internal/canon's merkle_pair semantics exactly (so a replay
// verifier using either this package or raw canon.Hash agrees bit-for-bit).
func Pair(h1, h2 string) string {
	// canon.Marshal([]interface{}{h1, h2}) == `["h1","h2"]` for plain hex
	// strings; inlined here to avoid an import cycle with internal/canon
	// while remaining byte-identical to it (no escaping needed: hex digests
	// contain only [0-9a-f]).
	buf := make([]byte, 0, len(h1)+len(h2)+6)
	buf = append(buf, '[', '"')
	buf = append(buf, h1...)
	buf = append(buf, '"', ',', '"')
	buf = append(buf, h2...)
	buf = append(buf, '"', ']')
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Root builds a balanced binary tree over leaves (hex hash strings, in
// caller-supplied order) by duplicating the last element of any odd level,
// and returns the final root hash. For the canonical five-leaf case: level1
// duplicates the 5th leaf (6 nodes -> 3), level2 has 3 nodes (duplicates the
// 3rd -> 4 -> 2), root at level3.
func Root(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return "", ErrEmptyLeaves
	}
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, Pair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0], nil
}
