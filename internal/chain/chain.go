// Package chain links each step's Merkle root into the append-only hash
// chain, using the module's canonical hashing discipline throughout.
package chain

import "github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/canon"

// GenesisRoot is the genesis chain root for step 0's prev_chain_root: 64
// zero characters. The replay verifier rejects any bundle whose step-0
// prev_chain_root isn't exactly this string, including the older
// sha256(canon(["GENESIS"])) variant some deployments carried.
const GenesisRoot = "0000000000000000000000000000000000000000000000000000000000000000"

// Next computes chain_root = sha256(canon([prevChainRoot, stepRoot])).
func Next(prevChainRoot, stepRoot string) (string, error) {
	return canon.Hash([]interface{}{prevChainRoot, stepRoot})
}
