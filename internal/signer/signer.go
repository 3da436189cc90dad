// Package signer implements ed25519 signing and verification of a step's
// Merkle root. The signature is over the UTF-8 bytes of the lowercase hex
// merkle root string itself — not a re-hash and not a domain-separated
// wrapper — so external auditors can verify it with nothing but the key
// and root_hash.txt.
package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Scheme is the signature scheme identifier carried in external config.
const Scheme = "ed25519.v1"

// ErrInvalidKeyLength is returned when a raw key hex string decodes to the
// wrong number of bytes.
var ErrInvalidKeyLength = errors.New("signer: invalid key length")

// ParsePrivateKeyHex decodes a 32-byte raw ed25519 seed (hex) into a usable
// private key, expanding it to the 64-byte form crypto/ed25519 expects.
func ParsePrivateKeyHex(hexSeed string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("signer: decode private key: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(raw), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(raw), nil
}

// ParsePublicKeyHex decodes a 32-byte raw ed25519 public key (hex).
func ParsePublicKeyHex(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// SignRootHex signs the UTF-8 bytes of the lowercase hex merkle root
// string and returns the signature as lowercase hex.
func SignRootHex(priv ed25519.PrivateKey, merkleRootHex string) string {
	sig := ed25519.Sign(priv, []byte(merkleRootHex))
	return hex.EncodeToString(sig)
}

// VerifyRootHex checks a hex-encoded signature over merkleRootHex.
func VerifyRootHex(pub ed25519.PublicKey, merkleRootHex, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("signer: decode signature: %w", err)
	}
	return ed25519.Verify(pub, []byte(merkleRootHex), sig), nil
}
