// Package replay re-validates an on-disk step bundle: every witness file's
// hash, the Merkle root built from them, the on-disk root_hash.txt, the
// chain link to the parent step, and (optionally) an ed25519 signature
// over the root. It never trusts anything the bundle claims about itself —
// every hash is recomputed from the witness files on disk.
package replay

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/bundle"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/canon"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/chain"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/merkle"
)

// Code is one of the distinct, machine-readable replay failure codes.
type Code string

const (
	CodeMissingBundleJSON        Code = "MISSING_BUNDLE_JSON"
	CodeBundleMissingMerkleRoot  Code = "BUNDLE_MISSING_MERKLE_ROOT"
	CodeBundleMissingLeaves      Code = "BUNDLE_MISSING_LEAVES"
	CodeUnknownLeafName          Code = "UNKNOWN_LEAF_NAME"
	CodeMissingLeafFile          Code = "MISSING_LEAF_FILE"
	CodeLeafHashMismatch         Code = "LEAF_HASH_MISMATCH"
	CodeMerkleRootMismatch       Code = "MERKLE_ROOT_MISMATCH"
	CodeRootHashTxtMismatch      Code = "ROOT_HASH_TXT_MISMATCH"
	CodeBundleMissingChainRoot   Code = "BUNDLE_MISSING_CHAIN_ROOT"
	CodeChainRootMismatch        Code = "CHAIN_ROOT_MISMATCH"
	CodeChainParentMissing       Code = "CHAIN_PARENT_MISSING"
	CodeChainLinkMismatch        Code = "CHAIN_LINK_MISMATCH"
	CodeMissingSignature         Code = "MISSING_SIGNATURE"
)

// Failure is the error type returned for any replay failure. It always
// carries a machine-readable Code; Go callers that need the code should
// use errors.As.
type Failure struct {
	Code     Code
	LeafName string
	Reason   string
}

func (f *Failure) Error() string {
	if f.LeafName != "" {
		return fmt.Sprintf("replay: %s (leaf=%s): %s", f.Code, f.LeafName, f.Reason)
	}
	return fmt.Sprintf("replay: %s: %s", f.Code, f.Reason)
}

func fail(code Code, leafName, reason string) error {
	return &Failure{Code: code, LeafName: leafName, Reason: reason}
}

// Result is the successful (or gracefully-failed) outcome of Verify.
type Result struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	LeafName   string `json:"leaf_name,omitempty"`
	MerkleRoot string `json:"merkle_root,omitempty"`
	ChainRoot  string `json:"chain_root,omitempty"`
}

// Options controls which extra checks Verify performs.
type Options struct {
	// ChainMode requires the bundle to carry a valid chain_root and, if
	// stepDir has a sibling parent step directory, that the parent's
	// chain_root matches this bundle's prev_chain_root.
	ChainMode bool
	// ParentDir is the directory of the immediately preceding step, used
	// only when ChainMode is set. Empty means "this is the first step",
	// and prev_chain_root must equal chain.GenesisRoot.
	ParentDir string
	// VerifySignature, when true, requires root.sig to exist and verify
	// against PublicKey over the UTF-8 bytes of the hex merkle root.
	VerifySignature bool
	PublicKey       ed25519.PublicKey
}

// Verify re-validates the step directory at stepDir against opts and
// returns a Result plus, on any structural failure, a non-nil *Failure
// error (also reflected in Result.OK/Reason for JSON callers).
func Verify(stepDir string, opts Options) (*Result, error) {
	bundlePath := filepath.Join(stepDir, "bundle.json")
	raw, err := os.ReadFile(bundlePath)
	if err != nil {
		e := fail(CodeMissingBundleJSON, "", err.Error())
		return asResult(e), e
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		e := fail(CodeMissingBundleJSON, "", "bundle.json is not valid JSON: "+err.Error())
		return asResult(e), e
	}

	merkleRoot, ok := doc["merkle_root"].(string)
	if !ok || merkleRoot == "" {
		e := fail(CodeBundleMissingMerkleRoot, "", "bundle.json has no merkle_root")
		return asResult(e), e
	}

	leavesRaw, ok := doc["leaves"].([]interface{})
	if !ok || len(leavesRaw) == 0 {
		e := fail(CodeBundleMissingLeaves, "", "bundle.json has no leaves")
		return asResult(e), e
	}

	known := make(map[string]bool, len(merkle.LeafNames))
	for _, n := range merkle.LeafNames {
		known[n] = true
	}

	leafHashByName := make(map[string]string, len(leavesRaw))
	for _, item := range leavesRaw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			e := fail(CodeBundleMissingLeaves, "", "malformed leaf entry")
			return asResult(e), e
		}
		name, _ := entry["name"].(string)
		expHash, _ := entry["hash"].(string)
		if !known[name] {
			e := fail(CodeUnknownLeafName, name, fmt.Sprintf("unknown leaf name %q", name))
			return asResult(e), e
		}

		fpath := filepath.Join(stepDir, bundle.WitnessFileName(name))
		wraw, err := os.ReadFile(fpath)
		if err != nil {
			e := fail(CodeMissingLeafFile, name, err.Error())
			return asResult(e), e
		}
		gotHash, err := canon.MarshalJSON(wraw)
		if err != nil {
			e := fail(CodeLeafHashMismatch, name, "witness file does not canonicalize: "+err.Error())
			return asResult(e), e
		}
		gotHashHex := sha256Hex(gotHash)
		if gotHashHex != expHash {
			e := fail(CodeLeafHashMismatch, name, "recomputed hash does not match bundle's recorded hash")
			return asResult(e), e
		}
		leafHashByName[name] = expHash
	}

	orderedHashes := make([]string, len(merkle.LeafNames))
	for i, name := range merkle.LeafNames {
		h, ok := leafHashByName[name]
		if !ok {
			e := fail(CodeMissingLeafFile, name, "bundle.leaves is missing the mandatory leaf")
			return asResult(e), e
		}
		orderedHashes[i] = h
	}
	recomputedRoot, err := merkle.Root(orderedHashes)
	if err != nil {
		e := fail(CodeMerkleRootMismatch, "", err.Error())
		return asResult(e), e
	}
	if recomputedRoot != merkleRoot {
		e := fail(CodeMerkleRootMismatch, "", "recomputed merkle root does not match bundle.merkle_root")
		return asResult(e), e
	}

	if diskRoot, err := os.ReadFile(filepath.Join(stepDir, "root_hash.txt")); err == nil {
		if string(diskRoot) != merkleRoot {
			e := fail(CodeRootHashTxtMismatch, "", "root_hash.txt does not match bundle.merkle_root")
			return asResult(e), e
		}
	}

	chainRoot, _ := doc["chain_root"].(string)
	if opts.ChainMode {
		if chainRoot == "" {
			e := fail(CodeBundleMissingChainRoot, "", "bundle.json has no chain_root")
			return asResult(e), e
		}
		prevChainRoot, _ := doc["prev_chain_root"].(string)
		if opts.ParentDir == "" {
			if prevChainRoot != chain.GenesisRoot {
				e := fail(CodeChainParentMissing, "", "step has no parent directory and prev_chain_root is not the genesis root")
				return asResult(e), e
			}
		} else {
			parentRaw, err := os.ReadFile(filepath.Join(opts.ParentDir, "chain_root.txt"))
			if err != nil {
				e := fail(CodeChainParentMissing, "", err.Error())
				return asResult(e), e
			}
			if string(parentRaw) != prevChainRoot {
				e := fail(CodeChainLinkMismatch, "", "parent step's chain_root does not match this step's prev_chain_root")
				return asResult(e), e
			}
		}
		recomputedChainRoot, err := chain.Next(prevChainRoot, merkleRoot)
		if err != nil {
			e := fail(CodeChainRootMismatch, "", err.Error())
			return asResult(e), e
		}
		if recomputedChainRoot != chainRoot {
			e := fail(CodeChainRootMismatch, "", "recomputed chain_root does not match bundle.chain_root")
			return asResult(e), e
		}
	}

	if opts.VerifySignature {
		sigRaw, err := os.ReadFile(filepath.Join(stepDir, "root.sig"))
		if err != nil {
			e := fail(CodeMissingSignature, "", err.Error())
			return asResult(e), e
		}
		sig, err := hex.DecodeString(string(trimNewline(sigRaw)))
		if err != nil {
			e := fail(CodeMissingSignature, "", "root.sig is not valid hex: "+err.Error())
			return asResult(e), e
		}
		if !ed25519.Verify(opts.PublicKey, []byte(merkleRoot), sig) {
			e := fail(CodeMissingSignature, "", "signature does not verify over the hex merkle root")
			return asResult(e), e
		}
	}

	return &Result{OK: true, MerkleRoot: merkleRoot, ChainRoot: chainRoot}, nil
}

func asResult(err error) *Result {
	f, ok := err.(*Failure)
	if !ok {
		return &Result{OK: false, Reason: err.Error()}
	}
	return &Result{OK: false, Reason: string(f.Code), LeafName: f.LeafName}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
