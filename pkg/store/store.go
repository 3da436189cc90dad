// Historical Store for promoted step bundles
//
// Promotion copies a finished step directory from the live stream output
// into the append-only historical root. A second promotion of the same
// (stream, step) target fails with ErrDestAlreadyExists; concurrent
// promotions of the same target are serialized.

package store

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/signer"
)

// Sentinel errors for store operations.
var (
	// ErrDestAlreadyExists is returned when the promotion target already
	// holds a bundle for this (stream, step).
	ErrDestAlreadyExists = errors.New("store: DEST_ALREADY_EXISTS")

	// ErrSourceMissing is returned when the step directory to promote does
	// not exist.
	ErrSourceMissing = errors.New("store: source step directory missing")

	// ErrMissingRootHash is returned when signing a directory that has no
	// root_hash.txt.
	ErrMissingRootHash = errors.New("store: root_hash.txt missing")
)

// Store manages the on-disk historical root.
type Store struct {
	HistoricalRoot string
	TmpRoot        string

	logger *log.Logger
	index  *Index

	mu    sync.Mutex
	inUse map[string]*sync.Mutex
}

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithIndex attaches a Postgres audit index; every successful promotion
// and signature is recorded there.
func WithIndex(idx *Index) Option {
	return func(s *Store) { s.index = idx }
}

// New creates a historical store rooted at historicalRoot, staging copies
// under tmpRoot.
func New(historicalRoot, tmpRoot string, opts ...Option) *Store {
	s := &Store{
		HistoricalRoot: historicalRoot,
		TmpRoot:        tmpRoot,
		logger:         log.New(log.Writer(), "[HistoricalStore] ", log.LstdFlags),
		inUse:          map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StepDirName renders the canonical step directory name.
func StepDirName(step int) string {
	return fmt.Sprintf("step_%06d", step)
}

// DestDir returns the promotion target for (streamID, step).
func (s *Store) DestDir(streamID string, step int) string {
	return filepath.Join(s.HistoricalRoot, streamID, StepDirName(step))
}

// Promote copies srcDir into the historical root under
// <HistoricalRoot>/<streamID>/step_<NNNNNN>. The copy lands atomically
// (staged in TmpRoot, then renamed); the destination existing is an error,
// never an overwrite.
func (s *Store) Promote(streamID string, step int, srcDir string) (string, error) {
	target := s.lockTarget(streamID, step)
	target.Lock()
	defer target.Unlock()

	if _, err := os.Stat(srcDir); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, srcDir)
	}
	dest := s.DestDir(streamID, step)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDestAlreadyExists, dest)
	}

	staging, err := os.MkdirTemp(s.TmpRoot, "promote-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	stagedStep := filepath.Join(staging, StepDirName(step))
	if err := copyDir(srcDir, stagedStep); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(stagedStep, dest); err != nil {
		// Rename across filesystems can fail; fall back to a direct copy
		// into place. The destination-exists check above still guards
		// against double promotion.
		if copyErr := copyDir(stagedStep, dest); copyErr != nil {
			return "", fmt.Errorf("store: promote %s/%d: %v (rename: %v)", streamID, step, copyErr, err)
		}
	}
	s.logger.Printf("promoted %s step %d -> %s", streamID, step, dest)

	if s.index != nil {
		if err := s.index.RecordPromotion(streamID, step, dest); err != nil {
			s.logger.Printf("warning: audit index record failed for %s/%d: %v", streamID, step, err)
		}
	}
	return dest, nil
}

// Sign writes root.sig (hex ed25519 signature over the UTF-8 bytes of the
// hex merkle root in root_hash.txt) into stepDir. Signing an
// already-signed directory overwrites the signature; the signature is
// deliberately the last file written into a bundle.
func (s *Store) Sign(stepDir string, priv ed25519.PrivateKey) (string, error) {
	rootRaw, err := os.ReadFile(filepath.Join(stepDir, "root_hash.txt"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingRootHash, err)
	}
	sigHex := signer.SignRootHex(priv, string(rootRaw))
	sigPath := filepath.Join(stepDir, "root.sig")
	if err := os.WriteFile(sigPath, []byte(sigHex), 0o644); err != nil {
		return "", err
	}
	if s.index != nil {
		if err := s.index.MarkSigned(stepDir); err != nil {
			s.logger.Printf("warning: audit index sign mark failed for %s: %v", stepDir, err)
		}
	}
	return sigPath, nil
}

func (s *Store) lockTarget(streamID string, step int) *sync.Mutex {
	key := streamID + "/" + StepDirName(step)
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.inUse[key]
	if !ok {
		m = &sync.Mutex{}
		s.inUse[key] = m
	}
	return m
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := copyDir(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
