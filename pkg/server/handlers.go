package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/replay"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/config"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/store"
)

// handleHealth handles GET /v1/health. Health is unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
		return
	}
	requestsTotal.WithLabelValues("/v1/health", "ok").Inc()
	s.writeJSON(w, http.StatusOK, "oracle_gamble.health.v1", true, "", map[string]interface{}{
		"uptime_ms": s.uptimeMs(),
	})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
		return
	}
	streams, steps := s.countStreams()
	requestsTotal.WithLabelValues("/v1/status", "ok").Inc()
	s.writeJSON(w, http.StatusOK, "oracle_gamble.status.v1", true, "", map[string]interface{}{
		"stream_id":          s.cfg.StreamID,
		"out_root":           s.cfg.OutRoot,
		"historical_root":    s.cfg.HistoricalRoot,
		"historical_streams": streams,
		"historical_steps":   steps,
		"signing_enabled":    s.privKey != nil,
		"uptime_ms":          s.uptimeMs(),
	})
}

type verifyStepDirInput struct {
	StepDir   string `json:"step_dir"`
	ChainMode bool   `json:"chain_mode"`
	CheckSig  bool   `json:"check_signature"`
}

// handleVerifyStepDir handles POST /v1/verify/step-dir.
func (s *Server) handleVerifyStepDir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
		return
	}
	var in verifyStepDirInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.StepDir == "" {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "step_dir is required")
		return
	}
	s.respondReplay(w, in.StepDir, in.ChainMode, in.CheckSig)
}

type verifyHistoricalInput struct {
	StreamID   string `json:"stream_id"`
	StepNumber int    `json:"step_number"`
	ChainMode  bool   `json:"chain_mode"`
	CheckSig   bool   `json:"check_signature"`
}

// handleVerifyHistorical handles POST /v1/audit/verify-historical.
func (s *Server) handleVerifyHistorical(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
		return
	}
	var in verifyHistoricalInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.StreamID == "" {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "stream_id is required")
		return
	}
	stepDir := s.store.DestDir(in.StreamID, in.StepNumber)
	s.respondReplay(w, stepDir, in.ChainMode, in.CheckSig)
}

func (s *Server) respondReplay(w http.ResponseWriter, stepDir string, chainMode, checkSig bool) {
	opts := replay.Options{ChainMode: chainMode}
	if chainMode {
		opts.ParentDir = parentStepDir(stepDir)
	}
	if checkSig {
		if s.pubKey == nil {
			s.writeError(w, http.StatusBadRequest, "NO_PUBLIC_KEY", "signature check requested but no public key configured")
			return
		}
		opts.VerifySignature = true
		opts.PublicKey = s.pubKey
	}
	result, err := replay.Verify(stepDir, opts)
	if err != nil {
		var f *replay.Failure
		if errors.As(err, &f) {
			replayFailuresTotal.WithLabelValues(string(f.Code)).Inc()
		}
		requestsTotal.WithLabelValues("/v1/verify", "fail").Inc()
		s.writeJSON(w, http.StatusOK, "oracle_gamble.replay_result.v1", false, result.Reason, result)
		return
	}
	requestsTotal.WithLabelValues("/v1/verify", "ok").Inc()
	s.writeJSON(w, http.StatusOK, "oracle_gamble.replay_result.v1", true, "", result)
}

// handleStream dispatches /v1/stream/{id}/step/{k}/promote and
// /v1/stream/{id}/step/{k}/sign.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// ["v1","stream",{id},"step",{k},action]
	if len(parts) != 6 || parts[1] != "stream" || parts[3] != "step" {
		s.writeError(w, http.StatusBadRequest, "INVALID_PATH", r.URL.Path)
		return
	}
	streamID := parts[2]
	step, err := strconv.Atoi(parts[4])
	if err != nil || step < 0 {
		s.writeError(w, http.StatusBadRequest, "INVALID_STEP_NUMBER", parts[4])
		return
	}

	switch parts[5] {
	case "promote":
		if !s.authorized(r, config.ScopePromote) {
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "")
			return
		}
		s.promote(w, r, streamID, step)
	case "sign":
		if !s.authorized(r, config.ScopeSign) {
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "")
			return
		}
		s.sign(w, streamID, step)
	default:
		s.writeError(w, http.StatusNotFound, "UNKNOWN_ACTION", parts[5])
	}
}

func (s *Server) promote(w http.ResponseWriter, r *http.Request, streamID string, step int) {
	srcDir := filepath.Join(s.cfg.OutRoot, store.StepDirName(step))
	dest, err := s.store.Promote(streamID, step, srcDir)
	if err != nil {
		code, status := "STORAGE_ERROR", http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrDestAlreadyExists):
			code, status = "DEST_ALREADY_EXISTS", http.StatusConflict
		case errors.Is(err, store.ErrSourceMissing):
			code, status = "SOURCE_MISSING", http.StatusNotFound
		}
		requestsTotal.WithLabelValues("/v1/promote", "fail").Inc()
		s.writeError(w, status, code, err.Error())
		return
	}

	signed := false
	if r.URL.Query().Get("sign") == "1" {
		if s.privKey == nil {
			s.writeError(w, http.StatusBadRequest, "NO_PRIVATE_KEY", "sign=1 requested but no private key configured")
			return
		}
		if _, err := s.store.Sign(dest, s.privKey); err != nil {
			s.writeError(w, http.StatusInternalServerError, "SIGN_FAILED", err.Error())
			return
		}
		signed = true
	}
	requestsTotal.WithLabelValues("/v1/promote", "ok").Inc()
	promotionsTotal.Inc()
	s.writeJSON(w, http.StatusOK, "oracle_gamble.promote_result.v1", true, "", map[string]interface{}{
		"stream_id":   streamID,
		"step_number": step,
		"dest_dir":    dest,
		"signed":      signed,
	})
}

func (s *Server) sign(w http.ResponseWriter, streamID string, step int) {
	if s.privKey == nil {
		s.writeError(w, http.StatusBadRequest, "NO_PRIVATE_KEY", "no private key configured")
		return
	}
	dest := s.store.DestDir(streamID, step)
	sigPath, err := s.store.Sign(dest, s.privKey)
	if err != nil {
		code, status := "STORAGE_ERROR", http.StatusInternalServerError
		if errors.Is(err, store.ErrMissingRootHash) {
			code, status = "MISSING_ROOT_HASH", http.StatusNotFound
		}
		s.writeError(w, status, code, err.Error())
		return
	}
	requestsTotal.WithLabelValues("/v1/sign", "ok").Inc()
	s.writeJSON(w, http.StatusOK, "oracle_gamble.sign_result.v1", true, "", map[string]interface{}{
		"stream_id":   streamID,
		"step_number": step,
		"sig_path":    sigPath,
	})
}

func (s *Server) uptimeMs() int64 {
	return time.Since(s.startedAt).Milliseconds()
}

func (s *Server) countStreams() (streams, steps int) {
	entries, err := os.ReadDir(s.cfg.HistoricalRoot)
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		streams++
		if sub, err := os.ReadDir(filepath.Join(s.cfg.HistoricalRoot, e.Name())); err == nil {
			steps += len(sub)
		}
	}
	return streams, steps
}

// parentStepDir returns the sibling directory for step k-1, or "" when
// this is step 0 or the name doesn't match the step layout.
func parentStepDir(stepDir string) string {
	base := filepath.Base(stepDir)
	var k int
	if _, err := fmt.Sscanf(base, "step_%06d", &k); err != nil || k == 0 {
		return ""
	}
	return filepath.Join(filepath.Dir(stepDir), store.StepDirName(k-1))
}
