// HTTP API for the oracle verifier
//
// Endpoints:
// - GET  /v1/health
// - GET  /v1/status
// - POST /v1/verify/step-dir - replay-verify an arbitrary step directory
// - POST /v1/audit/verify-historical - replay-verify a promoted bundle
// - POST /v1/stream/{id}/step/{k}/promote?sign=0|1
// - POST /v1/stream/{id}/step/{k}/sign
//
// Every JSON response carries the standard envelope fields
// (api_version, repo_version, build_git_sha, schema, ok, reason, ts_ms).

package server

import (
	"crypto/ed25519"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/config"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/store"
)

// APIVersion is the wire version of this HTTP surface.
const APIVersion = "v1"

// RepoVersion and BuildGitSHA are stamped at build time via -ldflags.
var (
	RepoVersion = "dev"
	BuildGitSHA = "unknown"
)

// Server wires the replay verifier and historical store behind HTTP.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	logger *log.Logger

	// Signing keys are optional; sign endpoints fail cleanly when absent.
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey

	startedAt time.Time
}

// New constructs a Server. A nil logger defaults to a prefixed stdlib
// logger.
func New(cfg *config.Config, st *store.Store, priv ed25519.PrivateKey, pub ed25519.PublicKey, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[OracleAPI] ", log.LstdFlags)
	}
	return &Server{
		cfg:       cfg,
		store:     st,
		logger:    logger,
		privKey:   priv,
		pubKey:    pub,
		startedAt: time.Now(),
	}
}

// Routes registers every handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/status", s.requireScope(config.ScopeRead, s.handleStatus))
	mux.HandleFunc("/v1/verify/step-dir", s.requireScope(config.ScopeVerify, s.handleVerifyStepDir))
	mux.HandleFunc("/v1/audit/verify-historical", s.requireScope(config.ScopeVerify, s.handleVerifyHistorical))
	mux.HandleFunc("/v1/stream/", s.handleStream) // promote + sign, scope-checked per action
}

// envelope is the standard response wrapper.
type envelope struct {
	APIVersion  string      `json:"api_version"`
	RepoVersion string      `json:"repo_version"`
	BuildGitSHA string      `json:"build_git_sha"`
	Schema      string      `json:"schema"`
	OK          bool        `json:"ok"`
	Reason      string      `json:"reason,omitempty"`
	TsMs        int64       `json:"ts_ms"`
	Data        interface{} `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, schema string, ok bool, reason string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{
		APIVersion:  APIVersion,
		RepoVersion: RepoVersion,
		BuildGitSHA: BuildGitSHA,
		Schema:      schema,
		OK:          ok,
		Reason:      reason,
		TsMs:        time.Now().UnixMilli(),
		Data:        data,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, detail string) {
	if detail != "" {
		s.logger.Printf("%s: %s", code, detail)
	}
	s.writeJSON(w, status, "oracle_gamble.api_error.v1", false, code, nil)
}

// requireScope validates the X-API-Key header against the configured key
// table when auth is enabled.
func (s *Server) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r, scope) {
			requestsTotal.WithLabelValues(r.URL.Path, "unauthorized").Inc()
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "")
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request, scope string) bool {
	if !s.cfg.APIAuthEnabled {
		return true
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		return false
	}
	for _, granted := range s.cfg.KeyScopes(key) {
		if granted == scope || granted == config.ScopeAdmin {
			return true
		}
	}
	return false
}
