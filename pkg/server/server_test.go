package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/config"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/store"
)

func testServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	if cfg.OutRoot == "" {
		cfg.OutRoot = t.TempDir()
	}
	if cfg.HistoricalRoot == "" {
		cfg.HistoricalRoot = t.TempDir()
	}
	cfg.TmpRoot = t.TempDir()
	cfg.SignatureScheme = "ed25519.v1"
	st := store.New(cfg.HistoricalRoot, cfg.TmpRoot)
	srv := New(cfg, st, nil, nil, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var doc map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return doc
}

func TestHealth_EnvelopeFields(t *testing.T) {
	ts := testServer(t, &config.Config{})

	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatalf("GET /v1/health: %v", err)
	}
	doc := decodeEnvelope(t, resp)
	for _, field := range []string{"api_version", "repo_version", "build_git_sha", "schema", "ok", "ts_ms"} {
		if _, present := doc[field]; !present {
			t.Errorf("envelope missing %q: %v", field, doc)
		}
	}
	if doc["ok"] != true {
		t.Errorf("ok = %v", doc["ok"])
	}
}

func TestAuth_ScopeEnforcement(t *testing.T) {
	cfg := &config.Config{
		APIAuthEnabled: true,
		APIKeys: map[string][]string{
			"reader":   {config.ScopeRead},
			"verifier": {config.ScopeVerify},
		},
	}
	ts := testServer(t, cfg)

	// No key.
	resp, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status = %d", resp.StatusCode)
	}

	// Right key, right scope.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/status", nil)
	req.Header.Set("X-API-Key", "reader")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reader on /v1/status: status = %d", resp.StatusCode)
	}

	// Wrong scope for verify.
	body := bytes.NewBufferString(`{"step_dir":"/nonexistent"}`)
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/v1/verify/step-dir", body)
	req.Header.Set("X-API-Key", "reader")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reader on verify endpoint: status = %d", resp.StatusCode)
	}
}

func TestVerifyStepDir_ReportsReplayCode(t *testing.T) {
	ts := testServer(t, &config.Config{})

	body := bytes.NewBufferString(`{"step_dir":"` + filepath.Join(t.TempDir(), "missing") + `"}`)
	resp, err := http.Post(ts.URL+"/v1/verify/step-dir", "application/json", body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	doc := decodeEnvelope(t, resp)
	if doc["ok"] != false {
		t.Errorf("ok = %v", doc["ok"])
	}
	if doc["reason"] != "MISSING_BUNDLE_JSON" {
		t.Errorf("reason = %v", doc["reason"])
	}
}

func TestPromote_ConflictOnSecondPromotion(t *testing.T) {
	cfg := &config.Config{OutRoot: t.TempDir()}
	ts := testServer(t, cfg)

	srcDir := filepath.Join(cfg.OutRoot, "step_000002")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	os.WriteFile(filepath.Join(srcDir, "bundle.json"), []byte(`{}`), 0o644)
	os.WriteFile(filepath.Join(srcDir, "root_hash.txt"), []byte(strings.Repeat("a", 64)), 0o644)

	resp, err := http.Post(ts.URL+"/v1/stream/s1/step/2/promote", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first promote: status = %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/v1/stream/s1/step/2/promote", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	doc := decodeEnvelope(t, resp)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second promote: status = %d", resp.StatusCode)
	}
	if doc["reason"] != "DEST_ALREADY_EXISTS" {
		t.Errorf("reason = %v", doc["reason"])
	}
}

func TestSign_WithoutKeyFails(t *testing.T) {
	ts := testServer(t, &config.Config{})
	resp, err := http.Post(ts.URL+"/v1/stream/s1/step/0/sign", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	doc := decodeEnvelope(t, resp)
	if doc["reason"] != "NO_PRIVATE_KEY" {
		t.Errorf("reason = %v", doc["reason"])
	}
}
