// Package bundle defines the step-level aggregate record written to
// step_<NNNNNN>/bundle.json: the five leaf hashes in fixed order, the
// Merkle root, the chain link, and the selected action for the step.
package bundle

// LeafEntry is one (name, hash) pair, in the fixed leaf order.
type LeafEntry struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// LeafVerdicts records each leaf's PASS/FAIL verdict by name, so a reader
// can see at a glance which contract(s) failed without opening every
// witness file.
type LeafVerdicts struct {
	Percept       string `json:"percept"`
	ModelContract string `json:"model_contract"`
	ValueTable    string `json:"value_table"`
	RiskGate      string `json:"risk_gate"`
	Exec          string `json:"exec"`
}

// Bundle is the per-step aggregate emitted by the orchestrator and
// consumed by the replay verifier.
type Bundle struct {
	Schema             string       `json:"schema"`
	RunID              string       `json:"run_id"`
	StreamID           string       `json:"stream_id"`
	StepCounter        int          `json:"step_counter"`
	PrevState          string       `json:"prev_state"`
	PerceivedState     string       `json:"perceived_state"`
	SelectedAction     string       `json:"selected_action"`
	ObservedNextState  string       `json:"observed_next_state"`
	Leaves               []LeafEntry  `json:"leaves"`
	LeafVerdicts         LeafVerdicts `json:"leaf_verdicts"`
	MerkleRoot           string       `json:"merkle_root"`
	PrevChainRoot        string       `json:"prev_chain_root"`
	ChainRoot            string       `json:"chain_root"`
	Verdict              string       `json:"verdict"`
	DetectedValueForgery bool         `json:"detected_value_forgery"`
}

const Schema = "oracle_gamble.bundle.v3"

// witnessFiles maps each leaf name to its on-disk witness file. The value
// and risk leaves keep their short historical file names.
var witnessFiles = map[string]string{
	"percept":        "w_percept.json",
	"model_contract": "w_model_contract.json",
	"value_table":    "w_value.json",
	"risk_gate":      "w_risk.json",
	"exec":           "w_exec.json",
}

// WitnessFileName returns the witness file name for a leaf, or "" for an
// unknown leaf name.
func WitnessFileName(leaf string) string {
	return witnessFiles[leaf]
}
