// Package contracts implements the five verification contracts
// (Γ_percept, Γ_model, Γ_value, Γ_risk, Γ_exec). Each is a pure function
// from a config + inputs to a witness carrying a PASS/FAIL verdict; none of
// them mutate shared state or raise on a failed check — a FAIL verdict is
// data, not an error.
package contracts

import "github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/canon"

// StateAction is the composite key of the verified transition table.
type StateAction struct {
	State  string
	Action string
}

// TVer is the verified transition table: (state, action) -> state' -> mass,
// where mass is a nonnegative integer count of units of 1/2^S. Row totals
// must be > 0; the orchestrator is the only writer.
type TVer map[StateAction]map[string]int64

// TupleMap renders t in the canonical __tuplekey_dict__ form for hashing.
func (t TVer) TupleMap() canon.TupleMap {
	entries := make(canon.TupleMap, 0, len(t))
	for k, v := range t {
		entries = append(entries, canon.TupleEntry{Key: []string{k.State, k.Action}, Value: v})
	}
	return entries
}

// Row looks up a transition row, returning ok=false if absent.
func (t TVer) Row(state, action string) (map[string]int64, bool) {
	row, ok := t[StateAction{State: state, Action: action}]
	return row, ok
}

// Set installs or replaces a transition row.
func (t TVer) Set(state, action string, row map[string]int64) {
	t[StateAction{State: state, Action: action}] = row
}

// SAS is the composite key of the reward table.
type SAS struct {
	State  string
	Action string
	Next   string
}

// RewardTable is (state, action, state') -> real-valued reward.
type RewardTable map[SAS]float64

// TupleMap renders r in the canonical __tuplekey_dict__ form for hashing.
func (r RewardTable) TupleMap() canon.TupleMap {
	entries := make(canon.TupleMap, 0, len(r))
	for k, v := range r {
		entries = append(entries, canon.TupleEntry{Key: []string{k.State, k.Action, k.Next}, Value: v})
	}
	return entries
}

// Pair is a (state, probability) entry, as carried in a red packet's
// model_row_proposal / model_row_ref arrays. It marshals as a 2-element
// JSON array, matching the wire schema's [[state, prob], ...] shape.
type Pair struct {
	State string
	Prob  float64
}

// SkillSpec describes one admissible skill: the states it may start and
// end in, the subactions its internal trace may use, and a bound on trace
// length.
type SkillSpec struct {
	Name              string   `json:"name" yaml:"name"`
	PreStates         []string `json:"pre_states" yaml:"pre_states"`
	PostStates        []string `json:"post_states" yaml:"post_states"`
	AllowedSubactions []string `json:"allowed_subactions" yaml:"allowed_subactions"`
	MaxTraceLen       int      `json:"max_trace_len" yaml:"max_trace_len"`
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

const (
	verdictPass = "PASS"
	verdictFail = "FAIL"
)

func verdictOf(ok bool) string {
	if ok {
		return verdictPass
	}
	return verdictFail
}
