// Package redpacket defines the externally supplied per-step input record
// (schema oracle_gamble.red_packet.v3) that the step orchestrator
// consumes.
package redpacket

import "github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/contracts"

const Schema = "oracle_gamble.red_packet.v3"

// TraceEntry is one (subaction, state) pair of an observed skill trace.
type TraceEntry struct {
	U string `json:"u"`
	S string `json:"s"`
}

// RedPacket is one step's externally proposed input.
type RedPacket struct {
	Schema              string                 `json:"schema"`
	StepCounter         int                    `json:"step_counter"`
	StreamID            string                 `json:"stream_id"`
	Actions             []string               `json:"actions"`
	Observation         map[string]interface{} `json:"observation"`
	ProposedState       string                 `json:"proposed_state"`
	ProposedQ           map[string]float64     `json:"proposed_q"`
	ProposedR           map[string]float64     `json:"proposed_r"`
	ModelRowProposal    []contracts.Pair       `json:"model_row_proposal"`
	ModelRowRef         []contracts.Pair       `json:"model_row_ref"`
	ForbiddenNextStates []string               `json:"forbidden_next_states"`
	RewardTable         map[string]float64     `json:"reward_table"`
	ViolationStates     []string               `json:"violation_states"`
	ObservedNextState   string                 `json:"observed_next_state"`
	ObservedTrace       []TraceEntry           `json:"observed_trace"`
	SelectedSkill       string                 `json:"selected_skill,omitempty"`
}

// RewardTableTyped parses the "s|a|s2" -> real map into a contracts.RewardTable.
func (p RedPacket) RewardTableTyped() (contracts.RewardTable, error) {
	out := make(contracts.RewardTable, len(p.RewardTable))
	for key, v := range p.RewardTable {
		sas, err := splitSAS(key)
		if err != nil {
			return nil, err
		}
		out[sas] = v
	}
	return out, nil
}
