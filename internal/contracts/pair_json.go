package contracts

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders a Pair as the wire form ["state", prob].
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{p.State, p.Prob})
}

// UnmarshalJSON parses the wire form ["state", prob].
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("contracts: decode pair: %w", err)
	}
	if err := json.Unmarshal(raw[0], &p.State); err != nil {
		return fmt.Errorf("contracts: decode pair state: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Prob); err != nil {
		return fmt.Errorf("contracts: decode pair prob: %w", err)
	}
	return nil
}

// PairsToCanon renders a []Pair list in the canonical array-of-arrays form
// used inside witness "inputs" fields.
func PairsToCanon(pairs []Pair) []interface{} {
	out := make([]interface{}, len(pairs))
	for i, p := range pairs {
		out[i] = []interface{}{p.State, p.Prob}
	}
	return out
}
