package redpacket

import (
	"fmt"
	"strings"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/contracts"
)

// splitSAS parses a "state|action|state2" reward-table key into its
// components, as used by the red packet's reward_table field.
func splitSAS(key string) (contracts.SAS, error) {
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return contracts.SAS{}, fmt.Errorf("redpacket: malformed reward key %q", key)
	}
	return contracts.SAS{State: parts[0], Action: parts[1], Next: parts[2]}, nil
}
