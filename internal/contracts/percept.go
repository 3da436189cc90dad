package contracts

import (
	"crypto/sha256"
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/canon"
)

// PerceptConfig is the immutable configuration of Γ_percept.
type PerceptConfig struct {
	NViews             int  `json:"n_views" yaml:"n_views"`
	AgreeK             int  `json:"agree_k" yaml:"agree_k"`
	RequireTemporal    bool `json:"require_temporal" yaml:"require_temporal"`
	RequireStateFormat bool `json:"require_state_format" yaml:"require_state_format"`
}

// PerceptView is one decoded vote.
type PerceptView struct {
	ViewID       int    `json:"view_id"`
	DecodedState string `json:"decoded_state"`
}

// PerceptInputs records the hashed observation and the proposal context.
type PerceptInputs struct {
	ObservationHash string  `json:"observation_hash"`
	ProposedState   string  `json:"proposed_state"`
	PrevState       *string `json:"prev_state"`
	PrevAction      *string `json:"prev_action"`
	StateVocabSize  int     `json:"state_vocab_size"`
}

// PerceptDerived records the vote tally.
type PerceptDerived struct {
	AgreeCount int `json:"agree_count"`
	NViews     int `json:"n_views"`
}

// PerceptChecks records the individual boolean checks.
type PerceptChecks struct {
	MultiviewOK bool `json:"multiview_ok"`
	FormatOK    bool `json:"format_ok"`
	TemporalOK  bool `json:"temporal_ok"`
}

// PerceptWitness is the witness emitted by Γ_percept.
type PerceptWitness struct {
	Schema   string         `json:"schema"`
	Contract PerceptConfig  `json:"contract"`
	Inputs   PerceptInputs  `json:"inputs"`
	Views    []PerceptView  `json:"views"`
	Derived  PerceptDerived `json:"derived"`
	Checks   PerceptChecks  `json:"checks"`
	Verdict  string         `json:"verdict"`
}

var posHintRe = regexp.MustCompile(`pos=([0-9]+,[0-9]+)`)

// viewEncoder decodes one view's vote. Every view index attempts the
// textual pos=<token> hint first; only the hash fallback varies with
// viewID.
func viewEncoder(observation map[string]interface{}, viewID int, stateVocab []string) (string, error) {
	if raw, ok := observation["raw"].(string); ok {
		if m := posHintRe.FindStringSubmatch(raw); m != nil {
			tok := m[1]
			if contains(stateVocab, tok) {
				return tok, nil
			}
		}
	}
	b, err := canon.Marshal([]interface{}{observation, viewID})
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	n := len(stateVocab)
	if n < 1 {
		n = 1
	}
	idx := int(binary.LittleEndian.Uint32(h[:4]) % uint32(n))
	if idx >= len(stateVocab) {
		return "", nil
	}
	return stateVocab[idx], nil
}

// isStateToken reports whether s is a well-formed two-integer state token.
func isStateToken(s string) bool {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return false
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return false
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return false
	}
	return true
}

// VerifyPercept re-derives the multi-view vote and checks temporal
// feasibility and state-token format.
func VerifyPercept(
	cfg PerceptConfig,
	observation map[string]interface{},
	proposedState string,
	prevState, prevAction *string,
	tVer TVer,
	stateVocab []string,
) (*PerceptWitness, error) {
	obsHash, err := canon.Hash(observation)
	if err != nil {
		return nil, err
	}

	views := make([]PerceptView, 0, cfg.NViews)
	agreeCount := 0
	for i := 0; i < cfg.NViews; i++ {
		vote, err := viewEncoder(observation, i, stateVocab)
		if err != nil {
			return nil, err
		}
		views = append(views, PerceptView{ViewID: i, DecodedState: vote})
		if vote == proposedState {
			agreeCount++
		}
	}
	multiviewOK := agreeCount >= cfg.AgreeK

	formatOK := true
	if cfg.RequireStateFormat {
		formatOK = isStateToken(proposedState)
	}

	temporalOK := true
	if cfg.RequireTemporal && prevState != nil {
		if prevAction == nil {
			temporalOK = proposedState == *prevState
		} else {
			row, ok := tVer.Row(*prevState, *prevAction)
			if !ok {
				temporalOK = proposedState == *prevState
			} else {
				temporalOK = row[proposedState] > 0 || proposedState == *prevState
			}
		}
	}

	checks := PerceptChecks{MultiviewOK: multiviewOK, FormatOK: formatOK, TemporalOK: temporalOK}
	verdict := verdictOf(multiviewOK && formatOK && temporalOK)

	return &PerceptWitness{
		Schema:   "contract.percept.v1",
		Contract: cfg,
		Inputs: PerceptInputs{
			ObservationHash: obsHash,
			ProposedState:   proposedState,
			PrevState:       prevState,
			PrevAction:      prevAction,
			StateVocabSize:  len(stateVocab),
		},
		Views:   views,
		Derived: PerceptDerived{AgreeCount: agreeCount, NViews: cfg.NViews},
		Checks:  checks,
		Verdict: verdict,
	}, nil
}
