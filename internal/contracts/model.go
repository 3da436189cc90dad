package contracts

import (
	"fmt"
	"math"
	"sort"
)

// ModelConfig is the immutable configuration of Γ_model.
type ModelConfig struct {
	S         uint    `json:"S" yaml:"s"`
	EpsT      float64 `json:"eps_T" yaml:"eps_t"`
	EpsUpdate float64 `json:"eps_update" yaml:"eps_update"`
	KMax      int     `json:"k_max" yaml:"k_max"`
	PiMin     float64 `json:"pi_min" yaml:"pi_min"`
	EtaForbid float64 `json:"eta_forbid" yaml:"eta_forbid"`
}

// ModelInputs carries the raw inputs embedded verbatim in the witness —
// not just a hash of them — so the full proposal is replayable from the
// witness alone.
type ModelInputs struct {
	ProposalPairs       []Pair   `json:"proposal_pairs"`
	RefPairs            []Pair   `json:"ref_pairs"`
	VerPairs            []Pair   `json:"ver_pairs,omitempty"`
	ForbiddenNextStates []string `json:"forbidden_next_states"`
}

// ModelMetrics records the scalar metrics Γ_model computed.
type ModelMetrics struct {
	SupportSize   int      `json:"support_size"`
	L1ToRef       float64  `json:"l1_to_ref"`
	ForbiddenProb float64  `json:"forbidden_prob"`
	L1ToVerified  *float64 `json:"l1_to_verified"`
}

// ModelChecks records the individual boolean checks.
type ModelChecks struct {
	SupportOK bool `json:"support_ok"`
	PiMinOK   bool `json:"pi_min_ok"`
	L1RefOK   bool `json:"l1_ref_ok"`
	ForbidOK  bool `json:"forbid_ok"`
	L1VerOK   bool `json:"l1_ver_ok"`
}

// ModelWitness is the witness emitted by Γ_model.
type ModelWitness struct {
	Schema           string           `json:"schema"`
	Contract         ModelConfig      `json:"contract"`
	Inputs           ModelInputs      `json:"inputs"`
	CandidateIntMass map[string]int64 `json:"candidate_int_mass"`
	RefIntMass       map[string]int64 `json:"ref_int_mass"`
	Metrics          ModelMetrics     `json:"metrics"`
	Checks           ModelChecks      `json:"checks"`
	Verdict          string           `json:"verdict"`
}

// CanonDistSparse quantizes a list of (state, prob) pairs to integer mass at
// bit-depth S, drops zero-mass entries, and requires positive total mass.
// Negative probabilities are rejected outright.
func CanonDistSparse(pairs []Pair, s uint) (map[string]int64, error) {
	scale := float64(int64(1) << s)
	states := make([]string, 0, len(pairs))
	masses := make(map[string]int64, len(pairs))
	for _, p := range pairs {
		if p.Prob < 0 {
			return nil, fmt.Errorf("contracts: negative probability for state %q", p.State)
		}
		masses[p.State] = int64(p.Prob*scale + 0.5)
		states = append(states, p.State)
	}
	sort.Strings(states)

	out := make(map[string]int64, len(states))
	var total int64
	for _, s := range states {
		m := masses[s]
		if m > 0 {
			out[s] = m
			total += m
		}
	}
	if total <= 0 {
		return nil, fmt.Errorf("contracts: zero total mass")
	}
	return out, nil
}

// l1DistFromIntMass computes the L1 distance between two integer-mass
// distributions after each is normalized by its own total.
func l1DistFromIntMass(p, q map[string]int64) float64 {
	var mp, mq int64
	for _, v := range p {
		mp += v
	}
	for _, v := range q {
		mq += v
	}

	keys := make(map[string]struct{}, len(p)+len(q))
	for k := range p {
		keys[k] = struct{}{}
	}
	for k := range q {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var acc float64
	for _, k := range sorted {
		ps := float64(p[k]) / float64(mp)
		qs := float64(q[k]) / float64(mq)
		acc += math.Abs(ps - qs)
	}
	return acc
}

// VerifyModel re-derives the candidate transition row and checks support
// size, minimum per-state mass, L1 distance to the reference row, forbidden
// mass, and (if a prior verified row is supplied) L1 distance to it.
func VerifyModel(
	cfg ModelConfig,
	proposalPairs, refPairs []Pair,
	verPairs []Pair,
	forbiddenNextStates []string,
) (*ModelWitness, error) {
	candInt, err := CanonDistSparse(proposalPairs, cfg.S)
	if err != nil {
		return nil, err
	}
	refInt, err := CanonDistSparse(refPairs, cfg.S)
	if err != nil {
		return nil, err
	}

	supportOK := len(candInt) <= cfg.KMax

	var mc int64
	for _, m := range candInt {
		mc += m
	}
	piMinOK := true
	for _, m := range candInt {
		if float64(m)/float64(mc) < cfg.PiMin {
			piMinOK = false
			break
		}
	}

	l1Ref := l1DistFromIntMass(candInt, refInt)
	l1RefOK := l1Ref <= cfg.EpsT

	var forbidMass int64
	for _, s2 := range forbiddenNextStates {
		forbidMass += candInt[s2]
	}
	forbidProb := float64(forbidMass) / float64(mc)
	forbidOK := forbidProb <= cfg.EtaForbid

	var l1Ver *float64
	l1VerOK := true
	if verPairs != nil {
		verInt, err := CanonDistSparse(verPairs, cfg.S)
		if err != nil {
			return nil, err
		}
		v := l1DistFromIntMass(candInt, verInt)
		l1Ver = &v
		l1VerOK = v <= cfg.EpsUpdate
	}

	passed := supportOK && piMinOK && l1RefOK && forbidOK && l1VerOK

	return &ModelWitness{
		Schema:   "contract.model.v1",
		Contract: cfg,
		Inputs: ModelInputs{
			ProposalPairs:       proposalPairs,
			RefPairs:            refPairs,
			VerPairs:            verPairs,
			ForbiddenNextStates: forbiddenNextStates,
		},
		CandidateIntMass: candInt,
		RefIntMass:       refInt,
		Metrics: ModelMetrics{
			SupportSize:   len(candInt),
			L1ToRef:       l1Ref,
			ForbiddenProb: forbidProb,
			L1ToVerified:  l1Ver,
		},
		Checks: ModelChecks{
			SupportOK: supportOK,
			PiMinOK:   piMinOK,
			L1RefOK:   l1RefOK,
			ForbidOK:  forbidOK,
			L1VerOK:   l1VerOK,
		},
		Verdict: verdictOf(passed),
	}, nil
}
