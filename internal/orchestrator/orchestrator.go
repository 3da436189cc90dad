// Package orchestrator runs the five contracts (Γ_percept, Γ_model,
// Γ_value, Γ_risk, Γ_exec) in their fixed order for one step, persists
// every witness plus the step's bundle, and advances the hash chain. It
// owns the single mutable table in the system, T_ver; contract
// configurations are immutable once constructed.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/bundle"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/canon"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/chain"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/contracts"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/fixedpoint"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/merkle"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/redpacket"
)

// ErrUnknownSkill is returned when a red packet names a skill the
// orchestrator's skill table doesn't recognize.
var ErrUnknownSkill = fmt.Errorf("orchestrator: unknown skill")

// Configs bundles the five contracts' immutable configurations.
type Configs struct {
	Percept contracts.PerceptConfig
	Model   contracts.ModelConfig
	Value   contracts.ValueConfig
	Risk    contracts.RiskConfig
	Exec    contracts.ExecConfig
}

// Orchestrator runs steps for a single stream, owning T_ver and the
// running chain root.
type Orchestrator struct {
	RunID      string
	StreamID   string
	OutRoot    string
	GlobalSeed uint32
	Configs    Configs
	StateVocab []string
	Skills     map[string]contracts.SkillSpec
	TVer       contracts.TVer

	prevChainRoot string
	Logger        *log.Logger
}

// New constructs an Orchestrator. A nil logger defaults to a
// "[oracle-verifier] "-prefixed stdlib logger.
func New(streamID, outRoot string, globalSeed uint32, cfgs Configs, stateVocab []string, skills map[string]contracts.SkillSpec, tVer contracts.TVer, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[oracle-verifier] ", log.LstdFlags)
	}
	if tVer == nil {
		tVer = contracts.TVer{}
	}
	return &Orchestrator{
		RunID:         uuid.NewString(),
		StreamID:      streamID,
		OutRoot:       outRoot,
		GlobalSeed:    globalSeed,
		Configs:       cfgs,
		StateVocab:    stateVocab,
		Skills:        skills,
		TVer:          tVer,
		prevChainRoot: chain.GenesisRoot,
		Logger:        logger,
	}
}

// SeedChain sets the chain root a fresh Orchestrator should treat as its
// parent, for resuming a stream that already has persisted steps.
func (o *Orchestrator) SeedChain(prevChainRoot string) {
	o.prevChainRoot = prevChainRoot
}

// StepInput carries everything one RunStep call needs beyond the red
// packet itself: the carried state from the previous step.
type StepInput struct {
	Packet     redpacket.RedPacket
	PrevState  string
	PrevAction *string
}

// RunStep executes Γ_percept, Γ_model, Γ_value, Γ_risk, Γ_exec in order,
// writes every witness file and the step bundle under
// OutRoot/step_<NNNNNN>/, and returns the bundle. A FAIL verdict in any
// contract is never an error — it becomes a recorded leaf verdict and
// forces the selected action to abstain. The only errors
// returned are CanonError-class failures (unhashable input) or I/O errors;
// on any error no partial step directory is left behind.
func (o *Orchestrator) RunStep(in StepInput) (*bundle.Bundle, error) {
	p := in.Packet
	seeds := fixedpoint.DeriveSeeds(o.GlobalSeed, uint32(p.StepCounter))

	stepDir := filepath.Join(o.OutRoot, fmt.Sprintf("step_%06d", p.StepCounter))
	tmpDir := stepDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmpDir)
		}
	}()

	// 1-3. Γ_percept
	percept, err := contracts.VerifyPercept(o.Configs.Percept, p.Observation, p.ProposedState, nonEmptyPtr(in.PrevState), in.PrevAction, o.TVer, o.StateVocab)
	if err != nil {
		return nil, err
	}
	sT := p.ProposedState
	actions := append([]string(nil), p.Actions...)
	if percept.Verdict != "PASS" {
		sT = in.PrevState
		actions = []string{o.Configs.Risk.AbstainAction}
	}

	// 4. Γ_model
	var verPairs []contracts.Pair
	if row, ok := o.TVer.Row(sT, modelRowAction(p)); ok {
		verPairs = rowToPairs(row, o.Configs.Model.S)
	}
	model, err := contracts.VerifyModel(o.Configs.Model, p.ModelRowProposal, p.ModelRowRef, verPairs, p.ForbiddenNextStates)
	if err != nil {
		return nil, err
	}
	if model.Verdict == "PASS" {
		if action := modelRowAction(p); action != "" && action != o.Configs.Risk.AbstainAction {
			o.TVer.Set(sT, action, model.CandidateIntMass)
		}
	}

	// 5. Γ_value, one child per sorted action
	rewards, err := p.RewardTableTyped()
	if err != nil {
		return nil, err
	}
	sort.Strings(actions)
	value := contracts.VerifyValue(o.Configs.Value, o.TVer, rewards, p.ViolationStates, sT, actions, seeds["value"], p.ProposedQ, p.ProposedR)

	// 6. Γ_risk
	priorFail := percept.Verdict != "PASS" || model.Verdict != "PASS" || value.Verdict != "PASS"
	var risk *contracts.RiskWitness
	if priorFail {
		q := map[string]float64{o.Configs.Risk.AbstainAction: 0}
		r := map[string]float64{o.Configs.Risk.AbstainAction: 0}
		risk = contracts.VerifyRisk(o.Configs.Risk, q, r, nil)
	} else {
		proposed := argmaxLex(p.ProposedQ, actions)
		risk = contracts.VerifyRisk(o.Configs.Risk, restrictMap(p.ProposedQ, actions), restrictMap(p.ProposedR, actions), &proposed)
	}
	selected := risk.SelectedAction

	// 7. Γ_exec
	skillToken := selected
	if priorFail {
		skillToken = o.Configs.Risk.AbstainAction
	}
	skill, ok := o.Skills[skillToken]
	if !ok {
		skill = contracts.SkillSpec{Name: skillToken, PreStates: []string{sT}, PostStates: []string{p.ObservedNextState}, AllowedSubactions: actions, MaxTraceLen: 1}
	}
	trace := make([]contracts.TraceStep, 0, len(p.ObservedTrace))
	for _, t := range p.ObservedTrace {
		trace = append(trace, contracts.TraceStep{U: t.U, S: t.S})
	}
	row, _ := o.TVer.Row(sT, skillToken)
	exec := contracts.VerifyExec(o.Configs.Exec, skill, sT, skillToken, trace, p.ObservedNextState, row)

	// 8. Hash each witness, build merkle root, chain root, persist.
	leafWitnesses := []struct {
		name string
		w    interface{}
	}{
		{"percept", percept},
		{"model_contract", model},
		{"value_table", value},
		{"risk_gate", risk},
		{"exec", exec},
	}
	leafHashes := make(map[string]string, len(leafWitnesses))
	leaves := make([]bundle.LeafEntry, 0, len(leafWitnesses))
	for _, lw := range leafWitnesses {
		h, err := canon.HashStruct(lw.w)
		if err != nil {
			return nil, err
		}
		leafHashes[lw.name] = h
		leaves = append(leaves, bundle.LeafEntry{Name: lw.name, Hash: h})
		if err := writeJSON(filepath.Join(tmpDir, bundle.WitnessFileName(lw.name)), lw.w); err != nil {
			return nil, err
		}
	}
	// Per-action value files: w_value_<ACTION>.json with sanitized
	// action tokens.
	for action, child := range value.Children {
		fname := fmt.Sprintf("w_value_%s.json", contracts.SanitizeActionFilename(action))
		if err := writeJSON(filepath.Join(tmpDir, fname), child); err != nil {
			return nil, err
		}
	}

	orderedHashes := make([]string, len(merkle.LeafNames))
	for i, name := range merkle.LeafNames {
		orderedHashes[i] = leafHashes[name]
	}
	root, err := merkle.Root(orderedHashes)
	if err != nil {
		return nil, err
	}
	chainRoot, err := chain.Next(o.prevChainRoot, root)
	if err != nil {
		return nil, err
	}

	b := &bundle.Bundle{
		Schema:            bundle.Schema,
		RunID:             o.RunID,
		StreamID:          o.StreamID,
		StepCounter:       p.StepCounter,
		PrevState:         in.PrevState,
		PerceivedState:    sT,
		SelectedAction:    selected,
		ObservedNextState: p.ObservedNextState,
		Leaves:            leaves,
		LeafVerdicts: bundle.LeafVerdicts{
			Percept:       percept.Verdict,
			ModelContract: model.Verdict,
			ValueTable:    value.Verdict,
			RiskGate:      risk.Verdict,
			Exec:          exec.Verdict,
		},
		MerkleRoot:           root,
		PrevChainRoot:        o.prevChainRoot,
		ChainRoot:            chainRoot,
		Verdict:              "PASS",
		DetectedValueForgery: model.Verdict != "PASS" || value.Verdict != "PASS",
	}

	if err := writeJSON(filepath.Join(tmpDir, "bundle.json"), b); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "root_hash.txt"), []byte(root), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "chain_root.txt"), []byte(chainRoot), 0o644); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(stepDir); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpDir, stepDir); err != nil {
		return nil, err
	}
	committed = true
	o.prevChainRoot = chainRoot

	if b.DetectedValueForgery {
		o.Logger.Printf("step %d: DETECTED_VALUE_FORGERY, forced selected_action=%s", p.StepCounter, selected)
	}
	return b, nil
}

// modelRowAction picks the action the model proposal is installed under:
// the red packet's explicit SelectedSkill when present (the row almost
// always describes the skill about to be exercised), otherwise nothing
// is installed.
func modelRowAction(p redpacket.RedPacket) string {
	return p.SelectedSkill
}

func rowToPairs(row map[string]int64, s uint) []contracts.Pair {
	scale := float64(int64(1) << s)
	out := make([]contracts.Pair, 0, len(row))
	for state, mass := range row {
		out = append(out, contracts.Pair{State: state, Prob: float64(mass) / scale})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out
}

func argmaxLex(q map[string]float64, actions []string) string {
	if len(actions) == 0 {
		return ""
	}
	best := actions[0]
	bestQ := q[best]
	for _, a := range actions[1:] {
		if q[a] > bestQ {
			best = a
			bestQ = q[a]
		}
	}
	return best
}

func restrictMap(m map[string]float64, keys []string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(path string, v interface{}) error {
	raw, err := canon.MarshalStruct(v)
	if err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return err
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
