package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/fixedpoint"
)

// ValueConfig is the immutable configuration of Γ_value.
type ValueConfig struct {
	S            uint    `json:"S" yaml:"s"`
	GammaFP      float64 `json:"gamma_fp" yaml:"gamma_fp"`
	Horizon      int     `json:"horizon" yaml:"horizon"`
	NRollouts    int     `json:"n_rollouts" yaml:"n_rollouts"`
	EpsQ         float64 `json:"eps_q" yaml:"eps_q"`
	EpsR         float64 `json:"eps_r" yaml:"eps_r"`
	FollowAction string  `json:"follow_action" yaml:"follow_action"`
}

// RolloutSummary records one rollout's accumulated return, violation flag,
// and a hash of its trajectory (for replay-level auditing without
// persisting the full path).
type RolloutSummary struct {
	GAcc     int64  `json:"g_acc"`
	Violated bool   `json:"violated"`
	TrajHash string `json:"traj_hash"`
}

// ActionValueWitness is the per-action child witness emitted by Γ_value.
type ActionValueWitness struct {
	Schema   string           `json:"schema"`
	Action   string           `json:"action"`
	Seed     uint32           `json:"seed"`
	Rollouts []RolloutSummary `json:"rollouts"`
	QHat     int64            `json:"q_hat"`
	RHat     int64            `json:"r_hat"`
	QMC      int64            `json:"q_mc"`
	RMC      int64            `json:"r_mc"`
	Checks   struct {
		QOK bool `json:"q_ok"`
		ROK bool `json:"r_ok"`
	} `json:"checks"`
	Verdict string `json:"verdict"`
}

// ValueWitness is the parent witness summarizing every per-action child.
type ValueWitness struct {
	Schema   string                         `json:"schema"`
	Contract ValueConfig                    `json:"contract"`
	State    string                         `json:"state"`
	Children map[string]*ActionValueWitness `json:"children"`
	Verdict  string                         `json:"verdict"`
}

// SanitizeActionFilename replaces '/' and ' ' with '_' for the per-action
// witness file name.
func SanitizeActionFilename(action string) string {
	r := strings.NewReplacer("/", "_", " ", "_")
	return r.Replace(action)
}

// VerifyValueAction runs n_rollouts Monte-Carlo rollouts of cfg.Horizon
// steps for one action, starting from state s, and checks the re-derived
// Q/R estimates against the proposed qHat/rHat.
func VerifyValueAction(
	cfg ValueConfig,
	tVer TVer,
	rewards RewardTable,
	violationStates map[string]struct{},
	state, action string,
	seed uint32,
	qHat, rHat int64,
) *ActionValueWitness {
	scale := int64(1) << cfg.S
	gammaInt := fixedpoint.Quantize(cfg.GammaFP, cfg.S)

	rng := fixedpoint.NewXorShift32(seed)
	rollouts := make([]RolloutSummary, 0, cfg.NRollouts)
	gs := make([]int64, 0, cfg.NRollouts)
	vs := make([]int64, 0, cfg.NRollouts)

	for i := 0; i < cfg.NRollouts; i++ {
		var gAcc int64
		gammaPow := scale
		s := state
		u := action
		violated := false
		traj := make([]string, 0, cfg.Horizon)

		for step := 0; step < cfg.Horizon; step++ {
			row, ok := tVer.Row(s, u)
			if !ok || len(row) == 0 {
				break
			}
			next := fixedpoint.SampleFromIntMass(rng, row)
			if next == "" {
				break
			}
			r := rewards[SAS{State: s, Action: u, Next: next}]
			rInt := fixedpoint.Quantize(r, cfg.S)
			gAcc += (gammaPow * rInt) >> cfg.S
			gammaPow = (gammaPow * gammaInt) >> cfg.S
			if _, bad := violationStates[next]; bad {
				violated = true
			}
			traj = append(traj, s+">"+u+">"+next)
			s = next
			u = cfg.FollowAction
		}

		trajHash, _ := sha256TrajHash(traj)
		rollouts = append(rollouts, RolloutSummary{GAcc: gAcc, Violated: violated, TrajHash: trajHash})
		gs = append(gs, gAcc)
		if violated {
			vs = append(vs, scale)
		} else {
			vs = append(vs, 0)
		}
	}

	qMC := fixedpoint.MeanInt(gs)
	rMC := fixedpoint.MeanInt(vs)

	epsQInt := fixedpoint.Quantize(cfg.EpsQ, cfg.S)
	epsRInt := fixedpoint.Quantize(cfg.EpsR, cfg.S)

	qOK := absInt64(qHat-qMC) <= epsQInt
	rOK := absInt64(rHat-rMC) <= epsRInt

	w := &ActionValueWitness{
		Schema:   "contract.value.action.v1",
		Action:   action,
		Seed:     seed,
		Rollouts: rollouts,
		QHat:     qHat,
		RHat:     rHat,
		QMC:      qMC,
		RMC:      rMC,
		Verdict:  verdictOf(qOK && rOK),
	}
	w.Checks.QOK = qOK
	w.Checks.ROK = rOK
	return w
}

// VerifyValue runs VerifyValueAction for every action and aggregates the
// children into a parent witness whose verdict is the AND of all children.
func VerifyValue(
	cfg ValueConfig,
	tVer TVer,
	rewards RewardTable,
	violationStates []string,
	state string,
	actions []string,
	seedBase uint32,
	qHat, rHat map[string]float64,
) *ValueWitness {
	violSet := make(map[string]struct{}, len(violationStates))
	for _, v := range violationStates {
		violSet[v] = struct{}{}
	}

	sorted := append([]string(nil), actions...)
	sort.Strings(sorted)

	scale := int64(1) << cfg.S
	children := make(map[string]*ActionValueWitness, len(sorted))
	allPass := true
	for _, a := range sorted {
		seed := fixedpoint.Mix32(seedBase, fixedpoint.Sha32(a))
		qh := fixedpoint.Quantize(qHat[a], cfg.S)
		rh := int64(0)
		if v, ok := rHat[a]; ok {
			rh = int64(v*float64(scale) + 0.5)
		}
		w := VerifyValueAction(cfg, tVer, rewards, violSet, state, a, seed, qh, rh)
		children[a] = w
		if w.Verdict != verdictPass {
			allPass = false
		}
	}

	return &ValueWitness{
		Schema:   "contract.value.v1",
		Contract: cfg,
		State:    state,
		Children: children,
		Verdict:  verdictOf(allPass),
	}
}

func absInt64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// sha256TrajHash hashes the joined trajectory steps, keeping the witness
// file small while still binding it to the exact sampled path.
func sha256TrajHash(traj []string) (string, error) {
	h := sha256.Sum256([]byte(strings.Join(traj, ";")))
	return hex.EncodeToString(h[:]), nil
}
