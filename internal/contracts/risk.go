package contracts

import (
	"sort"
)

// RiskConfig is the immutable configuration of Γ_risk.
type RiskConfig struct {
	S             uint    `json:"S" yaml:"s"`
	RhoMax        float64 `json:"rho_max" yaml:"rho_max"`
	EpsRegret     float64 `json:"eps_regret" yaml:"eps_regret"`
	AbstainAction string  `json:"abstain_action" yaml:"abstain_action"`
}

// RiskChecks records the individual boolean checks.
type RiskChecks struct {
	ActionSetOK bool `json:"action_set_ok"`
	RegretOK    bool `json:"regret_ok"`
	RiskOK      bool `json:"risk_ok"`
	ProposalOK  bool `json:"proposal_ok"`
}

// RiskWitness is the witness emitted by Γ_risk.
type RiskWitness struct {
	Schema         string           `json:"schema"`
	Contract       RiskConfig       `json:"contract"`
	QInt           map[string]int64 `json:"q_int"`
	RInt           map[string]int64 `json:"r_int"`
	SafeActions    []string         `json:"safe_actions"`
	BestQ          int64            `json:"best_q"`
	BestSafe       []string         `json:"best_safe"`
	Proposed       *string          `json:"proposed"`
	SelectedAction string           `json:"selected_action"`
	Regret         int64            `json:"regret"`
	Checks         RiskChecks       `json:"checks"`
	Verdict        string           `json:"verdict"`
}

// VerifyRisk quantizes Q/R, restricts to the safe action set (R <= rho_max),
// selects the regret-optimal action (preferring the proposed action when it
// is itself best-safe, else the lexicographically smallest best-safe
// action), and checks regret and risk bounds.
func VerifyRisk(
	cfg RiskConfig,
	q, r map[string]float64,
	proposed *string,
) *RiskWitness {
	scale := float64(int64(1) << cfg.S)

	actions := make([]string, 0, len(q))
	for a := range q {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	qInt := make(map[string]int64, len(actions))
	rInt := make(map[string]int64, len(actions))
	for _, a := range actions {
		qInt[a] = int64(q[a]*scale + 0.5)
		rInt[a] = int64(r[a]*scale + 0.5)
	}

	rhoMaxInt := int64(cfg.RhoMax*scale + 0.5)

	safe := make([]string, 0, len(actions))
	for _, a := range actions {
		if rInt[a] <= rhoMaxInt {
			safe = append(safe, a)
		}
	}

	actionSetOK := len(q) == len(r)
	for a := range q {
		if _, ok := r[a]; !ok {
			actionSetOK = false
		}
	}

	var selected string
	var bestQ int64
	var bestSafe []string

	if len(safe) == 0 {
		selected = cfg.AbstainAction
	} else {
		bestQ = qInt[safe[0]]
		for _, a := range safe {
			if qInt[a] > bestQ {
				bestQ = qInt[a]
			}
		}
		for _, a := range safe {
			if qInt[a] == bestQ {
				bestSafe = append(bestSafe, a)
			}
		}
		sort.Strings(bestSafe)

		selected = bestSafe[0]
		if proposed != nil {
			for _, a := range bestSafe {
				if a == *proposed {
					selected = *proposed
					break
				}
			}
		}
	}

	regret := int64(0)
	if len(safe) > 0 {
		regret = bestQ - qInt[selected]
	}
	epsRegretInt := int64(cfg.EpsRegret*scale + 0.5)
	regretOK := regret <= epsRegretInt

	checkAction := selected
	if proposed != nil {
		checkAction = *proposed
	}
	riskOK := checkAction == cfg.AbstainAction
	if !riskOK {
		if rv, ok := rInt[checkAction]; ok {
			riskOK = rv <= rhoMaxInt
		}
	}

	proposalOK := true
	if proposed != nil {
		proposalOK = *proposed == selected
	}

	passed := actionSetOK && regretOK && riskOK && proposalOK

	return &RiskWitness{
		Schema:         "contract.risk.v1",
		Contract:       cfg,
		QInt:           qInt,
		RInt:           rInt,
		SafeActions:    safe,
		BestQ:          bestQ,
		BestSafe:       bestSafe,
		Proposed:       proposed,
		SelectedAction: selected,
		Regret:         regret,
		Checks: RiskChecks{
			ActionSetOK: actionSetOK,
			RegretOK:    regretOK,
			RiskOK:      riskOK,
			ProposalOK:  proposalOK,
		},
		Verdict: verdictOf(passed),
	}
}
