package contracts

// ExecConfig is the immutable configuration of Γ_exec.
type ExecConfig struct {
	S            uint     `json:"S" yaml:"s"`
	PiMin        float64  `json:"pi_min" yaml:"pi_min"`
	EpsModel     float64  `json:"eps_model" yaml:"eps_model"`
	ForbidStates []string `json:"forbid_states" yaml:"forbid_states"`
}

// TraceStep is one (subaction, intermediate state) pair observed during
// skill execution.
type TraceStep struct {
	U string `json:"u"`
	S string `json:"s"`
}

// ExecChecks records the individual boolean checks.
type ExecChecks struct {
	PreOK        bool `json:"pre_ok"`
	TraceLenOK   bool `json:"trace_len_ok"`
	SubactionsOK bool `json:"subactions_ok"`
	InterOK      bool `json:"inter_ok"`
	ForbidOK     bool `json:"forbid_ok"`
	PostOK       bool `json:"post_ok"`
	ModelOK      bool `json:"model_ok"`
}

// ExecWitness is the witness emitted by Γ_exec.
type ExecWitness struct {
	Schema           string           `json:"schema"`
	Contract         ExecConfig       `json:"contract"`
	Skill            string           `json:"skill"`
	InitialState     string           `json:"initial_state"`
	SkillToken       string           `json:"skill_token"`
	Trace            []TraceStep      `json:"trace"`
	ObservedNext     string           `json:"observed_next_state"`
	TransitionMass   map[string]int64 `json:"transition_mass"`
	ObservedNextFrac float64          `json:"observed_next_frac"`
	Checks           ExecChecks       `json:"checks"`
	Verdict          string           `json:"verdict"`
}

// VerifyExec re-checks a skill execution's pre/post conditions, its
// internal trace, forbidden-state avoidance, and the observed next state's
// probability mass within the supplied transition row.
func VerifyExec(
	cfg ExecConfig,
	skill SkillSpec,
	initialState, skillToken string,
	trace []TraceStep,
	observedNext string,
	row map[string]int64,
) *ExecWitness {
	forbidSet := make(map[string]struct{}, len(cfg.ForbidStates))
	for _, s := range cfg.ForbidStates {
		forbidSet[s] = struct{}{}
	}

	preOK := contains(skill.PreStates, initialState) && skillToken == skill.Name

	traceLenOK := len(trace) >= 1 && len(trace) <= skill.MaxTraceLen

	subactionsOK := true
	interOK := true
	forbidOK := true
	for _, step := range trace {
		if !contains(skill.AllowedSubactions, step.U) {
			subactionsOK = false
		}
		if !isStateToken(step.S) {
			interOK = false
		}
		if _, bad := forbidSet[step.S]; bad {
			forbidOK = false
		}
	}

	postOK := contains(skill.PostStates, observedNext)

	var total int64
	for _, m := range row {
		total += m
	}
	var frac float64
	modelOK := false
	if total > 0 {
		frac = float64(row[observedNext]) / float64(total)
		modelOK = frac >= cfg.PiMin
	}

	passed := preOK && traceLenOK && subactionsOK && interOK && forbidOK && postOK && modelOK

	return &ExecWitness{
		Schema:           "contract.exec.v1",
		Contract:         cfg,
		Skill:            skill.Name,
		InitialState:     initialState,
		SkillToken:       skillToken,
		Trace:            trace,
		ObservedNext:     observedNext,
		TransitionMass:   row,
		ObservedNextFrac: frac,
		Checks: ExecChecks{
			PreOK:        preOK,
			TraceLenOK:   traceLenOK,
			SubactionsOK: subactionsOK,
			InterOK:      interOK,
			ForbidOK:     forbidOK,
			PostOK:       postOK,
			ModelOK:      modelOK,
		},
		Verdict: verdictOf(passed),
	}
}
