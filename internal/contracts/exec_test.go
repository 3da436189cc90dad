package contracts

import "testing"

func execCfg() ExecConfig {
	return ExecConfig{S: 10, PiMin: 0.01, EpsModel: 0.05, ForbidStates: []string{"9,9"}}
}

func moveRightSkill() SkillSpec {
	return SkillSpec{
		Name:              "MOVE_RIGHT",
		PreStates:         []string{"1,1"},
		PostStates:        []string{"1,2"},
		AllowedSubactions: []string{"MOVE_RIGHT"},
		MaxTraceLen:       4,
	}
}

func passRow() map[string]int64 {
	return map[string]int64{"1,2": 1024}
}

func TestVerifyExec_PassLine(t *testing.T) {
	trace := []TraceStep{{U: "MOVE_RIGHT", S: "1,2"}}
	w := VerifyExec(execCfg(), moveRightSkill(), "1,1", "MOVE_RIGHT", trace, "1,2", passRow())
	if w.Verdict != "PASS" {
		t.Errorf("verdict = %s, checks = %+v", w.Verdict, w.Checks)
	}
}

// Teleport refusal: an observed next state below pi_min mass in the
// verified row must fail model_ok regardless of the other checks.
func TestVerifyExec_TeleportRefused(t *testing.T) {
	skill := moveRightSkill()
	skill.PostStates = []string{"1,2", "5,5"}
	row := map[string]int64{"1,2": 1023, "5,5": 1}

	cfg := execCfg()
	cfg.PiMin = 0.01 // 1/1024 < 0.01
	trace := []TraceStep{{U: "MOVE_RIGHT", S: "1,2"}}
	w := VerifyExec(cfg, skill, "1,1", "MOVE_RIGHT", trace, "5,5", row)
	if w.Checks.ModelOK {
		t.Errorf("model_ok should fail at frac=%v against pi_min=%v", w.ObservedNextFrac, cfg.PiMin)
	}
	if w.Verdict != "FAIL" {
		t.Errorf("verdict = %s, want FAIL", w.Verdict)
	}
}

func TestVerifyExec_ZeroMassObservedNext(t *testing.T) {
	trace := []TraceStep{{U: "MOVE_RIGHT", S: "1,2"}}
	w := VerifyExec(execCfg(), moveRightSkill(), "1,1", "MOVE_RIGHT", trace, "7,7", passRow())
	if w.Checks.ModelOK {
		t.Error("model_ok should fail for an observed state with zero mass")
	}
}

func TestVerifyExec_ForbiddenIntermediate(t *testing.T) {
	skill := moveRightSkill()
	skill.MaxTraceLen = 4
	trace := []TraceStep{{U: "MOVE_RIGHT", S: "9,9"}, {U: "MOVE_RIGHT", S: "1,2"}}
	w := VerifyExec(execCfg(), skill, "1,1", "MOVE_RIGHT", trace, "1,2", passRow())
	if w.Checks.ForbidOK {
		t.Error("forbid_ok should fail when the trace touches a forbidden state")
	}
}

func TestVerifyExec_PreconditionChecks(t *testing.T) {
	trace := []TraceStep{{U: "MOVE_RIGHT", S: "1,2"}}

	// Wrong initial state.
	w := VerifyExec(execCfg(), moveRightSkill(), "1,2", "MOVE_RIGHT", trace, "1,2", passRow())
	if w.Checks.PreOK {
		t.Error("pre_ok should fail when the initial state is not a pre-state")
	}

	// Wrong skill token.
	w = VerifyExec(execCfg(), moveRightSkill(), "1,1", "JUMP", trace, "1,2", passRow())
	if w.Checks.PreOK {
		t.Error("pre_ok should fail when the token doesn't match the skill name")
	}
}

func TestVerifyExec_TraceLengthBounds(t *testing.T) {
	skill := moveRightSkill()
	skill.MaxTraceLen = 1

	// Empty trace.
	w := VerifyExec(execCfg(), skill, "1,1", "MOVE_RIGHT", nil, "1,2", passRow())
	if w.Checks.TraceLenOK {
		t.Error("trace_len_ok should fail on an empty trace")
	}

	// Over-length trace.
	trace := []TraceStep{{U: "MOVE_RIGHT", S: "1,2"}, {U: "MOVE_RIGHT", S: "1,2"}}
	w = VerifyExec(execCfg(), skill, "1,1", "MOVE_RIGHT", trace, "1,2", passRow())
	if w.Checks.TraceLenOK {
		t.Error("trace_len_ok should fail past max_trace_len")
	}
}

func TestVerifyExec_SubactionAndTokenChecks(t *testing.T) {
	trace := []TraceStep{{U: "FLY", S: "1,2"}}
	w := VerifyExec(execCfg(), moveRightSkill(), "1,1", "MOVE_RIGHT", trace, "1,2", passRow())
	if w.Checks.SubactionsOK {
		t.Error("subactions_ok should fail for a disallowed subaction")
	}

	trace = []TraceStep{{U: "MOVE_RIGHT", S: "garbled"}}
	w = VerifyExec(execCfg(), moveRightSkill(), "1,1", "MOVE_RIGHT", trace, "1,2", passRow())
	if w.Checks.InterOK {
		t.Error("inter_ok should fail for a malformed intermediate state token")
	}
}
