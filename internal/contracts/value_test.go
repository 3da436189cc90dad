package contracts

import "testing"

func valueCfg() ValueConfig {
	return ValueConfig{S: 10, GammaFP: 1.0, Horizon: 1, NRollouts: 64, EpsQ: 2.0, EpsR: 2.0, FollowAction: "MOVE_RIGHT"}
}

func passLineTables() (TVer, RewardTable) {
	tv := TVer{}
	tv.Set("1,1", "MOVE_RIGHT", map[string]int64{"1,2": 1024})
	rw := RewardTable{
		{State: "1,1", Action: "MOVE_RIGHT", Next: "1,2"}: 1.0,
	}
	return tv, rw
}

func TestVerifyValueAction_DeterministicSingleSupport(t *testing.T) {
	tv, rw := passLineTables()

	// Single-support row, reward 1.0, gamma 1.0, horizon 1: every rollout
	// accumulates exactly 2^S.
	w := VerifyValueAction(valueCfg(), tv, rw, map[string]struct{}{"9,9": {}}, "1,1", "MOVE_RIGHT", 42, 1024, 0)
	if w.QMC != 1024 {
		t.Errorf("Q_mc = %d, want 1024", w.QMC)
	}
	if w.RMC != 0 {
		t.Errorf("R_mc = %d, want 0", w.RMC)
	}
	if w.Verdict != "PASS" {
		t.Errorf("verdict = %s, checks = %+v", w.Verdict, w.Checks)
	}
	if len(w.Rollouts) != 64 {
		t.Errorf("rollouts = %d, want 64", len(w.Rollouts))
	}
}

func TestVerifyValueAction_ForgedQFails(t *testing.T) {
	tv, rw := passLineTables()

	// Claimed Q of 5.0 against a true value of 1.0: off by 4*2^S, far
	// beyond eps_q = 2.0.
	w := VerifyValueAction(valueCfg(), tv, rw, nil, "1,1", "MOVE_RIGHT", 42, 5120, 0)
	if w.Checks.QOK {
		t.Error("q_ok should fail for a forged Q estimate")
	}
	if w.Verdict != "FAIL" {
		t.Errorf("verdict = %s, want FAIL", w.Verdict)
	}
}

func TestVerifyValueAction_ViolationRaisesRMC(t *testing.T) {
	tv := TVer{}
	tv.Set("1,1", "JUMP", map[string]int64{"9,9": 1024})
	rw := RewardTable{}

	w := VerifyValueAction(valueCfg(), tv, rw, map[string]struct{}{"9,9": {}}, "1,1", "JUMP", 7, 0, 1024)
	// Every rollout lands on the violation state, so R_mc = 2^S.
	if w.RMC != 1024 {
		t.Errorf("R_mc = %d, want 1024", w.RMC)
	}
	if !w.Checks.ROK {
		t.Error("r_ok should hold when R_hat matches the certain violation")
	}
}

func TestVerifyValueAction_SameSeedSameRollouts(t *testing.T) {
	tv := TVer{}
	tv.Set("1,1", "MOVE_RIGHT", map[string]int64{"1,2": 512, "1,3": 512})
	tv.Set("1,2", "MOVE_RIGHT", map[string]int64{"1,3": 1024})
	tv.Set("1,3", "MOVE_RIGHT", map[string]int64{"1,2": 1024})
	rw := RewardTable{
		{State: "1,1", Action: "MOVE_RIGHT", Next: "1,2"}: 1.0,
		{State: "1,1", Action: "MOVE_RIGHT", Next: "1,3"}: 0.5,
	}
	cfg := valueCfg()
	cfg.Horizon = 3

	a := VerifyValueAction(cfg, tv, rw, nil, "1,1", "MOVE_RIGHT", 12345, 0, 0)
	b := VerifyValueAction(cfg, tv, rw, nil, "1,1", "MOVE_RIGHT", 12345, 0, 0)
	for i := range a.Rollouts {
		if a.Rollouts[i].GAcc != b.Rollouts[i].GAcc || a.Rollouts[i].TrajHash != b.Rollouts[i].TrajHash {
			t.Fatalf("rollout %d differs across identical seeds", i)
		}
	}

	c := VerifyValueAction(cfg, tv, rw, nil, "1,1", "MOVE_RIGHT", 54321, 0, 0)
	same := true
	for i := range a.Rollouts {
		if a.Rollouts[i].TrajHash != c.Rollouts[i].TrajHash {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds should produce different trajectories")
	}
}

func TestVerifyValue_AggregatesChildren(t *testing.T) {
	tv, rw := passLineTables()
	qHat := map[string]float64{"MOVE_RIGHT": 1.0, "ABSTAIN": 0.0}
	rHat := map[string]float64{"MOVE_RIGHT": 0.0, "ABSTAIN": 0.0}

	w := VerifyValue(valueCfg(), tv, rw, []string{"9,9"}, "1,1", []string{"MOVE_RIGHT", "ABSTAIN"}, 42, qHat, rHat)
	if len(w.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(w.Children))
	}
	if w.Verdict != "PASS" {
		t.Errorf("verdict = %s", w.Verdict)
	}

	// Forge one child's estimate; the parent verdict must flip.
	qHat["MOVE_RIGHT"] = 5.0
	w = VerifyValue(valueCfg(), tv, rw, []string{"9,9"}, "1,1", []string{"MOVE_RIGHT", "ABSTAIN"}, 42, qHat, rHat)
	if w.Verdict != "FAIL" {
		t.Error("one failing child should fail the parent")
	}
	if w.Children["ABSTAIN"].Verdict != "PASS" {
		t.Error("the untouched child should still pass")
	}
}

func TestSanitizeActionFilename(t *testing.T) {
	if got := SanitizeActionFilename("GO/LEFT NOW"); got != "GO_LEFT_NOW" {
		t.Errorf("got %q", got)
	}
}
