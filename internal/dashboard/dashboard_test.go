package dashboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/bundle"
)

func sampleBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Schema:            bundle.Schema,
		StepCounter:       3,
		SelectedAction:    "MOVE_RIGHT",
		ObservedNextState: "1,2",
		LeafVerdicts: bundle.LeafVerdicts{
			Percept: "PASS", ModelContract: "PASS", ValueTable: "PASS",
			RiskGate: "PASS", Exec: "PASS",
		},
		MerkleRoot: strings.Repeat("a", 64),
		Verdict:    "PASS",
	}
}

func TestAppend_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.csv")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := Append(path, FromBundle(sampleBundle(), at)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	b2 := sampleBundle()
	b2.StepCounter = 4
	if err := Append(path, FromBundle(b2, at)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	raw, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), raw)
	}
	if lines[0] != strings.Join(Columns, ",") {
		t.Errorf("header = %q", lines[0])
	}
}

// A row identical to the last row on disk must not double-append.
func TestAppend_DeduplicatesIdenticalLastRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.csv")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := FromBundle(sampleBundle(), at)

	for i := 0; i < 3; i++ {
		if err := Append(path, row); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	raw, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 row:\n%s", len(lines), raw)
	}
}

func TestFromBundle_ForgeryAndReason(t *testing.T) {
	b := sampleBundle()
	b.LeafVerdicts.ValueTable = "FAIL"
	b.DetectedValueForgery = true
	b.SelectedAction = "ABSTAIN"

	row := FromBundle(b, time.Now())
	if row.Result != "DETECTED_VALUE_FORGERY" {
		t.Errorf("result = %s", row.Result)
	}
	if row.Reason != "value_fail" {
		t.Errorf("reason = %s", row.Reason)
	}
	if row.Value != "FAIL" {
		t.Errorf("value column = %s", row.Value)
	}
}

func TestAppend_FixedColumnOrder(t *testing.T) {
	want := "step,time,action,proof_status,merkle_root,result,reason,percept,model,value,risk,exec"
	if strings.Join(Columns, ",") != want {
		t.Errorf("columns = %v", Columns)
	}
}
