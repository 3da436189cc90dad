// Package dashboard appends per-step summary rows to a CSV file consumed
// by external dashboards. The column order is fixed; the header is written
// once when the file is created; a row identical to the last row on disk
// is not appended again.
package dashboard

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/bundle"
)

// Columns is the fixed CSV column order.
var Columns = []string{
	"step", "time", "action", "proof_status", "merkle_root",
	"result", "reason", "percept", "model", "value", "risk", "exec",
}

// Row is one dashboard line derived from a step bundle.
type Row struct {
	Step        int
	Time        time.Time
	Action      string
	ProofStatus string
	MerkleRoot  string
	Result      string
	Reason      string
	Percept     string
	Model       string
	Value       string
	Risk        string
	Exec        string
}

// FromBundle derives a Row from a finished step bundle. The reason column
// names the first failed leaf, or is empty when everything passed.
func FromBundle(b *bundle.Bundle, at time.Time) Row {
	reason := ""
	result := "ok"
	switch {
	case b.LeafVerdicts.Percept != "PASS":
		reason = "percept_fail"
	case b.LeafVerdicts.ModelContract != "PASS":
		reason = "model_fail"
	case b.LeafVerdicts.ValueTable != "PASS":
		reason = "value_fail"
	case b.LeafVerdicts.RiskGate != "PASS":
		reason = "risk_fail"
	case b.LeafVerdicts.Exec != "PASS":
		reason = "exec_fail"
	}
	if b.DetectedValueForgery {
		result = "DETECTED_VALUE_FORGERY"
	}
	return Row{
		Step:        b.StepCounter,
		Time:        at,
		Action:      b.SelectedAction,
		ProofStatus: b.Verdict,
		MerkleRoot:  b.MerkleRoot,
		Result:      result,
		Reason:      reason,
		Percept:     b.LeafVerdicts.Percept,
		Model:       b.LeafVerdicts.ModelContract,
		Value:       b.LeafVerdicts.ValueTable,
		Risk:        b.LeafVerdicts.RiskGate,
		Exec:        b.LeafVerdicts.Exec,
	}
}

func (r Row) record() []string {
	return []string{
		fmt.Sprintf("%d", r.Step),
		r.Time.UTC().Format(time.RFC3339),
		r.Action,
		r.ProofStatus,
		r.MerkleRoot,
		r.Result,
		r.Reason,
		r.Percept,
		r.Model,
		r.Value,
		r.Risk,
		r.Exec,
	}
}

// Append writes row to the CSV at path, creating it (with header) if
// needed. A row whose values equal the last row already on disk is
// skipped, so retried steps never double-append.
func Append(path string, row Row) error {
	record := row.record()

	existing, err := os.ReadFile(path)
	isNew := err != nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if !isNew && lastLine(existing) == joinCSV(record) {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew || len(existing) == 0 {
		if err := w.Write(Columns); err != nil {
			return err
		}
	}
	if err := w.Write(record); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func lastLine(data []byte) string {
	s := strings.TrimRight(string(data), "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// joinCSV renders a record the way encoding/csv would, so the dedup
// comparison matches what Append actually writes.
func joinCSV(record []string) string {
	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	cw.Write(record)
	cw.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
