// Package grade scores the evidentiary quality of a persisted audit
// record. The engine guarantees arithmetic correctness; grading reports
// how well-supported the underlying figures are.
package grade

import (
	"github.com/gridtariff/trueup/internal/engine"
	"github.com/gridtariff/trueup/pkg/types"
)

type Result struct {
	Grade   string
	Reasons []string
}

type Input struct {
	// Valid is the outcome of checksum verification; an invalid record
	// grades F regardless of its contents.
	Valid  bool
	Result types.AuditResult
}

// Evaluate grades a record A/B/C by counting evidentiary gaps, or F when
// its integrity cannot be established at all.
func Evaluate(in Input) Result {
	if !in.Valid {
		return Result{Grade: "F", Reasons: []string{"checksum_mismatch"}}
	}

	var reasons []string

	snapshot := in.Result.InputSnapshot
	if !snapshot.IsHumanVerified {
		reasons = append(reasons, "unverified_data")
	}
	if snapshot.EvidencePage == nil {
		reasons = append(reasons, "missing_evidence_page")
	}
	for _, flag := range in.Result.Metadata.Flags {
		if flag == engine.FlagHighAnomaly {
			reasons = append(reasons, "high_anomaly")
		}
	}

	switch len(reasons) {
	case 0:
		return Result{Grade: "A"}
	case 1:
		return Result{Grade: "B", Reasons: reasons}
	default:
		return Result{Grade: "C", Reasons: reasons}
	}
}
