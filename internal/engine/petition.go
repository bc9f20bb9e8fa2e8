package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/crypto"
	"github.com/gridtariff/trueup/internal/money"
	"github.com/gridtariff/trueup/pkg/types"
)

// ProcessPetition computes every cost head of a petition in submission
// order and aggregates the revenue gap and disallowed totals. The batch is
// all or nothing: the first failing input aborts the whole petition,
// because a partially computed filing is not auditable.
func (e *Engine) ProcessPetition(financialYear string, inputs []types.CostInput) (types.PetitionReport, error) {
	results := make([]types.AuditResult, 0, len(inputs))
	totalGap := decimal.Zero
	totalDisallowed := decimal.Zero

	for i, in := range inputs {
		result, err := e.ComputeVariance(in)
		if err != nil {
			return types.PetitionReport{}, fmt.Errorf("petition item %d (%s): %w", i, in.Head, err)
		}
		results = append(results, result)
		totalGap = totalGap.Add(result.VarianceAmount)
		totalDisallowed = totalDisallowed.Add(result.DisallowedVariance)
	}

	report := types.PetitionReport{
		ReportID:        uuid.NewString(),
		EngineVersion:   e.constants.Version(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		FinancialYear:   financialYear,
		TotalItems:      len(results),
		TotalRevenueGap: money.Round(totalGap),
		TotalDisallowed: money.Round(totalDisallowed),
		LineItems:       results,
	}

	canonical, err := crypto.Canonicalize(report.StableView())
	if err != nil {
		return types.PetitionReport{}, fmt.Errorf("canonicalize petition report: %w", err)
	}
	report.BatchChecksum = crypto.DigestHex(canonical)
	return report, nil
}
