package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/money"
)

// OMEscalation is the normative O&M escalation outcome, including the
// formula string for audit narrative.
type OMEscalation struct {
	BaseOM               decimal.Decimal `json:"base_om"`
	CPIChange            decimal.Decimal `json:"cpi_change"`
	WPIChange            decimal.Decimal `json:"wpi_change"`
	BlendedEscalationPct decimal.Decimal `json:"blended_escalation_pct"`
	EscalatedOM          decimal.Decimal `json:"escalated_om"`
	Formula              string          `json:"formula"`
	RegulatoryClause     string          `json:"regulatory_clause"`
}

// EscalateOM computes the normative O&M escalation from actual CPI and WPI
// index movements, blended at the order's weights:
// escalated = base × (1 + cpi_weight×Δcpi + wpi_weight×Δwpi), money-rounded.
func (e *Engine) EscalateOM(baseOM, cpiChange, wpiChange decimal.Decimal) OMEscalation {
	blended := e.constants.CPIWeight().Mul(cpiChange).Add(e.constants.WPIWeight().Mul(wpiChange))
	escalated := money.Round(baseOM.Mul(decimal.New(1, 0).Add(blended)))

	return OMEscalation{
		BaseOM:               baseOM,
		CPIChange:            cpiChange,
		WPIChange:            wpiChange,
		BlendedEscalationPct: money.RoundTo(blended.Mul(decimal.New(100, 0)), 4),
		EscalatedOM:          escalated,
		Formula: fmt.Sprintf("%s × (1 + (%s×%s + %s×%s))",
			baseOM, e.constants.CPIWeight(), cpiChange, e.constants.WPIWeight(), wpiChange),
		RegulatoryClause: ClauseOMEscalation,
	}
}

// NormativeInterest is the normative interest outcome on outstanding loans.
type NormativeInterest struct {
	OutstandingLoan   decimal.Decimal `json:"outstanding_loan"`
	BaseLendingRate   decimal.Decimal `json:"base_lending_rate"`
	Spread            decimal.Decimal `json:"spread"`
	NormativeRate     decimal.Decimal `json:"normative_rate"`
	NormativeInterest decimal.Decimal `json:"normative_interest"`
	Formula           string          `json:"formula"`
	RegulatoryClause  string          `json:"regulatory_clause"`
}

// ComputeNormativeInterest prices an outstanding loan at the derived
// normative rate (base lending rate plus spread), money-rounded.
func (e *Engine) ComputeNormativeInterest(outstandingLoan decimal.Decimal) NormativeInterest {
	rate := e.constants.NormativeInterestRate()

	return NormativeInterest{
		OutstandingLoan:   outstandingLoan,
		BaseLendingRate:   e.constants.BaseLendingRate(),
		Spread:            e.constants.InterestSpread(),
		NormativeRate:     rate,
		NormativeInterest: money.Round(outstandingLoan.Mul(rate)),
		Formula: fmt.Sprintf("%s × (%s + %s)",
			outstandingLoan, e.constants.BaseLendingRate(), e.constants.InterestSpread()),
		RegulatoryClause: ClauseNormativeInterest,
	}
}

// LineLossEfficiency compares an actual T&D loss level against the
// trajectory target for a financial year. Losses are decimal fractions
// (0.145 means 14.5%); the deviation is expressed in percentage points.
type LineLossEfficiency struct {
	FinancialYear     string          `json:"financial_year"`
	TargetLossPct     decimal.Decimal `json:"target_loss_percent"`
	ActualLossPct     decimal.Decimal `json:"actual_loss_percent"`
	DeviationPct      decimal.Decimal `json:"deviation_percent"`
	IsViolation       bool            `json:"is_violation"`
	PenaltyEstimateCr decimal.Decimal `json:"penalty_estimate_cr"`
	LogicApplied      string          `json:"logic_applied"`
	RegulatoryClause  string          `json:"regulatory_clause"`
}

// ComputeLineLossEfficiency evaluates a submitted line-loss level against
// the normative trajectory. When the target is exceeded, the penalty
// estimate prices the excess at 10 Cr per percentage point.
func (e *Engine) ComputeLineLossEfficiency(financialYear string, actualLoss decimal.Decimal) LineLossEfficiency {
	target := decimal.NewFromFloat(e.constants.TDLossTarget(financialYear))
	deviation := actualLoss.Sub(target).Mul(decimal.New(100, 0))
	violation := actualLoss.GreaterThan(target)

	penalty := decimal.Zero
	logic := fmt.Sprintf("Actual T&D loss %s within trajectory target %s for %s.",
		actualLoss, target, financialYear)
	if violation {
		penalty = money.Round(deviation.Mul(decimal.New(10, 0)))
		logic = fmt.Sprintf("Actual T&D loss %s exceeds trajectory target %s for %s by %s points.",
			actualLoss, target, financialYear, deviation)
	}

	return LineLossEfficiency{
		FinancialYear:     financialYear,
		TargetLossPct:     target,
		ActualLossPct:     actualLoss,
		DeviationPct:      deviation,
		IsViolation:       violation,
		PenaltyEstimateCr: penalty,
		LogicApplied:      logic,
		RegulatoryClause:  ClauseLineLossTrajectory,
	}
}
