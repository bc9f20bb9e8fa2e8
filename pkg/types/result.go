package types

import (
	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/money"
)

// RegulatoryRef cites the clause a computation was performed under.
// Downstream filing generators consume these fields verbatim.
type RegulatoryRef struct {
	Clause            string `json:"clause"`
	Description       string `json:"description"`
	OrderDate         string `json:"order_date"`
	RegulationVersion string `json:"regulation_version"`
}

// ResultMetadata carries the engine version and advisory flags.
type ResultMetadata struct {
	EngineVersion string   `json:"engine_version"`
	Flags         []string `json:"flags"`
}

// AuditResult is the fully traceable outcome of one variance computation.
// The checksum is a bare SHA-256 hex digest over the stable view; it is
// reproducible bit for bit from the non-volatile fields.
type AuditResult struct {
	Timestamp             string          `json:"timestamp"`
	Checksum              string          `json:"checksum"`
	SBUCode               SBUCode         `json:"sbu_code"`
	Scenario              string          `json:"scenario"`
	CostHead              string          `json:"cost_head"`
	VarianceCategory      Category        `json:"variance_category"`
	ApprovedAmount        decimal.Decimal `json:"approved_amount"`
	ActualAmount          decimal.Decimal `json:"actual_amount"`
	VarianceAmount        decimal.Decimal `json:"variance_amount"`
	DisallowedVariance    decimal.Decimal `json:"disallowed_variance"`
	PassedThroughVariance decimal.Decimal `json:"passed_through_variance"`
	UtilityShareAmount    decimal.Decimal `json:"utility_share_amount"`
	DisallowanceReason    *string         `json:"disallowance_reason"`
	LogicApplied          string          `json:"logic_applied"`
	RegulatoryReference   RegulatoryRef   `json:"regulatory_reference"`
	Metadata              ResultMetadata  `json:"metadata"`
	InputSnapshot         CostInput       `json:"input_snapshot"`
}

// StableView returns the checksum payload. It deliberately excludes the
// timestamp and the checksum itself, so identical computations rehash to
// identical digests regardless of wall-clock time.
func (r AuditResult) StableView() map[string]any {
	flags := r.Metadata.Flags
	if flags == nil {
		flags = []string{}
	}
	return map[string]any{
		"sbu_code":                string(r.SBUCode),
		"scenario":                r.Scenario,
		"cost_head":               r.CostHead,
		"variance_category":       string(r.VarianceCategory),
		"approved_amount":         money.Format(r.ApprovedAmount),
		"actual_amount":           money.Format(r.ActualAmount),
		"variance_amount":         money.Format(r.VarianceAmount),
		"disallowed_variance":     money.Format(r.DisallowedVariance),
		"passed_through_variance": money.Format(r.PassedThroughVariance),
		"utility_share_amount":    money.Format(r.UtilityShareAmount),
		"disallowance_reason":     r.DisallowanceReason,
		"logic_applied":           r.LogicApplied,
		"regulatory_reference": map[string]any{
			"clause":             r.RegulatoryReference.Clause,
			"description":        r.RegulatoryReference.Description,
			"order_date":         r.RegulatoryReference.OrderDate,
			"regulation_version": r.RegulatoryReference.RegulationVersion,
		},
		"metadata": map[string]any{
			"engine_version": r.Metadata.EngineVersion,
			"flags":          flags,
		},
		"input_snapshot": r.InputSnapshot.StableView(),
	}
}

// PetitionReport is the consolidated outcome of a whole petition: every
// line item plus money-rounded totals and a batch-level checksum.
type PetitionReport struct {
	ReportID        string          `json:"report_id"`
	EngineVersion   string          `json:"engine_version"`
	Timestamp       string          `json:"timestamp"`
	FinancialYear   string          `json:"financial_year"`
	TotalItems      int             `json:"total_items_processed"`
	TotalRevenueGap decimal.Decimal `json:"total_revenue_gap"`
	TotalDisallowed decimal.Decimal `json:"total_disallowed"`
	LineItems       []AuditResult   `json:"line_items"`
	BatchChecksum   string          `json:"batch_checksum"`
}

// StableView returns the batch checksum payload. Line items contribute
// through their own checksums, which are already timestamp-free; the
// report's timestamp and report_id are volatile and excluded.
func (p PetitionReport) StableView() map[string]any {
	checksums := make([]string, 0, len(p.LineItems))
	for _, item := range p.LineItems {
		checksums = append(checksums, item.Checksum)
	}
	return map[string]any{
		"engine_version":        p.EngineVersion,
		"financial_year":        p.FinancialYear,
		"total_items_processed": p.TotalItems,
		"total_revenue_gap":     money.Format(p.TotalRevenueGap),
		"total_disallowed":      money.Format(p.TotalDisallowed),
		"line_item_checksums":   checksums,
	}
}
