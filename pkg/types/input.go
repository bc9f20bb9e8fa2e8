package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/money"
)

// CostInput is one cost-head line of a truing-up petition: the approved
// figure from the tariff order against the actual figure from the audited
// accounts. A nil Actual means "not yet extracted". Inputs are immutable
// once built and are never persisted by the engine itself.
type CostInput struct {
	Head            string           `json:"head"`
	Category        Category         `json:"category"`
	SBUCode         SBUCode          `json:"sbu_code"`
	Approved        decimal.Decimal  `json:"approved"`
	Actual          *decimal.Decimal `json:"actual"`
	AnomalyScore    *float64         `json:"anomaly_score,omitempty"`
	EvidencePage    *int             `json:"evidence_page,omitempty"`
	IsHumanVerified bool             `json:"is_human_verified"`
}

// CostInputParams carries the raw, still-untrusted submission for one line.
type CostInputParams struct {
	Head            string
	Category        string
	SBUCode         string
	Approved        decimal.Decimal
	Actual          *decimal.Decimal
	AnomalyScore    *float64
	EvidencePage    *int
	IsHumanVerified bool
}

// NewCostInput validates and freezes one cost-head line. Category and SBU
// labels are coerced into their closed enums here; malformed labels fail
// loudly rather than defaulting.
func NewCostInput(p CostInputParams) (CostInput, error) {
	if strings.TrimSpace(p.Head) == "" {
		return CostInput{}, fmt.Errorf("cost head is required")
	}
	category, err := ParseCategory(p.Category)
	if err != nil {
		return CostInput{}, err
	}
	sbu, err := ParseSBUCode(p.SBUCode)
	if err != nil {
		return CostInput{}, err
	}

	in := CostInput{
		Head:            p.Head,
		Category:        category,
		SBUCode:         sbu,
		Approved:        p.Approved,
		IsHumanVerified: p.IsHumanVerified,
	}
	if p.Actual != nil {
		actual := *p.Actual
		in.Actual = &actual
	}
	if p.AnomalyScore != nil {
		score := *p.AnomalyScore
		in.AnomalyScore = &score
	}
	if p.EvidencePage != nil {
		page := *p.EvidencePage
		in.EvidencePage = &page
	}
	return in, nil
}

// StableView returns the checksum payload for the input snapshot. Monetary
// amounts enter canonical form as fixed-precision strings; raw floats are
// not representable there.
func (c CostInput) StableView() map[string]any {
	view := map[string]any{
		"head":              c.Head,
		"category":          string(c.Category),
		"sbu_code":          string(c.SBUCode),
		"approved":          money.Format(c.Approved),
		"is_human_verified": c.IsHumanVerified,
	}
	if c.Actual != nil {
		view["actual"] = money.Format(*c.Actual)
	}
	if c.AnomalyScore != nil {
		view["anomaly_score"] = strconv.FormatFloat(*c.AnomalyScore, 'f', -1, 64)
	}
	if c.EvidencePage != nil {
		view["evidence_page"] = *c.EvidencePage
	}
	return view
}
