// Package regconst holds the versioned regulatory constants the rule
// engine computes under. A Set is immutable after construction: a new
// tariff order means a new Set with a new version string, and old versions
// stay addressable so historical results re-derive exactly.
package regconst

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/crypto"
)

// Complementary pairs such as 2/3 and 1/3 are stored at decimal division
// precision, so their sum may miss 1.0 by a hair.
var sumTolerance = decimal.New(1, -9)

var one = decimal.New(1, 0)

// Params is the raw specification of a constants version.
type Params struct {
	Version   string
	OrderDate string

	CPIWeight decimal.Decimal
	WPIWeight decimal.Decimal

	UtilityGainShare  decimal.Decimal
	ConsumerGainShare decimal.Decimal
	UtilityLossShare  decimal.Decimal
	ConsumerLossShare decimal.Decimal

	BaseLendingRate decimal.Decimal
	InterestSpread  decimal.Decimal

	ROERate decimal.Decimal

	TDLossTrajectory map[string]float64
	TDLossDefault    float64
	ATCLossTarget    float64

	DepreciationMethod string
	AssetLifeYears     int
	GrowthProjection   decimal.Decimal
}

// Set is a constructor-validated, read-only constants version. Derived
// values are computed on read, never stored.
type Set struct {
	version   string
	orderDate string

	cpiWeight decimal.Decimal
	wpiWeight decimal.Decimal

	utilityGainShare  decimal.Decimal
	consumerGainShare decimal.Decimal
	utilityLossShare  decimal.Decimal
	consumerLossShare decimal.Decimal

	baseLendingRate decimal.Decimal
	interestSpread  decimal.Decimal

	roeRate decimal.Decimal

	tdLossTrajectory map[string]float64
	tdLossDefault    float64
	atcLossTarget    float64

	depreciationMethod string
	assetLifeYears     int
	growthProjection   decimal.Decimal

	hash string
}

// New builds and validates an immutable constants Set.
func New(p Params) (*Set, error) {
	if strings.TrimSpace(p.Version) == "" {
		return nil, fmt.Errorf("constants version is required")
	}
	if strings.TrimSpace(p.OrderDate) == "" {
		return nil, fmt.Errorf("order date is required")
	}
	if err := checkUnitSum("cpi/wpi weights", p.CPIWeight, p.WPIWeight); err != nil {
		return nil, err
	}
	if err := checkUnitSum("gain shares", p.UtilityGainShare, p.ConsumerGainShare); err != nil {
		return nil, err
	}
	if err := checkUnitSum("loss shares", p.UtilityLossShare, p.ConsumerLossShare); err != nil {
		return nil, err
	}
	if p.BaseLendingRate.IsNegative() || p.InterestSpread.IsNegative() {
		return nil, fmt.Errorf("lending rate and spread must be non-negative")
	}
	if p.AssetLifeYears <= 0 {
		return nil, fmt.Errorf("asset life must be positive, got %d", p.AssetLifeYears)
	}

	trajectory := make(map[string]float64, len(p.TDLossTrajectory))
	for year, target := range p.TDLossTrajectory {
		trajectory[year] = target
	}

	s := &Set{
		version:            p.Version,
		orderDate:          p.OrderDate,
		cpiWeight:          p.CPIWeight,
		wpiWeight:          p.WPIWeight,
		utilityGainShare:   p.UtilityGainShare,
		consumerGainShare:  p.ConsumerGainShare,
		utilityLossShare:   p.UtilityLossShare,
		consumerLossShare:  p.ConsumerLossShare,
		baseLendingRate:    p.BaseLendingRate,
		interestSpread:     p.InterestSpread,
		roeRate:            p.ROERate,
		tdLossTrajectory:   trajectory,
		tdLossDefault:      p.TDLossDefault,
		atcLossTarget:      p.ATCLossTarget,
		depreciationMethod: p.DepreciationMethod,
		assetLifeYears:     p.AssetLifeYears,
		growthProjection:   p.GrowthProjection,
	}

	canonical, err := crypto.Canonicalize(s.Snapshot())
	if err != nil {
		return nil, err
	}
	s.hash = crypto.DigestWithPrefix(canonical)
	return s, nil
}

func checkUnitSum(label string, a, b decimal.Decimal) error {
	if a.IsNegative() || b.IsNegative() {
		return fmt.Errorf("%s must be non-negative", label)
	}
	if a.Add(b).Sub(one).Abs().GreaterThan(sumTolerance) {
		return fmt.Errorf("%s must sum to 1.0, got %s", label, a.Add(b))
	}
	return nil
}

func (s *Set) Version() string   { return s.version }
func (s *Set) OrderDate() string { return s.orderDate }

// Hash is the sha256-prefixed digest of the canonical snapshot. Two sets
// with identical parameters hash identically.
func (s *Set) Hash() string { return s.hash }

func (s *Set) CPIWeight() decimal.Decimal { return s.cpiWeight }
func (s *Set) WPIWeight() decimal.Decimal { return s.wpiWeight }

func (s *Set) UtilityGainShare() decimal.Decimal  { return s.utilityGainShare }
func (s *Set) ConsumerGainShare() decimal.Decimal { return s.consumerGainShare }
func (s *Set) UtilityLossShare() decimal.Decimal  { return s.utilityLossShare }
func (s *Set) ConsumerLossShare() decimal.Decimal { return s.consumerLossShare }

func (s *Set) BaseLendingRate() decimal.Decimal { return s.baseLendingRate }
func (s *Set) InterestSpread() decimal.Decimal  { return s.interestSpread }

// NormativeInterestRate is derived from the base lending rate and spread at
// read time. It is never stored, so the two can never drift apart.
func (s *Set) NormativeInterestRate() decimal.Decimal {
	return s.baseLendingRate.Add(s.interestSpread).Round(6)
}

func (s *Set) ROERate() decimal.Decimal { return s.roeRate }

func (s *Set) TDLossDefault() float64 { return s.tdLossDefault }
func (s *Set) ATCLossTarget() float64 { return s.atcLossTarget }

func (s *Set) DepreciationMethod() string          { return s.depreciationMethod }
func (s *Set) AssetLifeYears() int                 { return s.assetLifeYears }
func (s *Set) GrowthProjection() decimal.Decimal   { return s.growthProjection }

// TDLossTarget returns the trajectory target for a financial year, or the
// configured default when the year falls outside the control period table.
// Accepts both "2024-25" and "FY_2024-25".
func (s *Set) TDLossTarget(financialYear string) float64 {
	if !strings.HasPrefix(financialYear, "FY_") {
		financialYear = "FY_" + financialYear
	}
	if target, ok := s.tdLossTrajectory[financialYear]; ok {
		return target
	}
	return s.tdLossDefault
}

// Snapshot returns the full parameter set in canonicalizable form. Rates
// are decimal strings and trajectory targets are formatted exactly, so the
// snapshot hashes deterministically.
func (s *Set) Snapshot() map[string]any {
	trajectory := make(map[string]any, len(s.tdLossTrajectory))
	for year, target := range s.tdLossTrajectory {
		trajectory[year] = formatRate(target)
	}
	return map[string]any{
		"version":                 s.version,
		"order_date":              s.orderDate,
		"cpi_weight":              s.cpiWeight.String(),
		"wpi_weight":              s.wpiWeight.String(),
		"utility_gain_share":      s.utilityGainShare.String(),
		"consumer_gain_share":     s.consumerGainShare.String(),
		"utility_loss_share":      s.utilityLossShare.String(),
		"consumer_loss_share":     s.consumerLossShare.String(),
		"base_lending_rate":       s.baseLendingRate.String(),
		"interest_spread":         s.interestSpread.String(),
		"normative_interest_rate": s.NormativeInterestRate().String(),
		"roe_rate":                s.roeRate.String(),
		"td_loss_trajectory":      trajectory,
		"td_loss_default":         formatRate(s.tdLossDefault),
		"atc_loss_target":         formatRate(s.atcLossTarget),
		"depreciation_method":     s.depreciationMethod,
		"asset_life_years":        s.assetLifeYears,
		"growth_projection":       s.growthProjection.String(),
	}
}

func formatRate(v float64) string {
	return decimal.NewFromFloat(v).String()
}
