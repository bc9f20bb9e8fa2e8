package regconst

import "github.com/shopspring/decimal"

// KSERCVersion identifies the built-in KSERC MYT 2022-27 constants.
const KSERCVersion = "KSERC-MYT-2022-27-v1.0"

// KSERC returns the built-in constants for the KSERC MYT 2022-27 control
// period, per the 30.06.2025 tariff order.
func KSERC() *Set { return kserc }

var kserc = mustNew(Params{
	Version:   KSERCVersion,
	OrderDate: "30.06.2025",

	// O&M escalation blend
	CPIWeight: decimal.New(70, -2),
	WPIWeight: decimal.New(30, -2),

	// Controllable efficiency gains: 2/3 utility, 1/3 consumer.
	// Controllable losses: borne entirely by the utility.
	UtilityGainShare:  decimal.New(2, 0).Div(decimal.New(3, 0)),
	ConsumerGainShare: decimal.New(1, 0).Div(decimal.New(3, 0)),
	UtilityLossShare:  decimal.New(1, 0),
	ConsumerLossShare: decimal.Zero,

	// SBI EBLR 8.50% plus 2% normative spread
	BaseLendingRate: decimal.New(850, -4),
	InterestSpread:  decimal.New(2, -2),

	// 15.5% pre-tax return on equity
	ROERate: decimal.New(155, -3),

	// Progressive T&D loss reduction over the control period
	TDLossTrajectory: map[string]float64{
		"FY_2022-23": 0.155,
		"FY_2023-24": 0.150,
		"FY_2024-25": 0.145,
		"FY_2025-26": 0.140,
		"FY_2026-27": 0.135,
	},
	TDLossDefault: 0.140,
	ATCLossTarget: 0.18,

	DepreciationMethod: "Straight-Line",
	AssetLifeYears:     25,
	GrowthProjection:   decimal.New(5, -2),
})

func mustNew(p Params) *Set {
	s, err := New(p)
	if err != nil {
		panic(err)
	}
	return s
}
