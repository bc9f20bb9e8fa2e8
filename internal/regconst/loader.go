package regconst

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Version   string `yaml:"version"`
	OrderDate string `yaml:"order_date"`

	Weights struct {
		CPI string `yaml:"cpi"`
		WPI string `yaml:"wpi"`
	} `yaml:"weights"`

	GainSharing struct {
		Utility  string `yaml:"utility"`
		Consumer string `yaml:"consumer"`
	} `yaml:"gain_sharing"`

	LossSharing struct {
		Utility  string `yaml:"utility"`
		Consumer string `yaml:"consumer"`
	} `yaml:"loss_sharing"`

	Finance struct {
		BaseLendingRate string `yaml:"base_lending_rate"`
		Spread          string `yaml:"spread"`
	} `yaml:"finance"`

	ROERate string `yaml:"roe_rate"`

	TDLoss struct {
		Default    float64            `yaml:"default"`
		Trajectory map[string]float64 `yaml:"trajectory"`
	} `yaml:"td_loss"`

	ATCLossTarget float64 `yaml:"atc_loss_target"`

	Depreciation struct {
		Method         string `yaml:"method"`
		AssetLifeYears int    `yaml:"asset_life_years"`
	} `yaml:"depreciation"`

	GrowthProjection string `yaml:"growth_projection"`
}

// Load reads a constants version from a YAML file. Rates and shares are
// decimal strings (or "n/d" ratios) so no binary float noise leaks into a
// rule set.
func Load(path string) (*Set, error) {
	// #nosec G304 -- path comes from operator-configured constants paths.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse constants %s: %w", path, err)
	}

	p := Params{
		Version:            doc.Version,
		OrderDate:          doc.OrderDate,
		TDLossTrajectory:   doc.TDLoss.Trajectory,
		TDLossDefault:      doc.TDLoss.Default,
		ATCLossTarget:      doc.ATCLossTarget,
		DepreciationMethod: doc.Depreciation.Method,
		AssetLifeYears:     doc.Depreciation.AssetLifeYears,
	}

	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"weights.cpi", doc.Weights.CPI, &p.CPIWeight},
		{"weights.wpi", doc.Weights.WPI, &p.WPIWeight},
		{"gain_sharing.utility", doc.GainSharing.Utility, &p.UtilityGainShare},
		{"gain_sharing.consumer", doc.GainSharing.Consumer, &p.ConsumerGainShare},
		{"loss_sharing.utility", doc.LossSharing.Utility, &p.UtilityLossShare},
		{"loss_sharing.consumer", doc.LossSharing.Consumer, &p.ConsumerLossShare},
		{"finance.base_lending_rate", doc.Finance.BaseLendingRate, &p.BaseLendingRate},
		{"finance.spread", doc.Finance.Spread, &p.InterestSpread},
		{"roe_rate", doc.ROERate, &p.ROERate},
		{"growth_projection", doc.GrowthProjection, &p.GrowthProjection},
	} {
		value, err := parseRate(field.name, field.raw)
		if err != nil {
			return nil, fmt.Errorf("constants %s: %w", path, err)
		}
		*field.dst = value
	}

	return New(p)
}

// parseRate accepts a decimal string ("0.70") or a ratio ("2/3"). Ratios
// are divided at decimal precision, so the order's fractional shares stay
// exact to sixteen places.
func parseRate(name, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", name)
	}

	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err := decimal.NewFromString(strings.TrimSpace(num))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%s: invalid ratio numerator %q", name, num)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(den))
		if err != nil || d.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("%s: invalid ratio denominator %q", name, den)
		}
		return n.Div(d), nil
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: invalid decimal %q", name, raw)
	}
	return value, nil
}
