// Package engine implements the deterministic truing-up rule engine: the
// gain/loss-sharing computation, its validation gate, and the checksummed
// audit record each computation produces. The engine is stateless and pure;
// it holds an immutable constants set and performs no I/O, so a single
// Engine is safe for concurrent use.
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/crypto"
	"github.com/gridtariff/trueup/internal/money"
	"github.com/gridtariff/trueup/internal/regconst"
	"github.com/gridtariff/trueup/pkg/types"
)

// Clause identifiers cited on every output, consumed verbatim by filing
// generators downstream.
const (
	ClauseOMEscalation       = "Regulation 5.1 — O&M Escalation (CPI:WPI 70:30)"
	ClauseNormativeInterest  = "Regulation 6.3 — Normative Interest (SBI EBLR + 2%)"
	ClauseLineLossTrajectory = "Regulation 7.1 — T&D Loss Trajectory Compliance"
	ClauseControllableGain   = "Regulation 9.2 — Controllable Gains Sharing"
	ClauseControllableLoss   = "Regulation 9.3 — Controllable Loss Disallowance"
	ClauseUncontrollable     = "Regulation 9.4 — Uncontrollable Pass-Through"
)

// Advisory flags attached to result metadata.
const (
	FlagHighAnomaly    = "HIGH_ANOMALY_FLAG"
	FlagUnverifiedData = "UNVERIFIED_DATA_WARNING"
)

const highAnomalyThreshold = 0.8

// Engine computes truing-up variances under one constants version. The
// constants reference is fixed at construction; activating a newer rule
// version elsewhere never affects an engine already handed out.
type Engine struct {
	constants *regconst.Set
}

// New returns an engine bound to the given constants set. A nil set binds
// the built-in KSERC constants.
func New(constants *regconst.Set) *Engine {
	if constants == nil {
		constants = regconst.KSERC()
	}
	return &Engine{constants: constants}
}

// Version is the constants version every output is stamped with.
func (e *Engine) Version() string { return e.constants.Version() }

// Constants exposes the bound rule set.
func (e *Engine) Constants() *regconst.Set { return e.constants }

// TDLossTarget looks up the normative T&D loss target for a financial year.
func (e *Engine) TDLossTarget(financialYear string) float64 {
	return e.constants.TDLossTarget(financialYear)
}

// ComputeVariance applies the order's gain/loss sharing to one cost head:
// controllable gains split 2/3 utility, 1/3 consumer; controllable losses
// fully disallowed; uncontrollable variances passed through signed. The
// result carries a reproducible checksum over its stable fields.
//
// The zero-hallucination gate runs first: a non-nil actual that has not
// been human-verified is a hard failure. A nil actual is a distinct
// failure, ActualMissingError, since no variance can be computed for a
// figure that has not been extracted yet.
func (e *Engine) ComputeVariance(in types.CostInput) (types.AuditResult, error) {
	if in.Actual == nil {
		return types.AuditResult{}, &ActualMissingError{Head: in.Head}
	}
	if !in.IsHumanVerified {
		return types.AuditResult{}, &VerificationError{Head: in.Head, Actual: *in.Actual}
	}

	approved := money.Round(in.Approved)
	actual := money.Round(*in.Actual)
	variance := approved.Sub(actual)
	isGain := !variance.IsNegative()
	absVariance := variance.Abs()

	var (
		disallowed   = decimal.Zero
		passed       = decimal.Zero
		utilityShare = decimal.Zero
		reason       *string
		logic        string
		clause       string
	)

	switch in.Category {
	case types.CategoryControllable:
		if isGain {
			// Consumer share is rounded; the utility keeps the remainder so
			// the two parts reconstruct the variance exactly.
			consumer := money.Share(absVariance, e.constants.ConsumerGainShare())
			utilityShare = money.Remainder(absVariance, consumer)
			passed = consumer
			clause = ClauseControllableGain
			logic = fmt.Sprintf(
				"Controllable Gain: savings of %s shared 2/3 (%s) to Utility, 1/3 (%s) to Consumer.",
				money.Format(absVariance), money.Format(utilityShare), money.Format(consumer),
			)
		} else {
			disallowed = absVariance
			clause = ClauseControllableLoss
			text := fmt.Sprintf(
				"Controllable Loss of %s fully disallowed per %s — 100%% borne by Utility. No pass-through to consumers.",
				money.Format(absVariance), ClauseControllableLoss,
			)
			reason = &text
			logic = fmt.Sprintf(
				"Controllable Loss: excess of %s fully disallowed (100%% borne by Utility).",
				money.Format(absVariance),
			)
		}
	case types.CategoryUncontrollable:
		// Signed: a negative pass-through is an additional consumer burden.
		passed = variance
		clause = ClauseUncontrollable
		logic = fmt.Sprintf(
			"Uncontrollable Variance: %s fully passed through to Consumer (100%% recovery).",
			money.Format(variance),
		)
	default:
		return types.AuditResult{}, &types.InvalidEnumError{
			Field: "category",
			Value: string(in.Category),
			Valid: types.Categories(),
		}
	}

	flags := []string{}
	if in.AnomalyScore != nil && *in.AnomalyScore > highAnomalyThreshold {
		flags = append(flags, FlagHighAnomaly)
	}
	if !in.IsHumanVerified {
		flags = append(flags, FlagUnverifiedData)
	}

	direction := "Loss"
	if isGain {
		direction = "Gain"
	}

	result := types.AuditResult{
		Timestamp:             time.Now().UTC().Format(time.RFC3339),
		SBUCode:               in.SBUCode,
		Scenario:              fmt.Sprintf("%s %s Sharing", in.Head, direction),
		CostHead:              in.Head,
		VarianceCategory:      in.Category,
		ApprovedAmount:        approved,
		ActualAmount:          actual,
		VarianceAmount:        variance,
		DisallowedVariance:    disallowed,
		PassedThroughVariance: passed,
		UtilityShareAmount:    utilityShare,
		DisallowanceReason:    reason,
		LogicApplied:          logic,
		RegulatoryReference: types.RegulatoryRef{
			Clause:            clause,
			Description:       fmt.Sprintf("KSERC MYT Framework — %s %s", in.Category, in.Head),
			OrderDate:         e.constants.OrderDate(),
			RegulationVersion: e.constants.Version(),
		},
		Metadata: types.ResultMetadata{
			EngineVersion: e.constants.Version(),
			Flags:         flags,
		},
		InputSnapshot: in,
	}

	canonical, err := crypto.Canonicalize(result.StableView())
	if err != nil {
		return types.AuditResult{}, fmt.Errorf("canonicalize result for %q: %w", in.Head, err)
	}
	result.Checksum = crypto.DigestHex(canonical)
	return result, nil
}

// Reverify recomputes a result from its own input snapshot and reports
// whether the stored checksum still derives under this engine's constants.
// Consumers validating reproducibility run this against the constants
// version named in the result's regulatory reference.
func (e *Engine) Reverify(res types.AuditResult) error {
	recomputed, err := e.ComputeVariance(res.InputSnapshot)
	if err != nil {
		return err
	}
	if recomputed.Checksum != res.Checksum {
		return ErrNotReproducible
	}
	return nil
}
