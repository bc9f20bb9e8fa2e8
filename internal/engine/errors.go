package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/money"
)

// ErrNotReproducible is returned by Reverify when a stored result no longer
// derives from its own input snapshot under this constants version.
var ErrNotReproducible = errors.New("result is not reproducible under this constants version")

// VerificationError is the zero-hallucination gate firing: an actual figure
// that no human has attested to must never enter a binding computation.
// This is a hard stop, not a warning; the petition must be re-submitted
// after review.
type VerificationError struct {
	Head   string
	Actual decimal.Decimal
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf(
		"zero-hallucination violation: actual value for %q (%s) has not been human-verified; re-submit after reviewer confirmation",
		e.Head, money.Format(e.Actual),
	)
}

// ActualMissingError marks a cost head whose actual figure has not been
// extracted yet. The line needs extraction and review, not computation.
type ActualMissingError struct {
	Head string
}

func (e *ActualMissingError) Error() string {
	return fmt.Sprintf("actual value for %q is not yet available: variance cannot be computed until extraction completes", e.Head)
}
