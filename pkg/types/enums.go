package types

// Category says whether a cost head is within the utility's managerial
// control. It decides which gain/loss-sharing clause applies.
type Category string

const (
	CategoryControllable   Category = "Controllable"
	CategoryUncontrollable Category = "Uncontrollable"
)

// Categories lists the accepted variance category labels.
func Categories() []string {
	return []string{string(CategoryControllable), string(CategoryUncontrollable)}
}

// ParseCategory coerces an external label into a Category. Unknown labels
// are rejected, never defaulted.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryControllable, CategoryUncontrollable:
		return Category(s), nil
	}
	return "", &InvalidEnumError{Field: "category", Value: s, Valid: Categories()}
}

// SBUCode identifies one of the three strategic business unit partitions.
// Generation, transmission and distribution figures are legally required to
// stay separate: one partition per computation.
type SBUCode string

const (
	SBUGeneration   SBUCode = "SBU-G"
	SBUTransmission SBUCode = "SBU-T"
	SBUDistribution SBUCode = "SBU-D"
)

// SBUCodes lists the accepted SBU partition labels.
func SBUCodes() []string {
	return []string{string(SBUGeneration), string(SBUTransmission), string(SBUDistribution)}
}

// ParseSBUCode coerces an external label into an SBUCode.
func ParseSBUCode(s string) (SBUCode, error) {
	switch SBUCode(s) {
	case SBUGeneration, SBUTransmission, SBUDistribution:
		return SBUCode(s), nil
	}
	return "", &InvalidEnumError{Field: "sbu_code", Value: s, Valid: SBUCodes()}
}
