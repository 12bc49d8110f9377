package domain

import "fmt"

// Defaults carried over from the settings table seed.
const (
	DefaultUsableFraction   = 0.9
	DefaultDomesticFraction = 0.19
	DefaultOverseasFraction = 0.27
)

// AllocationSettings controls how much of the account a plan may use.
type AllocationSettings struct {
	Usable   float64 `json:"available"` // Fraction of total value eligible for rebalancing, (0, 1]
	Domestic float64 `json:"domestic"`  // Fraction of usable value for the home market
	Overseas float64 `json:"overseas"`  // Fraction of usable value for foreign markets
}

// DefaultAllocationSettings returns the seeded defaults.
func DefaultAllocationSettings() AllocationSettings {
	return AllocationSettings{
		Usable:   DefaultUsableFraction,
		Domestic: DefaultDomesticFraction,
		Overseas: DefaultOverseasFraction,
	}
}

// Validate enforces the fraction invariants.
func (s AllocationSettings) Validate() error {
	if !(s.Usable > 0 && s.Usable <= 1) {
		return &ConfigurationError{Field: "available", Reason: fmt.Sprintf("usable fraction must be in (0, 1], got %v", s.Usable)}
	}
	if s.Domestic < 0 || s.Domestic > 1 {
		return &ConfigurationError{Field: "domestic", Reason: fmt.Sprintf("domestic fraction must be in [0, 1], got %v", s.Domestic)}
	}
	if s.Overseas < 0 || s.Overseas > 1 {
		return &ConfigurationError{Field: "overseas", Reason: fmt.Sprintf("overseas fraction must be in [0, 1], got %v", s.Overseas)}
	}
	if s.Domestic+s.Overseas >= 1 {
		return &ConfigurationError{Field: "domestic+overseas", Reason: fmt.Sprintf("market fractions must sum to less than 1, got %v", s.Domestic+s.Overseas)}
	}
	return nil
}

// MarketFraction returns the fraction allocated to the target.
func (s AllocationSettings) MarketFraction(t Target) float64 {
	if t == TargetDomestic {
		return s.Domestic
	}
	return s.Overseas
}
