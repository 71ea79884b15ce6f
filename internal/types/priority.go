// internal/types/priority.go
package types

import "fmt"

// PriorityLevel selects a named compute-budget profile for transaction
// submission.
type PriorityLevel string

const (
	PriorityLow     PriorityLevel = "low"
	PriorityMedium  PriorityLevel = "medium"
	PriorityHigh    PriorityLevel = "high"
	PriorityExtreme PriorityLevel = "extreme"

	// PriorityAuto keeps the profile's compute unit limit but takes the
	// unit price from recent network fee samples instead of a fixed bid.
	PriorityAuto PriorityLevel = "auto"
)

// PriorityProfile maps a level to concrete compute-budget numbers.
type PriorityProfile struct {
	ComputeUnits  uint32
	MicroLamports uint64 // fixed unit price; 0 defers to the fee estimator
}

// ParsePriorityLevel validates a config tag.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	switch PriorityLevel(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityExtreme, PriorityAuto:
		return PriorityLevel(s), nil
	default:
		return "", fmt.Errorf("unknown priority level: %q", s)
	}
}

// Profile returns the compute-budget numbers for the level. Unknown levels
// fall back to the medium profile.
func (l PriorityLevel) Profile() PriorityProfile {
	switch l {
	case PriorityLow:
		return PriorityProfile{ComputeUnits: 200_000, MicroLamports: 1_000}
	case PriorityMedium:
		return PriorityProfile{ComputeUnits: 400_000, MicroLamports: 5_000}
	case PriorityHigh:
		return PriorityProfile{ComputeUnits: 800_000, MicroLamports: 10_000}
	case PriorityExtreme:
		return PriorityProfile{ComputeUnits: 1_000_000, MicroLamports: 50_000}
	case PriorityAuto:
		return PriorityProfile{ComputeUnits: 600_000}
	default:
		return PriorityMedium.Profile()
	}
}
