package enums

import "fmt"

// TargetKind identifies which kind of bill a payment settles.
type TargetKind string

const (
	TargetKindReservation TargetKind = "reservation"
	TargetKindOrder       TargetKind = "order"
)

var validTargetKinds = []TargetKind{
	TargetKindReservation,
	TargetKindOrder,
}

// String implements fmt.Stringer.
func (t TargetKind) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TargetKind.
func (t TargetKind) IsValid() bool {
	for _, candidate := range validTargetKinds {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTargetKind converts raw input into a TargetKind.
func ParseTargetKind(value string) (TargetKind, error) {
	for _, candidate := range validTargetKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid target kind %q", value)
}
