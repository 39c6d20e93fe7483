package call

import "math"

// FixedPointScale keeps three decimal digits, the unit the hwmon style
// consumers expect for temperatures (millidegrees).
const FixedPointScale = 1000

// ToFixed converts v to fixed point rounding half up. A negative v that
// rounds to zero becomes -1 so the sign survives the conversion.
func ToFixed(v float64) int64 {
	fixed := int64(math.Floor(v*FixedPointScale + 0.5))
	if v < 0 && fixed == 0 {
		return -1
	}
	return fixed
}

// FromFixed is the inverse of ToFixed, up to the three kept digits.
func FromFixed(v int64) float64 {
	return float64(v) / FixedPointScale
}
