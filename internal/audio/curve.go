package audio

import "strings"

// Curve shapes a fade between its start and target coefficient.
type Curve int

const (
	CurveLinear Curve = iota
	CurveSmoothstep
)

// ParseCurve maps a config name to a Curve; unknown names are linear.
func ParseCurve(s string) Curve {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "smooth", "smoothstep":
		return CurveSmoothstep
	default:
		return CurveLinear
	}
}

func (c Curve) String() string {
	if c == CurveSmoothstep {
		return "smoothstep"
	}
	return "linear"
}

// at maps fade progress t in [0,1] to interpolation weight in [0,1].
func (c Curve) at(t float64) float64 {
	if c == CurveSmoothstep {
		return Smoothstep(t)
	}
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	return t
}

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}
