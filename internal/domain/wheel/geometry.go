package wheel

import "math"

// Slice i spans [i*seg, (i+1)*seg) degrees, with 0° at 3 o'clock and angles
// growing clockwise. Rotating the wheel by R moves a point at angle a to
// a+R. The pointer sits at 12 o'clock, i.e. 270° (or -90°).
const (
	pointerAngle = 270.0

	// JitterFraction bounds the cosmetic offset from the slice center to
	// ±15% of a slice, well inside the slice so decoding is unaffected.
	JitterFraction = 0.15

	DefaultMinSpins = 5
	DefaultMaxSpins = 8
)

// SegmentAngle returns the width of one slice in degrees.
func SegmentAngle(sliceCount int) float64 {
	return 360 / float64(sliceCount)
}

// mod360 returns a in [0, 360).
func mod360(a float64) float64 {
	m := math.Mod(a, 360)
	if m < 0 {
		m += 360
	}
	if m >= 360 {
		m = 0
	}
	return m
}

// TargetRotation returns the absolute rotation, never below current, that
// lands the center of slice chosenIndex (plus a small jitter) under the
// pointer after between minSpins and maxSpins full turns.
func TargetRotation(chosenIndex, sliceCount int, current float64, minSpins, maxSpins int, rng RandomSource) (float64, error) {
	if sliceCount <= 0 {
		return current, ErrNoEnabledEntries
	}
	if chosenIndex < 0 || chosenIndex >= sliceCount {
		return current, ErrIndexOutOfRange
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	if minSpins < 0 {
		minSpins = 0
	}
	if maxSpins < minSpins {
		maxSpins = minSpins
	}

	seg := SegmentAngle(sliceCount)
	// Unrotated angle that must end up under the pointer. The +90 turns
	// the 3 o'clock slice convention into the 12 o'clock pointer.
	target := float64(chosenIndex)*seg + seg/2 + 90
	jitter := (rng.Float64()*2 - 1) * seg * JitterFraction
	target += jitter

	// A rotation R puts the point at angle a under the pointer when
	// a + R ≡ 270, i.e. R ≡ -(a + 90) ≡ -target.
	want := mod360(-target)
	delta := mod360(want - mod360(current))
	extra := minSpins + rng.IntN(maxSpins-minSpins+1)

	return current + float64(extra)*360 + delta, nil
}

// DecodeIndex returns the slice under the pointer for an absolute rotation.
// It inverts TargetRotation's placement.
func DecodeIndex(rotation float64, sliceCount int) (int, error) {
	if sliceCount <= 0 {
		return 0, ErrNoEnabledEntries
	}
	seg := SegmentAngle(sliceCount)
	angle := mod360(pointerAngle - rotation)
	idx := int(math.Floor(angle / seg))
	if idx >= sliceCount {
		idx = sliceCount - 1
	}
	return idx, nil
}
