// Package calib implements the calibration pipeline: the alignment-matrix
// and bias cache shared between the property-change callback (writer) and
// the sample parser (reader), plus the scalar math the parser needs
// (quaternion-to-rotation-matrix conversion, sampling-rate rounding).
package calib

import "math"

// QuaternionToRotationMatrix converts a unit quaternion (w, x, y, z) into
// its 3x3 rotation matrix using the normalized form: dividing explicitly by
// the squared norm rather than assuming it is already 1. For a true unit
// quaternion both forms agree, but this is the exact evaluation order
// firmware's scalar math library uses and is kept rather than the textbook
// shortcut.
func QuaternionToRotationMatrix(w, x, y, z float64) [3][3]float64 {
	sqw := w * w
	sqx := x * x
	sqy := y * y
	sqz := z * z

	invs := 1.0 / (sqx + sqy + sqz + sqw)

	var m [3][3]float64
	m[0][0] = (sqx - sqy - sqz + sqw) * invs
	m[1][1] = (-sqx + sqy - sqz + sqw) * invs
	m[2][2] = (-sqx - sqy + sqz + sqw) * invs

	tmp1 := x * y
	tmp2 := z * w
	m[1][0] = 2.0 * (tmp1 + tmp2) * invs
	m[0][1] = 2.0 * (tmp1 - tmp2) * invs

	tmp1 = x * z
	tmp2 = y * w
	m[2][0] = 2.0 * (tmp1 - tmp2) * invs
	m[0][2] = 2.0 * (tmp1 + tmp2) * invs

	tmp1 = y * z
	tmp2 = x * w
	m[2][1] = 2.0 * (tmp1 + tmp2) * invs
	m[1][2] = 2.0 * (tmp1 - tmp2) * invs

	return m
}

// EulerFromQuaternionV0Quirk is the v0 scalar math library's
// quaternion-to-Euler conversion. It is never called from the live parser
// path (Euler comes straight off the wire at field 7 in v0), but is kept
// and tested because it preserves a known quirk: in the gimbal-lock branch
// (pitch at +/-90 degrees) yaw comes out shifted by +/-180 degrees rather
// than the textbook-clean value. Do not "fix" the case split.
func EulerFromQuaternionV0Quirk(w, x, y, z float64) (rollDeg, pitchDeg, yawDeg float64) {
	const rad2deg = 180.0 / math.Pi

	sinp := 2.0 * (w*y - z*x)
	if sinp >= 1.0 || sinp <= -1.0 {
		pitchDeg = math.Copysign(90.0, sinp)
		yawDeg = 2.0*math.Atan2(x, w)*rad2deg + math.Copysign(180.0, sinp)
		rollDeg = 0.0
		return
	}

	sinrCosp := 2.0 * (w*x + y*z)
	cosrCosp := 1.0 - 2.0*(x*x+y*y)
	rollDeg = math.Atan2(sinrCosp, cosrCosp) * rad2deg

	pitchDeg = math.Asin(sinp) * rad2deg

	sinyCosp := 2.0 * (w*z + x*y)
	cosyCosp := 1.0 - 2.0*(y*y+z*z)
	yawDeg = math.Atan2(sinyCosp, cosyCosp) * rad2deg
	return
}

// supportedSamplingRates is the firmware-supported rate ladder, ascending.
var supportedSamplingRates = []int{5, 10, 25, 50, 100, 200, 400, 800}

// RoundSamplingRate rounds a requested sampling rate (Hz) down to the
// nearest firmware-supported rate; any request above 800 is capped at 800,
// and any request below 5 gives 5, the lowest supported rate.
func RoundSamplingRate(requested int) int {
	if requested >= 800 {
		return 800
	}
	best := supportedSamplingRates[0]
	for _, r := range supportedSamplingRates {
		if r <= requested {
			best = r
		}
	}
	return best
}

// SamplingPeriodV0 returns the per-frame time step for protocol v0: 0.00125s
// above 400Hz, 0.0025s otherwise.
func SamplingPeriodV0(rate int) float64 {
	if rate > 400 {
		return 0.00125
	}
	return 0.0025
}

// SamplingPeriodV1 is fixed regardless of configured rate.
const SamplingPeriodV1 = 0.002

// GNSSSamplingPeriod is fixed, matching the IMU v1 period.
const GNSSSamplingPeriod = 0.002
