package sensor

import (
	"encoding/binary"
	"math"

	"github.com/bramburn/motionlink/errs"
)

func decodeFloat32LE(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func decodeUint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func decodeInt32LE(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func decodeUint16LE(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

func decodeInt16LE(b []byte) int16 {
	return int16(binary.LittleEndian.Uint16(b))
}

// fixedPoint decodes a scaled integer into a double: value * 10^exponent,
// the GNSS wire encoding for latitude/longitude/height/accuracy/heading
// fields.
func fixedPoint(value int32, exponent int) float64 {
	return float64(value) * math.Pow(10, float64(exponent))
}

// compressedTriplet reads three consecutive int16 values, each divided by
// denom, the "low precision" wire encoding used for gyroscope (1000),
// accelerometer (1000), magnetometer (100), and Euler (10000) fields.
// Quaternions use compressedQuad.
func compressedTriplet(b []byte, denom float64) ([3]float64, int, error) {
	if len(b) < 6 {
		return [3]float64{}, 0, errs.New(errs.ProtocolMessageCorrupt, "truncated compressed triplet")
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = float64(decodeInt16LE(b[i*2:i*2+2])) / denom
	}
	return out, 6, nil
}

// fullTriplet reads three consecutive float32 values.
func fullTriplet(b []byte) ([3]float64, int, error) {
	if len(b) < 12 {
		return [3]float64{}, 0, errs.New(errs.ProtocolMessageCorrupt, "truncated float triplet")
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = float64(decodeFloat32LE(b[i*4 : i*4+4]))
	}
	return out, 12, nil
}

// compressedQuad reads four consecutive int16 values divided by denom.
func compressedQuad(b []byte, denom float64) ([4]float64, int, error) {
	if len(b) < 8 {
		return [4]float64{}, 0, errs.New(errs.ProtocolMessageCorrupt, "truncated compressed quad")
	}
	var out [4]float64
	for i := 0; i < 4; i++ {
		out[i] = float64(decodeInt16LE(b[i*2:i*2+2])) / denom
	}
	return out, 8, nil
}

// fullQuad reads four consecutive float32 values.
func fullQuad(b []byte) ([4]float64, int, error) {
	if len(b) < 16 {
		return [4]float64{}, 0, errs.New(errs.ProtocolMessageCorrupt, "truncated float quad")
	}
	var out [4]float64
	for i := 0; i < 4; i++ {
		out[i] = float64(decodeFloat32LE(b[i*4 : i*4+4]))
	}
	return out, 16, nil
}

func readFloat(b []byte) (float64, int, error) {
	if len(b) < 4 {
		return 0, 0, errs.New(errs.ProtocolMessageCorrupt, "truncated float field")
	}
	return float64(decodeFloat32LE(b[:4])), 4, nil
}
