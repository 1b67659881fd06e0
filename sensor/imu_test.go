package sensor

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/wire"
)

func newLowPrecisionIMUFrame(t *testing.T, frame uint32, gyro, acc [3]int16) []byte {
	t.Helper()
	buf := make([]byte, 4+6+6)
	binary.LittleEndian.PutUint32(buf[0:4], frame)
	for i, v := range gyro {
		binary.LittleEndian.PutUint16(buf[4+i*2:6+i*2], uint16(v))
	}
	for i, v := range acc {
		binary.LittleEndian.PutUint16(buf[10+i*2:12+i*2], uint16(v))
	}
	return buf
}

// A v0 low-precision frame with only raw gyro + raw accel enabled.
// Identity alignment and zero bias mean calibrated == raw.
func TestParseSampleLowPrecisionFrame(t *testing.T) {
	c := NewIMUComponent(1, 0, wire.V0, nil, nil)
	c.OutputEnables = 1<<bitRawAcc | 1<<bitRawGyro | 1<<bitLowPrecision

	payload := newLowPrecisionIMUFrame(t, 1, [3]int16{1000, 0, 0}, [3]int16{0, 0, 1000})

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), sample.Frame)
	assert.InDelta(t, 1.0*180.0/math.Pi, sample.RawGyr[0], 1e-6)
	assert.InDelta(t, 0, sample.RawGyr[1], 1e-9)
	assert.InDelta(t, 0, sample.RawGyr[2], 1e-9)
	assert.Equal(t, sample.RawGyr, sample.Gyr) // identity align, zero bias

	assert.InDelta(t, 0, sample.RawAcc[0], 1e-9)
	assert.InDelta(t, 0, sample.RawAcc[1], 1e-9)
	assert.InDelta(t, 1.0, sample.RawAcc[2], 1e-9)
	assert.Equal(t, sample.RawAcc, sample.Acc)
}

// With exactly one enable bit set, the parser consumes exactly that
// field's bytes and nothing else, regardless of what trailing garbage
// follows in the buffer.
func TestParseSampleConsumesOnlyEnabledFields(t *testing.T) {
	c := NewIMUComponent(1, 0, wire.V0, nil, nil)
	c.OutputEnables = 1 << bitRawAcc // only raw accelerometer enabled

	payload := make([]byte, 4+12+100) // frame + full-precision triplet + trailing garbage
	binary.LittleEndian.PutUint32(payload[0:4], 7)
	binary.LittleEndian.PutUint32(payload[4:8], math.Float32bits(1))
	binary.LittleEndian.PutUint32(payload[8:12], math.Float32bits(2))
	binary.LittleEndian.PutUint32(payload[12:16], math.Float32bits(3))

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1, 2, 3}, sample.RawAcc)
}

// With every enable bit clear, only the frame counter is consumed.
func TestParseSampleWithNoEnablesConsumesOnlyFrameCounter(t *testing.T) {
	c := NewIMUComponent(1, 0, wire.V0, nil, nil)
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 42)

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), sample.Frame)
	assert.Zero(t, sample.RawAcc)
}

// In low-precision mode Euler is compressed (int16/10000) like the other
// angular fields; reading it at full precision would consume 12 bytes
// instead of 6 and desynchronize every field after it. The trailing
// pressure field only decodes correctly if Euler consumed exactly 6 bytes.
func TestParseSampleLowPrecisionEulerKeepsTrailingFieldsAligned(t *testing.T) {
	c := NewIMUComponent(1, 0, wire.V0, nil, nil)
	c.OutputEnables = 1<<bitEuler | 1<<bitPressure | 1<<bitLowPrecision

	payload := make([]byte, 4+6+2)
	binary.LittleEndian.PutUint32(payload[0:4], 3)
	binary.LittleEndian.PutUint16(payload[4:6], uint16(int16(31416))) // 3.1416 rad
	binary.LittleEndian.PutUint16(payload[10:12], uint16(int16(10130)))

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.InDelta(t, 3.1416*180.0/math.Pi, sample.Euler[0], 1e-6)
	assert.InDelta(t, 0, sample.Euler[1], 1e-9)
	assert.InDelta(t, 0, sample.Euler[2], 1e-9)
	assert.InDelta(t, 101.3, sample.Pressure, 1e-9)
}

func TestParseSampleTruncatedEnabledFieldIsMessageCorrupt(t *testing.T) {
	c := NewIMUComponent(1, 0, wire.V0, nil, nil)
	c.OutputEnables = 1 << bitRawAcc

	payload := make([]byte, 4+4) // not enough for a full float triplet
	binary.LittleEndian.PutUint32(payload, 1)

	_, err := c.ParseSample(payload)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ProtocolMessageCorrupt))
}

// v1's single-gyroscope hardware variant routes its sole gyroscope to wire
// slot 1; Gyr0Primary=false must select gyr1 as the user-visible channel.
func TestParseSampleV1SelectsSecondaryGyroscopeSlot(t *testing.T) {
	c := NewIMUComponent(1, 0, wire.V1, nil, nil)
	c.OutputEnables = 1 << bitRawGyro
	c.Gyr0Primary = false

	payload := make([]byte, 4+12+12)
	binary.LittleEndian.PutUint32(payload[0:4], 1)
	// gyr0 = (0,0,0), gyr1 = (1,0,0) rad/s
	binary.LittleEndian.PutUint32(payload[16:20], math.Float32bits(1))

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.InDelta(t, 0, sample.Gyr0[0], 1e-9)
	assert.InDelta(t, 1*180.0/math.Pi, sample.Gyr1[0], 1e-6)
	assert.Equal(t, sample.Gyr1, sample.RawGyr)
}

// With several v1-only channels enabled together (the realistic device
// configuration), every field must be read in the exact order the firmware
// writes it: rawAcc, accCalibrated, rawGyr0, rawGyr1, gyr0BiasCalib,
// gyr1BiasCalib, gyr0AlignCalib, gyr1AlignCalib. A single field read with
// the wrong width or in the wrong position desynchronizes every field after
// it, so this test pins down distinct, recognizable values for each one.
func TestParseSampleV1MultipleChannelsStayInOrder(t *testing.T) {
	c := NewIMUComponent(1, 0, wire.V1, nil, nil)
	c.OutputEnables = 1<<bitRawAcc | 1<<bitAccCalibrated | 1<<bitRawGyro |
		1<<bitGyroBiasCalib | 1<<bitGyroAlignCalib
	c.Gyr0Primary = true

	putTriplet := func(buf []byte, off int, v [3]float64) {
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[off+i*4:off+i*4+4], math.Float32bits(float32(f)))
		}
	}

	rawAcc := [3]float64{1, 2, 3}
	accCalib := [3]float64{4, 5, 6}
	rawGyr0 := [3]float64{7, 8, 9}
	rawGyr1 := [3]float64{10, 11, 12}
	gyr0Bias := [3]float64{13, 14, 15}
	gyr1Bias := [3]float64{16, 17, 18}
	gyr0Align := [3]float64{19, 20, 21}
	gyr1Align := [3]float64{22, 23, 24}

	payload := make([]byte, 4+12*8)
	binary.LittleEndian.PutUint32(payload[0:4], 9)
	off := 4
	for _, v := range [][3]float64{rawAcc, accCalib, rawGyr0, rawGyr1, gyr0Bias, gyr1Bias, gyr0Align, gyr1Align} {
		putTriplet(payload, off, v)
		off += 12
	}

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)

	assert.Equal(t, rawAcc, sample.RawAcc)
	assert.Equal(t, accCalib, sample.AccCalibrated)
	assert.Equal(t, accCalib, sample.Acc, "v1 acc comes from the device-calibrated channel, not calib.Cache")
	assert.Equal(t, gyr0Bias, sample.GyroBiasCalib[0])
	assert.Equal(t, gyr1Bias, sample.GyroBiasCalib[1])
	assert.Equal(t, gyr0Align, sample.GyroAlignCalib[0])
	assert.Equal(t, gyr1Align, sample.GyroAlignCalib[1])
	assert.Equal(t, gyr0Align, sample.Gyr, "Gyr0Primary selects slot 0 of the align-calib channel")

	for i, f := range rawGyr0 {
		assert.InDelta(t, f*180.0/math.Pi, sample.Gyr0[i], 1e-4)
	}
	for i, f := range rawGyr1 {
		assert.InDelta(t, f*180.0/math.Pi, sample.Gyr1[i], 1e-4)
	}
}
