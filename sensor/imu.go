package sensor

import (
	"encoding/binary"
	"math"

	"github.com/bramburn/motionlink/calib"
	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/wire"
)

// Output-enable bit positions. These are the firmware's own assignments
// and are not documented anywhere else; treat them as fixed.
const (
	bitPressure     = 9
	bitRawMag       = 10
	bitRawAcc       = 11
	bitRawGyro      = 12
	bitTemperature  = 13
	bitHeave        = 14
	bitAngularVel   = 16
	bitEuler        = 17
	bitQuaternion   = 18
	bitAltitude     = 19
	bitLinearAcc    = 21
	bitLowPrecision = 22

	// v1-only extension bits. Firmware does not document positions for
	// these channels the way it does the v0 bits, so this client assigns
	// them the next free positions above the documented v0 range (see
	// DESIGN.md). They are only ever consulted when c.version == wire.V1.
	bitAccCalibrated  = 23
	bitGyroBiasCalib  = 24
	bitGyroAlignCalib = 25
	bitMagCalibrated  = 26
)

const (
	gyroCompressedDenom  = 1000.0
	accCompressedDenom   = 1000.0
	magCompressedDenom   = 100.0
	quatCompressedDenom  = 10000.0
	eulerCompressedDenom = 10000.0

	pressureCompressedDenom = 100.0
	altitudeCompressedDenom = 10.0
	tempCompressedDenom     = 100.0
	heaveCompressedDenom    = 1000.0

	rad2deg = 180.0 / math.Pi
)

func bitSet(mask uint32, bit int) bool {
	return mask&(1<<uint(bit)) != 0
}

// IMUComponent implements Component for the IMU sub-device: the wire
// sample parser, the output-enable-driven field layout, and the
// calibration cache wiring.
type IMUComponent struct {
	baseComponent

	Cache         *calib.Cache
	OutputEnables uint32
	SamplingRate  int  // Hz, rounded per calib.RoundSamplingRate
	Gyr0Primary   bool // v1 single-gyroscope hardware variant

	onSample imuEventFn
}

// NewIMUComponent constructs an IMU component bound to addr/handle on ch,
// speaking version v.
func NewIMUComponent(addr, handle uint8, v wire.Version, ch requester, onSample imuEventFn) *IMUComponent {
	return &IMUComponent{
		baseComponent: baseComponent{addr: addr, handle: handle, version: v, ch: ch, props: NewTable()},
		Cache:         calib.NewCache(),
		SamplingRate:  100,
		Gyr0Primary:   true,
		onSample:      onSample,
	}
}

func (c *IMUComponent) Handle() uint8 { return c.handle }
func (c *IMUComponent) Kind() Kind    { return KindIMU }

// Init performs the IMU init sequence. v0 disables streaming, reads and
// caches the six calibration quantities with live-update subscriptions,
// reads the output-enable bitmask, then re-enables streaming. v1 skips the
// calibration read (applied device-side, pre-wire); it reads the
// Gyr0Primary selector and the output-enable bitmask, then re-enables
// streaming.
func (c *IMUComponent) Init() error {
	if c.version == wire.V0 {
		if err := c.setStreaming(false); err != nil {
			return err
		}
		if err := c.readCalibrations(); err != nil {
			return err
		}
	} else if err := c.readGyr0Primary(); err != nil {
		return err
	}

	// Output enables gate the sample parser's field layout under
	// both protocol versions; v0's init sequence happens to read them
	// while streaming is disabled, v1 reads them alongside re-enabling
	// streaming since its calibration is device-side and needs no
	// quiescent window.
	if err := c.readOutputEnables(); err != nil {
		return err
	}
	return c.setStreaming(true)
}

// readGyr0Primary reads the v1-only boolean selecting which wire gyroscope
// slot (0 or 1) populates the user-visible Gyr field, registering a
// subscription so a later application write stays coherent. Hardware with a
// single gyroscope wires it to slot 1.
func (c *IMUComponent) readGyr0Primary() error {
	resp, err := c.ch.SendAndWaitForResult(c.addr, c.handle, c.version, wire.FnGetProperty, encodeProp(PropGyr0Primary, nil), requestTimeout)
	if err != nil {
		return err
	}
	if len(resp) < 1 {
		return errs.New(errs.ProtocolMessageCorrupt, "gyr0-primary response too short")
	}
	c.Gyr0Primary = resp[0] != 0
	c.props.Subscribe(PropGyr0Primary, func(_ PropertyKey, value []byte) {
		if len(value) > 0 {
			c.Gyr0Primary = value[0] != 0
		}
	})
	return nil
}

func (c *IMUComponent) setStreaming(enabled bool) error {
	payload := []byte{0}
	if enabled {
		payload[0] = 1
	}
	return c.ch.SendAndWaitForAck(c.addr, c.handle, c.version, wire.FnSetProperty, encodeProp(PropStreamingEnable, payload), requestTimeout)
}

func encodeProp(key PropertyKey, value []byte) []byte {
	out := make([]byte, 2+len(value))
	binary.LittleEndian.PutUint16(out, uint16(key))
	copy(out[2:], value)
	return out
}

func (c *IMUComponent) readOutputEnables() error {
	resp, err := c.ch.SendAndWaitForResult(c.addr, c.handle, c.version, wire.FnGetProperty, encodeProp(PropOutputEnables, nil), requestTimeout)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return errs.New(errs.ProtocolMessageCorrupt, "output-enable response too short")
	}
	c.OutputEnables = decodeUint32LE(resp)
	c.props.Subscribe(PropOutputEnables, func(_ PropertyKey, value []byte) {
		if len(value) >= 4 {
			c.OutputEnables = decodeUint32LE(value)
		}
	})
	c.props.Notify(PropOutputEnables, resp)
	return nil
}

// SetOutputEnables writes the whole output-enable bitmask in one property
// write and keeps the parser's local copy coherent through the change
// subscription registered at init. The bit assignments are the firmware's
// (pressure=9, raw magnetometer=10, and so on).
func (c *IMUComponent) SetOutputEnables(mask uint32) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, mask)
	return c.SetRaw(PropOutputEnables, payload)
}

// SetSamplingRate requests a new sampling rate, rounding down to the nearest
// firmware-supported rate first. The rounded rate, not the requested one, is
// written to the device and used for timestamp derivation from then on.
func (c *IMUComponent) SetSamplingRate(requestedHz int) (int, error) {
	if requestedHz < 1 {
		return 0, errs.New(errs.InvalidArgument, "sampling rate must be positive")
	}
	rate := calib.RoundSamplingRate(requestedHz)
	if err := c.SetInt32(PropSamplingRate, int32(rate)); err != nil {
		return 0, err
	}
	c.SamplingRate = rate
	return rate, nil
}

// SetLowPrecisionMode toggles the v0 compressed int16 wire encoding. It is
// always issued on the SetDataMode function code, and mirrors the change
// into bit 22 of the local output-enable mask so the parser switches
// decoding immediately.
func (c *IMUComponent) SetLowPrecisionMode(enabled bool) error {
	if c.version != wire.V0 {
		return errs.New(errs.ProtocolUnsupportedFunction, "precision data mode is a v0 command")
	}
	payload := []byte{0}
	if enabled {
		payload[0] = 1
	}
	if err := c.command(wire.FnSetDataMode, payload); err != nil {
		return err
	}
	mask := c.OutputEnables &^ (1 << bitLowPrecision)
	if enabled {
		mask |= 1 << bitLowPrecision
	}
	c.OutputEnables = mask
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, mask)
	c.props.Notify(PropOutputEnables, raw)
	return nil
}

// StartGyroCalibration asks firmware to begin its stationary gyroscope
// bias estimation. The device must be kept still until it acks completion
// through a bias property notification.
func (c *IMUComponent) StartGyroCalibration() error {
	return c.command(wire.FnStartGyroCalibration, nil)
}

// ResetOrientationOffset zeroes the device's orientation offset so the
// current pose reads as identity.
func (c *IMUComponent) ResetOrientationOffset() error {
	return c.command(wire.FnResetOrientationOffset, nil)
}

// readCalibrations reads each of the six calibration properties once and
// registers a change subscription so a later application write through
// SetRaw keeps the cache coherent without a re-read. Values the device
// changes on its own are not picked up until the next Init.
func (c *IMUComponent) readCalibrations() error {
	type step struct {
		key    PropertyKey
		isMat  bool
		applyM func([3][3]float64)
		applyV func([3]float64)
	}
	steps := []step{
		{key: PropAccelAlign, isMat: true, applyM: c.Cache.SetAccelAlign},
		{key: PropGyroAlign, isMat: true, applyM: c.Cache.SetGyroAlign},
		{key: PropMagSoftIron, isMat: true, applyM: c.Cache.SetMagSoftIron},
		{key: PropAccelBias, applyV: c.Cache.SetAccelBias},
		{key: PropGyroBias, applyV: c.Cache.SetGyroBias},
		{key: PropMagHardIron, applyV: c.Cache.SetMagHardIron},
	}

	for _, s := range steps {
		resp, err := c.ch.SendAndWaitForResult(c.addr, c.handle, c.version, wire.FnGetProperty, encodeProp(s.key, nil), requestTimeout)
		if err != nil {
			return err
		}
		if s.isMat {
			m, err := decodeFloat9(resp)
			if err != nil {
				return err
			}
			s.applyM(m)
		} else {
			v, err := decodeFloat3(resp)
			if err != nil {
				return err
			}
			s.applyV(v)
		}
		key := s.key
		applyM, applyV, isMat := s.applyM, s.applyV, s.isMat
		c.props.Subscribe(key, func(_ PropertyKey, value []byte) {
			if isMat {
				if m, err := decodeFloat9(value); err == nil {
					applyM(m)
				}
				return
			}
			if v, err := decodeFloat3(value); err == nil {
				applyV(v)
			}
		})
	}
	return nil
}

func (c *IMUComponent) Close() {}

// HandleEventFrame parses an IMU sample event frame and dispatches it to
// the registered callback. Parse errors are dropped without being logged,
// matching the reader-task contract that a single bad frame never poisons
// the stream.
func (c *IMUComponent) HandleEventFrame(f wire.Frame) {
	if c.onSample == nil {
		return
	}
	sample, err := c.ParseSample(f.Payload)
	if err != nil {
		return
	}
	c.onSample(sample)
}

// ParseSample decodes payload into a fully populated, calibrated IMU
// sample using the component's current output-enable bitmask and
// calibration snapshot. Field order is fixed; fields disabled by the
// bitmask consume zero bytes.
func (c *IMUComponent) ParseSample(payload []byte) (model.IMUSample, error) {
	var s model.IMUSample
	if len(payload) < 4 {
		return s, errs.New(errs.ProtocolMessageCorrupt, "imu sample shorter than frame counter")
	}
	s.Component = int(c.handle)
	s.Frame = decodeUint32LE(payload[:4])
	b := payload[4:]

	snap := c.Cache.Snapshot()
	compressed := bitSet(c.OutputEnables, bitLowPrecision) && c.version == wire.V0

	readTriplet := func(denom float64) ([3]float64, int, error) {
		if compressed {
			return compressedTriplet(b, denom)
		}
		return fullTriplet(b)
	}

	if c.version == wire.V1 {
		// v1's field order follows the original IG1 component's
		// parseSensorData exactly: rawAcc, accCalibrated, rawGyr0, rawGyr1,
		// gyr0BiasCalib, gyr1BiasCalib, gyr0AlignCalib, gyr1AlignCalib,
		// rawMag, magCalib, then the common orientation/environmental
		// fields. Calibration for v1 happens device-side and arrives
		// pre-wire on its own channel; the host never runs it through
		// calib.Cache the way v0 does.
		if bitSet(c.OutputEnables, bitRawAcc) {
			raw, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.RawAcc = raw
		}

		if bitSet(c.OutputEnables, bitAccCalibrated) {
			raw, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.AccCalibrated = raw
			s.Acc = raw
		}

		if bitSet(c.OutputEnables, bitRawGyro) {
			// Both physical gyroscope slots are carried on the wire
			// rather than one pre-selected channel; Gyr0Primary picks
			// which one populates the user-visible RawGyr field (the
			// single-gyroscope hardware variant wires its sole sensor to
			// slot 1).
			raw0, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			raw1, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]

			deg0 := [3]float64{raw0[0] * rad2deg, raw0[1] * rad2deg, raw0[2] * rad2deg}
			deg1 := [3]float64{raw1[0] * rad2deg, raw1[1] * rad2deg, raw1[2] * rad2deg}
			s.Gyr0 = deg0
			s.Gyr1 = deg1

			primary := deg0
			if !c.Gyr0Primary {
				primary = deg1
			}
			s.RawGyr = primary
		}

		if bitSet(c.OutputEnables, bitGyroBiasCalib) {
			v0, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			v1, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.GyroBiasCalib = [2][3]float64{v0, v1}
		}

		if bitSet(c.OutputEnables, bitGyroAlignCalib) {
			// Alignment calibration also folds in the static bias
			// correction, so this channel (not GyroBiasCalib) is the
			// device's canonical calibrated gyroscope output.
			v0, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			v1, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.GyroAlignCalib = [2][3]float64{v0, v1}

			primary := v0
			if !c.Gyr0Primary {
				primary = v1
			}
			s.Gyr = primary
		}

		if bitSet(c.OutputEnables, bitRawMag) {
			raw, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.RawMag = raw
		}

		if bitSet(c.OutputEnables, bitMagCalibrated) {
			raw, n, err := fullTriplet(b)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.MagCalibrated = raw
			s.Mag = raw
		}
	} else {
		if bitSet(c.OutputEnables, bitRawGyro) {
			raw, n, err := readTriplet(gyroCompressedDenom)
			if err != nil {
				return s, err
			}
			b = b[n:]
			deg := [3]float64{raw[0] * rad2deg, raw[1] * rad2deg, raw[2] * rad2deg}
			s.RawGyr = deg
			s.Gyr = snap.ApplyGyro(deg)
		}

		if bitSet(c.OutputEnables, bitRawAcc) {
			raw, n, err := readTriplet(accCompressedDenom)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.RawAcc = raw
			s.Acc = snap.ApplyAccel(raw)
		}

		if bitSet(c.OutputEnables, bitRawMag) {
			raw, n, err := readTriplet(magCompressedDenom)
			if err != nil {
				return s, err
			}
			b = b[n:]
			s.RawMag = raw
			s.Mag = snap.ApplyMag(raw)
		}
	}

	if bitSet(c.OutputEnables, bitAngularVel) {
		raw, n, err := readTriplet(gyroCompressedDenom)
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.AngularVelocity = [3]float64{raw[0] * rad2deg, raw[1] * rad2deg, raw[2] * rad2deg}
	}

	if bitSet(c.OutputEnables, bitQuaternion) {
		var quat [4]float64
		var n int
		var err error
		if compressed {
			quat, n, err = compressedQuad(b, quatCompressedDenom)
		} else {
			quat, n, err = fullQuad(b)
		}
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.Quat = quat
		s.RotationMatrix = calib.QuaternionToRotationMatrix(quat[0], quat[1], quat[2], quat[3])
	}

	if bitSet(c.OutputEnables, bitEuler) {
		raw, n, err := readTriplet(eulerCompressedDenom)
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.Euler = [3]float64{raw[0] * rad2deg, raw[1] * rad2deg, raw[2] * rad2deg}
	}

	if bitSet(c.OutputEnables, bitLinearAcc) {
		raw, n, err := readTriplet(accCompressedDenom)
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.LinearAcc = raw
	}

	if bitSet(c.OutputEnables, bitPressure) {
		v, n, err := readScalar(b, compressed, pressureCompressedDenom)
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.Pressure = v
	}
	if bitSet(c.OutputEnables, bitAltitude) {
		v, n, err := readScalar(b, compressed, altitudeCompressedDenom)
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.Altitude = v
	}
	if bitSet(c.OutputEnables, bitTemperature) {
		v, n, err := readScalar(b, compressed, tempCompressedDenom)
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.Temperature = v
	}
	if bitSet(c.OutputEnables, bitHeave) {
		v, n, err := readScalar(b, compressed, heaveCompressedDenom)
		if err != nil {
			return s, err
		}
		b = b[n:]
		s.Heave = v
	}

	period := calib.SamplingPeriodV1
	if c.version == wire.V0 {
		period = calib.SamplingPeriodV0(c.SamplingRate)
	}
	s.Timestamp = float64(s.Frame) * period

	return s, nil
}

func readScalar(b []byte, compressed bool, denom float64) (float64, int, error) {
	if compressed {
		if len(b) < 2 {
			return 0, 0, errs.New(errs.ProtocolMessageCorrupt, "truncated compressed scalar")
		}
		return float64(decodeInt16LE(b[:2])) / denom, 2, nil
	}
	return readFloat(b)
}
