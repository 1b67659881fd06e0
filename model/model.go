// Package model holds the small set of plain data types shared across
// layer boundaries (transport, wire framing, sensor parsing) so that lower
// layers never need to import the higher-level sensor package back.
package model

import "time"

// Descriptor identifies one discoverable sensor endpoint. Descriptors are
// short-lived: they exist only for the span of a discovery call and the
// immediately following open.
type Descriptor struct {
	Name         string // human-readable device name
	SerialNumber string
	IOType       string // transport key, e.g. "LinuxDevice", "Ble"
	Identifier   string // transport-specific opaque address
	BaudRate     uint32 // transport-provided default baud rate
}

// Event is implemented by every sample type a component can emit onto its
// dispatch channel. It carries just enough to let a generic fan-out loop
// order and route events without knowing the concrete sample shape.
type Event interface {
	// ComponentHandle is the small integer handle of the component that
	// produced this event (0 for v0 sensors, which do not multiplex).
	ComponentHandle() int
	// FrameCount is the wire frame counter, used to assert monotonicity.
	FrameCount() uint32
}

// IMUSample is the fully decoded, calibrated IMU sample record.
type IMUSample struct {
	Component int
	Frame     uint32
	Timestamp float64 // seconds, frameCount * sampling period

	RawGyr [3]float64 // degrees/second
	Gyr    [3]float64 // degrees/second, calibrated
	RawAcc [3]float64 // g
	Acc    [3]float64 // g, calibrated
	RawMag [3]float64
	Mag    [3]float64

	AngularVelocity [3]float64 // degrees/second
	Euler           [3]float64 // degrees
	Quat            [4]float64 // w,x,y,z
	RotationMatrix  [3][3]float64
	LinearAcc       [3]float64

	Pressure    float64
	Altitude    float64
	Temperature float64
	Heave       float64

	// The following are v1-only channels; they are left at their zero
	// value for v0 sessions.
	AccCalibrated  [3]float64 // device-applied calibration, pre-wire (v1 only)
	MagCalibrated  [3]float64 // device-applied calibration, pre-wire (v1 only)
	Gyr0           [3]float64 // degrees/second, wire slot 0
	Gyr1           [3]float64 // degrees/second, wire slot 1
	GyroBiasCalib  [2][3]float64
	GyroAlignCalib [2][3]float64 // degrees/second, calibrated, per gyroscope slot
}

func (s IMUSample) ComponentHandle() int { return s.Component }
func (s IMUSample) FrameCount() uint32   { return s.Frame }

// FixType enumerates the GNSS fix quality reported by firmware.
type FixType int

const (
	FixNone FixType = iota
	FixDeadReckoningOnly
	Fix2D
	Fix3D
	FixGNSSDeadReckoning
	FixTimeOnly
)

// CarrierPhaseSolution enumerates RTK carrier-phase resolution state.
type CarrierPhaseSolution int

const (
	CarrierNone CarrierPhaseSolution = iota
	CarrierFloat
	CarrierFixed
)

// GNSSSample is the fully decoded GNSS sample record.
type GNSSSample struct {
	Component int
	Frame     uint32
	Timestamp float64

	FixType     FixType
	Carrier     CarrierPhaseSolution
	NumSats     uint8
	Latitude    float64 // degrees
	Longitude   float64 // degrees
	Height      float64 // meters
	HorizAcc    float64 // meters
	VertAcc     float64 // meters
	VelN        float64 // m/s
	VelE        float64
	VelD        float64
	HeadMotion  float64 // degrees
	HeadVehicle float64
	HeadAcc     float64 // degrees

	Year           int
	Month          int
	Day            int
	Hour           int
	Minute         int
	Second         int
	NanoCorrection int32

	ReceivedAt time.Time
}

func (s GNSSSample) ComponentHandle() int { return s.Component }
func (s GNSSSample) FrameCount() uint32   { return s.Frame }
