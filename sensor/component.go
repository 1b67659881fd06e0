package sensor

import (
	"time"

	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/wire"
)

// Kind names the two component variants the core understands.
type Kind string

const (
	KindIMU  Kind = "imu"
	KindGNSS Kind = "gnss"
)

// requestTimeout bounds every property round-trip this client issues.
const requestTimeout = 500 * time.Millisecond

// requester is the slice of *wire.Channel a component needs to issue
// property reads/writes and commands. Defined as an interface so tests can
// substitute a fake channel without standing up a real transport.
type requester interface {
	SendAndWaitForAck(addr, component uint8, version wire.Version, fn wire.FunctionCode, payload []byte, timeout time.Duration) error
	SendAndWaitForResult(addr, component uint8, version wire.Version, fn wire.FunctionCode, payload []byte, timeout time.Duration) ([]byte, error)
}

// Component is a logical sub-device (IMU or GNSS) addressed within one
// sensor. The protocol multiplexes frames to components by handle under
// v1; v0 only ever has component 0.
type Component interface {
	Handle() uint8
	Kind() Kind

	// Init performs the component's open-time setup: reading and caching
	// calibrations for IMU, reading the output layout for GNSS.
	Init() error

	// HandleEventFrame is invoked by the session's dispatch loop for every
	// frame addressed to this component that the RPC slot did not claim.
	HandleEventFrame(f wire.Frame)

	// Close performs the component's best-effort teardown step (persisting
	// GNSS navigation state; nothing for IMU).
	Close()
}

// baseComponent holds the fields every component variant needs: its wire
// address/handle, the shared requester, the property table, and the
// negotiated protocol version.
type baseComponent struct {
	addr    uint8
	handle  uint8
	version wire.Version
	ch      requester
	props   *Table
}

// imuEventFn/gnssEventFn let the session register where parsed samples go
// without components depending on a concrete dispatcher type.
type imuEventFn func(model.IMUSample)
type gnssEventFn func(model.GNSSSample)
