// Package sensor implements the per-device object model: components (IMU,
// GNSS), their property tables, the IMU/GNSS sample parsers, the
// calibration-cache wiring, and the open/init/run/close session lifecycle
// that sits on top of a wire.Channel.
package sensor

import (
	"sync"

	"github.com/bramburn/motionlink/errs"
)

// PropertyKey is the wire-level 16-bit property tag.
type PropertyKey uint16

// Well-known property keys this client reads or writes directly. Firmware
// defines many more; callers may address any key with GetRaw/SetRaw even if
// it has no named constant here.
const (
	PropOutputEnables   PropertyKey = 0x0010
	PropSamplingRate    PropertyKey = 0x0011
	PropAccelAlign      PropertyKey = 0x0020
	PropGyroAlign       PropertyKey = 0x0021
	PropMagSoftIron     PropertyKey = 0x0022
	PropAccelBias       PropertyKey = 0x0023
	PropGyroBias        PropertyKey = 0x0024
	PropMagHardIron     PropertyKey = 0x0025
	PropStreamingEnable PropertyKey = 0x0030
	PropGyr0Primary     PropertyKey = 0x0031

	// GNSS output-enable group properties: each gates a whole family of
	// wire fields at once (fix/position/velocity, heading, ESF status).
	PropOutputNavPvt    PropertyKey = 0x0040
	PropOutputNavAtt    PropertyKey = 0x0041
	PropOutputEsfStatus PropertyKey = 0x0042
)

// ValueKind identifies the shape a property's value takes on the wire.
type ValueKind int

const (
	KindByte ValueKind = iota
	KindBool
	KindInt32
	KindFloat
	KindFloat3
	KindFloat9
	KindBytes
)

// AccessMode constrains which operations a property accepts.
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessWrite
	AccessReadWrite
	AccessCommand
)

// ChangeCallback is invoked whenever Notify runs for its key: after an
// application-initiated write is acked, or when a component seeds or
// mirrors a value locally. Frames the device sends unprompted never reach
// it. Callbacks run under no lock and must not re-enter the property table.
type ChangeCallback func(key PropertyKey, value []byte)

// Table is a small per-component registry of property metadata plus
// change-notification subscribers, mirroring the original's "map from
// property key to a list of subscriber function objects".
type Table struct {
	mu          sync.Mutex
	descriptors map[PropertyKey]accessDescriptor
	subscribers map[PropertyKey][]ChangeCallback
}

type accessDescriptor struct {
	kind   ValueKind
	access AccessMode
}

// NewTable returns an empty property table.
func NewTable() *Table {
	return &Table{
		descriptors: make(map[PropertyKey]accessDescriptor),
		subscribers: make(map[PropertyKey][]ChangeCallback),
	}
}

// Declare registers the value kind and access mode for key. Reads/writes
// against an undeclared key still go on the wire (firmware is the source
// of truth); for a declared key GetRaw/SetRaw check the access mode via
// CheckAccess. The declared kind is recorded but not checked.
func (t *Table) Declare(key PropertyKey, kind ValueKind, access AccessMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.descriptors[key] = accessDescriptor{kind: kind, access: access}
}

// Subscribe registers cb to run whenever key's value changes.
func (t *Table) Subscribe(key PropertyKey, cb ChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[key] = append(t.subscribers[key], cb)
}

// Notify invokes every subscriber registered for key with the new value.
// Called after a successful write and when a component updates a value it
// read or changed itself; no received frame is turned into a Notify call.
func (t *Table) Notify(key PropertyKey, value []byte) {
	t.mu.Lock()
	subs := append([]ChangeCallback(nil), t.subscribers[key]...)
	t.mu.Unlock()
	for _, cb := range subs {
		cb(key, value)
	}
}

// CheckAccess validates that mode is permitted for a declared key. Unknown
// keys are allowed through (UnknownProperty is a wire-level error the
// device itself returns, not something this table second-guesses).
func (t *Table) CheckAccess(key PropertyKey, want AccessMode) error {
	t.mu.Lock()
	d, ok := t.descriptors[key]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	if d.access == AccessReadWrite {
		return nil
	}
	if d.access != want {
		return errs.New(errs.WrongDataType, "property access mode mismatch")
	}
	return nil
}

// decodeFloat3/decodeFloat9 are the wire decoders shared by calibration
// property reads and change subscriptions.

func decodeFloat3(b []byte) ([3]float64, error) {
	var out [3]float64
	if len(b) < 12 {
		return out, errs.New(errs.ProtocolMessageCorrupt, "float3 payload too short")
	}
	for i := 0; i < 3; i++ {
		out[i] = float64(decodeFloat32LE(b[i*4 : i*4+4]))
	}
	return out, nil
}

func decodeFloat9(b []byte) ([3][3]float64, error) {
	var out [3][3]float64
	if len(b) < 36 {
		return out, errs.New(errs.ProtocolMessageCorrupt, "float9 payload too short")
	}
	idx := 0
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = float64(decodeFloat32LE(b[idx*4 : idx*4+4]))
			idx++
		}
	}
	return out, nil
}
