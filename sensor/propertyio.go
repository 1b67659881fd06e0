package sensor

import (
	"encoding/binary"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/wire"
)

// GetRaw reads a property's raw wire value from the device. Any key can be
// addressed, named constant or not; the firmware is the source of truth for
// which keys exist and answers unknown ones with a negative ack.
func (b *baseComponent) GetRaw(key PropertyKey) ([]byte, error) {
	if err := b.props.CheckAccess(key, AccessRead); err != nil {
		return nil, err
	}
	return b.ch.SendAndWaitForResult(b.addr, b.handle, b.version, wire.FnGetProperty, encodeProp(key, nil), requestTimeout)
}

// SetRaw writes a property's raw wire value and, on a successful ack,
// notifies every change subscriber registered for key so dependent state
// (calibration cache, parser layout) stays coherent.
func (b *baseComponent) SetRaw(key PropertyKey, value []byte) error {
	if err := b.props.CheckAccess(key, AccessWrite); err != nil {
		return err
	}
	if err := b.ch.SendAndWaitForAck(b.addr, b.handle, b.version, wire.FnSetProperty, encodeProp(key, value), requestTimeout); err != nil {
		return err
	}
	b.props.Notify(key, value)
	return nil
}

// GetBool reads a one-byte boolean property.
func (b *baseComponent) GetBool(key PropertyKey) (bool, error) {
	resp, err := b.GetRaw(key)
	if err != nil {
		return false, err
	}
	if len(resp) < 1 {
		return false, errs.New(errs.WrongDataType, "bool property response too short")
	}
	return resp[0] != 0, nil
}

// SetBool writes a one-byte boolean property.
func (b *baseComponent) SetBool(key PropertyKey, value bool) error {
	payload := []byte{0}
	if value {
		payload[0] = 1
	}
	return b.SetRaw(key, payload)
}

// GetInt32 reads a little-endian int32 property.
func (b *baseComponent) GetInt32(key PropertyKey) (int32, error) {
	resp, err := b.GetRaw(key)
	if err != nil {
		return 0, err
	}
	if len(resp) < 4 {
		return 0, errs.New(errs.WrongDataType, "int32 property response too short")
	}
	return decodeInt32LE(resp), nil
}

// SetInt32 writes a little-endian int32 property.
func (b *baseComponent) SetInt32(key PropertyKey, value int32) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(value))
	return b.SetRaw(key, payload)
}

// SubscribeProperty registers cb to run whenever key's value changes
// through this client (an acked SetRaw, or a component's own local
// update). Changes the device makes on its own do not trigger cb.
func (b *baseComponent) SubscribeProperty(key PropertyKey, cb ChangeCallback) {
	b.props.Subscribe(key, cb)
}

// command issues an ack-expected function with no property key attached
// (gyro calibration, orientation reset, sync start/stop, state persistence).
func (b *baseComponent) command(fn wire.FunctionCode, payload []byte) error {
	return b.ch.SendAndWaitForAck(b.addr, b.handle, b.version, fn, payload, requestTimeout)
}
