package transport

import (
	"context"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
)

const BleKey = "Ble"

// bleServiceUUID/bleTxUUID/bleRxUUID are the fixed GATT identifiers
// firmware exposes its streaming characteristic under. Unlike classic
// Bluetooth, BLE peripherals of this sensor family all agree on one
// service, so no per-device negotiation is needed.
var (
	bleServiceUUID = bluetooth.NewUUID([16]byte{0x6e, 0x40, 0x00, 0x01, 0xb5, 0xa3, 0xf3, 0x93, 0xe0, 0xa9, 0xe5, 0x0e, 0x24, 0xdc, 0xca, 0x9e})
	bleTxUUID      = bluetooth.NewUUID([16]byte{0x6e, 0x40, 0x00, 0x02, 0xb5, 0xa3, 0xf3, 0x93, 0xe0, 0xa9, 0xe5, 0x0e, 0x24, 0xdc, 0xca, 0x9e})
	bleRxUUID      = bluetooth.NewUUID([16]byte{0x6e, 0x40, 0x00, 0x03, 0xb5, 0xa3, 0xf3, 0x93, 0xe0, 0xa9, 0xe5, 0x0e, 0x24, 0xdc, 0xca, 0x9e})
)

const bleWriteChunk = 20 // GATT MTU without response

// BleTransport drives Bluetooth Low Energy sensors via the fixed
// service/characteristic pair above.
type BleTransport struct {
	adapter *bluetooth.Adapter
	once    sync.Once
	enabled bool
}

func NewBleTransport() *BleTransport {
	return &BleTransport{adapter: bluetooth.DefaultAdapter}
}

func (t *BleTransport) ensureEnabled() bool {
	t.once.Do(func() {
		if t.adapter == nil {
			return
		}
		t.enabled = t.adapter.Enable() == nil
	})
	return t.enabled
}

func (t *BleTransport) Key() string           { return BleKey }
func (t *BleTransport) Available() bool       { return t.ensureEnabled() }
func (t *BleTransport) IsEventOriented() bool { return false }

func (t *BleTransport) Discover(ctx context.Context) ([]model.Descriptor, error) {
	if !t.ensureEnabled() {
		return nil, errs.New(errs.TransportOpenFailed, "BLE adapter not available")
	}

	var out []model.Descriptor
	deadline := time.Now().Add(5 * time.Second)
	scanErr := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.AdvertisementPayload.HasServiceUUID(bleServiceUUID) {
			return
		}
		out = append(out, model.Descriptor{
			Name:       result.LocalName(),
			IOType:     BleKey,
			Identifier: result.Address.String(),
			BaudRate:   0,
		})
		if time.Now().After(deadline) {
			_ = adapter.StopScan()
		}
	})
	if scanErr != nil {
		return nil, errs.Wrap(errs.TransportOpenFailed, "scanning for BLE peripherals", scanErr)
	}
	return out, nil
}

func (t *BleTransport) Obtain(ctx context.Context, desc model.Descriptor, sub Subscriber, _ EventSubscriber) (ByteChannel, EventChannel, error) {
	if !t.ensureEnabled() {
		return nil, nil, errs.New(errs.TransportOpenFailed, "BLE adapter not available")
	}

	addr, err := bluetooth.ParseMAC(desc.Identifier)
	if err != nil {
		return nil, nil, errs.Wrap(errs.InvalidArgument, "parsing BLE address "+desc.Identifier, err)
	}

	device, err := t.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: addr}}, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "connecting to "+desc.Identifier, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{bleServiceUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "discovering BLE service", err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bleTxUUID, bleRxUUID})
	if err != nil || len(chars) < 2 {
		_ = device.Disconnect()
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "discovering BLE characteristics", err)
	}

	ch := &bleChannel{desc: desc, device: device, tx: chars[0], rx: chars[1], sub: sub}
	if sub != nil {
		err := ch.rx.EnableNotifications(func(data []byte) {
			chunk := make([]byte, len(data))
			copy(chunk, data)
			ch.sub.OnBytes(chunk)
		})
		if err != nil {
			_ = device.Disconnect()
			return nil, nil, errs.Wrap(errs.TransportOpenFailed, "enabling BLE notifications", err)
		}
	}
	return ch, nil, nil
}

// bleChannel adapts a GATT characteristic pair to ByteChannel. Writes are
// chunked to bleWriteChunk bytes, matching the firmware's fixed MTU.
type bleChannel struct {
	desc   model.Descriptor
	device bluetooth.Device
	tx     bluetooth.DeviceCharacteristic
	rx     bluetooth.DeviceCharacteristic
	sub    Subscriber
	mu     sync.Mutex
	closed bool
}

func (c *bleChannel) Send(data []byte) error {
	for len(data) > 0 {
		n := bleWriteChunk
		if n > len(data) {
			n = len(data)
		}
		if _, err := c.tx.WriteWithoutResponse(data[:n]); err != nil {
			return errs.Wrap(errs.TransportWriteFailed, "writing BLE chunk", err)
		}
		data = data[n:]
	}
	return nil
}

func (c *bleChannel) SetBaudRate(baud int) error {
	return errs.New(errs.UnknownProperty, "BLE has no baud-rate concept")
}

func (c *bleChannel) SupportedBaudRates() []int { return nil }
func (c *bleChannel) Type() string              { return BleKey }

func (c *bleChannel) Equals(desc model.Descriptor) bool {
	return desc.IOType == BleKey && desc.Identifier == c.desc.Identifier
}

func (c *bleChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.device.Disconnect(); err != nil {
		return errs.Wrap(errs.TransportWriteFailed, "disconnecting BLE device", err)
	}
	return nil
}
