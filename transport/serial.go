package transport

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
)

// Transport keys for the three desktop serial-over-USB variants. Each
// device physically presents the same way (a COM port / tty / cu device
// backed by a USB-to-UART bridge); only the OS-level enumeration and naming
// convention differ, so one implementation is parameterized by key rather
// than duplicated three times.
const (
	WindowsDeviceKey = "WindowsDevice"
	LinuxDeviceKey   = "LinuxDevice"
	MacDeviceKey     = "MacDevice"

	defaultSerialBaud = 921600
)

// knownVendorProductIDs filters discovery to USB-to-UART bridges the
// firmware is known to ship with (FTDI, Silicon Labs CP210x and CH340
// VID/PIDs),
// mirroring the source's sysfs vendor/product allow-list on Linux.
var knownVendorProductIDs = map[string]bool{
	"0403:6001": true, // FTDI FT232
	"10C4:EA60": true, // Silicon Labs CP2102
	"1A86:7523": true, // CH340
}

// SerialTransport drives WindowsDevice/LinuxDevice/MacDevice over
// go.bug.st/serial. It only ever inserts itself into the registry for the
// key matching runtime.GOOS, since a Windows COM port enumeration is
// meaningless on Linux and vice versa.
type SerialTransport struct {
	key string
}

// NewSerialTransport constructs the transport for one of the three desktop
// serial keys.
func NewSerialTransport(key string) *SerialTransport {
	return &SerialTransport{key: key}
}

func (t *SerialTransport) Key() string { return t.key }

func (t *SerialTransport) Available() bool {
	switch t.key {
	case WindowsDeviceKey:
		return runtime.GOOS == "windows"
	case LinuxDeviceKey:
		return runtime.GOOS == "linux"
	case MacDeviceKey:
		return runtime.GOOS == "darwin"
	default:
		return false
	}
}

func (t *SerialTransport) IsEventOriented() bool { return false }

func (t *SerialTransport) Discover(ctx context.Context) ([]model.Descriptor, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errs.Wrap(errs.TransportOpenFailed, "enumerating serial ports", err)
	}

	var out []model.Descriptor
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		vidPid := strings.ToUpper(d.VID + ":" + d.PID)
		if len(knownVendorProductIDs) > 0 && !knownVendorProductIDs[vidPid] {
			continue
		}
		out = append(out, model.Descriptor{
			Name:         portDisplayName(t.key, d.Name),
			SerialNumber: d.SerialNumber,
			IOType:       t.key,
			Identifier:   d.Name,
			BaudRate:     defaultSerialBaud,
		})
	}
	return out, nil
}

func portDisplayName(key, portName string) string {
	return fmt.Sprintf("%s (%s)", key, portName)
}

func (t *SerialTransport) Obtain(ctx context.Context, desc model.Descriptor, sub Subscriber, _ EventSubscriber) (ByteChannel, EventChannel, error) {
	baud := int(desc.BaudRate)
	if baud == 0 {
		baud = defaultSerialBaud
	}
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}

	port, err := serial.Open(desc.Identifier, mode)
	if err != nil {
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "opening "+desc.Identifier, err)
	}
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "setting read timeout", err)
	}

	ch := &serialChannel{
		key:  t.key,
		desc: desc,
		port: port,
		sub:  sub,
	}
	ch.wg.Add(1)
	go ch.readLoop()
	return ch, nil, nil
}

// serialChannel is the ByteChannel returned by SerialTransport.Obtain. The
// read loop polls the port with a bounded timeout so Close can set the
// termination flag and join the goroutine without needing platform-specific
// cancellation: a timed-out read simply loops back and rechecks the flag,
// the same tolerant pattern the source's Windows overlapped I/O and POSIX
// aio_cancel both converge on in spirit.
type serialChannel struct {
	key  string
	desc model.Descriptor
	port serial.Port
	sub  Subscriber

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (c *serialChannel) readLoop() {
	defer c.wg.Done()
	buf := make([]byte, 4096)
	for {
		c.mu.Lock()
		done := c.closed
		c.mu.Unlock()
		if done {
			return
		}

		n, err := c.port.Read(buf)
		if err != nil {
			// Timeout and closed-handle errors are expected termination
			// paths, not failures worth surfacing past the read loop.
			continue
		}
		if n > 0 && c.sub != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.sub.OnBytes(chunk)
		}
	}
}

func (c *serialChannel) Send(data []byte) error {
	if _, err := c.port.Write(data); err != nil {
		return errs.Wrap(errs.TransportWriteFailed, "writing to "+c.desc.Identifier, err)
	}
	return nil
}

func (c *serialChannel) SetBaudRate(baud int) error {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	if err := c.port.SetMode(mode); err != nil {
		return errs.Wrap(errs.TransportBaudrateUnsupported, fmt.Sprintf("setting baud %d", baud), err)
	}
	return nil
}

func (c *serialChannel) SupportedBaudRates() []int {
	return []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}
}

func (c *serialChannel) Type() string { return c.key }

func (c *serialChannel) Equals(desc model.Descriptor) bool {
	return desc.IOType == c.key && desc.Identifier == c.desc.Identifier
}

func (c *serialChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.port.Close()
	c.wg.Wait()
	if err != nil {
		return errs.Wrap(errs.TransportWriteFailed, "closing "+c.desc.Identifier, err)
	}
	return nil
}
