package transport

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
)

const BluetoothKey = "Bluetooth"

// knownOUIPrefixes whitelists the MAC address prefixes (organizationally
// unique identifiers) firmware vendors are known to ship RFCOMM radios
// under, the same address-prefix filter the source applies during classic
// Bluetooth device enumeration.
var knownOUIPrefixes = []string{"00:06:66", "00:13:43"}

// RFCOMMDialer opens a byte stream to a classic Bluetooth RFCOMM peer. No
// Go ecosystem package (in or out of the retrieval pack) binds RFCOMM
// sockets portably, so this is an injected seam: embedding applications
// that need classic Bluetooth supply a platform-specific dialer (a thin
// cgo or syscall wrapper around BlueZ/WinSock/IOBluetooth) via
// SetRFCOMMDialer. Without one, BluetoothTransport reports Available() ==
// false, the same way the source disables the transport when its platform
// backend cannot be constructed.
type RFCOMMDialer func(ctx context.Context, address string) (io.ReadWriteCloser, error)

// BluetoothTransport drives classic RFCOMM sensors.
type BluetoothTransport struct {
	mu     sync.RWMutex
	dialer RFCOMMDialer
	peers  []model.Descriptor // addresses known to the embedder, fed via AddKnownPeer
}

func NewBluetoothTransport() *BluetoothTransport {
	return &BluetoothTransport{}
}

// SetRFCOMMDialer installs the platform dialer seam. Passing nil disables
// the transport again.
func (t *BluetoothTransport) SetRFCOMMDialer(d RFCOMMDialer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialer = d
}

// AddKnownPeer registers a previously-paired device address for discovery,
// since classic Bluetooth (unlike BLE) has no portable inquiry-scan API
// available to this package without the same platform seam.
func (t *BluetoothTransport) AddKnownPeer(name, address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers = append(t.peers, model.Descriptor{
		Name:       name,
		IOType:     BluetoothKey,
		Identifier: address,
		BaudRate:   0,
	})
}

func (t *BluetoothTransport) Key() string { return BluetoothKey }

func (t *BluetoothTransport) Available() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dialer != nil
}

func (t *BluetoothTransport) IsEventOriented() bool { return false }

func (t *BluetoothTransport) Discover(ctx context.Context) ([]model.Descriptor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []model.Descriptor
	for _, p := range t.peers {
		if hasKnownOUI(p.Identifier) {
			out = append(out, p)
		}
	}
	return out, nil
}

func hasKnownOUI(address string) bool {
	for _, prefix := range knownOUIPrefixes {
		if strings.HasPrefix(strings.ToUpper(address), prefix) {
			return true
		}
	}
	return false
}

func (t *BluetoothTransport) Obtain(ctx context.Context, desc model.Descriptor, sub Subscriber, _ EventSubscriber) (ByteChannel, EventChannel, error) {
	t.mu.RLock()
	dialer := t.dialer
	t.mu.RUnlock()
	if dialer == nil {
		return nil, nil, errs.New(errs.TransportOpenFailed, "no RFCOMM dialer installed")
	}
	conn, err := dialer(ctx, desc.Identifier)
	if err != nil {
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "dialing "+desc.Identifier, err)
	}

	ch := &streamChannel{key: BluetoothKey, desc: desc, conn: conn, sub: sub}
	ch.wg.Add(1)
	go ch.readLoop()
	return ch, nil, nil
}

// streamChannel adapts any io.ReadWriteCloser (RFCOMM socket, TCP
// connection) into a ByteChannel. Shared by BluetoothTransport today; a
// future TCP-serial bridge could reuse it without duplicating the reader
// loop.
type streamChannel struct {
	key  string
	desc model.Descriptor
	conn io.ReadWriteCloser
	sub  Subscriber

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (c *streamChannel) readLoop() {
	defer c.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 && c.sub != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.sub.OnBytes(chunk)
		}
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			// Unexpected read error: the transport treats it as session
			// termination by simply stopping the loop; Close() will
			// already be in flight from the caller-observed failure.
			return
		}
	}
}

func (c *streamChannel) Send(data []byte) error {
	if _, err := c.conn.Write(data); err != nil {
		return errs.Wrap(errs.TransportWriteFailed, "writing to "+c.desc.Identifier, err)
	}
	return nil
}

func (c *streamChannel) SetBaudRate(baud int) error {
	return errs.New(errs.UnknownProperty, c.key+" has no baud-rate concept")
}

func (c *streamChannel) SupportedBaudRates() []int { return nil }

func (c *streamChannel) Type() string { return c.key }

func (c *streamChannel) Equals(desc model.Descriptor) bool {
	return desc.IOType == c.key && desc.Identifier == c.desc.Identifier
}

func (c *streamChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	if err != nil {
		return errs.Wrap(errs.TransportWriteFailed, "closing "+c.desc.Identifier, err)
	}
	return nil
}
