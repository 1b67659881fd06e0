// Package transport defines the pluggable byte-channel and event-channel
// abstraction that every physical medium (serial-over-USB, classic
// Bluetooth, BLE, network pub/sub, in-process test fixture) implements, plus
// the process-wide registry that device discovery and session opening query
// by transport key.
package transport

import (
	"context"

	"github.com/bramburn/motionlink/model"
)

// Subscriber receives bytes pushed by a byte-oriented transport's background
// reader task. Implementations must not block for long: the reader task
// calls Subscriber synchronously and cannot read more bytes until it
// returns.
type Subscriber interface {
	OnBytes(data []byte)
}

// EventSubscriber receives already-parsed events pushed by an event-oriented
// transport (network pub/sub, test fixture).
type EventSubscriber interface {
	OnEvent(evt model.Event)
}

// ByteChannel is the contract every physical serial-style medium satisfies.
// Received bytes are pushed to the Subscriber given to Obtain; callers are
// responsible for reassembling frames out of arbitrarily sized chunks.
type ByteChannel interface {
	// Send writes data to the channel. It may block until the underlying
	// OS write completes or the channel is closed.
	Send(data []byte) error

	// SetBaudRate reconfigures the channel's bit rate. A serial channel
	// that rejects a specific rate returns errs.TransportBaudrateUnsupported;
	// channels with no baud-rate concept (BLE, RFCOMM) return
	// errs.UnknownProperty.
	SetBaudRate(baud int) error

	// SupportedBaudRates lists the bit rates this channel instance will
	// accept, in ascending order. Empty means "no baud-rate concept" and
	// SetBaudRate always fails.
	SupportedBaudRates() []int

	// Type returns the transport key this channel belongs to.
	Type() string

	// Equals reports whether this open channel was obtained for desc.
	Equals(desc model.Descriptor) bool

	// Close stops the background reader task, cancels any outstanding OS
	// read, and releases the underlying handle. No Subscriber callback
	// runs after Close returns.
	Close() error
}

// EventChannel is the contract for transports whose medium already carries
// parsed events rather than raw bytes (network pub/sub, test fixture).
type EventChannel interface {
	Type() string
	Equals(desc model.Descriptor) bool
	Close() error
}

// Transport is the factory every medium registers under a short key.
type Transport interface {
	// Key is the short tag used in the registry and in model.Descriptor.IOType.
	Key() string

	// Available reports whether this transport's backing driver/library is
	// usable in the current process (DLL loaded, OS support present,
	// broker configured). Unavailable transports are never inserted into
	// the registry, matching the discovery behaviour the device firmware
	// vendors themselves rely on.
	Available() bool

	// Discover enumerates currently attached endpoints for this medium.
	Discover(ctx context.Context) ([]model.Descriptor, error)

	// Obtain establishes an open channel to desc. Exactly one of sub/esub
	// is used, matching IsEventOriented.
	Obtain(ctx context.Context, desc model.Descriptor, sub Subscriber, esub EventSubscriber) (ByteChannel, EventChannel, error)

	// IsEventOriented reports whether Obtain returns an EventChannel
	// (true) or a ByteChannel (false).
	IsEventOriented() bool
}
