package transport

import (
	"context"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
)

// vendorUSBTransport models the two proprietary vendor-driver transports
// (Silicon Labs SiUsb, FTDI D2XX). Both are Windows DLL-backed APIs with no
// Go binding anywhere in the ecosystem; rather than omit the keys this
// implementation registers them as permanently unavailable stubs that
// satisfy the full Transport contract, exactly mirroring the source's own
// behaviour when the platform DLL fails to load at startup: the transport
// exists as a type but Available() keeps it out of the registry.
type vendorUSBTransport struct {
	key string
}

// NewSiUsbTransport returns the (unavailable) Silicon Labs vendor-USB transport.
func NewSiUsbTransport() Transport { return &vendorUSBTransport{key: "SiUsb"} }

// NewFtdiTransport returns the (unavailable) FTDI vendor-USB transport.
func NewFtdiTransport() Transport { return &vendorUSBTransport{key: "Ftdi"} }

func (t *vendorUSBTransport) Key() string           { return t.key }
func (t *vendorUSBTransport) Available() bool       { return false }
func (t *vendorUSBTransport) IsEventOriented() bool { return false }

func (t *vendorUSBTransport) Discover(ctx context.Context) ([]model.Descriptor, error) {
	return nil, errs.New(errs.TransportOpenFailed, t.key+" driver not loaded on this platform")
}

func (t *vendorUSBTransport) Obtain(ctx context.Context, desc model.Descriptor, sub Subscriber, esub EventSubscriber) (ByteChannel, EventChannel, error) {
	return nil, nil, errs.New(errs.TransportOpenFailed, t.key+" driver not loaded on this platform")
}
