// Package rtk implements the RTK correction forwarding pipeline: an
// external RTCM3 source (network NTRIP-style stream or serial link) feeds
// a frame callback, which forwards each frame to the device over an
// ack-expected property write.
package rtk

import (
	"sync"

	"github.com/bramburn/motionlink/errs"
)

// Sink is the narrow capability Forwarder needs from the device side: a
// GNSS component that can accept one forwarded RTCM3 frame. Implemented by
// sensor.GNSSComponent.
type Sink interface {
	SendRTK(frame []byte) error
}

// Source is satisfied by NetworkSource and SerialSource: something that
// runs a background reader task, frames RTCM3 messages out of the byte
// stream, and invokes onFrame for each one until Stop is called.
type Source interface {
	Start(onFrame func(messageType int, frame []byte)) error
	Stop() error
}

// Forwarder attaches one RTK correction Source to a GNSS Sink. Starting the
// same or a different source twice stops the previous one first; stopping
// with no active source is a no-op success.
type Forwarder struct {
	mu     sync.Mutex
	sink   Sink
	active Source
}

// NewForwarder builds a Forwarder that writes corrections to sink.
func NewForwarder(sink Sink) *Forwarder {
	return &Forwarder{sink: sink}
}

// Start tears down any currently active source, then starts src, wiring
// its frame callback to forward each RTCM3 frame to the sink.
func (f *Forwarder) Start(src Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active != nil {
		if err := f.active.Stop(); err != nil {
			return errs.Wrap(errs.TransportWriteFailed, "stopping previous RTK source", err)
		}
		f.active = nil
	}

	if err := src.Start(func(_ int, frame []byte) {
		_ = f.sink.SendRTK(frame)
	}); err != nil {
		return errs.Wrap(errs.TransportOpenFailed, "starting RTK source", err)
	}
	f.active = src
	return nil
}

// Stop tears down the active source, if any. A no-op when nothing is
// active.
func (f *Forwarder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active == nil {
		return nil
	}
	err := f.active.Stop()
	f.active = nil
	if err != nil {
		return errs.Wrap(errs.TransportWriteFailed, "stopping RTK source", err)
	}
	return nil
}

// Active reports whether a source is currently running.
func (f *Forwarder) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active != nil
}
