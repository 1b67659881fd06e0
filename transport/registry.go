package transport

import (
	"sync"

	"github.com/bramburn/motionlink/errs"
)

// Registry is a process-wide, mutex-guarded mapping from transport key to
// transport instance. Discovery and session-opening both query it by key;
// RegisterDefaults fills it with the built-in transports, and embedders may
// Register others they construct themselves (such as a PubSubTransport).
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

var defaultRegistry = &Registry{transports: make(map[string]Transport)}

// Default returns the process-wide registry singleton.
func Default() *Registry { return defaultRegistry }

// Register inserts t under t.Key() if and only if t.Available() reports
// true. Unavailable transports (missing driver DLL, no broker configured,
// platform mismatch) are silently skipped, matching the source firmware's
// own startup behaviour: a transport that cannot work is never offered to
// discovery.
func (r *Registry) Register(t Transport) {
	if !t.Available() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.Key()] = t
}

// Get returns the transport registered under key, or errs.NotFound.
func (r *Registry) Get(key string) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[key]
	if !ok {
		return nil, errs.New(errs.NotFound, "no transport registered for key "+key)
	}
	return t, nil
}

// List returns every currently registered transport, in no particular
// order. Used by the top-level discovery loop to fan out Discover calls.
func (r *Registry) List() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transport, 0, len(r.transports))
	for _, t := range r.transports {
		out = append(out, t)
	}
	return out
}

var registerDefaultsOnce sync.Once

// RegisterDefaults populates the default registry with every transport this
// build knows how to construct. It is idempotent and safe to call from
// multiple goroutines; only the first call has effect. Applications that
// want a reduced transport set can skip this and call Default().Register
// selectively instead.
func RegisterDefaults() {
	registerDefaultsOnce.Do(func() {
		r := defaultRegistry
		r.Register(NewSerialTransport(WindowsDeviceKey))
		r.Register(NewSerialTransport(LinuxDeviceKey))
		r.Register(NewSerialTransport(MacDeviceKey))
		r.Register(NewSiUsbTransport())
		r.Register(NewFtdiTransport())
		r.Register(NewBluetoothTransport())
		r.Register(NewBleTransport())
		r.Register(NewTestSensorTransport())
		// PubSubTransport needs a broker URL, so it is not part of the
		// zero-configuration default set; callers that want it construct
		// one with NewPubSubTransport and Register it themselves.
	})
}
