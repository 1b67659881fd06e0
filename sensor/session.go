package sensor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/transport"
	"github.com/bramburn/motionlink/wire"
)

// State is the open-sensor lifecycle state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateNegotiating
	StateRunning
	StateClosing
	StateClosed
)

// Sensor owns one open transport handle, one framing channel (byte-oriented
// transports only), a property table per component, one or more
// components, and the protocol version fixed at open time.
type Sensor struct {
	mu      sync.Mutex
	state   State
	desc    model.Descriptor
	addr    uint8
	version wire.Version

	byteCh  transport.ByteChannel
	eventCh transport.EventChannel
	wireCh  *wire.Channel

	components map[uint8]Component

	// imuComp/gnssComp let v0 dispatch route by function code instead of
	// component handle: v0 does not multiplex and only ever addresses
	// component 0, so an IMU+GNSS session would otherwise collide on
	// handle 0 in the components map. v1 never needs these; it addresses
	// components by their distinct handles.
	imuComp  *IMUComponent
	gnssComp *GNSSComponent

	onIMU  func(model.IMUSample)
	onGNSS func(model.GNSSSample)

	logger *log.Logger
}

// Options configures Open.
type Options struct {
	// Version is used directly for event-oriented transports (which never
	// negotiate a wire protocol) and as the fallback for byte-oriented
	// transports when GetConfig negotiation does not return a usable
	// answer within NegotiationTimeout.
	Version wire.Version

	NegotiationTimeout time.Duration

	// OnIMUSample/OnGNSSSample are the application's event sinks. Either
	// may be nil if the application does not care about that component
	// kind.
	OnIMUSample  func(model.IMUSample)
	OnGNSSSample func(model.GNSSSample)

	// Logger receives diagnostic messages (nil means silent).
	Logger *log.Logger

	// WithGNSS, when true, opens a GNSS component alongside the IMU
	// component at handle 1 (v1) or component 0 (v0, which does not
	// multiplex and shares the IMU's implicit addressing).
	WithGNSS bool
}

// Open establishes a session against desc via tr, runs component init, and
// transitions to Running. On any failure the sensor is left Closed and the
// transport handle (if obtained) is released.
func Open(ctx context.Context, tr transport.Transport, desc model.Descriptor, opts Options) (*Sensor, error) {
	s := &Sensor{
		desc:       desc,
		version:    opts.Version,
		components: make(map[uint8]Component),
		onIMU:      opts.OnIMUSample,
		onGNSS:     opts.OnGNSSSample,
		logger:     opts.Logger,
		state:      StateConnecting,
	}

	if tr.IsEventOriented() {
		_, echan, err := tr.Obtain(ctx, desc, nil, eventSubscriberFunc(s.dispatchModelEvent))
		if err != nil {
			return nil, errs.Wrap(errs.TransportOpenFailed, "obtaining event-oriented transport", err)
		}
		s.eventCh = echan
		s.state = StateRunning
		return s, nil
	}

	s.state = StateNegotiating
	sw := newSubscriberSwitch()
	bch, _, err := tr.Obtain(ctx, desc, sw, nil)
	if err != nil {
		return nil, errs.Wrap(errs.TransportOpenFailed, "obtaining byte-oriented transport", err)
	}
	s.byteCh = bch

	version, consumed, nerr := negotiateVersion(ctx, bch, sw, opts)
	if nerr != nil {
		// Negotiation is best-effort: firmware that never answers
		// GetConfig within NegotiationTimeout falls back to the caller's
		// configured Options.Version rather than failing Open outright.
		if s.logger != nil {
			s.logger.Printf("motionlink: version negotiation failed, falling back to configured version: %v", nerr)
		}
		version = opts.Version
		consumed = 0
	}
	s.version = version
	s.wireCh = wire.NewChannel(bch, version, s.dispatchFrame)
	sw.commit(s.wireCh, consumed)

	imu := NewIMUComponent(s.addr, 0, s.version, s.wireCh, s.onIMU)
	s.components[0] = imu
	s.imuComp = imu
	if err := imu.Init(); err != nil {
		_ = s.byteCh.Close()
		return nil, err
	}

	if opts.WithGNSS {
		// v0 addresses both components as handle 0 (it does not
		// multiplex); only v1 gives GNSS its own handle. dispatchFrame
		// falls back to routing by function code in the v0 case below, so
		// this intentionally does not collide in s.components there.
		handle := uint8(0)
		if s.version == wire.V1 {
			handle = 1
		}
		g := NewGNSSComponent(s.addr, handle, s.version, s.wireCh, s.onGNSS)
		if s.version == wire.V1 {
			s.components[handle] = g
		}
		s.gnssComp = g
		if err := g.Init(); err != nil {
			_ = s.byteCh.Close()
			return nil, err
		}
	}

	s.state = StateRunning
	return s, nil
}

// eventSubscriberFunc adapts a plain func into transport.EventSubscriber.
type eventSubscriberFunc func(model.Event)

func (f eventSubscriberFunc) OnEvent(evt model.Event) { f(evt) }

func (s *Sensor) dispatchModelEvent(evt model.Event) {
	switch v := evt.(type) {
	case model.IMUSample:
		if s.onIMU != nil {
			s.onIMU(v)
		}
	case model.GNSSSample:
		if s.onGNSS != nil {
			s.onGNSS(v)
		}
	}
}

func (s *Sensor) dispatchFrame(f wire.Frame) {
	s.mu.Lock()
	version := s.version
	imuComp, gnssComp := s.imuComp, s.gnssComp
	comp, ok := s.components[f.Component]
	s.mu.Unlock()

	// v0 does not multiplex: both components sit at handle 0, so the
	// function code alone distinguishes an IMU sample event from a GNSS
	// one. v1 addresses components by their distinct handles.
	if version == wire.V0 {
		switch f.Function {
		case wire.FnEventIMUSample:
			if imuComp != nil {
				imuComp.HandleEventFrame(f)
			}
		case wire.FnEventGNSSSample, wire.FnEventNMEA:
			if gnssComp != nil {
				gnssComp.HandleEventFrame(f)
			}
		default:
			if s.logger != nil {
				s.logger.Printf("motionlink: unhandled v0 frame fn=%v", f.Function)
			}
		}
		return
	}

	if !ok {
		if s.logger != nil {
			s.logger.Printf("motionlink: no component for frame component=%d fn=%v", f.Component, f.Function)
		}
		return
	}
	comp.HandleEventFrame(f)
}

// StartSync puts the device into time-synchronization mode, where frame
// counters across multiple sensors latch to a shared external pulse. Only
// meaningful on byte-oriented sessions with a live framing channel.
func (s *Sensor) StartSync() error {
	return s.syncCommand(wire.FnStartSync)
}

// StopSync leaves time-synchronization mode.
func (s *Sensor) StopSync() error {
	return s.syncCommand(wire.FnStopSync)
}

func (s *Sensor) syncCommand(fn wire.FunctionCode) error {
	s.mu.Lock()
	ch := s.wireCh
	addr, version := s.addr, s.version
	state := s.state
	s.mu.Unlock()

	if state != StateRunning {
		return errs.New(errs.SessionNotInitialized, "session is not running")
	}
	if ch == nil {
		return errs.New(errs.SessionNotInitialized, "event-oriented sessions carry no framing channel")
	}
	return ch.SendAndWaitForAck(addr, 0, version, fn, nil, requestTimeout)
}

// State returns the sensor's current lifecycle state.
func (s *Sensor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Component returns the component registered at handle, if any.
func (s *Sensor) Component(handle uint8) (Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.components[handle]
	return c, ok
}

// Close performs the session teardown sequence: stop RTK corrections (left to
// the caller's rtk.Forwarder, which must be stopped before calling Close),
// best-effort persist navigation state on every GNSS component, abort any
// in-flight RPC, stop the transport reader, and release the handle. No
// component callback runs after Close returns.
func (s *Sensor) Close() error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateClosing {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	// gnssComp is set for both versions; under v0 the GNSS component is not
	// in s.components (it shares handle 0 with the IMU).
	gnss := s.gnssComp
	s.mu.Unlock()

	if gnss != nil {
		gnss.Close()
	}

	if s.wireCh != nil {
		s.wireCh.Abort(errs.New(errs.TransportCancelled, "session closed"))
	}

	var err error
	if s.byteCh != nil {
		err = s.byteCh.Close()
	} else if s.eventCh != nil {
		err = s.eventCh.Close()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if err != nil {
		return errs.Wrap(errs.TransportWriteFailed, "closing transport", err)
	}
	return nil
}

// subscriberSwitch sits between a freshly obtained transport.ByteChannel and
// the eventual wire.Channel, so the Negotiating state can probe the
// link with a raw GetConfig request before any wire.Decoder has committed to
// a protocol version. Bytes received before commit are buffered; commit
// replays whatever the negotiation probe did not consume to the real
// subscriber and forwards every byte after that directly.
type subscriberSwitch struct {
	mu     sync.Mutex
	buf    []byte
	ready  chan struct{}
	target transport.Subscriber
}

func newSubscriberSwitch() *subscriberSwitch {
	return &subscriberSwitch{ready: make(chan struct{}, 1)}
}

func (s *subscriberSwitch) OnBytes(data []byte) {
	s.mu.Lock()
	if s.target != nil {
		target := s.target
		s.mu.Unlock()
		target.OnBytes(data)
		return
	}
	s.buf = append(s.buf, data...)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *subscriberSwitch) snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out
}

// commit installs target as the permanent subscriber for every future byte
// and replays whatever in buf was not consumed by the negotiation probe
// (buf[consumed:]) through it once, so no byte is lost between the probe and
// the real decoder taking over.
func (s *subscriberSwitch) commit(target transport.Subscriber, consumed int) {
	s.mu.Lock()
	var tail []byte
	if consumed < len(s.buf) {
		tail = append([]byte(nil), s.buf[consumed:]...)
	}
	s.buf = nil
	s.target = target
	s.mu.Unlock()

	if len(tail) > 0 {
		target.OnBytes(tail)
	}
}

// otherVersion returns the wire protocol version v is not.
func otherVersion(v wire.Version) wire.Version {
	if v == wire.V0 {
		return wire.V1
	}
	return wire.V0
}

const defaultNegotiationTimeout = 500 * time.Millisecond

// negotiateVersion implements the Negotiating state: it sends a
// GetConfig request framed first as opts.Version, then (if no response
// arrives in time) as the other version, and returns whichever framing
// produces a well-formed GetConfig response. Firmware that never answers is
// reported as an error; the caller falls back to opts.Version.
func negotiateVersion(ctx context.Context, bch transport.ByteChannel, sw *subscriberSwitch, opts Options) (wire.Version, int, error) {
	timeout := opts.NegotiationTimeout
	if timeout <= 0 {
		timeout = defaultNegotiationTimeout
	}
	perTry := timeout / 2
	if perTry <= 0 {
		perTry = timeout
	}

	candidates := []wire.Version{opts.Version, otherVersion(opts.Version)}
	var lastErr error
	for _, v := range candidates {
		probe := wire.Encode(wire.Frame{Version: v, Address: 0, Component: 0, Function: wire.FnGetConfig})
		if err := bch.Send(probe); err != nil {
			return 0, 0, errs.Wrap(errs.TransportWriteFailed, "sending negotiation probe", err)
		}

		deadline := time.Now().Add(perTry)
	tryLoop:
		for {
			if f, n, err := wire.Decode(v, sw.snapshot()); err == nil && n > 0 && f.Function == wire.FnGetConfig {
				return v, n, nil
			}

			remaining := time.Until(deadline)
			if remaining <= 0 {
				break tryLoop
			}
			select {
			case <-sw.ready:
			case <-time.After(remaining):
				break tryLoop
			case <-ctx.Done():
				return 0, 0, errs.Wrap(errs.SessionVersionUnsupported, "negotiation cancelled", ctx.Err())
			}
		}
		lastErr = errs.New(errs.ProtocolResponseTimeout, "no GetConfig response framed as "+versionName(v))
	}

	return 0, 0, errs.Wrap(errs.SessionVersionUnsupported, "no GetConfig response in either protocol version", lastErr)
}

func versionName(v wire.Version) string {
	if v == wire.V1 {
		return "v1"
	}
	return "v0"
}
