package wire

import (
	"sync"
	"time"

	"github.com/bramburn/motionlink/errs"
)

// Sender is the minimal capability Channel needs from whatever transport
// channel carries its bytes. transport.ByteChannel satisfies this
// structurally; wire does not import transport so the dependency only runs
// one way.
type Sender interface {
	Send(data []byte) error
}

// EventHandler receives frames the channel could not match to a pending
// request: sample events and unsolicited notifications.
type EventHandler func(Frame)

// rpcResult is what a pending request's done channel delivers.
type rpcResult struct {
	payload []byte
	err     error
}

// pendingRequest is the single in-flight RPC slot described by the
// protocol: Empty -> Armed -> Matched/TimedOut/Aborted -> Empty. Only one
// instance exists per Channel at a time.
type pendingRequest struct {
	function FunctionCode
	done     chan rpcResult
}

// Channel layers the synchronous RPC envelope over a Sender plus a
// Decoder fed from the transport's Subscriber callback. At most one RPC is
// in flight at a time; a second concurrent call blocks on sendMu until the
// first completes.
type Channel struct {
	sender  Sender
	decoder *Decoder
	onEvent EventHandler

	sendMu sync.Mutex // serializes sendAndWaitFor* calls end to end

	slotMu sync.Mutex
	slot   *pendingRequest

	closed bool
}

// NewChannel builds a Channel. handler receives every frame that does not
// match the currently pending request (sample events, unsolicited
// notifications). sender may be nil and supplied later via SetSender, which
// lets a caller register the channel as a transport.Subscriber before the
// transport handle (and therefore the Sender) exists.
func NewChannel(sender Sender, version Version, handler EventHandler) *Channel {
	return &Channel{
		sender:  sender,
		decoder: NewDecoder(version),
		onEvent: handler,
	}
}

// SetSender installs the Sender used by subsequent requests. Safe to call
// once, right after the transport handle that backs sender has been
// obtained.
func (c *Channel) SetSender(sender Sender) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.sender = sender
}

// OnBytes implements transport.Subscriber: it feeds raw bytes into the
// decoder and dispatches every frame that comes out.
func (c *Channel) OnBytes(data []byte) {
	for _, f := range c.decoder.Feed(data) {
		c.dispatch(f)
	}
}

func (c *Channel) dispatch(f Frame) {
	c.slotMu.Lock()
	slot := c.slot
	if slot != nil && slot.function == f.Function {
		c.slot = nil
		c.slotMu.Unlock()
		slot.done <- rpcResult{payload: f.Payload}
		return
	}
	c.slotMu.Unlock()

	if c.onEvent != nil {
		c.onEvent(f)
	}
}

// SendAndWaitForAck writes an ack-expected request and blocks until a
// matching response arrives, the deadline elapses, or the channel is
// aborted. A non-OK status surfaces as errs.ProtocolNegativeAck.
func (c *Channel) SendAndWaitForAck(addr, component uint8, version Version, fn FunctionCode, payload []byte, timeout time.Duration) error {
	_, err := c.sendAndWait(addr, component, version, fn, payload, timeout)
	return err
}

// SendAndWaitForResult is identical to SendAndWaitForAck but returns the
// response payload on success, for property reads.
func (c *Channel) SendAndWaitForResult(addr, component uint8, version Version, fn FunctionCode, payload []byte, timeout time.Duration) ([]byte, error) {
	return c.sendAndWait(addr, component, version, fn, payload, timeout)
}

func (c *Channel) sendAndWait(addr, component uint8, version Version, fn FunctionCode, payload []byte, timeout time.Duration) ([]byte, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	slot := &pendingRequest{function: fn, done: make(chan rpcResult, 1)}
	c.slotMu.Lock()
	if c.closed {
		c.slotMu.Unlock()
		return nil, errs.New(errs.SessionAlreadyClosed, "channel is closed")
	}
	c.slot = slot
	c.slotMu.Unlock()

	frame := Frame{Version: version, Address: addr, Component: component, Function: fn, Payload: payload}
	if err := c.sender.Send(Encode(frame)); err != nil {
		c.clearSlot(slot)
		return nil, errs.Wrap(errs.TransportWriteFailed, "sending request", err)
	}

	select {
	case res := <-slot.done:
		if res.err != nil {
			return nil, res.err
		}
		// Response payloads lead with a one-byte status; data, if any,
		// follows it. An empty payload is an implicit OK ack.
		status := StatusOK
		data := res.payload
		if len(data) > 0 {
			status = Status(data[0])
			data = data[1:]
		}
		if status != StatusOK {
			return nil, errs.NegativeAck(uint16(fn), byte(status))
		}
		return data, nil
	case <-time.After(timeout):
		c.clearSlot(slot)
		return nil, errs.New(errs.ProtocolResponseTimeout, "no response before deadline")
	}
}

func (c *Channel) clearSlot(slot *pendingRequest) {
	c.slotMu.Lock()
	if c.slot == slot {
		c.slot = nil
	}
	c.slotMu.Unlock()
}

// Abort wakes any waiter with err and marks the channel closed so future
// calls fail fast. Used when the underlying transport fails or the session
// closes while an RPC is outstanding.
func (c *Channel) Abort(err error) {
	c.slotMu.Lock()
	slot := c.slot
	c.slot = nil
	c.closed = true
	c.slotMu.Unlock()

	if slot != nil {
		slot.done <- rpcResult{err: err}
	}
}
