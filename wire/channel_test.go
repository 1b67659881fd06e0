package wire

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/motionlink/errs"
)

// loopbackSender immediately answers every request with an OK-status
// response on the same function code, simulating a well-behaved device for
// tests that don't need a real transport.
type loopbackSender struct {
	ch      *Channel
	respond bool
}

func (s *loopbackSender) Send(data []byte) error {
	if !s.respond {
		return nil
	}
	f, _, err := Decode(V0, data)
	if err != nil || f == nil {
		return nil
	}
	resp := Frame{Version: V0, Address: f.Address, Function: f.Function, Payload: []byte{byte(StatusOK)}}
	s.ch.OnBytes(Encode(resp))
	return nil
}

func TestSendAndWaitForAckMatchesResponse(t *testing.T) {
	ch := NewChannel(nil, V0, nil)
	ch.SetSender(&loopbackSender{ch: ch, respond: true})

	err := ch.SendAndWaitForAck(1, 0, V0, FnSetProperty, []byte{0x01}, time.Second)
	assert.NoError(t, err)
}

func TestSendAndWaitForResultTimesOut(t *testing.T) {
	ch := NewChannel(nil, V0, nil)
	ch.SetSender(&loopbackSender{ch: ch, respond: false})

	start := time.Now()
	_, err := ch.SendAndWaitForResult(1, 0, V0, FnGetProperty, nil, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ProtocolResponseTimeout))
	assert.InDelta(t, 50*time.Millisecond, elapsed, float64(20*time.Millisecond))
}

func TestConcurrentRequestsSerialize(t *testing.T) {
	ch := NewChannel(nil, V0, nil)
	ch.SetSender(&loopbackSender{ch: ch, respond: true})

	var wg sync.WaitGroup
	errsOut := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errsOut[i] = ch.SendAndWaitForAck(1, 0, V0, FnSetProperty, []byte{byte(i)}, time.Second)
		}(i)
	}
	wg.Wait()

	for _, err := range errsOut {
		assert.NoError(t, err)
	}
}

func TestAbortWakesPendingWaiter(t *testing.T) {
	ch := NewChannel(nil, V0, nil)
	ch.SetSender(&loopbackSender{ch: ch, respond: false})

	done := make(chan error, 1)
	go func() {
		_, err := ch.SendAndWaitForResult(1, 0, V0, FnGetProperty, nil, 5*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Abort(errs.New(errs.TransportCancelled, "closing"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.TransportCancelled))
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Abort within 1s")
	}
}
