package sensor

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/transport"
	"github.com/bramburn/motionlink/wire"
)

// Regression for the v0 dispatch path: v0 never multiplexes components by
// handle, so an IMU+GNSS session shares handle 0 between both components.
// dispatchFrame must route by function code in that case instead of by the
// components map, or the GNSS component registration silently shadows the
// IMU one and IMU samples never reach their callback.
func TestDispatchFrameV0RoutesIMUAndGNSSByFunctionCode(t *testing.T) {
	imu := NewIMUComponent(1, 0, wire.V0, nil, nil)
	imu.OutputEnables = 1 << bitRawAcc

	gnss := NewGNSSComponent(1, 0, wire.V0, nil, nil)
	for name := range gnss.Enabled {
		gnss.Enabled[name] = false // minimal frame counter-only payload below
	}

	var gotIMU, gotGNSS bool
	imu.onSample = func(model.IMUSample) { gotIMU = true }
	gnss.onSample = func(model.GNSSSample) { gotGNSS = true }

	s := &Sensor{
		version:    wire.V0,
		components: map[uint8]Component{0: gnss}, // mirrors the real collision at handle 0
		imuComp:    imu,
		gnssComp:   gnss,
	}

	imuPayload := make([]byte, 4+12) // frame + one full-precision triplet (raw accel)
	binary.LittleEndian.PutUint32(imuPayload[0:4], 1)

	s.dispatchFrame(wire.Frame{Version: wire.V0, Component: 0, Function: wire.FnEventIMUSample, Payload: imuPayload})
	assert.True(t, gotIMU, "v0 IMU sample frame must reach the IMU component despite the handle-0 collision")
	assert.False(t, gotGNSS)

	gotIMU = false
	gnssPayload := make([]byte, 4)
	binary.LittleEndian.PutUint32(gnssPayload, 1)
	s.dispatchFrame(wire.Frame{Version: wire.V0, Component: 0, Function: wire.FnEventGNSSSample, Payload: gnssPayload})
	assert.True(t, gotGNSS, "v0 GNSS sample frame must reach the GNSS component")
	assert.False(t, gotIMU)
}

// Closing a session mid-stream stops event delivery at the close boundary:
// every event delivered was dispatched before the close signal, and none
// arrives after Close returns.
func TestCloseDuringStreamDeliversNoEventsAfterClose(t *testing.T) {
	tr := transport.NewTestSensorTransport()
	descs, err := tr.Discover(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, descs)

	var mu sync.Mutex
	count := 0
	s, err := Open(context.Background(), tr, descs[0], Options{
		OnIMUSample: func(model.IMUSample) {
			mu.Lock()
			count++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, s.State())

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := count
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	mu.Lock()
	atClose := count
	mu.Unlock()
	require.GreaterOrEqual(t, atClose, 3, "stream should have been live before close")

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()
	assert.Equal(t, atClose, after, "no event may be delivered after Close returns")
}

// Closing twice is idempotent, and sync commands on a closed or
// event-oriented session fail with a session error rather than hanging.
func TestSyncCommandsRequireRunningByteSession(t *testing.T) {
	tr := transport.NewTestSensorTransport()
	descs, err := tr.Discover(context.Background())
	require.NoError(t, err)

	s, err := Open(context.Background(), tr, descs[0], Options{})
	require.NoError(t, err)

	// Event-oriented sessions have no framing channel to carry the command.
	err = s.StartSync()
	require.Error(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.StopSync()
	require.Error(t, err)
}
