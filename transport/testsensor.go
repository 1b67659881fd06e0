package transport

import (
	"context"
	"sync"
	"time"

	"github.com/bramburn/motionlink/model"
)

const TestSensorKey = "TestSensor"

const testSensorIdentifier = "test-sensor-0"

// TestSensorTransport is an in-process, event-oriented fixture: it never
// touches real hardware, emitting a fixed 100 Hz synthetic IMU stream so
// the rest of the stack (session lifecycle, event dispatch, calibration
// pass-through) can be exercised without a physical sensor attached. The
// fixed sample values are the ones firmware produces on its own built-in
// self-test stream.
type TestSensorTransport struct{}

func NewTestSensorTransport() *TestSensorTransport { return &TestSensorTransport{} }

func (t *TestSensorTransport) Key() string           { return TestSensorKey }
func (t *TestSensorTransport) Available() bool       { return true }
func (t *TestSensorTransport) IsEventOriented() bool { return true }

func (t *TestSensorTransport) Discover(ctx context.Context) ([]model.Descriptor, error) {
	return []model.Descriptor{{
		Name:       "Test Sensor",
		IOType:     TestSensorKey,
		Identifier: testSensorIdentifier,
		BaudRate:   0,
	}}, nil
}

func (t *TestSensorTransport) Obtain(ctx context.Context, desc model.Descriptor, _ Subscriber, esub EventSubscriber) (ByteChannel, EventChannel, error) {
	ch := &testSensorChannel{desc: desc, stop: make(chan struct{})}
	ch.wg.Add(1)
	go ch.run(esub)
	return nil, ch, nil
}

type testSensorChannel struct {
	desc model.Descriptor
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (c *testSensorChannel) run(esub EventSubscriber) {
	defer c.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond) // 100 Hz
	defer ticker.Stop()

	var frame uint32
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			frame++
			if esub == nil {
				continue
			}
			esub.OnEvent(model.IMUSample{
				Component: 0,
				Frame:     frame,
				Timestamp: float64(frame) * 0.01,
				Quat:      [4]float64{0.5, -0.5, -0.5, 0.5},
				Acc:       [3]float64{0, 0, -1},
				RawAcc:    [3]float64{0, 0, -1},
				Gyr:       [3]float64{23, 24, 25},
				RawGyr:    [3]float64{23, 24, 25},
			})
		}
	}
}

func (c *testSensorChannel) Type() string { return TestSensorKey }

func (c *testSensorChannel) Equals(desc model.Descriptor) bool {
	return desc.IOType == TestSensorKey && desc.Identifier == c.desc.Identifier
}

func (c *testSensorChannel) Close() error {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
	return nil
}
