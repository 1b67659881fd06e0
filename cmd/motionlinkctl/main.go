// Command motionlinkctl is a thin demo CLI over the core library: it
// discovers sensors across every registered transport, opens the first
// match (or the in-process TestSensor fixture when none is found), and
// prints IMU/GNSS samples as they arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/bramburn/motionlink/discovery"
	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/sensor"
	"github.com/bramburn/motionlink/transport"
	"github.com/bramburn/motionlink/wire"
)

func main() {
	useTestSensor := flag.Bool("test-sensor", false, "force use of the in-process TestSensor fixture")
	withGNSS := flag.Bool("gnss", false, "also open a GNSS component (byte-oriented transports only)")
	flag.Parse()

	logger := log.New(os.Stderr, "motionlinkctl: ", log.LstdFlags)

	transport.RegisterDefaults()
	reg := transport.Default()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	desc, err := pickSensor(ctx, reg, *useTestSensor)
	if err != nil {
		logger.Fatalf("no sensor available: %v", err)
	}

	opts := sensor.Options{
		Version:      wire.V0,
		Logger:       logger,
		WithGNSS:     *withGNSS,
		OnIMUSample:  printIMU,
		OnGNSSSample: printGNSS,
	}

	s, err := discovery.Open(ctx, reg, desc, opts)
	if err != nil {
		logger.Fatalf("opening sensor %q: %v", desc.Name, err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Printf("close: %v", err)
		}
	}()

	fmt.Printf("connected to %s (%s)\n", desc.Name, desc.IOType)
	<-ctx.Done()
	fmt.Println("shutting down")
	time.Sleep(100 * time.Millisecond)
}

// pickSensor returns the first descriptor any registered transport can see,
// or the in-process TestSensor fixture (always registered by
// RegisterDefaults) when forced or when nothing physical is attached.
func pickSensor(ctx context.Context, reg *transport.Registry, forceTest bool) (model.Descriptor, error) {
	if !forceTest {
		for _, d := range discovery.Discover(ctx, reg) {
			if d.IOType == transport.TestSensorKey {
				continue // prefer real hardware over the fixture
			}
			if _, err := reg.Get(d.IOType); err == nil {
				return d, nil
			}
		}
	}

	t, err := reg.Get(transport.TestSensorKey)
	if err != nil {
		return model.Descriptor{}, err
	}
	descs, err := t.Discover(ctx)
	if err != nil {
		return model.Descriptor{}, err
	}
	if len(descs) == 0 {
		return model.Descriptor{}, fmt.Errorf("test sensor reported no descriptors")
	}
	return descs[0], nil
}

func printIMU(s model.IMUSample) {
	fmt.Printf("imu  frame=%d t=%.3f quat=%.3f,%.3f,%.3f,%.3f acc=%.3f,%.3f,%.3f gyr=%.2f,%.2f,%.2f\n",
		s.Frame, s.Timestamp,
		s.Quat[0], s.Quat[1], s.Quat[2], s.Quat[3],
		s.Acc[0], s.Acc[1], s.Acc[2],
		s.Gyr[0], s.Gyr[1], s.Gyr[2])
}

func printGNSS(s model.GNSSSample) {
	fmt.Printf("gnss frame=%d t=%.3f fix=%d sats=%d lat=%.7f lon=%.7f height=%.3f\n",
		s.Frame, s.Timestamp, s.FixType, s.NumSats, s.Latitude, s.Longitude, s.Height)
}
