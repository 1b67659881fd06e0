package rtk

import (
	"sync"

	"go.bug.st/serial"

	"github.com/go-gnss/rtcm/rtcm3"

	"github.com/bramburn/motionlink/errs"
)

// SerialSource reads an RTCM3 stream from a local serial port, for
// base-station radio links wired directly to the rover's host rather than
// reached over the network.
type SerialSource struct {
	PortName string
	BaudRate int

	mu   sync.Mutex
	port serial.Port
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSerialSource builds a Source that reads RTCM3 from a local serial port.
func NewSerialSource(portName string, baudRate int) *SerialSource {
	return &SerialSource{PortName: portName, BaudRate: baudRate}
}

func (s *SerialSource) Start(onFrame func(messageType int, frame []byte)) error {
	mode := &serial.Mode{BaudRate: s.BaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(s.PortName, mode)
	if err != nil {
		return errs.Wrap(errs.TransportOpenFailed, "opening RTK serial source "+s.PortName, err)
	}

	s.mu.Lock()
	s.port = port
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(onFrame)
	return nil
}

func (s *SerialSource) readLoop(onFrame func(int, []byte)) {
	defer s.wg.Done()
	parser := rtcm3.NewParser()
	buf := make([]byte, 4096)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, err := s.port.Read(buf)
		if n > 0 {
			parser.Write(buf[:n])
			for {
				frame, ferr := parser.NextFrame()
				if ferr != nil {
					break
				}
				msg, derr := rtcm3.DeserializeMessage(frame.Data)
				if derr != nil {
					continue
				}
				onFrame(int(msg.Number()), frame.Data)
			}
		}
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				continue
			}
		}
	}
}

func (s *SerialSource) Stop() error {
	s.mu.Lock()
	port := s.port
	stop := s.stop
	s.port = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if port != nil {
		_ = port.Close()
	}
	s.wg.Wait()
	return nil
}
