package sensor

import (
	"strings"

	"github.com/adrianmo/go-nmea"

	"github.com/bramburn/motionlink/errs"
)

// ParseNMEAPassthrough decodes one NMEA sentence from a GNSS firmware
// variant that echoes plain-text NMEA alongside its binary sample stream
// (some GNSS modules default to this until explicitly silenced). Echoed
// sentences arrive as passthrough event frames and reach the handler
// registered with SetNMEAHandler; this function is also usable directly
// for lines read out-of-band.
func ParseNMEAPassthrough(line string) (nmea.Sentence, error) {
	s, err := nmea.Parse(line)
	if err != nil {
		return nil, errs.Wrap(errs.ProtocolMessageCorrupt, "parsing passthrough NMEA sentence", err)
	}
	return s, nil
}

// SetNMEAHandler registers cb to receive decoded NMEA sentences from
// passthrough event frames. Passing nil drops passthrough frames again.
// Like the sample callback, cb runs on the dispatcher goroutine and must
// not block.
func (c *GNSSComponent) SetNMEAHandler(cb func(nmea.Sentence)) {
	c.onNMEA = cb
}

// handleNMEAPassthrough decodes a passthrough frame's payload and hands the
// sentence to the registered handler. Corrupt sentences are dropped, the
// same way a corrupt binary sample frame never poisons the stream.
func (c *GNSSComponent) handleNMEAPassthrough(payload []byte) {
	if c.onNMEA == nil {
		return
	}
	line := strings.TrimRight(string(payload), "\r\n")
	s, err := ParseNMEAPassthrough(line)
	if err != nil {
		return
	}
	c.onNMEA(s)
}
