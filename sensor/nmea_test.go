package sensor

import (
	"testing"

	"github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/wire"
)

const validRMCSentence = "$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*70"

// A passthrough event frame reaches the registered NMEA handler as a
// decoded sentence and never touches the binary sample path.
func TestHandleEventFrameRoutesNMEAPassthrough(t *testing.T) {
	var gotSample bool
	c := NewGNSSComponent(1, 1, wire.V1, nil, func(model.GNSSSample) { gotSample = true })

	var got nmea.Sentence
	c.SetNMEAHandler(func(s nmea.Sentence) { got = s })

	c.HandleEventFrame(wire.Frame{
		Version:   wire.V1,
		Component: 1,
		Function:  wire.FnEventNMEA,
		Payload:   []byte(validRMCSentence + "\r\n"),
	})

	require.NotNil(t, got)
	assert.Equal(t, "RMC", got.DataType())
	assert.Equal(t, "GP", got.TalkerID())
	assert.False(t, gotSample, "passthrough frames must not be parsed as binary samples")
}

func TestParseNMEAPassthroughRejectsCorruptSentence(t *testing.T) {
	_, err := ParseNMEAPassthrough("$GPRMC,garbage*00")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ProtocolMessageCorrupt))
}

// Without a registered handler, passthrough frames are dropped silently.
func TestNMEAPassthroughWithoutHandlerIsDropped(t *testing.T) {
	c := NewGNSSComponent(1, 1, wire.V1, nil, nil)
	c.HandleEventFrame(wire.Frame{Function: wire.FnEventNMEA, Payload: []byte(validRMCSentence)})
}
