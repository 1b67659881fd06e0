package sensor

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/motionlink/wire"
)

// int32 356635894 at exponent -7 decodes to 35.6635894 degrees;
// incrementing the raw value by one shifts the decoded value by ~1e-7
// degrees (~1cm at the equator).
func TestParseSampleLatitudeDecode(t *testing.T) {
	c := NewGNSSComponent(1, 1, wire.V1, nil, nil)
	for name := range c.Enabled {
		c.Enabled[name] = false
	}
	c.Enabled["latitude"] = true

	payload := make([]byte, 4+4)
	binary.LittleEndian.PutUint32(payload[0:4], 1)
	binary.LittleEndian.PutUint32(payload[4:8], uint32(356635894))

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.InDelta(t, 35.6635894, sample.Latitude, 1e-9)

	binary.LittleEndian.PutUint32(payload[4:8], uint32(356635895))
	sample2, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.InDelta(t, 1e-7, sample2.Latitude-sample.Latitude, 1e-12)
}

func TestParseSampleGNSSDisabledFieldsConsumeNoBytes(t *testing.T) {
	c := NewGNSSComponent(1, 1, wire.V1, nil, nil)
	for name := range c.Enabled {
		c.Enabled[name] = false
	}
	c.Enabled["fixType"] = true

	payload := make([]byte, 4+1)
	binary.LittleEndian.PutUint32(payload[0:4], 5)
	payload[4] = 3 // Fix3D

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), sample.Frame)
	assert.EqualValues(t, 3, sample.FixType)
}

func TestParseSampleGNSSTimestampIsFrameTimesFixedPeriod(t *testing.T) {
	c := NewGNSSComponent(1, 1, wire.V1, nil, nil)
	payload := make([]byte, 4+1+1+1+4+4+4+4+4+4+4+4+4+4+4+7+4)
	binary.LittleEndian.PutUint32(payload[0:4], 100)

	sample, err := c.ParseSample(payload)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, sample.Timestamp, 1e-12)
}
