package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderResynchronizesAfterGarbagePrefix(t *testing.T) {
	f := Frame{Version: V0, Address: 1, Function: FnEventIMUSample, Payload: []byte{1, 2, 3, 4}}
	valid := Encode(f)

	garbage := []byte{0x01, 0x02, 0x03}
	stream := append(append([]byte{}, garbage...), valid...)

	d := NewDecoder(V0)
	frames := d.Feed(stream)

	require.Len(t, frames, 1)
	assert.Equal(t, f.Payload, frames[0].Payload)
}

func TestDecoderAccumulatesAcrossFeeds(t *testing.T) {
	f := Frame{Version: V1, Address: 1, Component: 2, Function: FnEventGNSSSample, Payload: []byte{9, 9, 9}}
	buf := Encode(f)

	d := NewDecoder(V1)
	mid := len(buf) / 2
	assert.Empty(t, d.Feed(buf[:mid]))

	frames := d.Feed(buf[mid:])
	require.Len(t, frames, 1)
	assert.Equal(t, f.Payload, frames[0].Payload)
}

func TestDecoderExtractsMultipleFramesFromOneFeed(t *testing.T) {
	f1 := Frame{Version: V0, Address: 1, Function: FnAck, Payload: []byte{0}}
	f2 := Frame{Version: V0, Address: 1, Function: FnAck, Payload: []byte{1}}
	stream := append(Encode(f1), Encode(f2)...)

	d := NewDecoder(V0)
	frames := d.Feed(stream)
	require.Len(t, frames, 2)
	assert.Equal(t, byte(0), frames[0].Payload[0])
	assert.Equal(t, byte(1), frames[1].Payload[0])
}
