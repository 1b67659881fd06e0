// Package wire implements the framed request/response protocol that rides
// on top of a transport.ByteChannel: frame encoding/decoding for the two
// supported firmware protocol versions (v0, v1), a streaming decoder that
// resynchronizes after corrupt bytes, and the single-slot RPC channel that
// pairs a blocking caller with its matching response.
package wire

import (
	"encoding/binary"

	"github.com/bramburn/motionlink/errs"
)

// Version identifies which of the two incompatible wire protocols a frame
// belongs to.
type Version int

const (
	V0 Version = iota
	V1
)

const syncByte = 0x3A

// Frame is the decoded shape of one wire message, valid for both protocol
// versions (Component is always 0 under v0, which does not multiplex).
type Frame struct {
	Version   Version
	Address   uint8
	Component uint8
	Function  FunctionCode
	Payload   []byte
}

// checksum is the unsigned 16-bit sum of every byte from Address through
// the last payload byte, inclusive. Both protocol versions use the same
// rolling sum.
func checksum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return sum
}

// Encode serializes f into its wire representation.
func Encode(f Frame) []byte {
	switch f.Version {
	case V1:
		return encodeV1(f)
	default:
		return encodeV0(f)
	}
}

func encodeV0(f Frame) []byte {
	body := make([]byte, 0, 3+len(f.Payload))
	body = append(body, f.Address, byte(f.Function), byte(len(f.Payload)))
	body = append(body, f.Payload...)

	out := make([]byte, 0, 1+len(body)+2)
	out = append(out, syncByte)
	out = append(out, body...)
	cksum := checksum(body)
	out = binary.LittleEndian.AppendUint16(out, cksum)
	return out
}

func encodeV1(f Frame) []byte {
	body := make([]byte, 0, 6+len(f.Payload))
	body = append(body, f.Address, f.Component)
	body = binary.LittleEndian.AppendUint16(body, uint16(f.Function))
	body = binary.LittleEndian.AppendUint16(body, uint16(len(f.Payload)))
	body = append(body, f.Payload...)

	out := make([]byte, 0, 1+len(body)+2)
	out = append(out, syncByte)
	out = append(out, body...)
	cksum := checksum(body)
	out = binary.LittleEndian.AppendUint16(out, cksum)
	return out
}

// headerLen returns the minimum number of bytes needed before the payload
// length can be determined, for a given version, not counting the sync
// byte.
func headerLen(v Version) int {
	if v == V1 {
		return 6 // ADDR + COMPONENT + FN(2) + LEN(2)
	}
	return 3 // ADDR + FN + LEN
}

// Decode attempts to parse exactly one frame of the given version starting
// at buf[0] == syncByte. It returns the frame, the number of bytes
// consumed from buf, and an error. A nil frame with consumed == 0 means
// "need more bytes"; ProtocolMessageCorrupt means the checksum failed and
// the caller should resynchronize by dropping buf[0] and retrying.
func Decode(v Version, buf []byte) (*Frame, int, error) {
	if len(buf) == 0 || buf[0] != syncByte {
		return nil, 0, nil
	}
	hdr := headerLen(v)
	if len(buf) < 1+hdr {
		return nil, 0, nil
	}

	body := buf[1:]
	var f Frame
	f.Version = v
	var payloadLen int

	if v == V1 {
		f.Address = body[0]
		f.Component = body[1]
		f.Function = FunctionCode(binary.LittleEndian.Uint16(body[2:4]))
		payloadLen = int(binary.LittleEndian.Uint16(body[4:6]))
	} else {
		f.Address = body[0]
		f.Function = FunctionCode(body[1])
		payloadLen = int(body[2])
	}

	total := 1 + hdr + payloadLen + 2
	if len(buf) < total {
		return nil, 0, nil // need more bytes
	}

	payload := make([]byte, payloadLen)
	copy(payload, body[hdr:hdr+payloadLen])
	f.Payload = payload

	gotChecksum := binary.LittleEndian.Uint16(buf[1+hdr+payloadLen : total])
	wantChecksum := checksum(body[:hdr+payloadLen])
	if gotChecksum != wantChecksum {
		return nil, 0, errs.New(errs.ProtocolMessageCorrupt, "frame checksum mismatch")
	}

	return &f, total, nil
}
