package wire

// FunctionCode is the opcode field of a wire frame: it identifies a
// property operation, a command, or an event kind. The enumeration is
// closed; firmware never defines new codes at runtime.
type FunctionCode uint16

const (
	FnAck                    FunctionCode = 0x00
	FnGetConfig              FunctionCode = 0x01
	FnGetProperty            FunctionCode = 0x02
	FnSetProperty            FunctionCode = 0x03
	FnStartGyroCalibration   FunctionCode = 0x04
	FnResetOrientationOffset FunctionCode = 0x05
	FnStartSync              FunctionCode = 0x06
	FnStopSync               FunctionCode = 0x07
	FnSaveGpsState           FunctionCode = 0x08
	FnSetRtkCorrection       FunctionCode = 0x09
	FnSetDataMode            FunctionCode = 0x0A

	// Event codes: unsolicited frames carrying sample data rather than an
	// RPC response. FnEventNMEA carries a plain-text NMEA sentence echoed
	// by GNSS firmware variants that emit passthrough alongside the binary
	// stream.
	FnEventIMUSample  FunctionCode = 0x80
	FnEventGNSSSample FunctionCode = 0x81
	FnEventNMEA       FunctionCode = 0x82
)

// Status is the one-byte payload of an ack-only response.
type Status byte

const (
	StatusOK            Status = 0
	StatusNegativeAck   Status = 1
	StatusUnsupportedFn Status = 2
)
