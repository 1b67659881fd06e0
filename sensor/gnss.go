package sensor

import (
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/bramburn/motionlink/calib"
	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/wire"
)

// gnssOutputGroup names the three independently-enabled property families
// (OutputNavPvt*, OutputNavAtt*, OutputEsfStatus*). Each
// field belongs to exactly one group; toggling a group's property on the
// device enables or disables every field in it at once.
type gnssOutputGroup int

const (
	groupNavPvt gnssOutputGroup = iota
	groupNavAtt
	groupEsfStatus
)

// gnssField describes one independently-enabled PVT/attitude/ESF output in
// wire order. The parser MUST consume every enabled field in exactly this
// order even when the application does not surface all of them,
// since disabled fields consume no bytes and an out-of-order read would
// silently desynchronize the stream.
type gnssField struct {
	name  string
	size  int // bytes consumed when enabled
	group gnssOutputGroup
}

var gnssFieldOrder = []gnssField{
	{"fixType", 1, groupNavPvt},
	{"flags", 1, groupNavPvt},
	{"numSats", 1, groupNavPvt},
	{"longitude", 4, groupNavPvt},
	{"latitude", 4, groupNavPvt},
	{"height", 4, groupNavPvt},
	{"horizAcc", 4, groupNavPvt},
	{"vertAcc", 4, groupNavPvt},
	{"velN", 4, groupNavPvt},
	{"velE", 4, groupNavPvt},
	{"velD", 4, groupNavPvt},
	{"headMotion", 4, groupNavAtt},
	{"headVehicle", 4, groupNavAtt},
	{"headAcc", 4, groupNavAtt},
	{"dateTime", 7, groupNavPvt},
	{"nanoCorrection", 4, groupEsfStatus},
}

// groupPropertyKeys maps each output group to the device-backed boolean
// property that enables it.
var groupPropertyKeys = map[gnssOutputGroup]PropertyKey{
	groupNavPvt:    PropOutputNavPvt,
	groupNavAtt:    PropOutputNavAtt,
	groupEsfStatus: PropOutputEsfStatus,
}

// GNSSComponent implements Component for the GNSS sub-device. It has no
// calibration cache (raw PVT fields come pre-scaled from firmware) and no
// init beyond reading the output layout and registering the event handler.
type GNSSComponent struct {
	baseComponent

	// Enabled controls, in gnssFieldOrder, which fields the firmware has
	// been configured to emit. Read once at open from the
	// OutputNavPvt*/OutputNavAtt*/OutputEsfStatus* properties; the core
	// trusts the caller to keep this in sync with the device
	// configuration it requested.
	Enabled map[string]bool

	onSample gnssEventFn
	onNMEA   func(nmea.Sentence)
}

// NewGNSSComponent constructs a GNSS component with every field enabled by
// default (the common case: most applications want the full PVT fix).
func NewGNSSComponent(addr, handle uint8, v wire.Version, ch requester, onSample gnssEventFn) *GNSSComponent {
	enabled := make(map[string]bool, len(gnssFieldOrder))
	for _, f := range gnssFieldOrder {
		enabled[f.name] = true
	}
	return &GNSSComponent{
		baseComponent: baseComponent{addr: addr, handle: handle, version: v, ch: ch, props: NewTable()},
		Enabled:       enabled,
		onSample:      onSample,
	}
}

func (c *GNSSComponent) Handle() uint8 { return c.handle }
func (c *GNSSComponent) Kind() Kind    { return KindGNSS }

// Init reads the three output-enable group properties so the parser
// knows which fields are actually present on the wire, and subscribes to
// each so a later application write keeps the layout coherent without a
// re-read. GNSS has no calibration cache to seed (raw PVT fields come
// pre-scaled from firmware).
func (c *GNSSComponent) Init() error {
	for group, key := range groupPropertyKeys {
		group, key := group, key
		resp, err := c.ch.SendAndWaitForResult(c.addr, c.handle, c.version, wire.FnGetProperty, encodeProp(key, nil), requestTimeout)
		if err != nil {
			return err
		}
		if len(resp) < 1 {
			return errs.New(errs.ProtocolMessageCorrupt, "gnss output-enable response too short")
		}
		c.setGroupEnabled(group, resp[0] != 0)
		c.props.Subscribe(key, func(_ PropertyKey, value []byte) {
			if len(value) > 0 {
				c.setGroupEnabled(group, value[0] != 0)
			}
		})
	}
	return nil
}

func (c *GNSSComponent) setGroupEnabled(group gnssOutputGroup, enabled bool) {
	for _, f := range gnssFieldOrder {
		if f.group == group {
			c.Enabled[f.name] = enabled
		}
	}
}

// SendRTK forwards one RTCM3 frame to the device via the ack-expected
// SetRtkCorrection function, satisfying rtk.Sink. Used by an
// rtk.Forwarder attached to this component.
func (c *GNSSComponent) SendRTK(frame []byte) error {
	return c.ch.SendAndWaitForAck(c.addr, c.handle, c.version, wire.FnSetRtkCorrection, frame, requestTimeout)
}

// Close best-effort persists navigation state: stopping RTK forwarding is
// left to the caller's rtk.Forwarder, then SaveGpsState is sent and its ack
// awaited for at most requestTimeout. A failure is discarded; it is not
// logged and does not stop the teardown.
func (c *GNSSComponent) Close() {
	_ = c.ch.SendAndWaitForAck(c.addr, c.handle, c.version, wire.FnSaveGpsState, nil, requestTimeout)
}

func (c *GNSSComponent) HandleEventFrame(f wire.Frame) {
	if f.Function == wire.FnEventNMEA {
		c.handleNMEAPassthrough(f.Payload)
		return
	}
	if c.onSample == nil {
		return
	}
	sample, err := c.ParseSample(f.Payload)
	if err != nil {
		return
	}
	c.onSample(sample)
}

// ParseSample decodes payload into a GNSS sample record: fixed field
// order, fixed-point decimal decoding for lat/lon/height/accuracy/heading
// fields, frame counter times the fixed 0.002s period.
func (c *GNSSComponent) ParseSample(payload []byte) (model.GNSSSample, error) {
	var s model.GNSSSample
	if len(payload) < 4 {
		return s, errs.New(errs.ProtocolMessageCorrupt, "gnss sample shorter than frame counter")
	}
	s.Component = int(c.handle)
	s.Frame = decodeUint32LE(payload[:4])
	s.Timestamp = float64(s.Frame) * calib.GNSSSamplingPeriod
	s.ReceivedAt = time.Now().UTC()

	b := payload[4:]
	for _, f := range gnssFieldOrder {
		if !c.Enabled[f.name] {
			continue
		}
		if len(b) < f.size {
			return s, errs.New(errs.ProtocolMessageCorrupt, "truncated gnss field "+f.name)
		}
		chunk := b[:f.size]
		b = b[f.size:]

		switch f.name {
		case "fixType":
			s.FixType = model.FixType(chunk[0])
		case "flags":
			s.Carrier = model.CarrierPhaseSolution((chunk[0] >> 6) & 0x03)
		case "numSats":
			s.NumSats = chunk[0]
		case "longitude":
			s.Longitude = fixedPoint(decodeInt32LE(chunk), -7)
		case "latitude":
			s.Latitude = fixedPoint(decodeInt32LE(chunk), -7)
		case "height":
			s.Height = fixedPoint(decodeInt32LE(chunk), -3)
		case "horizAcc":
			s.HorizAcc = fixedPoint(decodeInt32LE(chunk), -3)
		case "vertAcc":
			s.VertAcc = fixedPoint(decodeInt32LE(chunk), -3)
		case "velN":
			s.VelN = fixedPoint(decodeInt32LE(chunk), -3)
		case "velE":
			s.VelE = fixedPoint(decodeInt32LE(chunk), -3)
		case "velD":
			s.VelD = fixedPoint(decodeInt32LE(chunk), -3)
		case "headMotion":
			s.HeadMotion = fixedPoint(decodeInt32LE(chunk), -5)
		case "headVehicle":
			s.HeadVehicle = fixedPoint(decodeInt32LE(chunk), -5)
		case "headAcc":
			s.HeadAcc = fixedPoint(decodeInt32LE(chunk), -5)
		case "dateTime":
			s.Year = int(decodeUint16LE(chunk[0:2]))
			s.Month = int(chunk[2])
			s.Day = int(chunk[3])
			s.Hour = int(chunk[4])
			s.Minute = int(chunk[5])
			s.Second = int(chunk[6])
		case "nanoCorrection":
			s.NanoCorrection = decodeInt32LE(chunk)
		}
	}

	return s, nil
}
