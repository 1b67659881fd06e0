package transport

import (
	"context"
	"encoding/json"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
)

const ZeroMQKey = "ZeroMQ"

// envelopeKind discriminates the JSON payload published on the wire topic,
// since MQTT (unlike ZeroMQ's native multipart messages, which the source
// used to tag frames) carries a single opaque byte string per message.
type envelopeKind string

const (
	envelopeIMU  envelopeKind = "imu"
	envelopeGNSS envelopeKind = "gnss"
)

type envelope struct {
	Kind envelopeKind      `json:"kind"`
	IMU  *model.IMUSample  `json:"imu,omitempty"`
	GNSS *model.GNSSSample `json:"gnss,omitempty"`
}

// PubSubTransport is event-oriented: it subscribes to every message on a
// broker endpoint and republishes each as an already-decoded model.Event,
// the same shape the source's ZeroMQInterface gives its subscriber. No
// ZeroMQ binding exists anywhere in the retrieval pack, so this substitutes
// the pack's one real network pub/sub client, MQTT, keeping the
// "subscribe to all messages on an endpoint" contract the key name
// promises.
type PubSubTransport struct {
	brokerURL string
	clientID  string
}

// NewPubSubTransport builds a transport bound to one MQTT broker endpoint.
// It is not part of RegisterDefaults because, unlike the desktop/BLE
// transports, it needs a URL the embedder must supply.
func NewPubSubTransport(brokerURL, clientID string) *PubSubTransport {
	return &PubSubTransport{brokerURL: brokerURL, clientID: clientID}
}

func (t *PubSubTransport) Key() string           { return ZeroMQKey }
func (t *PubSubTransport) Available() bool       { return t.brokerURL != "" }
func (t *PubSubTransport) IsEventOriented() bool { return true }

func (t *PubSubTransport) Discover(ctx context.Context) ([]model.Descriptor, error) {
	// The broker endpoint itself is the one addressable "sensor": there is
	// no further enumeration step, matching the source's ZeroMQSystem,
	// which always reports exactly one configured endpoint.
	return []model.Descriptor{{
		Name:       "MQTT sensor feed",
		IOType:     ZeroMQKey,
		Identifier: t.brokerURL,
	}}, nil
}

func (t *PubSubTransport) Obtain(ctx context.Context, desc model.Descriptor, _ Subscriber, esub EventSubscriber) (ByteChannel, EventChannel, error) {
	opts := mqtt.NewClientOptions().AddBroker(t.brokerURL).SetClientID(t.clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "connecting to "+t.brokerURL, token.Error())
	}

	ch := &pubsubChannel{desc: desc, client: client}
	topic := "#" // MQTT multi-level wildcard: every topic on the broker
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var env envelope
		if err := json.Unmarshal(msg.Payload(), &env); err != nil {
			return
		}
		if esub == nil {
			return
		}
		switch env.Kind {
		case envelopeIMU:
			if env.IMU != nil {
				esub.OnEvent(*env.IMU)
			}
		case envelopeGNSS:
			if env.GNSS != nil {
				esub.OnEvent(*env.GNSS)
			}
		}
	})
	if token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, nil, errs.Wrap(errs.TransportOpenFailed, "subscribing to "+topic, token.Error())
	}
	ch.topic = topic
	return nil, ch, nil
}

type pubsubChannel struct {
	desc   model.Descriptor
	client mqtt.Client
	topic  string
	mu     sync.Mutex
	closed bool
}

func (c *pubsubChannel) Type() string { return ZeroMQKey }

func (c *pubsubChannel) Equals(desc model.Descriptor) bool {
	return desc.IOType == ZeroMQKey && desc.Identifier == c.desc.Identifier
}

func (c *pubsubChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.topic != "" {
		if token := c.client.Unsubscribe(c.topic); token.Wait() && token.Error() != nil {
			return errs.Wrap(errs.TransportWriteFailed, "unsubscribing from "+c.topic, token.Error())
		}
	}
	c.client.Disconnect(250)
	return nil
}
