// internal/mqttsource/bridge.go
package mqttsource

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"smart-home-gateway/internal/config"
	"smart-home-gateway/internal/ingest"
)

// AckHandler receives actuator feedback messages (fan speed echo, switch
// state, color) keyed by actuator name.
type AckHandler interface {
	ApplyAck(key, payload string)
}

// Bridge subscribes the configured broker feeds and routes sensor readings
// into the ingestion gateway and actuator echoes into the device layer. The
// connection manager reconnects and resubscribes on its own; a broker
// outage never stops the HTTP servers.
type Bridge struct {
	cm       *autopaho.ConnectionManager
	gateway  *ingest.Gateway
	acks     AckHandler
	feeds    map[string]string // topic -> channel name
	ackByTop map[string]string // topic -> actuator key
}

func NewBridge(ctx context.Context, cfg *config.Config, gw *ingest.Gateway, acks AckHandler) (*Bridge, error) {
	if cfg.MQTT.BrokerURL == "" {
		return nil, nil // MQTT disabled
	}
	u, err := url.Parse(cfg.MQTT.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("bad broker url: %w", err)
	}

	b := &Bridge{
		gateway:  gw,
		acks:     acks,
		feeds:    cfg.MQTT.Feeds,
		ackByTop: make(map[string]string),
	}
	for key, topic := range cfg.MQTT.Actuators {
		b.ackByTop[topic] = key
	}

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "smart-home-gateway"
	}

	pcfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               cfg.MQTT.Username,
		ConnectPassword:               []byte(cfg.MQTT.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Printf("MQTT connected to %s, subscribing %d feeds", u.Host, len(b.feeds)+len(b.ackByTop))
			if err := b.subscribe(ctx, cm); err != nil {
				log.Printf("MQTT subscribe error: %v", err)
			}
		},
		OnConnectError: func(err error) {
			log.Printf("MQTT connect error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					b.handle(pr.Packet.Topic, string(pr.Packet.Payload))
					return true, nil
				},
			},
			OnClientError: func(err error) {
				log.Printf("MQTT client error: %v", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	b.cm = cm
	return b, nil
}

func (b *Bridge) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) error {
	subs := make([]paho.SubscribeOptions, 0, len(b.feeds)+len(b.ackByTop))
	for topic := range b.feeds {
		subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: 0})
	}
	for topic := range b.ackByTop {
		subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: 0})
	}
	if len(subs) == 0 {
		return nil
	}
	_, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs})
	return err
}

// handle routes one inbound message. Sensor feeds carry bare numeric
// payloads (possibly string-typed); actuator feeds echo commands.
func (b *Bridge) handle(topic, payload string) {
	if channelName, ok := b.feeds[topic]; ok {
		if err := b.gateway.Ingest(channelName, strings.TrimSpace(payload), nil); err != nil {
			log.Printf("MQTT ingest from %s rejected: %v", topic, err)
		}
		return
	}
	if key, ok := b.ackByTop[topic]; ok && b.acks != nil {
		b.acks.ApplyAck(key, strings.TrimSpace(payload))
		return
	}
	log.Printf("MQTT message on unmapped topic %s ignored", topic)
}

// Publish implements device.Publisher.
func (b *Bridge) Publish(ctx context.Context, topic, payload string) error {
	_, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     0,
		Payload: []byte(payload),
	})
	return err
}

// Close disconnects from the broker.
func (b *Bridge) Close(ctx context.Context) error {
	return b.cm.Disconnect(ctx)
}
