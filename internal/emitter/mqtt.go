package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher publishes to a broker with automatic reconnects.
type MQTTPublisher struct {
	Broker   string
	ClientID string
	QoS      byte

	client    mqtt.Client
	connected atomic.Bool
}

// NewMQTTPublisher returns a publisher for broker ("host:port" or a full
// tcp:// URL). Call Connect before publishing.
func NewMQTTPublisher(broker, clientID string) *MQTTPublisher {
	return &MQTTPublisher{Broker: broker, ClientID: clientID}
}

func brokerURL(broker string) string {
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://", "mqtt://"} {
		if strings.HasPrefix(broker, scheme) {
			return broker
		}
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection. It gives up after 5 s or when
// ctx is done, whichever comes first.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(p.Broker))
	opts.SetClientID(p.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		p.connected.Store(true)
		logf("mqtt connected to %s as %s", p.Broker, p.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.connected.Store(false)
		logf("mqtt connection lost, will auto-reconnect: %v", err)
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	p.connected.Store(true)
	return nil
}

// Publish sends payload and waits up to 2 s for the broker to accept it.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	if p.client == nil || !p.connected.Load() {
		return errors.New("mqtt not connected")
	}
	token := p.client.Publish(topic, p.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

// Disconnect closes the connection with a short grace period.
func (p *MQTTPublisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.connected.Store(false)
}
