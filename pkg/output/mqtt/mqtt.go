package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/xbridge/pkg/config"
	"github.com/ericogr/xbridge/pkg/output"
	"github.com/ericogr/xbridge/pkg/telemetry"
)

const (
	DefaultServer   = "tcp://localhost:1883"
	DefaultClientID = "xbridge"
	DefaultTopic    = "xbridge"
)

type MQTTOutput struct {
	client mqtt.Client
	topic  string
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTOutput{client: client, topic: cfg.Topic}, nil
}

// Publish sends each packet as JSON to <topic>/<transmitter name>.
func (m *MQTTOutput) Publish(packets []telemetry.Packet) error {
	for _, p := range packets {
		b, err := json.Marshal(payload(p))
		if err != nil {
			return err
		}
		token := m.client.Publish(topicFor(m.topic, p.TransmitterID), 0, false, b)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func topicFor(base string, id uint32) string {
	if base == "" {
		base = DefaultTopic
	}
	return strings.TrimSuffix(base, "/") + "/" + telemetry.SourceName(id)
}

func payload(p telemetry.Packet) map[string]interface{} {
	return map[string]interface{}{
		"raw":            p.Raw,
		"filtered":       p.Filtered,
		"device_battery": p.DeviceBattery,
		"transmitter":    telemetry.SourceName(p.TransmitterID),
		"channel":        p.Channel,
		"rssi":           p.RSSI,
	}
}
