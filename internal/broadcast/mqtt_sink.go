package broadcast

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// MQTTSink mirrors hub events onto an MQTT broker.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
	log    zerolog.Logger
}

// NewMQTTSink connects to cfg.Broker and returns a sink publishing under
// cfg.TopicPrefix.
func NewMQTTSink(cfg MQTTConfig, logger zerolog.Logger) (*MQTTSink, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "autodoor-server"
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	logger.Info().Str("broker", cfg.Broker).Msg("mqtt sink connected")
	return newMQTTSink(client, cfg, logger), nil
}

func newMQTTSink(client mqtt.Client, cfg MQTTConfig, logger zerolog.Logger) *MQTTSink {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "autodoor"
	}
	return &MQTTSink{
		client: client,
		prefix: prefix,
		qos:    cfg.QoS,
		log:    logger.With().Str("component", "mqtt-sink").Logger(),
	}
}

// Topic maps "door:status-update" to "<prefix>/door/status-update".
func Topic(prefix, event string) string {
	return prefix + "/" + strings.ReplaceAll(event, ":", "/")
}

// Send hands the payload to the paho client without waiting on delivery.
func (s *MQTTSink) Send(event string, payload []byte) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt publish %s: not connected", event)
	}
	token := s.client.Publish(Topic(s.prefix, event), s.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
