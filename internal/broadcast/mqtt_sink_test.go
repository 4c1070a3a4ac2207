package broadcast

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeMQTT overrides the calls the sink makes; anything else panics.
type fakeMQTT struct {
	mqtt.Client
	open         bool
	err          error
	pubs         []published
	disconnected bool
}

func (f *fakeMQTT) IsConnectionOpen() bool { return f.open }

func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	f.pubs = append(f.pubs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func TestTopic(t *testing.T) {
	assert.Equal(t, "autodoor/door/status-update", Topic("autodoor", "door:status-update"))
	assert.Equal(t, "site1/alert/new", Topic("site1", "alert:new"))
}

func TestMQTTSinkPublishesUnderPrefix(t *testing.T) {
	client := &fakeMQTT{open: true}
	sink := newMQTTSink(client, MQTTConfig{TopicPrefix: "lab/"}, zerolog.Nop())

	require.NoError(t, sink.Send("sensor:distance-update", []byte(`{"distance":120}`)))
	require.Len(t, client.pubs, 1)
	assert.Equal(t, "lab/sensor/distance-update", client.pubs[0].topic)
	assert.Equal(t, byte(0), client.pubs[0].qos)
	assert.JSONEq(t, `{"distance":120}`, string(client.pubs[0].payload))

	sink.Close()
	assert.True(t, client.disconnected)
}

func TestMQTTSinkReportsFailures(t *testing.T) {
	closed := newMQTTSink(&fakeMQTT{}, MQTTConfig{}, zerolog.Nop())
	assert.Error(t, closed.Send("alert:new", nil))

	boom := errors.New("broker rejected")
	failing := newMQTTSink(&fakeMQTT{open: true, err: boom}, MQTTConfig{}, zerolog.Nop())
	assert.ErrorIs(t, failing.Send("alert:new", nil), boom)
}

func TestMQTTSinkAsHubSink(t *testing.T) {
	client := &fakeMQTT{open: true}
	hub := NewHub(nil, HubConfig{}, zerolog.Nop())
	hub.AddSink(newMQTTSink(client, MQTTConfig{}, zerolog.Nop()))

	hub.Publish("alert:acknowledged", map[string]int64{"alertId": 3})
	require.Len(t, client.pubs, 1)
	assert.Equal(t, "autodoor/alert/acknowledged", client.pubs[0].topic)
	assert.JSONEq(t, `{"alertId":3}`, string(client.pubs[0].payload))
}
