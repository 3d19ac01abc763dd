package mqttingest

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalwatch/internal/config"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
)

type fakeIngester struct {
	got []service.SensorInput
	err error
}

func (f *fakeIngester) Ingest(ctx context.Context, in service.SensorInput) (storage.Reading, predictor.Result, error) {
	if err := in.Validate(); err != nil {
		return storage.Reading{}, predictor.Result{}, err
	}
	if f.err != nil {
		return storage.Reading{}, predictor.Result{}, f.err
	}
	f.got = append(f.got, in)
	return storage.Reading{ID: 1, DeviceID: in.Device("ESP32_001")}, predictor.Result{}, nil
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

const body = `{"heart_rate":72,"spo2":98,"temperature":36.8,"humidity":45,"air_quality":85}`

func newSubscriber(ing Ingester, m *metrics.Metrics) *Subscriber {
	return New(config.MQTTConfig{Topic: "vitalwatch/+/readings"}, ing, m, zerolog.Nop())
}

func TestHandleMessageUsesTopicDevice(t *testing.T) {
	ing := &fakeIngester{}
	sub := newSubscriber(ing, nil)

	require.NoError(t, sub.HandleMessage(context.Background(), "vitalwatch/bed-4/readings", []byte(body)))
	require.Len(t, ing.got, 1)
	assert.Equal(t, "bed-4", ing.got[0].DeviceID)
}

func TestHandleMessagePayloadDeviceWins(t *testing.T) {
	ing := &fakeIngester{}
	sub := newSubscriber(ing, nil)
	payload := `{"heart_rate":72,"spo2":98,"temperature":36.8,"humidity":45,"air_quality":85,"device_id":"ESP32_009"}`

	require.NoError(t, sub.HandleMessage(context.Background(), "vitalwatch/bed-4/readings", []byte(payload)))
	assert.Equal(t, "ESP32_009", ing.got[0].DeviceID)
}

func TestOnMessageOutcomes(t *testing.T) {
	m := metrics.New()
	ing := &fakeIngester{}
	sub := newSubscriber(ing, m)
	ctx := context.Background()

	sub.onMessage(ctx, fakeMessage{topic: "vitalwatch/a/readings", payload: []byte(body)})
	sub.onMessage(ctx, fakeMessage{topic: "vitalwatch/a/readings", payload: []byte(`{"heart_rate":`)})
	sub.onMessage(ctx, fakeMessage{topic: "vitalwatch/a/readings", payload: []byte(`{"heart_rate":999}`)})
	ing.err = errors.New("db down")
	sub.onMessage(ctx, fakeMessage{topic: "vitalwatch/a/readings", payload: []byte(body)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MQTTMessages.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MQTTMessages.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MQTTMessages.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MQTTMessages.WithLabelValues("error")))
}

func TestDeviceFromTopic(t *testing.T) {
	assert.Equal(t, "ESP32_001", DeviceFromTopic("vitalwatch/ESP32_001/readings"))
	assert.Equal(t, "", DeviceFromTopic("readings"))
	assert.Equal(t, "", DeviceFromTopic("vitalwatch//readings"))
}
