package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

type memorySink struct {
	keys     []string
	payloads [][]byte
	failKey  string
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Send(_ context.Context, key string, payload []byte) error {
	if key == m.failKey {
		return errors.New("broker unavailable")
	}
	m.keys = append(m.keys, key)
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *memorySink) Close() error { return nil }

func sampleMeasurement() storage.Measurement {
	productID := "9a4c1f0e-5b1c-4d7e-8f7a-1c2b3d4e5f60"
	return storage.Measurement{ID: "m-1", ProductID: &productID, Value: 85, Unit: "kWh", MeasuredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func TestEventPublisherEncodesOneMessagePerEvent(t *testing.T) {
	sink := &memorySink{}
	pub := NewEventPublisher(sink, zerolog.Nop())
	events := []storage.AlertEvent{
		{ID: "e-1", RuleID: "r-1", MeasurementID: "m-1", Severity: storage.SeverityHigh},
		{ID: "e-2", RuleID: "r-2", MeasurementID: "m-1", Severity: storage.SeverityCritical},
	}

	require.NoError(t, pub.PublishAlertEvents(context.Background(), sampleMeasurement(), events))
	require.Equal(t, []string{"e-1", "e-2"}, sink.keys)

	var msg AlertEventMessage
	require.NoError(t, json.Unmarshal(sink.payloads[0], &msg))
	assert.Equal(t, "r-1", msg.RuleID)
	assert.Equal(t, storage.SeverityHigh, msg.Severity)
	assert.Equal(t, 85.0, msg.Value)
	require.NotNil(t, msg.ProductID)
	assert.Equal(t, "9a4c1f0e-5b1c-4d7e-8f7a-1c2b3d4e5f60", *msg.ProductID)
}

func TestEventPublisherContinuesAfterFailure(t *testing.T) {
	sink := &memorySink{failKey: "e-1"}
	pub := NewEventPublisher(sink, zerolog.Nop())
	events := []storage.AlertEvent{{ID: "e-1"}, {ID: "e-2"}}

	err := pub.PublishAlertEvents(context.Background(), sampleMeasurement(), events)
	assert.Error(t, err)
	assert.Equal(t, []string{"e-2"}, sink.keys)
}

func TestNoopPublisher(t *testing.T) {
	pub := NewEventPublisher(nil, zerolog.Nop())
	assert.NoError(t, pub.PublishAlertEvents(context.Background(), sampleMeasurement(), []storage.AlertEvent{{ID: "e"}}))
	assert.NoError(t, pub.Close())
}

func TestHandleMeasurement(t *testing.T) {
	var got []storage.NewMeasurement
	sink := func(_ context.Context, in storage.NewMeasurement) error {
		got = append(got, in)
		return nil
	}
	cases := map[string]struct {
		payload string
		ok      bool
	}{
		"valid":          {payload: `{"product_id":"9a4c1f0e-5b1c-4d7e-8f7a-1c2b3d4e5f60","value":12.5,"unit":"kWh","measured_at":"2026-01-02T03:04:05Z"}`, ok: true},
		"no product":     {payload: `{"value":1}`, ok: true},
		"missing value":  {payload: `{"unit":"kWh"}`, ok: false},
		"negative value": {payload: `{"value":-1}`, ok: false},
		"bad product id": {payload: `{"product_id":"abc","value":1}`, ok: false},
		"not json":       {payload: `value=1`, ok: false},
		"unit too long":  {payload: `{"value":1,"unit":"aaaaaaaaaaaaaaaaaaaaaaaaa"}`, ok: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.ok, HandleMeasurement([]byte(tc.payload), time.Second, sink, zerolog.Nop()))
		})
	}
	require.Len(t, got, 2)
}

func TestHandleMeasurementDefaultsMeasuredAt(t *testing.T) {
	var got storage.NewMeasurement
	ok := HandleMeasurement([]byte(`{"value":3}`), 0, func(_ context.Context, in storage.NewMeasurement) error {
		got = in
		return nil
	}, zerolog.Nop())
	require.True(t, ok)
	assert.False(t, got.MeasuredAt.IsZero())
	assert.Nil(t, got.ProductID)
}

func TestHandleMeasurementSinkFailure(t *testing.T) {
	ok := HandleMeasurement([]byte(`{"value":3}`), 0, func(context.Context, storage.NewMeasurement) error {
		return errors.New("db down")
	}, zerolog.Nop())
	assert.False(t, ok)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherSend(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaPublisher{writer: w}
	require.NoError(t, k.Send(context.Background(), "e-1", []byte(`{}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("e-1"), w.msgs[0].Key)
	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "alerts"})
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
	k, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "alerts"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", k.Name())
}
