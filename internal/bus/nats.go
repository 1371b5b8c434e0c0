package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

type Publisher struct {
	Conn    *nats.Conn
	Subject string
}

func NewPublisher(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("ecoenergy-alerts"))
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn, Subject: subject}, nil
}

func (p *Publisher) Close() error {
	if p.Conn != nil {
		_ = p.Conn.Drain()
		p.Conn.Close()
	}
	return nil
}

func (p *Publisher) Name() string { return "nats" }

func (p *Publisher) Send(_ context.Context, _ string, payload []byte) error {
	return p.Conn.Publish(p.Subject, payload)
}

type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url, nats.Name("ecoenergy-ingest"))
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		_ = s.Conn.Drain()
		s.Conn.Close()
	}
}

// MeasurementSink records one decoded measurement.
type MeasurementSink func(ctx context.Context, in storage.NewMeasurement) error

// SubscribeMeasurements handles each message synchronously on the client's
// callback goroutine. Undecodable or invalid messages are logged and dropped.
func (s *Subscriber) SubscribeMeasurements(subject string, timeout time.Duration, sink MeasurementSink, logger zerolog.Logger) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		HandleMeasurement(msg.Data, timeout, sink, logger)
	})
}

// HandleMeasurement decodes one inbound payload and hands it to sink.
func HandleMeasurement(data []byte, timeout time.Duration, sink MeasurementSink, logger zerolog.Logger) bool {
	var msg MeasurementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn().Err(err).Msg("dropping undecodable measurement message")
		return false
	}
	in, err := msg.ToNewMeasurement(time.Now().UTC())
	if err != nil {
		logger.Warn().Err(err).Msg("dropping invalid measurement message")
		return false
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := sink(ctx, in); err != nil {
		logger.Error().Err(err).Msg("failed to record measurement message")
		return false
	}
	return true
}
