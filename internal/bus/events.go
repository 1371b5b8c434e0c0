package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Bacorsx/EcoEnergy-IC/internal/metrics"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

// Sink is a transport for encoded messages.
type Sink interface {
	Name() string
	Send(ctx context.Context, key string, payload []byte) error
	Close() error
}

type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Send(context.Context, string, []byte) error { return nil }

func (Noop) Close() error { return nil }

// EventPublisher encodes created alert events and hands them to a Sink.
type EventPublisher struct {
	sink   Sink
	logger zerolog.Logger
}

func NewEventPublisher(sink Sink, logger zerolog.Logger) *EventPublisher {
	if sink == nil {
		sink = Noop{}
	}
	return &EventPublisher{sink: sink, logger: logger}
}

// PublishAlertEvents sends one message per event and keeps going after a
// failed send. The returned error joins every failure.
func (p *EventPublisher) PublishAlertEvents(ctx context.Context, m storage.Measurement, events []storage.AlertEvent) error {
	var errs []error
	for _, msg := range NewAlertEventMessages(m, events) {
		data, err := json.Marshal(msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode event %s: %w", msg.EventID, err))
			continue
		}
		if err := p.sink.Send(ctx, msg.EventID, data); err != nil {
			metrics.BusPublishes.WithLabelValues(p.sink.Name(), "failed").Inc()
			errs = append(errs, fmt.Errorf("publish event %s: %w", msg.EventID, err))
			continue
		}
		metrics.BusPublishes.WithLabelValues(p.sink.Name(), "success").Inc()
		p.logger.Debug().Str("event_id", msg.EventID).Str("severity", string(msg.Severity)).Msg("alert event published")
	}
	return errors.Join(errs...)
}

func (p *EventPublisher) Close() error {
	return p.sink.Close()
}
