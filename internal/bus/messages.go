package bus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

// MeasurementMessage is the inbound payload on the measurement subject.
type MeasurementMessage struct {
	ProductID  *string    `json:"product_id"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit"`
	MeasuredAt *time.Time `json:"measured_at"`
}

// ToNewMeasurement validates the message. A missing measured_at is taken as
// the receive time.
func (m MeasurementMessage) ToNewMeasurement(received time.Time) (storage.NewMeasurement, error) {
	if m.Value == nil {
		return storage.NewMeasurement{}, errors.New("value is required")
	}
	var productID *string
	if m.ProductID != nil && strings.TrimSpace(*m.ProductID) != "" {
		id := strings.TrimSpace(*m.ProductID)
		if _, err := uuid.Parse(id); err != nil {
			return storage.NewMeasurement{}, fmt.Errorf("product_id: %w", err)
		}
		productID = &id
	}
	measuredAt := received
	if m.MeasuredAt != nil && !m.MeasuredAt.IsZero() {
		measuredAt = *m.MeasuredAt
	}
	in := storage.NewMeasurement{
		ProductID:  productID,
		Value:      *m.Value,
		Unit:       strings.TrimSpace(m.Unit),
		MeasuredAt: measuredAt,
	}
	if err := storage.ValidateMeasurement(in); err != nil {
		return storage.NewMeasurement{}, err
	}
	return in, nil
}

// AlertEventMessage is published once per newly created alert event.
type AlertEventMessage struct {
	EventID       string           `json:"event_id"`
	RuleID        string           `json:"rule_id"`
	MeasurementID string           `json:"measurement_id"`
	ProductID     *string          `json:"product_id"`
	Severity      storage.Severity `json:"severity"`
	Value         float64          `json:"value"`
	Unit          string           `json:"unit"`
	MeasuredAt    time.Time        `json:"measured_at"`
	CreatedAt     time.Time        `json:"created_at"`
}

func NewAlertEventMessages(m storage.Measurement, events []storage.AlertEvent) []AlertEventMessage {
	out := make([]AlertEventMessage, 0, len(events))
	for _, evt := range events {
		out = append(out, AlertEventMessage{
			EventID:       evt.ID,
			RuleID:        evt.RuleID,
			MeasurementID: evt.MeasurementID,
			ProductID:     m.ProductID,
			Severity:      evt.Severity,
			Value:         m.Value,
			Unit:          m.Unit,
			MeasuredAt:    m.MeasuredAt,
			CreatedAt:     evt.CreatedAt,
		})
	}
	return out
}
