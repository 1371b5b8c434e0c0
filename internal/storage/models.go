package storage

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusDeleted Status = "DELETED"
)

// Lifecycle is embedded by every persisted entity. Default read paths only
// return rows with Status == StatusActive.
type Lifecycle struct {
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (l Lifecycle) Alive() bool {
	return l.Status != StatusDeleted && l.DeletedAt == nil
}

type Organization struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Lifecycle
}

type Zone struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Lifecycle
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Lifecycle
}

type Device struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	ZoneID         string     `json:"zoneId"`
	Name           string     `json:"name"`
	SerialNumber   *string    `json:"serialNumber,omitempty"`
	InstalledAt    *time.Time `json:"installedAt,omitempty"`
	Lifecycle
}

type Product struct {
	ID           string  `json:"id"`
	DeviceID     *string `json:"deviceId,omitempty"`
	CategoryID   string  `json:"categoryId"`
	Name         string  `json:"name"`
	Model        *string `json:"model,omitempty"`
	SerialNumber *string `json:"serialNumber,omitempty"`
	Lifecycle
}

type Measurement struct {
	ID         string    `json:"id"`
	ProductID  *string   `json:"productId,omitempty"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	MeasuredAt time.Time `json:"measuredAt"`
	Lifecycle
}

// NewMeasurement is the input of a measurement insert.
type NewMeasurement struct {
	ProductID  *string
	Value      float64
	Unit       string
	MeasuredAt time.Time
}

type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var Severities = []Severity{SeverityMedium, SeverityHigh, SeverityCritical}

func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Severities {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Rule binds a product to a severity and an inclusive value band. An empty
// Unit matches any measured unit.
type Rule struct {
	ID        string   `json:"id"`
	ProductID string   `json:"productId"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	RangeMin  float64  `json:"rangeMin"`
	RangeMax  float64  `json:"rangeMax"`
	Unit      string   `json:"unit"`
	Lifecycle
}

type AlertEvent struct {
	ID            string     `json:"id"`
	RuleID        string     `json:"ruleId"`
	MeasurementID string     `json:"measurementId"`
	IsResolved    bool       `json:"isResolved"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	// Severity is copied from the rule; it is not stored on the event row.
	Severity Severity `json:"severity,omitempty"`
}

// EventView is an AlertEvent joined through its rule to the product and
// device, and through its measurement to the reading.
type EventView struct {
	AlertEvent
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	DeviceName  *string   `json:"deviceName,omitempty"`
	Message     string    `json:"message"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	MeasuredAt  time.Time `json:"measuredAt"`
}

type EventFilter struct {
	Resolved  *bool
	ProductID string
	Severity  Severity
	Since     *time.Time
	Limit     int
	Offset    int
}

// ResolvedEvent identifies one event flipped by a bulk resolve.
type ResolvedEvent struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
}

type SeverityCount struct {
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
}

type Historian struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	User      string    `json:"user"`
	Password  string    `json:"-"`
	Database  string    `json:"database"`
	SSLMode   string    `json:"sslMode"`
	CreatedAt time.Time `json:"createdAt"`
}
