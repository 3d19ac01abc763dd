package storage

import (
	"time"

	"vitalwatch/internal/predictor"
)

// Alert categories.
const (
	AlertCritical = "CRITICAL"
	AlertWarning  = "WARNING"
	AlertInfo     = "INFO"
)

// Event log types.
const (
	EventDataReceived = "DATA_RECEIVED"
	EventPrediction   = "PREDICTION"
	EventError        = "ERROR"
)

// Reading is one persisted, classified set of vitals.
type Reading struct {
	ID          int64
	DeviceID    string
	HeartRate   float64
	SpO2        float64
	Temperature float64
	Humidity    float64
	AirQuality  float64
	RiskLevel   predictor.RiskLevel
	RiskScore   float64
	IsCritical  bool
	Timestamp   time.Time
}

// Vitals returns the measurements of the reading.
func (r Reading) Vitals() predictor.Vitals {
	return predictor.Vitals{
		HeartRate:   r.HeartRate,
		SpO2:        r.SpO2,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		AirQuality:  r.AirQuality,
	}
}

// Alert is a raised alert; only resolution mutates it.
type Alert struct {
	ID         int64
	DeviceID   string
	Type       string
	Message    string
	VitalName  *string
	VitalValue *float64
	IsResolved bool
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Event is an append-only system log entry.
type Event struct {
	ID        int64
	EventType string
	Message   string
	DeviceID  *string
	Timestamp time.Time
}

// ReadingStats aggregates the stored readings of one device.
type ReadingStats struct {
	Total    int64
	High     int64
	Moderate int64
	Low      int64
	First    *time.Time
	Last     *time.Time
}
