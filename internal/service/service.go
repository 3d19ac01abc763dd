package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vitalwatch/internal/alerting"
	"vitalwatch/internal/config"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/storage"
	"vitalwatch/internal/tasks"
)

// RetentionWindow is how long readings are kept.
const RetentionWindow = 24 * time.Hour

// OnlineWindow is the maximum age of the last reading for a device to count as online.
const OnlineWindow = 60 * time.Second

// Device status values reported by Stats.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
	StatusNoData  = "No Data"
)

// Classifier assigns a risk level to vitals.
type Classifier interface {
	Predict(v predictor.Vitals) predictor.Result
}

// Deferrer runs work after the caller has returned.
type Deferrer interface {
	Submit(name string, fn tasks.Func) error
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Readings   storage.ReadingStore
	Alerts     storage.AlertStore
	Events     storage.EventLog
	Locker     storage.AdvisoryLocker
	Classifier Classifier
	Deferrer   Deferrer
	Notifier   alerting.Notifier
	Metrics    *metrics.Metrics
}

// Service orchestrates classification, persistence, and alerting.
type Service struct {
	readings   storage.ReadingStore
	alerts     storage.AlertStore
	events     storage.EventLog
	locker     storage.AdvisoryLocker
	classifier Classifier
	deferrer   Deferrer
	notifier   alerting.Notifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	defaultDevice string
	alertsOn      bool
	channels      []string
	lockKey       int64
	now           func() time.Time
}

// New constructs the service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	locker := deps.Locker
	if locker == nil {
		if l, ok := deps.Readings.(storage.AdvisoryLocker); ok {
			locker = l
		}
	}

	return &Service{
		readings:      deps.Readings,
		alerts:        deps.Alerts,
		events:        deps.Events,
		locker:        locker,
		classifier:    deps.Classifier,
		deferrer:      deps.Deferrer,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		logger:        logger.With().Str("component", "service").Logger(),
		defaultDevice: cfg.Ingest.DefaultDeviceID,
		alertsOn:      cfg.Alerting.Enabled,
		channels:      cfg.Alerting.Channels,
		lockKey:       cfg.Retention.AdvisoryLockKey,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// DefaultDevice returns the device id used when a request names none.
func (s *Service) DefaultDevice() string {
	return s.defaultDevice
}

// Classify runs the classifier and records which path served it.
func (s *Service) Classify(v predictor.Vitals) predictor.Result {
	res := s.classifier.Predict(v)
	if s.metrics != nil {
		s.metrics.Predictions.WithLabelValues(string(res.Level), string(res.Source)).Inc()
		if res.Source == predictor.SourceRules {
			s.metrics.ClassifierFallback.Inc()
		}
	}
	return res
}

// Ingest classifies and stores a reading. Alert creation, notification and
// the event log write are deferred and never retried.
func (s *Service) Ingest(ctx context.Context, in SensorInput) (storage.Reading, predictor.Result, error) {
	if err := in.Validate(); err != nil {
		return storage.Reading{}, predictor.Result{}, err
	}
	if s.readings == nil {
		return storage.Reading{}, predictor.Result{}, storage.ErrNotConfigured
	}

	vitals := in.Vitals()
	deviceID := in.Device(s.defaultDevice)
	res := s.Classify(vitals)

	reading, err := s.readings.InsertReading(ctx, storage.Reading{
		DeviceID:    deviceID,
		HeartRate:   vitals.HeartRate,
		SpO2:        vitals.SpO2,
		Temperature: vitals.Temperature,
		Humidity:    vitals.Humidity,
		AirQuality:  vitals.AirQuality,
		RiskLevel:   res.Level,
		RiskScore:   res.Score,
		IsCritical:  res.Level == predictor.RiskHigh,
		Timestamp:   s.now(),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IngestFailures.Inc()
		}
		s.logEvent(ctx, storage.EventError, fmt.Sprintf("Error processing sensor data: %v", err), deviceID)
		return storage.Reading{}, res, fmt.Errorf("store reading: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ReadingsIngested.WithLabelValues(string(res.Level)).Inc()
	}

	if deleted, err := s.PurgeExpired(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("opportunistic purge failed")
	} else if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("cleaned up old readings")
	}

	if reading.IsCritical {
		s.raiseAlert(reading, res)
	}

	message := fmt.Sprintf("Sensor data received - Risk: %s", res.Level)
	s.submit("event", func(ctx context.Context) error {
		return s.writeEvent(ctx, storage.EventDataReceived, message, deviceID)
	})

	s.logger.Debug().
		Int64("reading_id", reading.ID).
		Str("device_id", deviceID).
		Str("risk_level", string(res.Level)).
		Float64("risk_score", res.Score).
		Str("source", string(res.Source)).
		Msg("reading ingested")

	return reading, res, nil
}

// AlertMessage renders the stored alert text for a score.
func AlertMessage(score float64) string {
	return "High risk detected! Risk score: " + decimal.NewFromFloat(score).StringFixed(2)
}

func (s *Service) raiseAlert(reading storage.Reading, res predictor.Result) {
	if s.alerts != nil {
		name := "risk_level"
		value := reading.RiskScore
		alert := storage.Alert{
			DeviceID:   reading.DeviceID,
			Type:       storage.AlertCritical,
			Message:    AlertMessage(reading.RiskScore),
			VitalName:  &name,
			VitalValue: &value,
			CreatedAt:  reading.Timestamp,
		}
		s.submit("alert", func(ctx context.Context) error {
			if _, err := s.alerts.InsertAlert(ctx, alert); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.AlertsRaised.Inc()
			}
			return nil
		})
	}

	if s.alertsOn && s.notifier != nil {
		note := alerting.Notification{
			DeviceID:        reading.DeviceID,
			ReadingID:       reading.ID,
			Level:           res.Level,
			Score:           res.Score,
			Confidence:      res.Confidence,
			Recommendations: res.Recommendations,
			Vitals:          reading.Vitals(),
			At:              reading.Timestamp,
			Channels:        s.channels,
		}
		s.submit("notify", func(ctx context.Context) error {
			if err := s.notifier.Notify(ctx, note); err != nil {
				if s.metrics != nil {
					s.metrics.NotifierFailures.Inc()
				}
				return err
			}
			return nil
		})
	}
}

// Notify sends a notification for a reading outside of ingestion.
func (s *Service) Notify(ctx context.Context, deviceID string, v predictor.Vitals, res predictor.Result) error {
	if s.notifier == nil {
		return fmt.Errorf("notifier not configured")
	}
	return s.notifier.Notify(ctx, alerting.Notification{
		DeviceID:        deviceID,
		Level:           res.Level,
		Score:           res.Score,
		Confidence:      res.Confidence,
		Recommendations: res.Recommendations,
		Vitals:          v,
		At:              s.now(),
		Channels:        s.channels,
	})
}

func (s *Service) submit(name string, fn tasks.Func) {
	if s.deferrer == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error().Err(err).Str("task", name).Msg("inline task failed")
		}
		return
	}
	// dropped tasks are already logged by the runner
	_ = s.deferrer.Submit(name, fn)
}

func (s *Service) writeEvent(ctx context.Context, eventType, message, deviceID string) error {
	if s.events == nil {
		return nil
	}
	var device *string
	if deviceID != "" {
		device = &deviceID
	}
	return s.events.InsertEvent(ctx, storage.Event{
		EventType: eventType,
		Message:   message,
		DeviceID:  device,
		Timestamp: s.now(),
	})
}

func (s *Service) logEvent(ctx context.Context, eventType, message, deviceID string) {
	if err := s.writeEvent(ctx, eventType, message, deviceID); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to write system event")
	}
}

// Latest returns the newest reading of a device.
func (s *Service) Latest(ctx context.Context, deviceID string) (storage.Reading, error) {
	if s.readings == nil {
		return storage.Reading{}, storage.ErrNotConfigured
	}
	return s.readings.LatestReading(ctx, s.device(deviceID))
}

// Recent lists the newest readings of a device, or of all devices when deviceID is empty.
func (s *Service) Recent(ctx context.Context, deviceID string, limit int) ([]storage.Reading, error) {
	if s.readings == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.readings.ListRecentReadings(ctx, deviceID, limit)
}

// Between lists a device's readings in [from, to).
func (s *Service) Between(ctx context.Context, deviceID string, from, to time.Time) ([]storage.Reading, error) {
	if s.readings == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.readings.ListReadingsBetween(ctx, s.device(deviceID), from, to)
}

// History is the chart series of a device, oldest first.
type History struct {
	Timestamps  []string  `json:"timestamps"`
	HeartRate   []float64 `json:"heart_rate"`
	SpO2        []float64 `json:"spo2"`
	Temperature []float64 `json:"temperature"`
	RiskScores  []float64 `json:"risk_scores"`
}

// ErrInvalidHours is returned for a history window under one hour.
var ErrInvalidHours = errors.New("hours must be at least 1")

// History returns the readings of the last hours as parallel series.
func (s *Service) History(ctx context.Context, deviceID string, hours int) (History, error) {
	if hours < 1 {
		return History{}, ErrInvalidHours
	}
	if s.readings == nil {
		return History{}, storage.ErrNotConfigured
	}

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	readings, err := s.readings.ListReadingsSince(ctx, s.device(deviceID), since)
	if err != nil {
		return History{}, err
	}

	h := History{
		Timestamps:  make([]string, 0, len(readings)),
		HeartRate:   make([]float64, 0, len(readings)),
		SpO2:        make([]float64, 0, len(readings)),
		Temperature: make([]float64, 0, len(readings)),
		RiskScores:  make([]float64, 0, len(readings)),
	}
	for _, r := range readings {
		h.Timestamps = append(h.Timestamps, r.Timestamp.UTC().Format("15:04:05"))
		h.HeartRate = append(h.HeartRate, r.HeartRate)
		h.SpO2 = append(h.SpO2, r.SpO2)
		h.Temperature = append(h.Temperature, r.Temperature)
		h.RiskScores = append(h.RiskScores, r.RiskScore)
	}
	return h, nil
}

// Stats summarises a device.
type Stats struct {
	TotalReadings     int64     `json:"total_readings"`
	HighRiskCount     int64     `json:"high_risk_count"`
	ModerateRiskCount int64     `json:"moderate_risk_count"`
	LowRiskCount      int64     `json:"low_risk_count"`
	LastUpdated       time.Time `json:"last_updated"`
	DeviceStatus      string    `json:"device_status"`
	UptimeHours       float64   `json:"uptime_hours"`
}

// Stats reports counts, device status and uptime.
func (s *Service) Stats(ctx context.Context, deviceID string) (Stats, error) {
	if s.readings == nil {
		return Stats{}, storage.ErrNotConfigured
	}
	agg, err := s.readings.ReadingStats(ctx, s.device(deviceID))
	if err != nil {
		return Stats{}, err
	}

	now := s.now()
	if agg.Total == 0 || agg.First == nil || agg.Last == nil {
		return Stats{LastUpdated: now, DeviceStatus: StatusNoData}, nil
	}

	status := StatusOffline
	if now.Sub(*agg.Last) < OnlineWindow {
		status = StatusOnline
	}
	uptime, _ := decimal.NewFromFloat(now.Sub(*agg.First).Hours()).Round(2).Float64()

	return Stats{
		TotalReadings:     agg.Total,
		HighRiskCount:     agg.High,
		ModerateRiskCount: agg.Moderate,
		LowRiskCount:      agg.Low,
		LastUpdated:       agg.Last.UTC(),
		DeviceStatus:      status,
		UptimeHours:       uptime,
	}, nil
}

// Alerts lists unresolved alerts of a device, newest first.
func (s *Service) Alerts(ctx context.Context, deviceID string) ([]storage.Alert, error) {
	if s.alerts == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.alerts.ListUnresolvedAlerts(ctx, s.device(deviceID))
}

// ResolveAlert marks an alert resolved.
func (s *Service) ResolveAlert(ctx context.Context, id int64) (storage.Alert, error) {
	if s.alerts == nil {
		return storage.Alert{}, storage.ErrNotConfigured
	}
	return s.alerts.ResolveAlert(ctx, id, s.now())
}

func (s *Service) device(id string) string {
	if id == "" {
		return s.defaultDevice
	}
	return id
}
