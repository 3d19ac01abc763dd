package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vitalwatch/internal/predictor"
	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
)

type readingResponse struct {
	ID          int64               `json:"id"`
	HeartRate   float64             `json:"heart_rate"`
	SpO2        float64             `json:"spo2"`
	Temperature float64             `json:"temperature"`
	Humidity    float64             `json:"humidity"`
	AirQuality  float64             `json:"air_quality"`
	RiskLevel   predictor.RiskLevel `json:"risk_level"`
	RiskScore   float64             `json:"risk_score"`
	DeviceID    string              `json:"device_id"`
	Timestamp   time.Time           `json:"timestamp"`
	IsCritical  bool                `json:"is_critical"`
}

func newReadingResponse(r storage.Reading) readingResponse {
	return readingResponse{
		ID:          r.ID,
		HeartRate:   r.HeartRate,
		SpO2:        r.SpO2,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		AirQuality:  r.AirQuality,
		RiskLevel:   r.RiskLevel,
		RiskScore:   r.RiskScore,
		DeviceID:    r.DeviceID,
		Timestamp:   r.Timestamp,
		IsCritical:  r.IsCritical,
	}
}

type alertResponse struct {
	ID         int64      `json:"id"`
	DeviceID   string     `json:"device_id"`
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	VitalName  *string    `json:"vital_name"`
	VitalValue *float64   `json:"vital_value"`
	IsResolved bool       `json:"is_resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func newAlertResponse(a storage.Alert) alertResponse {
	return alertResponse{
		ID:         a.ID,
		DeviceID:   a.DeviceID,
		Type:       a.Type,
		Message:    a.Message,
		VitalName:  a.VitalName,
		VitalValue: a.VitalValue,
		IsResolved: a.IsResolved,
		CreatedAt:  a.CreatedAt,
		ResolvedAt: a.ResolvedAt,
	}
}

type predictionResponse struct {
	RiskLevel       predictor.RiskLevel `json:"risk_level"`
	Confidence      float64             `json:"confidence"`
	RiskScore       float64             `json:"risk_score"`
	Recommendations []string            `json:"recommendations"`
	Timestamp       time.Time           `json:"timestamp"`
}

type batchItem struct {
	DeviceID        string              `json:"device_id"`
	RiskLevel       predictor.RiskLevel `json:"risk_level"`
	RiskScore       float64             `json:"risk_score"`
	Confidence      float64             `json:"confidence"`
	Recommendations []string            `json:"recommendations"`
}

func validationFailed(c *gin.Context, fields []service.FieldError) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": fields})
}

func badJSON(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid JSON body: " + err.Error()})
}

// writeError maps service errors onto status codes. prefix is prepended to
// the detail of unexpected failures.
func (h *Handlers) writeError(c *gin.Context, prefix string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		validationFailed(c, verr.Fields)
	case errors.Is(err, service.ErrInvalidHours):
		validationFailed(c, []service.FieldError{{Field: "hours", Rule: "gte", Param: "1"}})
	default:
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": prefix + err.Error()})
	}
}
