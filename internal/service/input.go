package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"vitalwatch/internal/predictor"
)

var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New(validator.WithRequiredStructEnabled())
	inputValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// SensorInput is a reading as submitted by a device. Vitals are pointers so
// that a missing field fails "required" instead of reading as zero.
type SensorInput struct {
	HeartRate   *float64 `json:"heart_rate" validate:"required,gte=0,lte=200"`
	SpO2        *float64 `json:"spo2" validate:"required,gte=0,lte=100"`
	Temperature *float64 `json:"temperature" validate:"required,gte=0,lte=50"`
	Humidity    *float64 `json:"humidity" validate:"required,gte=0,lte=100"`
	AirQuality  *float64 `json:"air_quality" validate:"required,gte=0,lte=500"`
	DeviceID    string   `json:"device_id,omitempty" validate:"omitempty,max=64"`
}

// FieldError describes one violated bound.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError lists every violation of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Rule))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Validate checks the input bounds.
func (in SensorInput) Validate() error {
	err := inputValidate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate input: %w", err)
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Vitals returns the measurements. It must only be called after Validate.
func (in SensorInput) Vitals() predictor.Vitals {
	return predictor.Vitals{
		HeartRate:   deref(in.HeartRate),
		SpO2:        deref(in.SpO2),
		Temperature: deref(in.Temperature),
		Humidity:    deref(in.Humidity),
		AirQuality:  deref(in.AirQuality),
	}
}

// Device returns the submitted device id or fallback.
func (in SensorInput) Device(fallback string) string {
	if id := strings.TrimSpace(in.DeviceID); id != "" {
		return id
	}
	return fallback
}

// NewSensorInput builds an input from plain vitals.
func NewSensorInput(v predictor.Vitals, deviceID string) SensorInput {
	return SensorInput{
		HeartRate:   &v.HeartRate,
		SpO2:        &v.SpO2,
		Temperature: &v.Temperature,
		Humidity:    &v.Humidity,
		AirQuality:  &v.AirQuality,
		DeviceID:    deviceID,
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
