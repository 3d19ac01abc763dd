package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalwatch/internal/predictor"
)

func TestSensorInputBounds(t *testing.T) {
	cases := []struct {
		name  string
		v     predictor.Vitals
		field string
		rule  string
	}{
		{"heart rate negative", predictor.Vitals{HeartRate: -1, SpO2: 98, Temperature: 36.8, Humidity: 45, AirQuality: 85}, "heart_rate", "gte"},
		{"spo2 over 100", predictor.Vitals{HeartRate: 70, SpO2: 101, Temperature: 36.8, Humidity: 45, AirQuality: 85}, "spo2", "lte"},
		{"temperature over 50", predictor.Vitals{HeartRate: 70, SpO2: 98, Temperature: 51, Humidity: 45, AirQuality: 85}, "temperature", "lte"},
		{"humidity over 100", predictor.Vitals{HeartRate: 70, SpO2: 98, Temperature: 36.8, Humidity: 100.5, AirQuality: 85}, "humidity", "lte"},
		{"air quality over 500", predictor.Vitals{HeartRate: 70, SpO2: 98, Temperature: 36.8, Humidity: 45, AirQuality: 501}, "air_quality", "lte"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewSensorInput(tc.v, "").Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tc.field, verr.Fields[0].Field)
			assert.Equal(t, tc.rule, verr.Fields[0].Rule)
		})
	}
}

func TestSensorInputBoundaryValuesAccepted(t *testing.T) {
	low := predictor.Vitals{}
	high := predictor.Vitals{HeartRate: 200, SpO2: 100, Temperature: 50, Humidity: 100, AirQuality: 500}

	assert.NoError(t, NewSensorInput(low, "").Validate())
	assert.NoError(t, NewSensorInput(high, "").Validate())
}

func TestSensorInputAllMissing(t *testing.T) {
	err := SensorInput{}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 5)
	assert.Contains(t, verr.Error(), "heart_rate: required")
}

func TestSensorInputDevice(t *testing.T) {
	in := SensorInput{DeviceID: "  "}
	assert.Equal(t, "ESP32_001", in.Device("ESP32_001"))
	in.DeviceID = "bed-3"
	assert.Equal(t, "bed-3", in.Device("ESP32_001"))
}
