package predictor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendationsOrder(t *testing.T) {
	v := Vitals{HeartRate: 110, SpO2: 93, Temperature: 38.4, Humidity: 80, AirQuality: 40}
	recs := Recommendations(v, RiskHigh)

	require.Len(t, recs, 6)
	assert.Contains(t, recs[0], "Elevated heart rate")
	assert.Contains(t, recs[1], "Low oxygen saturation")
	assert.Contains(t, recs[2], "Fever detected")
	assert.Contains(t, recs[3], "Poor air quality")
	assert.Contains(t, recs[4], "High humidity")
	assert.Contains(t, recs[5], "HIGH RISK")
}

func TestRecommendationsLowSide(t *testing.T) {
	v := Vitals{HeartRate: 50, SpO2: 96, Temperature: 35.5, Humidity: 20, AirQuality: 90}
	recs := Recommendations(v, RiskModerate)

	require.Len(t, recs, 5)
	assert.Contains(t, recs[0], "Low heart rate")
	assert.Contains(t, recs[1], "slightly low")
	assert.Contains(t, recs[2], "Low body temperature")
	assert.Contains(t, recs[3], "Low humidity")
	assert.Contains(t, recs[4], "MODERATE RISK")
}

func TestRecommendationsNormalVitalsEndWithAllClear(t *testing.T) {
	v := Vitals{HeartRate: 72, SpO2: 98, Temperature: 36.8, Humidity: 45, AirQuality: 85}
	recs := Recommendations(v, RiskLow)

	require.Len(t, recs, 1)
	assert.True(t, strings.Contains(recs[0], "All vitals within normal range"))
}
