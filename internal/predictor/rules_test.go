package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityBands(t *testing.T) {
	cases := []struct {
		name string
		got  Severity
		want Severity
	}{
		{"hr normal", HeartRateSeverity(72), SeverityNone},
		{"hr warning high", HeartRateSeverity(95), SeverityWarning},
		{"hr warning low", HeartRateSeverity(62), SeverityWarning},
		{"hr critical high", HeartRateSeverity(101), SeverityCritical},
		{"hr critical low", HeartRateSeverity(59.9), SeverityCritical},
		{"hr boundary 100", HeartRateSeverity(100), SeverityWarning},
		{"hr boundary 60", HeartRateSeverity(60), SeverityWarning},
		{"spo2 normal", SpO2Severity(98), SeverityNone},
		{"spo2 warning", SpO2Severity(96), SeverityWarning},
		{"spo2 critical", SpO2Severity(94.9), SeverityCritical},
		{"temp normal", TemperatureSeverity(36.8), SeverityNone},
		{"temp warning", TemperatureSeverity(37.6), SeverityWarning},
		{"temp warning low", TemperatureSeverity(36.1), SeverityWarning},
		{"temp critical", TemperatureSeverity(38.2), SeverityCritical},
		{"temp critical low", TemperatureSeverity(35.5), SeverityCritical},
		{"aq normal", AirQualitySeverity(85), SeverityNone},
		{"aq warning", AirQualitySeverity(60), SeverityWarning},
		{"aq critical", AirQualitySeverity(49), SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.got, tc.name)
	}
}

func TestRuleBasedNormalRangeIsAlwaysLow(t *testing.T) {
	for hr := 60; hr <= 100; hr += 5 {
		for spo2 := 97; spo2 <= 100; spo2++ {
			for temp := 362; temp <= 375; temp++ {
				for _, aq := range []float64{70, 85, 200, 500} {
					v := Vitals{
						HeartRate:   float64(hr),
						SpO2:        float64(spo2),
						Temperature: float64(temp) / 10,
						Humidity:    50,
						AirQuality:  aq,
					}
					res := RuleBased(v)
					if res.Level != RiskLow || res.Score != 0.2 {
						t.Fatalf("vitals %+v classified %s/%.2f, want Low/0.20", v, res.Level, res.Score)
					}
				}
			}
		}
	}
}

func TestRuleBasedLevels(t *testing.T) {
	cases := []struct {
		name  string
		v     Vitals
		level RiskLevel
		score float64
	}{
		{
			name:  "two critical",
			v:     Vitals{HeartRate: 120, SpO2: 92, Temperature: 36.8, Humidity: 50, AirQuality: 85},
			level: RiskHigh,
			score: 0.8,
		},
		{
			name:  "one critical",
			v:     Vitals{HeartRate: 72, SpO2: 98, Temperature: 38.5, Humidity: 50, AirQuality: 85},
			level: RiskModerate,
			score: 0.5,
		},
		{
			name:  "two warnings",
			v:     Vitals{HeartRate: 95, SpO2: 96, Temperature: 36.8, Humidity: 50, AirQuality: 85},
			level: RiskModerate,
			score: 0.5,
		},
		{
			name:  "humidity is not rated",
			v:     Vitals{HeartRate: 72, SpO2: 98, Temperature: 36.8, Humidity: 99, AirQuality: 85},
			level: RiskLow,
			score: 0.2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := RuleBased(tc.v)
			assert.Equal(t, tc.level, res.Level)
			assert.InDelta(t, tc.score, res.Score, 1e-9)
			assert.InDelta(t, 0.75, res.Confidence, 1e-9)
			assert.Equal(t, SourceRules, res.Source)
			assert.NotEmpty(t, res.Recommendations)
		})
	}
}
