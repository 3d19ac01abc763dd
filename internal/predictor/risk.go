package predictor

import "fmt"

// RiskLevel is the discrete classification derived from vitals.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// RiskLevels lists the levels in class-index order.
var RiskLevels = []RiskLevel{RiskLow, RiskModerate, RiskHigh}

// Score thresholds shared by the model path and the model-info endpoint.
const (
	LowThreshold      = 0.33
	ModerateThreshold = 0.66
)

// FeatureNames is the feature order the model was trained on.
var FeatureNames = []string{"heart_rate", "spo2", "temperature", "humidity", "air_quality"}

// ParseRiskLevel validates a stored or submitted level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for _, level := range RiskLevels {
		if string(level) == s {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// Vitals is one set of measurements submitted by a device.
type Vitals struct {
	HeartRate   float64 `json:"heart_rate"`
	SpO2        float64 `json:"spo2"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	AirQuality  float64 `json:"air_quality"`
}

// Features returns the vitals in FeatureNames order.
func (v Vitals) Features() []float64 {
	return []float64{v.HeartRate, v.SpO2, v.Temperature, v.Humidity, v.AirQuality}
}

// Source names the path that produced a Result.
type Source string

const (
	SourceModel Source = "model"
	SourceRules Source = "rules"
)

// Result is the outcome of a classification.
type Result struct {
	Level           RiskLevel
	Score           float64
	Confidence      float64
	Recommendations []string
	Source          Source
}
