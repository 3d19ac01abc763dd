package predictor

// Severity is the tier a single vital falls into.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityCritical
)

const (
	ruleConfidence = 0.75

	ruleScoreHigh     = 0.8
	ruleScoreModerate = 0.5
	ruleScoreLow      = 0.2
)

// HeartRateSeverity rates a heart rate in BPM.
func HeartRateSeverity(bpm float64) Severity {
	switch {
	case bpm > 100 || bpm < 60:
		return SeverityCritical
	case bpm > 90 || bpm < 65:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// SpO2Severity rates blood oxygen saturation in percent.
func SpO2Severity(pct float64) Severity {
	switch {
	case pct < 95:
		return SeverityCritical
	case pct < 97:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// TemperatureSeverity rates body temperature in Celsius.
func TemperatureSeverity(celsius float64) Severity {
	switch {
	case celsius > 37.8 || celsius < 36.0:
		return SeverityCritical
	case celsius > 37.5 || celsius < 36.2:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// AirQualitySeverity rates the air quality index; lower is worse.
func AirQualitySeverity(index float64) Severity {
	switch {
	case index < 50:
		return SeverityCritical
	case index < 70:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// Tally counts the critical and warning signals across the rated vitals.
// Humidity is not rated.
func Tally(v Vitals) (critical, warning int) {
	for _, s := range []Severity{
		HeartRateSeverity(v.HeartRate),
		SpO2Severity(v.SpO2),
		TemperatureSeverity(v.Temperature),
		AirQualitySeverity(v.AirQuality),
	} {
		switch s {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warning++
		}
	}
	return critical, warning
}

// RuleBased classifies vitals with threshold rules only.
func RuleBased(v Vitals) Result {
	critical, warning := Tally(v)

	level, score := RiskLow, ruleScoreLow
	switch {
	case critical >= 2:
		level, score = RiskHigh, ruleScoreHigh
	case critical >= 1 || warning >= 2:
		level, score = RiskModerate, ruleScoreModerate
	}

	return Result{
		Level:           level,
		Score:           score,
		Confidence:      ruleConfidence,
		Recommendations: Recommendations(v, level),
		Source:          SourceRules,
	}
}
