package predictor

// Recommendations returns advice for the vitals, ending with a message keyed
// by level. The result is never empty.
func Recommendations(v Vitals, level RiskLevel) []string {
	recs := make([]string, 0, 6)

	switch {
	case v.HeartRate > 100:
		recs = append(recs, "⚠️ Elevated heart rate detected. Rest and monitor closely.")
	case v.HeartRate < 60:
		recs = append(recs, "⚠️ Low heart rate detected. Consult healthcare provider.")
	}

	switch {
	case v.SpO2 < 95:
		recs = append(recs, "🚨 Low oxygen saturation. Seek immediate medical attention!")
	case v.SpO2 < 97:
		recs = append(recs, "⚠️ Oxygen levels slightly low. Monitor breathing.")
	}

	switch {
	case v.Temperature > 37.8:
		recs = append(recs, "🌡️ Fever detected. Consider fever-reducing medication.")
	case v.Temperature < 36.0:
		recs = append(recs, "🌡️ Low body temperature. Keep warm and monitor.")
	}

	if v.AirQuality < 70 {
		recs = append(recs, "💨 Poor air quality. Improve ventilation or use air purifier.")
	}

	switch {
	case v.Humidity > 70:
		recs = append(recs, "💧 High humidity. Use dehumidifier for comfort.")
	case v.Humidity < 30:
		recs = append(recs, "💧 Low humidity. Consider using humidifier.")
	}

	switch level {
	case RiskHigh:
		recs = append(recs, "🚨 HIGH RISK: Contact healthcare provider immediately!")
	case RiskModerate:
		recs = append(recs, "⚠️ MODERATE RISK: Monitor vitals every 15 minutes.")
	default:
		recs = append(recs, "✅ All vitals within normal range. Continue monitoring.")
	}

	return recs
}
