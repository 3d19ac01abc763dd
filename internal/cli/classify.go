package cli

import (
	"github.com/spf13/cobra"

	"vitalwatch/internal/app"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/service"
)

var (
	classifyVitals predictor.Vitals
	classifyDevice string
	classifyNotify bool
	classifyJSON   bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one set of vitals without storing it",
	Example: "  vitalwatch classify --heart-rate 128 --spo2 91 --temperature 38.4 --humidity 55 --air-quality 60\n" +
		"  vitalwatch classify --heart-rate 72 --spo2 98 --temperature 36.8 --humidity 45 --air-quality 85 --json",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ClassifyOptions{
			Input:  service.NewSensorInput(classifyVitals, classifyDevice),
			Notify: classifyNotify,
			JSON:   classifyJSON,
		}
		return getApp().Classify(cmd.Context(), opts)
	},
}

func init() {
	flags := classifyCmd.Flags()
	flags.Float64Var(&classifyVitals.HeartRate, "heart-rate", 0, "Heart rate (bpm)")
	flags.Float64Var(&classifyVitals.SpO2, "spo2", 0, "Blood oxygen saturation (%)")
	flags.Float64Var(&classifyVitals.Temperature, "temperature", 0, "Body temperature (C)")
	flags.Float64Var(&classifyVitals.Humidity, "humidity", 0, "Relative humidity (%)")
	flags.Float64Var(&classifyVitals.AirQuality, "air-quality", 0, "Air quality index")
	flags.StringVar(&classifyDevice, "device", "", "Device id")
	flags.BoolVar(&classifyNotify, "notify", false, "Send the result through the configured alert channel")
	flags.BoolVar(&classifyJSON, "json", false, "Print the result as JSON")

	for _, name := range []string{"heart-rate", "spo2", "temperature", "humidity", "air-quality"} {
		_ = classifyCmd.MarkFlagRequired(name)
	}
}
