package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

// Show prints the most recent readings.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	readings, err := a.newService(store, nil, nil).Recent(ctx, opts.DeviceID, opts.Limit)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		fmt.Fprintln(a.Out, "no readings found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tDevice\tHR\tSpO2\tTemp\tHumidity\tAir\tRisk\tScore\tCritical")

	for _, r := range readings {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			r.Timestamp.UTC().Format(time.RFC3339),
			r.DeviceID,
			formatFloat(r.HeartRate, 0),
			formatFloat(r.SpO2, 1),
			formatFloat(r.Temperature, 1),
			formatFloat(r.Humidity, 0),
			formatFloat(r.AirQuality, 0),
			r.RiskLevel,
			formatFloat(r.RiskScore, 2),
			r.IsCritical,
		)
	}

	return writer.Flush()
}
