package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vitalwatch/internal/predictor"
)

// Classify runs the classifier on one set of vitals and prints the result.
// With Notify, the result is also sent through the configured notifier.
func (a *App) Classify(ctx context.Context, opts ClassifyOptions) error {
	if err := opts.Input.Validate(); err != nil {
		return err
	}
	if opts.Notify && a.newNotifier() == nil {
		return errors.New("no alert channel enabled; set alerting.enabled and alerting.telegram.enabled")
	}

	svc := a.newService(nil, a.newPredictor(), nil)
	vitals := opts.Input.Vitals()
	deviceID := opts.Input.Device(svc.DefaultDevice())
	res := svc.Classify(vitals)

	if err := a.printResult(deviceID, res, opts.JSON); err != nil {
		return err
	}

	if opts.Notify {
		if err := svc.Notify(ctx, deviceID, vitals, res); err != nil {
			return fmt.Errorf("send notification: %w", err)
		}
		fmt.Fprintln(a.Out, "notification sent")
	}
	return nil
}

func (a *App) printResult(deviceID string, res predictor.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"device_id":       deviceID,
			"risk_level":      res.Level,
			"risk_score":      res.Score,
			"confidence":      res.Confidence,
			"source":          res.Source,
			"recommendations": res.Recommendations,
		})
	}

	fmt.Fprintf(a.Out, "device:     %s\n", deviceID)
	fmt.Fprintf(a.Out, "risk:       %s\n", res.Level)
	fmt.Fprintf(a.Out, "score:      %s\n", formatFloat(res.Score, 2))
	fmt.Fprintf(a.Out, "confidence: %s\n", formatFloat(res.Confidence, 2))
	fmt.Fprintf(a.Out, "source:     %s\n", res.Source)
	fmt.Fprintln(a.Out, strings.Repeat("-", 40))
	for _, rec := range res.Recommendations {
		fmt.Fprintln(a.Out, rec)
	}
	return nil
}
