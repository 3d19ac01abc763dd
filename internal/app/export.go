package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
)

// Export renders a device's readings as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-service.RetentionWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store, nil, nil)
	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = svc.DefaultDevice()
	}

	readings, err := svc.Between(ctx, deviceID, from, to)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		a.Logger.Info().Str("device_id", deviceID).Msg("no readings found for export window")
		return nil
	}

	downsampled := downsampleReadings(readings, opts.MaxPoints)
	a.Logger.Info().Int("total", len(readings)).Int("exported", len(downsampled)).Msg("exporting readings")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReadingsPNG(opts.PNGPath, deviceID, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleReadings(readings []storage.Reading, max int) []storage.Reading {
	if max <= 1 || len(readings) <= max {
		return readings
	}

	result := make([]storage.Reading, 0, max)
	step := float64(len(readings)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(readings) {
			idx = len(readings) - 1
		}
		result = append(result, readings[idx])
	}
	return result
}

func writeReadingsCSV(path string, readings []storage.Reading) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"timestamp", "device_id", "heart_rate", "spo2", "temperature", "humidity", "air_quality", "risk_level", "risk_score", "is_critical"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range readings {
		record := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.DeviceID,
			decimal.NewFromFloat(r.HeartRate).String(),
			decimal.NewFromFloat(r.SpO2).String(),
			decimal.NewFromFloat(r.Temperature).String(),
			decimal.NewFromFloat(r.Humidity).String(),
			decimal.NewFromFloat(r.AirQuality).String(),
			string(r.RiskLevel),
			decimal.NewFromFloat(r.RiskScore).String(),
			strconv.FormatBool(r.IsCritical),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeReadingsPNG(path, deviceID string, readings []storage.Reading) error {
	if len(readings) < 2 {
		return errors.New("at least two readings are required to render a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(readings))
	heartRate := make([]float64, len(readings))
	spo2 := make([]float64, len(readings))
	temperature := make([]float64, len(readings))
	risk := make([]float64, len(readings))

	for i, r := range readings {
		x[i] = r.Timestamp
		heartRate[i] = r.HeartRate
		spo2[i] = r.SpO2
		temperature[i] = r.Temperature
		risk[i] = r.RiskScore
	}

	oneDecimal := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Title:  "Vitals " + deviceID,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeHourValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "HR (bpm) / SpO2 (%) / Temp (C)",
			ValueFormatter: oneDecimal,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Risk score",
			ValueFormatter: oneDecimal,
			Range:          &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Heart rate", XValues: x, YValues: heartRate},
			chart.TimeSeries{Name: "SpO2", XValues: x, YValues: spo2},
			chart.TimeSeries{Name: "Temperature", XValues: x, YValues: temperature},
			chart.TimeSeries{Name: "Risk score", XValues: x, YValues: risk, YAxis: chart.YAxisSecondary},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
