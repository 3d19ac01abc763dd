package app

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"vitalwatch/internal/alerting"
	"vitalwatch/internal/config"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
)

// ErrNoDatabase is returned by commands that need database.dsn.
var ErrNoDatabase = errors.New("database.dsn not configured")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) newPredictor() *predictor.Predictor {
	return predictor.Load(a.Config.Model.Path, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, ErrNoDatabase
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// newService builds a service for one-shot commands. Deferred work runs inline.
func (a *App) newService(store *storage.Store, classifier service.Classifier, m *metrics.Metrics) *service.Service {
	deps := service.Deps{
		Classifier: classifier,
		Notifier:   a.newNotifier(),
		Metrics:    m,
	}
	if store != nil {
		deps.Readings = store
		deps.Alerts = store
		deps.Events = store
		deps.Locker = store
	}
	return service.New(a.Config, deps, a.Logger)
}

// ExportOptions hold parameters for exporting readings.
type ExportOptions struct {
	DeviceID  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	DeviceID string
	Limit    int
}

// CleanupOptions configure a manual retention purge.
type CleanupOptions struct {
	DryRun bool
}

// ClassifyOptions configure a one-off classification.
type ClassifyOptions struct {
	Input  service.SensorInput
	Notify bool
	JSON   bool
}
