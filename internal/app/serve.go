package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"vitalwatch/internal/httpapi"
	"vitalwatch/internal/hub"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/mqttingest"
	"vitalwatch/internal/scheduler"
	"vitalwatch/internal/service"
	"vitalwatch/internal/tasks"
)

// Serve runs the HTTP API, the retention scheduler and the optional MQTT
// subscriber until SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Config.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	pred := a.newPredictor()

	runner := tasks.New(tasks.Options{
		Workers:     a.Config.Tasks.Workers,
		QueueSize:   a.Config.Tasks.QueueSize,
		TaskTimeout: a.Config.Tasks.TaskTimeout,
		OnResult:    m.TaskResult,
	}, a.Logger)

	svc := service.New(a.Config, service.Deps{
		Readings:   store,
		Alerts:     store,
		Events:     store,
		Locker:     store,
		Classifier: pred,
		Deferrer:   runner,
		Notifier:   a.newNotifier(),
		Metrics:    m,
	}, a.Logger)

	wsHub := hub.New(hub.Options{
		ReadLimit:    a.Config.WebSocket.ReadLimit,
		WriteTimeout: a.Config.WebSocket.WriteTimeout,
	}, m, a.Logger)

	router := httpapi.NewRouter(httpapi.NewHandlers(svc, pred, wsHub, store, m, a.Logger))
	server := httpapi.NewServer(a.Config.HTTP, router, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Retention.SweepInterval,
		AlignToStart: a.Config.Retention.AlignToInterval,
		StartupDelay: a.Config.Retention.StartupDelay,
		Immediate:    true,
	}, a.Logger)

	a.Logger.Info().
		Str("addr", a.Config.HTTP.Addr).
		Bool("model_loaded", pred.Loaded()).
		Bool("mqtt", a.Config.MQTT.Enabled).
		Bool("alerting", a.Config.Alerting.Enabled).
		Msg("starting vitalwatch")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return ignoreCanceled(sched.Run(gctx, svc.Sweep))
	})
	if a.Config.MQTT.Enabled {
		sub := mqttingest.New(a.Config.MQTT, svc, m, a.Logger)
		g.Go(func() error {
			return ignoreCanceled(sub.Run(gctx))
		})
	}

	err = g.Wait()

	drainTimeout := a.Config.Tasks.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if drainErr := runner.Close(drainCtx); drainErr != nil {
		a.Logger.Warn().Err(drainErr).Msg("deferred tasks did not drain")
	}

	if err != nil {
		a.Logger.Error().Err(err).Msg("vitalwatch terminated with error")
		return err
	}
	a.Logger.Info().Msg("vitalwatch stopped")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
