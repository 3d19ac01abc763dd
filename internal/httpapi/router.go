package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vitalwatch/internal/metrics"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
	"vitalwatch/internal/version"
)

// SensorService is the business surface the handlers depend on.
type SensorService interface {
	Ingest(ctx context.Context, in service.SensorInput) (storage.Reading, predictor.Result, error)
	Latest(ctx context.Context, deviceID string) (storage.Reading, error)
	History(ctx context.Context, deviceID string, hours int) (service.History, error)
	Stats(ctx context.Context, deviceID string) (service.Stats, error)
	Alerts(ctx context.Context, deviceID string) ([]storage.Alert, error)
	ResolveAlert(ctx context.Context, id int64) (storage.Alert, error)
	Classify(v predictor.Vitals) predictor.Result
	DefaultDevice() string
}

// ModelInfo describes the loaded classifier.
type ModelInfo interface {
	Info() predictor.Info
	Loaded() bool
}

// Broadcaster is the WebSocket hub.
type Broadcaster interface {
	http.Handler
	Broadcast(v any) int
	Count() int
}

// Handlers bundles the dependencies of the HTTP layer.
type Handlers struct {
	svc     SensorService
	model   ModelInfo
	hub     Broadcaster
	db      storage.Pinger
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewHandlers wires handler dependencies. db and m may be nil.
func NewHandlers(svc SensorService, model ModelInfo, hub Broadcaster, db storage.Pinger, m *metrics.Metrics, logger zerolog.Logger) *Handlers {
	return &Handlers{
		svc:     svc,
		model:   model,
		hub:     hub,
		db:      db,
		metrics: m,
		logger:  logger.With().Str("component", "http").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(requestID(), accessLog(h.logger), observe(h.metrics), gin.CustomRecovery(h.recover))

	router.GET("/", h.root)
	router.GET("/health", h.health)
	router.POST("/broadcast", h.broadcast)
	router.GET("/ws", gin.WrapH(h.hub))
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	sensor := router.Group("/api/sensor-data")
	sensor.POST("", h.ingest)
	sensor.POST("/", h.ingest)
	sensor.GET("/latest", h.latest)
	sensor.GET("/history", h.history)
	sensor.GET("/stats", h.stats)
	sensor.GET("/alerts", h.alerts)
	sensor.POST("/alerts/:id/resolve", h.resolveAlert)

	predictions := router.Group("/api/predictions")
	predictions.POST("/predict", h.predict)
	predictions.POST("/batch-predict", h.batchPredict)
	predictions.GET("/model-info", h.modelInfo)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found", "path": c.Request.URL.String()})
	})

	return router
}

func (h *Handlers) recover(c *gin.Context, recovered any) {
	h.logger.Error().
		Str("path", c.Request.URL.Path).
		Interface("panic", recovered).
		Msg("handler panicked")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":  "Internal server error",
		"detail": fmt.Sprint(recovered),
	})
}

func (h *Handlers) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "IoT Health Monitoring System API",
		"version": version.Version,
		"status":  "operational",
		"endpoints": gin.H{
			"sensor_data": "/api/sensor-data",
			"predictions": "/api/predictions",
			"websocket":   "/ws",
			"metrics":     "/metrics",
		},
	})
}

func (h *Handlers) health(c *gin.Context) {
	database := "connected"
	if h.db == nil {
		database = "disconnected"
	} else if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("health ping failed")
		database = "disconnected"
	}

	model := "rule_based"
	if h.model != nil && h.model.Loaded() {
		model = "loaded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now(),
		"database":  database,
		"ml_model":  model,
	})
}

func (h *Handlers) broadcast(c *gin.Context) {
	var message map[string]any
	if err := c.ShouldBindJSON(&message); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "body must be a JSON object"})
		return
	}
	n := h.hub.Broadcast(message)
	c.JSON(http.StatusOK, gin.H{"status": "broadcasted", "connections": n})
}
