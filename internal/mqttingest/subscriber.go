package mqttingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"vitalwatch/internal/config"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/service"
	"vitalwatch/internal/storage"
)

const (
	connectTimeout = 10 * time.Second
	handleTimeout  = 10 * time.Second
)

// Ingester accepts validated readings.
type Ingester interface {
	Ingest(ctx context.Context, in service.SensorInput) (storage.Reading, predictor.Result, error)
}

// Subscriber feeds broker messages into the ingestion path.
type Subscriber struct {
	cfg     config.MQTTConfig
	ingest  Ingester
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New constructs a subscriber; Run connects it.
func New(cfg config.MQTTConfig, ingest Ingester, m *metrics.Metrics, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		cfg:     cfg,
		ingest:  ingest,
		metrics: m,
		logger:  logger.With().Str("component", "mqtt").Logger(),
	}
}

// Run connects, subscribes, and blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	// subscriptions do not survive a clean-session reconnect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			s.onMessage(ctx, msg)
		})
		if token.WaitTimeout(connectTimeout) && token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("mqtt subscribe failed")
			return
		}
		s.logger.Info().Str("topic", s.cfg.Topic).Uint8("qos", s.cfg.QoS).Msg("mqtt subscribed")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect mqtt broker %s: timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect mqtt broker %s: %w", s.cfg.Broker, err)
	}
	s.logger.Info().Str("broker", s.cfg.Broker).Msg("mqtt connected")

	<-ctx.Done()

	client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	client.Disconnect(250)
	s.logger.Info().Msg("mqtt disconnected")
	return ctx.Err()
}

func (s *Subscriber) onMessage(ctx context.Context, msg mqtt.Message) {
	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	outcome := "ok"
	if err := s.HandleMessage(hctx, msg.Topic(), msg.Payload()); err != nil {
		var verr *service.ValidationError
		switch {
		case errors.Is(err, errMalformed):
			outcome = "malformed"
		case errors.As(err, &verr):
			outcome = "invalid"
		default:
			outcome = "error"
		}
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt message rejected")
	}
	if s.metrics != nil {
		s.metrics.MQTTMessages.WithLabelValues(outcome).Inc()
	}
}

var errMalformed = errors.New("malformed payload")

// HandleMessage decodes one payload and ingests it. A payload without a
// device_id takes the second topic segment.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	var in service.SensorInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if strings.TrimSpace(in.DeviceID) == "" {
		in.DeviceID = DeviceFromTopic(topic)
	}

	reading, _, err := s.ingest.Ingest(ctx, in)
	if err != nil {
		return err
	}
	s.logger.Debug().
		Int64("reading_id", reading.ID).
		Str("device_id", reading.DeviceID).
		Str("risk_level", string(reading.RiskLevel)).
		Msg("mqtt reading ingested")
	return nil
}

// DeviceFromTopic returns the second segment of topic, or "".
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
