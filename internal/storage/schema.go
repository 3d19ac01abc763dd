package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
        id          BIGSERIAL PRIMARY KEY,
        device_id   TEXT             NOT NULL DEFAULT 'ESP32_001',
        heart_rate  DOUBLE PRECISION NOT NULL,
        spo2        DOUBLE PRECISION NOT NULL,
        temperature DOUBLE PRECISION NOT NULL,
        humidity    DOUBLE PRECISION NOT NULL,
        air_quality DOUBLE PRECISION NOT NULL,
        risk_level  TEXT             NOT NULL CHECK (risk_level IN ('Low', 'Moderate', 'High')),
        risk_score  DOUBLE PRECISION NOT NULL,
        is_critical BOOLEAN          NOT NULL DEFAULT FALSE,
        recorded_at TIMESTAMPTZ      NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS sensor_readings_device_recorded_idx ON sensor_readings (device_id, recorded_at);`,
	`CREATE INDEX IF NOT EXISTS sensor_readings_recorded_idx ON sensor_readings (recorded_at);`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id          BIGSERIAL PRIMARY KEY,
        device_id   TEXT             NOT NULL,
        alert_type  TEXT             NOT NULL CHECK (alert_type IN ('CRITICAL', 'WARNING', 'INFO')),
        message     TEXT             NOT NULL,
        vital_name  TEXT,
        vital_value DOUBLE PRECISION,
        is_resolved BOOLEAN          NOT NULL DEFAULT FALSE,
        created_at  TIMESTAMPTZ      NOT NULL DEFAULT now(),
        resolved_at TIMESTAMPTZ
    );`,
	`CREATE INDEX IF NOT EXISTS alerts_device_created_idx ON alerts (device_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS system_logs (
        id         BIGSERIAL PRIMARY KEY,
        event_type TEXT        NOT NULL,
        message    TEXT        NOT NULL,
        device_id  TEXT,
        logged_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS system_logs_logged_idx ON system_logs (logged_at);`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
