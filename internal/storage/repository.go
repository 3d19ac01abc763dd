package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vitalwatch/internal/predictor"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

const (
	readingColumns = `id, device_id, heart_rate, spo2, temperature, humidity, air_quality,
        risk_level, risk_score, is_critical, recorded_at`

	alertColumns = `id, device_id, alert_type, message, vital_name, vital_value,
        is_resolved, created_at, resolved_at`

	insertReadingSQL = `INSERT INTO sensor_readings (
        device_id,
        heart_rate,
        spo2,
        temperature,
        humidity,
        air_quality,
        risk_level,
        risk_score,
        is_critical,
        recorded_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING id;`

	listRecentReadingsSQL = `SELECT ` + readingColumns + `
    FROM sensor_readings
    WHERE ($1 = '' OR device_id = $1)
    ORDER BY recorded_at DESC, id DESC
    LIMIT $2;`

	listReadingsSinceSQL = `SELECT ` + readingColumns + `
    FROM sensor_readings
    WHERE device_id = $1
      AND recorded_at >= $2
    ORDER BY recorded_at ASC, id ASC;`

	listReadingsBetweenSQL = `SELECT ` + readingColumns + `
    FROM sensor_readings
    WHERE device_id = $1
      AND recorded_at >= $2
      AND recorded_at < $3
    ORDER BY recorded_at ASC, id ASC;`

	readingStatsSQL = `SELECT
        COUNT(*),
        COUNT(*) FILTER (WHERE risk_level = 'High'),
        COUNT(*) FILTER (WHERE risk_level = 'Moderate'),
        COUNT(*) FILTER (WHERE risk_level = 'Low'),
        MIN(recorded_at),
        MAX(recorded_at)
    FROM sensor_readings
    WHERE device_id = $1;`

	deleteReadingsBeforeSQL = `DELETE FROM sensor_readings WHERE recorded_at < $1;`
	countReadingsBeforeSQL  = `SELECT COUNT(*) FROM sensor_readings WHERE recorded_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        device_id,
        alert_type,
        message,
        vital_name,
        vital_value,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING ` + alertColumns + `;`

	listUnresolvedAlertsSQL = `SELECT ` + alertColumns + `
    FROM alerts
    WHERE is_resolved = FALSE
      AND ($1 = '' OR device_id = $1)
    ORDER BY created_at DESC, id DESC;`

	resolveAlertSQL = `UPDATE alerts
    SET is_resolved = TRUE, resolved_at = $2
    WHERE id = $1 AND is_resolved = FALSE
    RETURNING ` + alertColumns + `;`

	insertEventSQL = `INSERT INTO system_logs (
        event_type,
        message,
        device_id,
        logged_at
    ) VALUES (
        $1,$2,$3,$4
    );`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ReadingStore defines operations for reading persistence.
type ReadingStore interface {
	InsertReading(ctx context.Context, reading Reading) (Reading, error)
	LatestReading(ctx context.Context, deviceID string) (Reading, error)
	ListRecentReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error)
	ListReadingsSince(ctx context.Context, deviceID string, since time.Time) ([]Reading, error)
	ListReadingsBetween(ctx context.Context, deviceID string, from, to time.Time) ([]Reading, error)
	ReadingStats(ctx context.Context, deviceID string) (ReadingStats, error)
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertStore defines operations for alert records.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	ListUnresolvedAlerts(ctx context.Context, deviceID string) ([]Alert, error)
	ResolveAlert(ctx context.Context, id int64, at time.Time) (Alert, error)
}

// EventLog appends system events.
type EventLog interface {
	InsertEvent(ctx context.Context, event Event) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// dbtx is the query surface shared by pgxpool.Pool and test doubles.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store aggregates access to readings, alerts and the event log.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	if pool != nil {
		s.db = pool
	}
	return s
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) conn() (dbtx, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrNotConfigured
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertReading persists a classified reading and returns it with its id.
func (s *Store) InsertReading(ctx context.Context, reading Reading) (Reading, error) {
	db, err := s.conn()
	if err != nil {
		return Reading{}, err
	}
	if _, err := predictor.ParseRiskLevel(string(reading.RiskLevel)); err != nil {
		return Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	if err := db.QueryRow(ctx, insertReadingSQL,
		reading.DeviceID,
		reading.HeartRate,
		reading.SpO2,
		reading.Temperature,
		reading.Humidity,
		reading.AirQuality,
		string(reading.RiskLevel),
		reading.RiskScore,
		reading.IsCritical,
		reading.Timestamp,
	).Scan(&reading.ID); err != nil {
		return Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	return reading, nil
}

// LatestReading returns the most recent reading of a device.
func (s *Store) LatestReading(ctx context.Context, deviceID string) (Reading, error) {
	readings, err := s.ListRecentReadings(ctx, deviceID, 1)
	if err != nil {
		return Reading{}, err
	}
	if len(readings) == 0 {
		return Reading{}, ErrNotFound
	}
	return readings[0], nil
}

// ListRecentReadings lists readings newest first. An empty deviceID matches all devices.
func (s *Store) ListRecentReadings(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	return s.queryReadings(ctx, "list recent readings", listRecentReadingsSQL, deviceID, limit)
}

// ListReadingsSince lists a device's readings at or after since, oldest first.
func (s *Store) ListReadingsSince(ctx context.Context, deviceID string, since time.Time) ([]Reading, error) {
	return s.queryReadings(ctx, "list readings since", listReadingsSinceSQL, deviceID, since)
}

// ListReadingsBetween lists a device's readings in [from, to), oldest first.
func (s *Store) ListReadingsBetween(ctx context.Context, deviceID string, from, to time.Time) ([]Reading, error) {
	return s.queryReadings(ctx, "list readings between", listReadingsBetweenSQL, deviceID, from, to)
}

func (s *Store) queryReadings(ctx context.Context, op, query string, args ...any) ([]Reading, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		reading, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%s: %w", op, scanErr)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return readings, nil
}

// ReadingStats aggregates the readings of one device.
func (s *Store) ReadingStats(ctx context.Context, deviceID string) (ReadingStats, error) {
	db, err := s.conn()
	if err != nil {
		return ReadingStats{}, err
	}

	var (
		stats       ReadingStats
		first, last sql.NullTime
	)
	if err := db.QueryRow(ctx, readingStatsSQL, deviceID).Scan(
		&stats.Total,
		&stats.High,
		&stats.Moderate,
		&stats.Low,
		&first,
		&last,
	); err != nil {
		return ReadingStats{}, fmt.Errorf("reading stats: %w", err)
	}
	if first.Valid {
		t := first.Time
		stats.First = &t
	}
	if last.Valid {
		t := last.Time
		stats.Last = &t
	}
	return stats, nil
}

// DeleteReadingsBefore removes readings strictly older than cutoff.
func (s *Store) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	tag, err := db.Exec(ctx, deleteReadingsBeforeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete readings before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountReadingsBefore counts readings strictly older than cutoff.
func (s *Store) CountReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRow(ctx, countReadingsBeforeSQL, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("count readings before: %w", err)
	}
	return count, nil
}

// InsertAlert persists an alert.
func (s *Store) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	db, err := s.conn()
	if err != nil {
		return Alert{}, err
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	row := db.QueryRow(ctx, insertAlertSQL,
		alert.DeviceID,
		alert.Type,
		alert.Message,
		alert.VitalName,
		alert.VitalValue,
		alert.CreatedAt,
	)
	rec, err := scanAlert(row)
	if err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListUnresolvedAlerts lists open alerts newest first. An empty deviceID matches all devices.
func (s *Store) ListUnresolvedAlerts(ctx context.Context, deviceID string) ([]Alert, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, listUnresolvedAlertsSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list unresolved alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list unresolved alerts: %w", scanErr)
		}
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unresolved alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks an open alert resolved. Unknown or already resolved
// alerts yield ErrNotFound.
func (s *Store) ResolveAlert(ctx context.Context, id int64, at time.Time) (Alert, error) {
	db, err := s.conn()
	if err != nil {
		return Alert{}, err
	}
	rec, err := scanAlert(db.QueryRow(ctx, resolveAlertSQL, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	if err != nil {
		return Alert{}, fmt.Errorf("resolve alert: %w", err)
	}
	return rec, nil
}

// InsertEvent appends to the system log.
func (s *Store) InsertEvent(ctx context.Context, event Event) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if _, err := db.Exec(ctx, insertEventSQL, event.EventType, event.Message, event.DeviceID, event.Timestamp); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func scanReading(row pgx.Row) (Reading, error) {
	var (
		r     Reading
		level string
	)
	if err := row.Scan(
		&r.ID,
		&r.DeviceID,
		&r.HeartRate,
		&r.SpO2,
		&r.Temperature,
		&r.Humidity,
		&r.AirQuality,
		&level,
		&r.RiskScore,
		&r.IsCritical,
		&r.Timestamp,
	); err != nil {
		return Reading{}, err
	}

	parsed, err := predictor.ParseRiskLevel(level)
	if err != nil {
		return Reading{}, fmt.Errorf("reading %d: %w", r.ID, err)
	}
	r.RiskLevel = parsed
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		a          Alert
		vitalName  sql.NullString
		vitalValue sql.NullFloat64
		resolvedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.DeviceID,
		&a.Type,
		&a.Message,
		&vitalName,
		&vitalValue,
		&a.IsResolved,
		&a.CreatedAt,
		&resolvedAt,
	); err != nil {
		return Alert{}, err
	}

	if vitalName.Valid {
		name := vitalName.String
		a.VitalName = &name
	}
	if vitalValue.Valid {
		value := vitalValue.Float64
		a.VitalValue = &value
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		a.ResolvedAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}
