package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"vitalwatch/internal/alerting"
	"vitalwatch/internal/predictor"
	"vitalwatch/internal/storage"
	"vitalwatch/internal/tasks"
)

type memStore struct {
	mu        sync.Mutex
	nextID    int64
	readings  []storage.Reading
	alerts    []storage.Alert
	events    []storage.Event
	insertErr error
	deleteErr error
}

func (m *memStore) InsertReading(ctx context.Context, r storage.Reading) (storage.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return storage.Reading{}, m.insertErr
	}
	m.nextID++
	r.ID = m.nextID
	m.readings = append(m.readings, r)
	return r, nil
}

func (m *memStore) LatestReading(ctx context.Context, deviceID string) (storage.Reading, error) {
	list, _ := m.ListRecentReadings(ctx, deviceID, 1)
	if len(list) == 0 {
		return storage.Reading{}, storage.ErrNotFound
	}
	return list[0], nil
}

func (m *memStore) ListRecentReadings(ctx context.Context, deviceID string, limit int) ([]storage.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Reading, 0)
	for _, r := range m.readings {
		if deviceID == "" || r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) filter(deviceID string, keep func(storage.Reading) bool) []storage.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Reading, 0)
	for _, r := range m.readings {
		if r.DeviceID == deviceID && keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *memStore) ListReadingsSince(ctx context.Context, deviceID string, since time.Time) ([]storage.Reading, error) {
	return m.filter(deviceID, func(r storage.Reading) bool { return !r.Timestamp.Before(since) }), nil
}

func (m *memStore) ListReadingsBetween(ctx context.Context, deviceID string, from, to time.Time) ([]storage.Reading, error) {
	return m.filter(deviceID, func(r storage.Reading) bool {
		return !r.Timestamp.Before(from) && r.Timestamp.Before(to)
	}), nil
}

func (m *memStore) ReadingStats(ctx context.Context, deviceID string) (storage.ReadingStats, error) {
	var stats storage.ReadingStats
	for _, r := range m.filter(deviceID, func(storage.Reading) bool { return true }) {
		stats.Total++
		switch r.RiskLevel {
		case predictor.RiskHigh:
			stats.High++
		case predictor.RiskModerate:
			stats.Moderate++
		default:
			stats.Low++
		}
		ts := r.Timestamp
		if stats.First == nil || ts.Before(*stats.First) {
			stats.First = &ts
		}
		if stats.Last == nil || ts.After(*stats.Last) {
			last := ts
			stats.Last = &last
		}
	}
	return stats, nil
}

func (m *memStore) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	kept := m.readings[:0]
	var deleted int64
	for _, r := range m.readings {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.readings = kept
	return deleted, nil
}

func (m *memStore) CountReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.readings {
		if r.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) InsertAlert(ctx context.Context, a storage.Alert) (storage.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.alerts) + 1)
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *memStore) ListUnresolvedAlerts(ctx context.Context, deviceID string) ([]storage.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Alert, 0)
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if !a.IsResolved && (deviceID == "" || a.DeviceID == deviceID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ResolveAlert(ctx context.Context, id int64, at time.Time) (storage.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id && !m.alerts[i].IsResolved {
			m.alerts[i].IsResolved = true
			m.alerts[i].ResolvedAt = &at
			return m.alerts[i], nil
		}
	}
	return storage.Alert{}, storage.ErrNotFound
}

func (m *memStore) InsertEvent(ctx context.Context, e storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) add(deviceID string, level predictor.RiskLevel, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.readings = append(m.readings, storage.Reading{
		ID: m.nextID, DeviceID: deviceID, RiskLevel: level, Timestamp: ts,
		HeartRate: 72, SpO2: 98, Temperature: 36.8, Humidity: 45, AirQuality: 85, RiskScore: 0.2,
	})
}

type fixedClassifier struct {
	result predictor.Result
}

func (f fixedClassifier) Predict(v predictor.Vitals) predictor.Result {
	return f.result
}

// inlineDeferrer runs tasks synchronously and records their names.
type inlineDeferrer struct {
	mu    sync.Mutex
	names []string
}

func (d *inlineDeferrer) Submit(name string, fn tasks.Func) error {
	d.mu.Lock()
	d.names = append(d.names, name)
	d.mu.Unlock()
	return fn(context.Background())
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

type stubLocker struct {
	acquired bool
	err      error
	unlocked bool
}

func (l *stubLocker) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.unlocked = true }, true, nil
}

var errDBDown = errors.New("db down")
