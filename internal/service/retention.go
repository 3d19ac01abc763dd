package service

import (
	"context"
	"fmt"
	"time"

	"vitalwatch/internal/storage"
)

// RetentionCutoff returns the instant before which readings expire.
func (s *Service) RetentionCutoff() time.Time {
	return s.now().Add(-RetentionWindow)
}

// PurgeExpired deletes readings strictly older than the retention window.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	if s.readings == nil {
		return 0, storage.ErrNotConfigured
	}
	deleted, err := s.readings.DeleteReadingsBefore(ctx, s.RetentionCutoff())
	if err != nil {
		return 0, fmt.Errorf("purge expired readings: %w", err)
	}
	if s.metrics != nil && deleted > 0 {
		s.metrics.RetentionDeleted.Add(float64(deleted))
	}
	return deleted, nil
}

// CountExpired reports how many readings a purge would delete.
func (s *Service) CountExpired(ctx context.Context) (int64, error) {
	if s.readings == nil {
		return 0, storage.ErrNotConfigured
	}
	n, err := s.readings.CountReadingsBefore(ctx, s.RetentionCutoff())
	if err != nil {
		return 0, fmt.Errorf("count expired readings: %w", err)
	}
	return n, nil
}

// Sweep runs one scheduled purge. When an advisory lock key is configured,
// only the replica holding the lock sweeps.
func (s *Service) Sweep(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.sweepOutcome("error")
		return err
	}
	if !proceed {
		s.sweepOutcome("skipped")
		s.logger.Debug().Time("tick", at).Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	deleted, err := s.PurgeExpired(ctx)
	if err != nil {
		s.sweepOutcome("error")
		return err
	}
	s.sweepOutcome("ok")
	s.logger.Info().Time("tick", at).Int64("deleted", deleted).Msg("retention sweep complete")
	return nil
}

func (s *Service) sweepOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RetentionSweeps.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
