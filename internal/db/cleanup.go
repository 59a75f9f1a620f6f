package db

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
)

// CleanupService periodically removes pending registrations whose
// verification window has passed.
type CleanupService struct {
	pending  *PendingRegistrationRepository
	ttl      time.Duration
	interval time.Duration
}

func NewCleanupService(pending *PendingRegistrationRepository, ttl time.Duration) *CleanupService {
	return &CleanupService{
		pending:  pending,
		ttl:      ttl,
		interval: DefaultCleanupInterval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting registration cleanup service", "component", "cleanup", "interval", s.interval, "ttl", s.ttl)

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping registration cleanup service", "component", "cleanup")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CleanupService) runCleanup(ctx context.Context) {
	deleted, err := s.pending.DeleteExpired(ctx, time.Now().Add(-s.ttl))
	if err != nil {
		slog.Error("error deleting expired pending registrations", "component", "cleanup", "error", err)
	} else if deleted > 0 {
		slog.Info("deleted expired pending registrations", "component", "cleanup", "count", deleted)
	}
}
