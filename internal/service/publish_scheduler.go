package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
)

type publishRepository interface {
	ListDueForPublish(ctx context.Context, now time.Time) ([]models.Assignment, error)
	Activate(ctx context.Context, id string, now time.Time) error
}

type publishCache interface {
	Invalidate(ctx context.Context, pattern string) error
}

// PublishScheduler activates assignments whose scheduled publish time has
// arrived. It is the only component that flips is_active on, so an assignment
// can never be active ahead of its schedule.
type PublishScheduler struct {
	repo     publishRepository
	cache    publishCache
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublishScheduler constructs a PublishScheduler.
func NewPublishScheduler(repo publishRepository, cache publishCache, interval time.Duration, logger *zap.Logger) *PublishScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishScheduler{repo: repo, cache: cache, interval: interval, logger: logger}
}

// Start launches the ticker loop. Safe to call once.
func (s *PublishScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
	s.logger.Info("publish scheduler started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (s *PublishScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("publish scheduler stopped")
}

func (s *PublishScheduler) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.repo.ListDueForPublish(ctx, now)
	if err != nil {
		s.logger.Error("failed to list assignments due for publish", zap.Error(err))
		return
	}
	for _, assignment := range due {
		if err := s.repo.Activate(ctx, assignment.ID, now); err != nil {
			s.logger.Error("failed to activate assignment",
				zap.String("assignment_id", assignment.ID), zap.Error(err))
			continue
		}
		s.logger.Info("assignment published",
			zap.String("assignment_id", assignment.ID), zap.String("topic", assignment.Topic))
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, "stats:assignment:"+assignment.ID+"*"); err != nil {
				s.logger.Warn("failed to invalidate stats cache after publish", zap.Error(err))
			}
		}
	}
}
