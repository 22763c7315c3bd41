package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
)

// DueTicker logs the posts that fall due. Publishing itself is done by the
// coordinator; the tick never changes a post.
type DueTicker struct {
	config      *config.SchedulerConfig
	logger      *zap.Logger
	postService *PostService
	ticker      *time.Ticker
	stopCh      chan struct{}
}

func NewDueTicker(cfg *config.SchedulerConfig, logger *zap.Logger, postService *PostService) *DueTicker {
	return &DueTicker{
		config:      cfg,
		logger:      logger,
		postService: postService,
		stopCh:      make(chan struct{}),
	}
}

func (s *DueTicker) Start(ctx context.Context) error {
	if s.config.Disabled {
		s.logger.Info("Due ticker is disabled")
		return nil
	}

	s.logger.Info("Starting due ticker", zap.Duration("interval", s.config.TickInterval))

	s.ticker = time.NewTicker(s.config.TickInterval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.tick(ctx)
			case <-s.stopCh:
				s.logger.Info("Due ticker stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Due ticker context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *DueTicker) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Due ticker shutdown completed")
}

func (s *DueTicker) tick(ctx context.Context) {
	due, err := s.postService.Pending(ctx, models.TickDueWindow)
	if err != nil {
		s.logger.Error("Due check failed", zap.Error(err))
		return
	}

	telemetry.DuePostsGauge.Set(float64(len(due)))
	if len(due) == 0 {
		s.logger.Debug("No post due")
		return
	}

	s.logger.Info("Posts due for publication", zap.Int("count", len(due)))
	for _, p := range due {
		s.logger.Info("Post due",
			zap.String("post_id", p.ID),
			zap.String("title", p.Title),
			zap.String("scheduled", p.ScheduledDate+" "+p.ScheduledTime))
	}
}
