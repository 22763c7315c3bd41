package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
)

// StatsUpdater handles periodic statistics updates
type StatsUpdater struct {
	postService *PostService
	history     *GormHistory
	logger      *zap.Logger
	ticker      *time.Ticker
	done        chan bool
}

// NewStatsUpdater creates a new stats updater. history may be nil.
func NewStatsUpdater(postService *PostService, history *GormHistory, logger *zap.Logger, interval time.Duration) *StatsUpdater {
	return &StatsUpdater{
		postService: postService,
		history:     history,
		logger:      logger,
		ticker:      time.NewTicker(interval),
		done:        make(chan bool),
	}
}

// Start begins the periodic stats update process
func (s *StatsUpdater) Start(ctx context.Context) {
	go func() {
		s.logger.Info("Starting stats updater")
		s.updateStats(ctx)
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.updateStats(ctx)
			}
		}
	}()
}

// Stop stops the stats updater
func (s *StatsUpdater) Stop() {
	s.ticker.Stop()
	close(s.done)
}

func (s *StatsUpdater) updateStats(ctx context.Context) {
	s.logger.Debug("Updating statistics")

	posts, err := s.postService.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list posts", zap.Error(err))
		return
	}
	for status, n := range models.CountByStatus(posts) {
		telemetry.PostsGauge.WithLabelValues(string(status)).Set(float64(n))
	}

	// Keep the last 90 days of events
	if s.history != nil {
		if err := s.history.Cleanup(ctx, 90); err != nil {
			s.logger.Error("Failed to cleanup old events", zap.Error(err))
		}
	}
}
