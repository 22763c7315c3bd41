package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

// HistoryRecorder keeps an audit trail of status changes.
type HistoryRecorder interface {
	Record(ctx context.Context, event *models.PublishEvent) error
	ForPost(ctx context.Context, postID string) ([]models.PublishEvent, error)
}

type GormHistory struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormHistory(db *gorm.DB, logger *zap.Logger) *GormHistory {
	return &GormHistory{
		db:     db,
		logger: logger,
	}
}

func (h *GormHistory) Record(ctx context.Context, event *models.PublishEvent) error {
	return h.db.WithContext(ctx).Create(event).Error
}

func (h *GormHistory) ForPost(ctx context.Context, postID string) ([]models.PublishEvent, error) {
	var events []models.PublishEvent
	err := h.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// Cleanup removes events older than the given number of days.
func (h *GormHistory) Cleanup(ctx context.Context, days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := h.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.PublishEvent{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		h.logger.Info("Cleaned up old publish events", zap.Int64("rows", result.RowsAffected))
	}
	return nil
}
