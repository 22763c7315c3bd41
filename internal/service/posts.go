package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
)

// ErrHistoryDisabled is returned by History when no database is configured.
var ErrHistoryDisabled = errors.New("history disabled")

// PostStore is the persistence the post service works against.
type PostStore interface {
	List(ctx context.Context) ([]models.Post, error)
	UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) (before, after *models.Post, err error)
	Delete(ctx context.Context, id string) error
}

type PostService struct {
	store   PostStore
	history HistoryRecorder
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

// NewPostService wires the store. history may be nil.
func NewPostService(store PostStore, history HistoryRecorder, loc *time.Location, logger *zap.Logger) *PostService {
	if loc == nil {
		loc = time.Local
	}
	return &PostService{
		store:   store,
		history: history,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *PostService) Location() *time.Location {
	return s.loc
}

func (s *PostService) List(ctx context.Context) ([]models.Post, error) {
	return s.store.List(ctx)
}

// Pending returns the posts due now within window.
func (s *PostService) Pending(ctx context.Context, window time.Duration) ([]models.Post, error) {
	posts, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return models.DuePosts(posts, s.now(), window, s.loc), nil
}

func (s *PostService) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate, source string) (*models.Post, error) {
	if !update.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", update.Status)
	}

	before, after, err := s.store.UpdateStatus(ctx, id, update)
	if err != nil {
		return nil, err
	}

	telemetry.StatusUpdates.WithLabelValues(string(after.Status)).Inc()
	s.logger.Info("Post status updated",
		zap.String("post_id", id),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)),
		zap.String("source", source))

	s.record(ctx, before, after, source)
	return after, nil
}

func (s *PostService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Post deleted", zap.String("post_id", id))
	return nil
}

func (s *PostService) History(ctx context.Context, id string) ([]models.PublishEvent, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.ForPost(ctx, id)
}

func (s *PostService) record(ctx context.Context, before, after *models.Post, source string) {
	if s.history == nil {
		return
	}

	event := &models.PublishEvent{
		PostID:     after.ID,
		FromStatus: string(before.Status),
		ToStatus:   string(after.Status),
		Error:      after.Error,
		Source:     source,
	}
	if after.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, after.PublishedAt); err == nil {
			event.PublishedAt = &t
		}
	}

	// The file is the source of truth, a lost audit row is only logged.
	if err := s.history.Record(ctx, event); err != nil {
		s.logger.Error("Failed to record publish event", zap.String("post_id", after.ID), zap.Error(err))
	}
}
