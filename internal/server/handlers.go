package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/service"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": timestamp(),
		"uptime":    time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleListPosts(c *gin.Context) {
	posts, err := s.PostService.List(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to list posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read posts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts, "timestamp": timestamp()})
}

func (s *Server) handlePendingPosts(c *gin.Context) {
	posts, err := s.PostService.Pending(c.Request.Context(), models.CoordinatorDueWindow)
	if err != nil {
		s.Logger.Error("Failed to compute pending posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read posts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts, "timestamp": timestamp()})
}

func (s *Server) handleUpdatePost(c *gin.Context) {
	id := c.Param("id")

	var update models.StatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body: " + err.Error()})
		return
	}
	if !update.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	post, err := s.PostService.UpdateStatus(c.Request.Context(), id, update, "api")
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.Logger.Error("Failed to update post", zap.String("post_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update post"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "post": post})
}

func (s *Server) handleDeletePost(c *gin.Context) {
	id := c.Param("id")

	err := s.PostService.Delete(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		s.Logger.Error("Failed to delete post", zap.String("post_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handlePostHistory(c *gin.Context) {
	events, err := s.PostService.History(c.Request.Context(), c.Param("id"))
	if errors.Is(err, service.ErrHistoryDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.Logger.Error("Failed to read post history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleImage(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing path"})
		return
	}

	width := 0
	if raw := c.Query("width"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid width"})
			return
		}
		width = w
	}

	img, err := s.ImageService.Load(c.Request.Context(), path, width)
	if err != nil {
		telemetry.ImageRequests.WithLabelValues("not_found").Inc()
		s.Logger.Warn("Image not served", zap.String("path", path), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	telemetry.ImageRequests.WithLabelValues("ok").Inc()
	c.Data(http.StatusOK, img.MIME, img.Data)
}
