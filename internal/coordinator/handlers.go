package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

func (c *Coordinator) register() {
	c.bus.Handle(messaging.ActionContentScriptReady, c.handleAgentReady)
	c.bus.Handle(messaging.ActionPublishResult, c.handleFlowResult)
	c.bus.Handle(messaging.ActionScheduleResult, c.handleFlowResult)
	c.bus.Handle(messaging.ActionGetScheduledPosts, c.handleGetScheduledPosts)
	c.bus.Handle(messaging.ActionGetPostData, c.handleGetPostData)
	c.bus.Handle(messaging.ActionUpdatePostStatus, c.handleUpdatePostStatus)
	c.bus.Handle(messaging.ActionForceCheck, c.handleForceCheck)
	c.bus.Handle(messaging.ActionManualPublish, c.handleManualPublish)
	c.bus.Handle(messaging.ActionScheduleToLinkedIn, c.handleScheduleToLinkedIn)
	c.bus.Handle(messaging.ActionGetStatus, c.handleGetStatus)
}

func (c *Coordinator) handleAgentReady(_ context.Context, _ messaging.Message) (*messaging.Response, error) {
	c.logger.Info("Page agent ready")
	return nil, nil
}

func (c *Coordinator) handleFlowResult(_ context.Context, msg messaging.Message) (*messaging.Response, error) {
	fields := []zap.Field{zap.String("action", string(msg.Action)), zap.String("post_id", msg.PostID)}
	if msg.Result != nil {
		fields = append(fields, zap.Bool("success", msg.Result.Success), zap.String("error", msg.Result.Error))
	}
	c.logger.Info("Flow result received", fields...)
	return nil, nil
}

func (c *Coordinator) handleGetScheduledPosts(_ context.Context, _ messaging.Message) (*messaging.Response, error) {
	status := c.Status()
	return &messaging.Response{Success: true, Posts: c.Posts(), Connected: status.Connected}, nil
}

// handleGetPostData returns the post with its image inlined, for agents that
// cannot reach the server themselves.
func (c *Coordinator) handleGetPostData(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	posts, err := c.api.ListPosts(ctx)
	if err != nil {
		return &messaging.Response{Error: err.Error()}, nil
	}

	var post *models.Post
	for i := range posts {
		if posts[i].ID == msg.PostID {
			post = &posts[i]
			break
		}
	}
	if post == nil {
		return &messaging.Response{Error: "Post not found"}, nil
	}

	payload := post.Payload("")
	if post.ImageURL != "" {
		data, mimeType, err := c.api.FetchImage(ctx, post.ImageURL)
		if err != nil {
			c.logger.Error("Failed to inline post image", zap.String("post_id", post.ID), zap.Error(err))
		} else {
			payload.ImageData = automation.DataURL(mimeType, data)
		}
	}
	return &messaging.Response{Success: true, Post: &payload}, nil
}

func (c *Coordinator) handleUpdatePostStatus(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	update := models.StatusUpdate{Status: msg.Status, Error: msg.Error}
	if msg.Status == models.StatusPublished {
		update.PublishedAt = c.now().UTC().Format(time.RFC3339)
	}
	if _, err := c.api.UpdateStatus(ctx, msg.PostID, update); err != nil {
		return &messaging.Response{Error: err.Error(), PostID: msg.PostID}, nil
	}
	return &messaging.Response{Success: true, PostID: msg.PostID}, nil
}

func (c *Coordinator) handleForceCheck(ctx context.Context, _ messaging.Message) (*messaging.Response, error) {
	if err := c.Check(ctx); err != nil {
		c.logger.Warn("Forced check could not reach the server", zap.Error(err))
	}
	return &messaging.Response{Success: true}, nil
}

func (c *Coordinator) handleManualPublish(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	return c.handleManual(ctx, msg, c.Publish)
}

func (c *Coordinator) handleScheduleToLinkedIn(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	return c.handleManual(ctx, msg, c.ScheduleNative)
}

func (c *Coordinator) handleManual(ctx context.Context, msg messaging.Message, run func(context.Context, models.Post) messaging.Result) (*messaging.Response, error) {
	id := msg.PostID
	if id == "" && msg.Post != nil {
		id = msg.Post.ID
	}
	if id == "" {
		return &messaging.Response{Error: "missing post id"}, nil
	}

	post, err := c.lookup(ctx, id)
	if errors.Is(err, models.ErrNotFound) && msg.Post != nil {
		post = postFromPayload(*msg.Post)
		err = nil
	}
	if err != nil {
		return &messaging.Response{Error: err.Error(), PostID: id}, nil
	}
	return messaging.ResultResponse(run(ctx, *post)), nil
}

func (c *Coordinator) handleGetStatus(_ context.Context, _ messaging.Message) (*messaging.Response, error) {
	status := c.Status()
	resp := &messaging.Response{
		Success:        true,
		Connected:      status.Connected,
		ScheduledCount: status.ScheduledCount,
		TabID:          status.TabID,
	}
	if !status.LastCheck.IsZero() {
		resp.LastCheck = status.LastCheck.Format(time.RFC3339)
	}
	return resp, nil
}

func postFromPayload(p models.PostPayload) *models.Post {
	return &models.Post{
		ID:            p.ID,
		Title:         p.Title,
		Content:       p.Content,
		ImageURL:      p.ImageURL,
		ScheduledDate: p.ScheduledDate,
		ScheduledTime: p.ScheduledTime,
		Status:        models.StatusScheduled,
	}
}
