package automation

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

const (
	triggerActionParam = "veille_action"
	triggerPostParam   = "post_id"
)

// ScheduleURL is a feed URL asking the tab's agent to schedule postID.
func ScheduleURL(feedURL, postID string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	q := u.Query()
	q.Set(triggerActionParam, "schedule")
	q.Set(triggerPostParam, postID)
	u.RawQuery = q.Encode()
	return u.String()
}

// CheckURLTrigger schedules the post named in the tab URL, if any, and
// reports the new status to the coordinator.
func (a *Agent) CheckURLTrigger(ctx context.Context) error {
	raw, err := a.page.URL(ctx)
	if err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	q := u.Query()
	postID := q.Get(triggerPostParam)
	if q.Get(triggerActionParam) != "schedule" || postID == "" {
		return nil
	}

	log := a.logger.With(zap.String("post_id", postID))
	log.Info("Scheduling requested through URL")

	clean := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	if err := a.page.ReplaceURL(ctx, clean.String()); err != nil {
		return err
	}
	if err := a.sleep(ctx, a.cfg.Delays.TriggerSettle); err != nil {
		return err
	}

	if a.bus == nil {
		return fmt.Errorf("no coordinator to fetch post %s", postID)
	}
	resp, err := a.bus.Call(ctx, messaging.Message{Action: messaging.ActionGetPostData, PostID: postID})
	if err != nil {
		a.toast(ctx, "Connection error", "error")
		return err
	}
	if resp.Error != "" {
		a.toast(ctx, "Error: "+resp.Error, "error")
		return fmt.Errorf("post %s: %s", postID, resp.Error)
	}
	if resp.Post == nil {
		a.toast(ctx, "Post not found", "error")
		return fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}

	result, err := a.Schedule(ctx, *resp.Post)
	if err != nil {
		a.toast(ctx, "Error: "+err.Error(), "error")
		return err
	}
	if !result.Success {
		a.toast(ctx, "Error: "+result.Error, "error")
		return fmt.Errorf("schedule post %s: %s", postID, result.Error)
	}

	if _, err := a.bus.Call(ctx, messaging.Message{
		Action: messaging.ActionUpdatePostStatus,
		PostID: postID,
		Status: models.StatusScheduledLinkedIn,
	}); err != nil {
		log.Error("Failed to report scheduled status", zap.Error(err))
	}
	a.toast(ctx, "Post scheduled", "success")
	return nil
}

func (a *Agent) toast(ctx context.Context, message, kind string) {
	if err := a.page.Toast(ctx, message, kind); err != nil {
		a.logger.Debug("Toast failed", zap.Error(err))
	}
}
