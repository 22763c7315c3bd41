package automation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/browser/snapshot"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

// fakeBus stands in for the coordinator.
type fakeBus struct {
	mu       sync.Mutex
	calls    []messaging.Message
	notified []messaging.Message
	post     *models.PostPayload
	postErr  string
}

func (b *fakeBus) Call(_ context.Context, msg messaging.Message) (messaging.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, msg)
	switch msg.Action {
	case messaging.ActionGetPostData:
		return messaging.Response{Success: b.postErr == "", Error: b.postErr, Post: b.post}, nil
	case messaging.ActionUpdatePostStatus:
		return messaging.Response{Success: true}, nil
	}
	return messaging.Response{}, messaging.ErrNoReceiver
}

func (b *fakeBus) Notify(_ context.Context, msg messaging.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notified = append(b.notified, msg)
}

func TestScheduleURL(t *testing.T) {
	got := automation.ScheduleURL(feedURL, "p 1")
	if got != "https://www.linkedin.com/feed/?post_id=p+1&veille_action=schedule" {
		t.Errorf("ScheduleURL = %q", got)
	}
}

func TestURLTriggerSchedulesPost(t *testing.T) {
	post := samplePost()
	bus := &fakeBus{post: &post}
	page := loadComposer(t, snapshot.WithURL(automation.ScheduleURL(feedURL, "p1")))
	withScheduler(page, schedulingModal, true)
	agent := newAgent(page, bus)

	agent.Start(context.Background())

	if url, _ := page.URL(context.Background()); url != feedURL {
		t.Errorf("URL after trigger = %q, want query removed", url)
	}
	if len(bus.notified) != 1 || bus.notified[0].Action != messaging.ActionContentScriptReady {
		t.Errorf("notifications = %+v", bus.notified)
	}
	if len(bus.calls) != 2 {
		t.Fatalf("calls = %+v", bus.calls)
	}
	if bus.calls[0].Action != messaging.ActionGetPostData || bus.calls[0].PostID != "p1" {
		t.Errorf("first call = %+v", bus.calls[0])
	}
	update := bus.calls[1]
	if update.Action != messaging.ActionUpdatePostStatus || update.Status != models.StatusScheduledLinkedIn {
		t.Errorf("status update = %+v", update)
	}
	if page.Value("#share-post__scheduled-time") != "09:30" {
		t.Error("schedule flow did not run")
	}
	toasts := page.Toasts()
	if len(toasts) != 1 || toasts[0].Kind != "success" {
		t.Errorf("toasts = %+v", toasts)
	}
}

func TestURLTriggerUnknownPost(t *testing.T) {
	bus := &fakeBus{postErr: "Post not found"}
	page := loadComposer(t, snapshot.WithURL(automation.ScheduleURL(feedURL, "ghost")))
	agent := newAgent(page, bus)

	if err := agent.CheckURLTrigger(context.Background()); err == nil {
		t.Fatal("expected error for unknown post")
	}
	if len(bus.calls) != 1 {
		t.Errorf("calls = %+v, want only getPostData", bus.calls)
	}
	toasts := page.Toasts()
	if len(toasts) != 1 || toasts[0].Message != "Error: Post not found" || toasts[0].Kind != "error" {
		t.Errorf("toasts = %+v", toasts)
	}
	if len(page.Clicks()) != 0 {
		t.Error("composer touched for an unknown post")
	}
}

func TestURLTriggerIgnoresPlainURLs(t *testing.T) {
	bus := &fakeBus{}
	page := loadComposer(t, snapshot.WithURL(feedURL+"?veille_action=publish&post_id=p1"))
	agent := newAgent(page, bus)

	if err := agent.CheckURLTrigger(context.Background()); err != nil {
		t.Fatalf("CheckURLTrigger: %v", err)
	}
	if len(bus.calls) != 0 {
		t.Errorf("calls = %+v", bus.calls)
	}
}
