package automation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
)

// Agent runs publish and schedule flows against one tab. Only one flow runs
// at a time; a second request fails with models.ErrBusy.
type Agent struct {
	page       Page
	bus        messaging.Sender
	cfg        config.AutomationConfig
	feedURL    string
	logger     *zap.Logger
	httpClient *http.Client

	busy    atomic.Bool
	mu      sync.Mutex
	current *models.PostPayload

	sleep func(ctx context.Context, d time.Duration) error
}

// NewAgent binds an agent to page. bus reaches the coordinator and may be nil.
func NewAgent(page Page, bus messaging.Sender, cfg config.AutomationConfig, feedURL string, logger *zap.Logger) *Agent {
	config.ApplyAutomationDefaults(&cfg)
	return &Agent{
		page:       page,
		bus:        bus,
		cfg:        cfg,
		feedURL:    feedURL,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sleep:      sleepCtx,
	}
}

// Register installs the agent's handlers on the tab's endpoint.
func (a *Agent) Register(e *messaging.Endpoint) {
	e.Handle(messaging.ActionPublish, a.handlePublish)
	e.Handle(messaging.ActionSchedule, a.handleSchedule)
	e.Handle(messaging.ActionCheckReady, a.handleCheckReady)
	e.Handle(messaging.ActionGetStatus, a.handleGetStatus)
}

// Start announces the agent and runs any schedule request carried by the URL.
func (a *Agent) Start(ctx context.Context) {
	a.notify(ctx, messaging.Message{Action: messaging.ActionContentScriptReady})
	if err := a.CheckURLTrigger(ctx); err != nil {
		a.logger.Error("URL triggered scheduling failed", zap.Error(err))
	}
}

func (a *Agent) Busy() bool {
	return a.busy.Load()
}

func (a *Agent) acquire(post models.PostPayload) error {
	if !a.busy.CompareAndSwap(false, true) {
		return models.ErrBusy
	}
	a.mu.Lock()
	a.current = &post
	a.mu.Unlock()
	return nil
}

func (a *Agent) release() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
	a.busy.Store(false)
}

// Publish posts immediately. The error is only models.ErrBusy; flow failures
// are reported in the Result.
func (a *Agent) Publish(ctx context.Context, post models.PostPayload) (messaging.Result, error) {
	return a.run(ctx, "publish", post, a.publishFlow)
}

// Schedule hands the post to LinkedIn's scheduler for its date and time.
func (a *Agent) Schedule(ctx context.Context, post models.PostPayload) (messaging.Result, error) {
	return a.run(ctx, "schedule", post, a.scheduleFlow)
}

func (a *Agent) run(ctx context.Context, action string, post models.PostPayload, flow func(context.Context, models.PostPayload) error) (messaging.Result, error) {
	if err := a.acquire(post); err != nil {
		return messaging.Result{}, err
	}
	defer a.release()

	log := a.logger.With(zap.String("action", action), zap.String("post_id", post.ID))
	log.Info("Starting flow", zap.String("title", post.Title))

	start := time.Now()
	err := flow(ctx, post)
	telemetry.FlowDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.FlowResults.WithLabelValues(action, "failure").Inc()
		log.Error("Flow failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return messaging.Result{Success: false, Error: err.Error(), PostID: post.ID}, nil
	}

	telemetry.FlowResults.WithLabelValues(action, "success").Inc()
	log.Info("Flow completed", zap.Duration("duration", time.Since(start)))
	return messaging.Result{Success: true, PostID: post.ID}, nil
}

func (a *Agent) handlePublish(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	return a.handleFlow(ctx, msg, a.Publish, messaging.ActionPublishResult)
}

func (a *Agent) handleSchedule(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	return a.handleFlow(ctx, msg, a.Schedule, messaging.ActionScheduleResult)
}

func (a *Agent) handleFlow(ctx context.Context, msg messaging.Message, run func(context.Context, models.PostPayload) (messaging.Result, error), notice messaging.Action) (*messaging.Response, error) {
	if msg.Post == nil {
		return &messaging.Response{Success: false, Error: "missing post"}, nil
	}

	result, err := run(ctx, *msg.Post)
	if err != nil {
		return &messaging.Response{Success: false, Error: err.Error(), PostID: msg.Post.ID}, nil
	}

	a.notify(ctx, messaging.Message{Action: notice, PostID: result.PostID, Result: &result})
	return messaging.ResultResponse(result), nil
}

func (a *Agent) handleCheckReady(ctx context.Context, _ messaging.Message) (*messaging.Response, error) {
	url, err := a.page.URL(ctx)
	if err != nil {
		return nil, err
	}
	return &messaging.Response{
		Ready:        !a.Busy(),
		IsOnLinkedIn: strings.Contains(url, "linkedin.com"),
	}, nil
}

func (a *Agent) handleGetStatus(_ context.Context, _ messaging.Message) (*messaging.Response, error) {
	resp := &messaging.Response{IsPublishing: a.Busy()}
	a.mu.Lock()
	if a.current != nil {
		resp.CurrentPost = a.current.Title
	}
	a.mu.Unlock()
	return resp, nil
}

func (a *Agent) notify(ctx context.Context, msg messaging.Message) {
	if a.bus != nil {
		a.bus.Notify(ctx, msg)
	}
}

func (a *Agent) wait(ctx context.Context, l Locator, timeout time.Duration) (*Node, error) {
	return l.Wait(ctx, a.page, timeout, a.cfg.PollInterval)
}

func automationError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), models.ErrAutomation)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
