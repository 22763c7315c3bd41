// Package coordinator polls the publish server for due posts and hands them
// to the page agent of a LinkedIn tab, reporting each outcome back as a
// status update.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/telemetry"
	"github.com/ncleton-petitmaker/post-veille-ia/pkg/util"
)

// API is the publish server as seen from the coordinator.
type API interface {
	ListPosts(ctx context.Context) ([]models.Post, error)
	UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) (*models.Post, error)
	ImageURL(path string) string
	FetchImage(ctx context.Context, path string) ([]byte, string, error)
}

// Tabs finds or opens the LinkedIn tab flows run in.
type Tabs interface {
	Ensure(ctx context.Context) (messaging.Tab, error)
	// Closed delivers the ids of tabs closed outside the coordinator.
	Closed() <-chan string
}

type Coordinator struct {
	cfg    config.CoordinatorConfig
	api    API
	tabs   Tabs
	cache  Cache
	bus    *messaging.Endpoint
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	posts     []models.Post
	connected bool
	tabID     string
	lastCheck time.Time

	// cycleMu keeps forced checks from overlapping the periodic one.
	cycleMu sync.Mutex

	ticker *time.Ticker
	stopCh chan struct{}
}

// New registers the coordinator's handlers on bus, the endpoint page agents
// send to.
func New(cfg config.CoordinatorConfig, api API, tabs Tabs, cache Cache, bus *messaging.Endpoint, loc *time.Location, logger *zap.Logger) *Coordinator {
	if loc == nil {
		loc = time.Local
	}
	c := &Coordinator{
		cfg:    cfg,
		api:    api,
		tabs:   tabs,
		cache:  cache,
		bus:    bus,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		posts:  []models.Post{},
		stopCh: make(chan struct{}),
	}
	c.register()
	return c
}

// Start checks once, then every check interval, until Stop or ctx ends.
func (c *Coordinator) Start(ctx context.Context) {
	c.logger.Info("Starting coordinator",
		zap.Duration("interval", c.cfg.CheckInterval),
		zap.String("api", c.cfg.APIURL))

	c.ticker = time.NewTicker(c.cfg.CheckInterval)

	go c.watchTabs(ctx)
	go func() {
		c.runCheck(ctx)
		for {
			select {
			case <-c.ticker.C:
				c.runCheck(ctx)
			case <-c.stopCh:
				c.logger.Info("Coordinator stopped")
				return
			case <-ctx.Done():
				c.logger.Info("Coordinator context cancelled")
				return
			}
		}
	}()
}

func (c *Coordinator) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
	}
	close(c.stopCh)
}

func (c *Coordinator) runCheck(ctx context.Context) {
	if err := c.Check(ctx); err != nil {
		c.logger.Debug("Check cycle ended without server", zap.Error(err))
	}
}

func (c *Coordinator) watchTabs(ctx context.Context) {
	closed := c.tabs.Closed()
	for {
		select {
		case id, ok := <-closed:
			if !ok {
				return
			}
			c.mu.Lock()
			if c.tabID == id {
				c.tabID = ""
				c.logger.Info("Remembered LinkedIn tab closed", zap.String("tab_id", id))
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one poll cycle: fetch, publish what is due, remember the list.
// The returned error is the fetch failure, if any; flow failures become
// failed status updates instead.
func (c *Coordinator) Check(ctx context.Context) error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	log := c.logger.With(zap.String("cycle_id", uuid.NewString()))
	log.Debug("Checking scheduled posts")

	posts, err := c.api.ListPosts(ctx)
	if err != nil {
		c.setConnected(false)
		telemetry.PollCycles.WithLabelValues("disconnected").Inc()
		log.Error("Failed to fetch scheduled posts", zap.Error(err))

		cached, cacheErr := c.cache.Load(ctx)
		if cacheErr != nil {
			log.Warn("Failed to load cached posts", zap.Error(cacheErr))
		} else if len(cached) > 0 {
			c.setPosts(cached)
			log.Info("Using cached posts", zap.Int("count", len(cached)))
		}
		return err
	}

	c.setPosts(posts)
	if err := c.cache.Save(ctx, posts); err != nil {
		log.Warn("Failed to cache posts", zap.Error(err))
	}

	due := models.DuePosts(posts, c.now(), models.CoordinatorDueWindow, c.loc)
	if len(due) > 0 {
		log.Info("Posts due", zap.Int("count", len(due)))
	}
	for _, post := range due {
		c.Publish(ctx, post)
	}

	c.setConnected(true)
	telemetry.PollCycles.WithLabelValues("ok").Inc()
	return nil
}

// Publish posts immediately through the page agent and records the outcome.
func (c *Coordinator) Publish(ctx context.Context, post models.Post) messaging.Result {
	return c.dispatch(ctx, post, messaging.ActionPublish)
}

// ScheduleNative hands the post to LinkedIn's own scheduler.
func (c *Coordinator) ScheduleNative(ctx context.Context, post models.Post) messaging.Result {
	return c.dispatch(ctx, post, messaging.ActionSchedule)
}

func (c *Coordinator) dispatch(ctx context.Context, post models.Post, action messaging.Action) messaging.Result {
	log := c.logger.With(zap.String("post_id", post.ID), zap.String("action", string(action)))
	log.Info("Dispatching post", zap.String("title", util.Truncate(post.Title, 80)))

	// A started flow runs to completion or timeout and its outcome is always
	// reported, even when the caller goes away.
	ctx = context.WithoutCancel(ctx)

	result, err := c.runFlow(ctx, post, action)
	if err != nil {
		result = messaging.Result{Success: false, Error: err.Error(), PostID: post.ID}
	}

	update := models.StatusUpdate{Status: models.StatusFailed, Error: result.Error}
	switch {
	case result.Success && action == messaging.ActionPublish:
		update = models.StatusUpdate{Status: models.StatusPublished, PublishedAt: c.now().UTC().Format(time.RFC3339)}
	case result.Success:
		update = models.StatusUpdate{Status: models.StatusScheduledLinkedIn}
	}

	if result.Success {
		log.Info("Post handed to LinkedIn", zap.String("status", string(update.Status)))
	} else {
		log.Error("Post failed", zap.String("error", result.Error))
	}

	if _, err := c.api.UpdateStatus(ctx, post.ID, update); err != nil {
		log.Error("Failed to update post status", zap.Error(err))
	}
	return result
}

func (c *Coordinator) runFlow(ctx context.Context, post models.Post, action messaging.Action) (messaging.Result, error) {
	tab, err := c.tabs.Ensure(ctx)
	if err != nil {
		return messaging.Result{}, fmt.Errorf("failed to open LinkedIn tab: %w", err)
	}
	c.setTab(tab.ID())

	if err := c.waitReady(ctx, tab); err != nil {
		return messaging.Result{}, err
	}

	payload := post.Payload(c.api.ImageURL(post.ImageURL))
	resp, err := tab.Call(ctx, messaging.Message{Action: action, Post: &payload})
	if err != nil {
		return messaging.Result{}, err
	}
	return messaging.Result{Success: resp.Success, Error: resp.Error, PostID: post.ID}, nil
}

// waitReady probes the tab until its agent reports ready. Unanswered probes
// count as not ready.
func (c *Coordinator) waitReady(ctx context.Context, tab messaging.Tab) error {
	deadline := time.Now().Add(c.cfg.ReadyTimeout)
	for {
		resp, err := tab.Call(ctx, messaging.Message{Action: messaging.ActionCheckReady})
		if err == nil && resp.Ready {
			return nil
		}
		if err != nil && !errors.Is(err, messaging.ErrNoReceiver) && !errors.Is(err, messaging.ErrNoResponse) {
			c.logger.Debug("Readiness probe failed", zap.String("tab_id", tab.ID()), zap.Error(err))
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("page agent not ready after %s: %w", c.cfg.ReadyTimeout, models.ErrTimeout)
		}

		timer := time.NewTimer(c.cfg.ReadyPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Status is the coordinator state shown to the popup.
type Status struct {
	Connected      bool
	ScheduledCount int
	TabID          string
	LastCheck      time.Time
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:      c.connected,
		ScheduledCount: models.CountByStatus(c.posts)[models.StatusScheduled],
		TabID:          c.tabID,
		LastCheck:      c.lastCheck,
	}
}

// Posts returns the last known post list.
func (c *Coordinator) Posts() []models.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Post{}, c.posts...)
}

func (c *Coordinator) setPosts(posts []models.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append([]models.Post{}, posts...)
}

func (c *Coordinator) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.lastCheck = c.now()
	c.mu.Unlock()

	if connected {
		telemetry.CoordinatorConnected.Set(1)
	} else {
		telemetry.CoordinatorConnected.Set(0)
	}
}

func (c *Coordinator) setTab(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tabID = id
}

// lookup finds a post by id in the last list, then on the server.
func (c *Coordinator) lookup(ctx context.Context, id string) (*models.Post, error) {
	c.mu.Lock()
	for i := range c.posts {
		if c.posts[i].ID == id {
			post := c.posts[i]
			c.mu.Unlock()
			return &post, nil
		}
	}
	c.mu.Unlock()

	posts, err := c.api.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	c.setPosts(posts)
	for i := range posts {
		if posts[i].ID == id {
			return &posts[i], nil
		}
	}
	return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
}
