// Package chrome hosts page agents in a real Chrome, reached through the
// DevTools protocol.
package chrome

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/config"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/messaging"
)

const linkedInPrefix = "https://www.linkedin.com/"

// Browser owns the Chrome connection and the LinkedIn tabs it attached to.
type Browser struct {
	cfg        config.BrowserConfig
	automation config.AutomationConfig
	bus        messaging.Sender
	logger     *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.Mutex
	tabs   map[target.ID]*Tab
	closed chan string
}

// New connects to cfg.RemoteURL when set, otherwise launches Chrome.
// bus is handed to every page agent to reach the coordinator.
func New(ctx context.Context, cfg config.BrowserConfig, auto config.AutomationConfig, bus messaging.Sender, logger *zap.Logger) (*Browser, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	b := &Browser{
		cfg:         cfg,
		automation:  auto,
		bus:         bus,
		logger:      logger,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		tabs:        make(map[target.ID]*Tab),
		closed:      make(chan string, 16),
	}
	chromedp.ListenBrowser(browserCtx, b.onEvent)

	logger.Info("Connected to browser", zap.Bool("remote", cfg.RemoteURL != ""))
	return b, nil
}

func (b *Browser) onEvent(ev any) {
	destroyed, ok := ev.(*target.EventTargetDestroyed)
	if !ok {
		return
	}

	b.mu.Lock()
	tab, tracked := b.tabs[destroyed.TargetID]
	delete(b.tabs, destroyed.TargetID)
	b.mu.Unlock()
	if !tracked {
		return
	}

	tab.close()
	b.logger.Info("LinkedIn tab closed", zap.String("tab_id", tab.ID()))
	select {
	case b.closed <- tab.ID():
	default:
		b.logger.Warn("Dropping tab closed event", zap.String("tab_id", tab.ID()))
	}
}

// Closed delivers the ids of tracked tabs that were closed.
func (b *Browser) Closed() <-chan string {
	return b.closed
}

// Ensure returns a LinkedIn tab ready for the agent: the first existing one,
// activated and moved to the feed, or a new tab on the feed.
func (b *Browser) Ensure(ctx context.Context) (messaging.Tab, error) {
	targets, err := chromedp.Targets(b.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}

	for _, info := range targets {
		if info.Type != "page" || !strings.HasPrefix(info.URL, linkedInPrefix) {
			continue
		}
		return b.reuse(ctx, info)
	}
	return b.open(ctx)
}

func (b *Browser) reuse(ctx context.Context, info *target.Info) (*Tab, error) {
	tab := b.tracked(info.TargetID)
	if tab == nil {
		tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(info.TargetID))
		tab = b.track(info.TargetID, tabCtx, cancel)
	}

	log := b.logger.With(zap.String("tab_id", tab.ID()))
	if err := tab.page.run(ctx, page.BringToFront()); err != nil {
		return nil, fmt.Errorf("failed to activate tab: %w", err)
	}
	if !strings.Contains(info.URL, "/feed") {
		log.Info("Moving LinkedIn tab to the feed", zap.String("url", info.URL))
		if err := tab.page.Navigate(ctx, b.cfg.FeedURL); err != nil {
			return nil, err
		}
	}
	if err := sleep(ctx, b.cfg.ExistingTabSettle); err != nil {
		return nil, err
	}

	tab.start(b.ctx)
	log.Debug("Reusing LinkedIn tab")
	return tab, nil
}

func (b *Browser) open(ctx context.Context) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	id := chromedp.FromContext(tabCtx).Target.TargetID
	tab := b.track(id, tabCtx, cancel)
	if err := tab.page.Navigate(ctx, b.cfg.FeedURL); err != nil {
		return nil, err
	}
	if err := sleep(ctx, b.cfg.NewTabSettle); err != nil {
		return nil, err
	}

	tab.start(b.ctx)
	b.logger.Info("Opened LinkedIn tab", zap.String("tab_id", tab.ID()))
	return tab, nil
}

func (b *Browser) tracked(id target.ID) *Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tabs[id]
}

func (b *Browser) track(id target.ID, tabCtx context.Context, cancel context.CancelFunc) *Tab {
	pg := newPage(tabCtx)
	endpoint := messaging.NewEndpoint("tab "+string(id), b.logger)
	agent := automation.NewAgent(pg, b.bus, b.automation, b.cfg.FeedURL, b.logger.With(zap.String("tab_id", string(id))))
	agent.Register(endpoint)

	tab := &Tab{id: id, page: pg, agent: agent, endpoint: endpoint, cancel: cancel}

	b.mu.Lock()
	b.tabs[id] = tab
	b.mu.Unlock()
	return tab
}

// Close closes the tabs it attached to and stops the browser connection.
func (b *Browser) Close() {
	b.mu.Lock()
	tabs := b.tabs
	b.tabs = make(map[target.ID]*Tab)
	b.mu.Unlock()

	for _, tab := range tabs {
		tab.close()
	}
	b.cancel()
	b.allocCancel()
}

// Tab is a LinkedIn tab with its page agent.
type Tab struct {
	id       target.ID
	page     *Page
	agent    *automation.Agent
	endpoint *messaging.Endpoint
	cancel   context.CancelFunc

	startOnce sync.Once
}

var _ messaging.Tab = (*Tab)(nil)

func (t *Tab) ID() string {
	return string(t.id)
}

// Call delivers msg to the tab's agent once the page has loaded LinkedIn.
func (t *Tab) Call(ctx context.Context, msg messaging.Message) (messaging.Response, error) {
	loaded, err := t.page.Loaded(ctx)
	if err != nil {
		return messaging.Response{}, fmt.Errorf("tab %s: %v: %w", t.id, err, messaging.ErrNoReceiver)
	}
	if !loaded {
		return messaging.Response{}, fmt.Errorf("tab %s is not ready: %w", t.id, messaging.ErrNoReceiver)
	}
	return t.endpoint.Call(ctx, msg)
}

// start announces the agent once, the way a content script loads once per page.
func (t *Tab) start(ctx context.Context) {
	t.startOnce.Do(func() {
		go t.agent.Start(ctx)
	})
}

func (t *Tab) close() {
	t.cancel()
	t.page.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
