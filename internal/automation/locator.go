package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

// Strategy is one way of finding an element. A nil node with a nil error
// means nothing matched yet.
type Strategy interface {
	Find(ctx context.Context, p Page) (*Node, error)
	String() string
}

// Selector matches the first element of a CSS selector group.
type Selector string

func (s Selector) Find(ctx context.Context, p Page) (*Node, error) {
	return first(ctx, p, string(s), nil)
}

func (s Selector) String() string {
	return "selector " + string(s)
}

// Text matches the first element of Within whose trimmed, lowercased text
// equals one of Labels, or contains one when Contains is set.
type Text struct {
	Within   string
	Labels   []string
	Contains bool
	Enabled  bool
}

func (t Text) Find(ctx context.Context, p Page) (*Node, error) {
	nodes, err := p.Query(ctx, t.scope(), nil)
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		if t.Enabled && nodes[i].Disabled() {
			continue
		}
		if t.matches(strings.ToLower(nodes[i].Label())) {
			return &nodes[i], nil
		}
	}
	return nil, nil
}

func (t Text) matches(text string) bool {
	for _, label := range t.Labels {
		if text == label || (t.Contains && label != "" && strings.Contains(text, label)) {
			return true
		}
	}
	return false
}

func (t Text) scope() string {
	if t.Within == "" {
		return "button"
	}
	return t.Within
}

func (t Text) String() string {
	return fmt.Sprintf("text %q in %s", t.Labels, t.scope())
}

// Heuristic wraps a structural search.
type Heuristic struct {
	Name string
	Fn   func(ctx context.Context, p Page) (*Node, error)
}

func (h Heuristic) Find(ctx context.Context, p Page) (*Node, error) {
	return h.Fn(ctx, p)
}

func (h Heuristic) String() string {
	return "heuristic " + h.Name
}

// Locator tries its strategies in order and returns the first hit.
type Locator struct {
	Name       string
	Strategies []Strategy
}

func Locate(name string, strategies ...Strategy) Locator {
	return Locator{Name: name, Strategies: strategies}
}

func (l Locator) Find(ctx context.Context, p Page) (*Node, error) {
	n, _, err := l.FindWith(ctx, p)
	return n, err
}

// FindWith also reports which strategy matched.
func (l Locator) FindWith(ctx context.Context, p Page) (*Node, Strategy, error) {
	for _, s := range l.Strategies {
		n, err := s.Find(ctx, p)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %s: %w", l.Name, s, err)
		}
		if n != nil {
			return n, s, nil
		}
	}
	return nil, nil, nil
}

// Wait polls Find every interval until it matches or timeout elapses.
func (l Locator) Wait(ctx context.Context, p Page, timeout, interval time.Duration) (*Node, error) {
	deadline := time.Now().Add(timeout)
	for {
		n, err := l.Find(ctx, p)
		if err != nil {
			return nil, err
		}
		if n != nil {
			return n, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s not found after %s: %w", l.Name, timeout, models.ErrTimeout)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
