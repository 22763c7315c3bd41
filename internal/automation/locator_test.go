package automation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/browser/snapshot"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

func TestScheduleEntryCascade(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		strategy string
		class    string
	}{
		{
			name:     "aria label",
			html:     `<button class="hit" aria-label="Schedule post"></button>`,
			strategy: "heuristic schedule selectors",
			class:    "hit",
		},
		{
			name:     "icon inside button",
			html:     `<div class="share-creation-state__footer"><button class="hit"><svg data-test-icon="clock"></svg></button></div>`,
			strategy: "heuristic schedule selectors",
			class:    "hit",
		},
		{
			name: "clock icon in composer footer",
			html: `<button class="media"><svg><path></path></svg></button>
				<div class="share-creation-state__footer"><button class="hit"><svg><circle></circle></svg></button></div>`,
			strategy: "heuristic clock icon button",
			class:    "hit",
		},
		{
			name: "sibling of publish",
			html: `<div class="share-box-footer">
				<button class="hit">…</button>
				<button aria-label="Publier">Publier</button></div>`,
			strategy: "heuristic button next to publish",
			class:    "hit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := snapshot.FromString(tt.html)
			if err != nil {
				t.Fatal(err)
			}
			n, how, err := automation.ScheduleEntry.FindWith(context.Background(), page)
			if err != nil {
				t.Fatalf("FindWith: %v", err)
			}
			if n == nil {
				t.Fatal("nothing found")
			}
			if n.Attr("class") != tt.class || how.String() != tt.strategy {
				t.Errorf("found %q via %s, want %q via %s", n.Attr("class"), how, tt.class, tt.strategy)
			}
		})
	}
}

func TestConfirmCascade(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		strategy string
	}{
		{
			name:     "label",
			html:     `<div role="dialog"><button class="hit">Schedule post</button></div>`,
			strategy: `text ["programmer" "schedule" "schedule post"] in button`,
		},
		{
			name:     "primary in dialog",
			html:     `<div class="artdeco-modal"><button class="artdeco-button--primary" disabled>Wait</button><button class="hit artdeco-button--primary">OK</button></div>`,
			strategy: "heuristic enabled primary button in dialog",
		},
		{
			name:     "any enabled primary",
			html:     `<div><button class="hit artdeco-button--primary">OK</button></div>`,
			strategy: `selector button.artdeco-button--primary:not([disabled])`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, _ := snapshot.FromString(tt.html)
			n, how, err := automation.Confirm.FindWith(context.Background(), page)
			if err != nil || n == nil {
				t.Fatalf("FindWith = %v, %v", n, err)
			}
			if !n.HasClass("hit") || how.String() != tt.strategy {
				t.Errorf("found %q via %s, want hit via %s", n.Attr("class"), how, tt.strategy)
			}
		})
	}
}

func TestLocatorWaitTimesOut(t *testing.T) {
	page, _ := snapshot.FromString(`<p>empty</p>`)
	cfg := fastConfig()

	_, err := automation.Publish.Wait(context.Background(), page, cfg.ElementTimeout, cfg.PollInterval)
	if !errors.Is(err, models.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := automation.Publish.Wait(ctx, page, time.Hour, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait err = %v", err)
	}
}

func TestLocatorsCompile(t *testing.T) {
	page, _ := snapshot.FromString(`<html><body></body></html>`)
	for _, l := range automation.Locators() {
		if _, err := l.Find(context.Background(), page); err != nil {
			t.Errorf("%s: %v", l.Name, err)
		}
	}
}
