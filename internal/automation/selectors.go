package automation

import (
	"context"
	"strings"
)

// LinkedIn markup changes without notice; every selector here is best effort.
const (
	startPostSelector   = `.share-box-feed-entry__trigger, .share-box-feed-entry__top-bar button, [data-test-id="share-box-trigger-button"], .share-box__open, button[aria-label*="Commencer"], button[aria-label*="Start a post"]`
	editorSelector      = `.ql-editor, [role="textbox"][contenteditable="true"], .editor-content [contenteditable="true"], [data-placeholder*="quoi"][contenteditable="true"], div[contenteditable="true"][aria-label]`
	addMediaSelector    = `[aria-label*="Ajouter un média"], [aria-label*="Add media"], button[data-test-icon="image-medium"]`
	fileInputSelector   = `input[type="file"][accept*="image"]`
	publishSelector     = `.share-actions__primary-action, [data-test-id="share-actions-primary-action"], button[aria-label*="Publier"], button[aria-label*="Post"]`
	scheduleSelector    = `[aria-label*="Schedule"], [aria-label*="Programmer"], [aria-label*="horloge"], [aria-label*="clock"], button[data-test-icon="clock"], .schedule-post-button, .share-creation-state__footer button svg[data-test-icon="clock"]`
	dateInputSelector   = `input[id*="date"], input[name*="date"], input[placeholder*="date"], input[aria-label*="Date"], .scheduling-modal input:first-of-type`
	timeInputSelector   = `input[id*="time"], input[id*="heure"], input[name*="time"], input[aria-label*="Heure"], input[aria-label*="Time"], .scheduling-modal input:last-of-type`
	textInputSelector   = `input[type="text"], input:not([type])`
	publishAriaSelector = `button[aria-label*="Publier"], button[aria-label*="Post"]`
	footerSelector      = `.share-box-footer, .share-creation-state__footer, div`
	footerOtherButton   = `button:not([aria-label*="Publier"]):not([aria-label*="Post"])`
	composerFooter      = `.share-creation-state__footer`
	dialogSelector      = `[role="dialog"], .artdeco-modal, .share-creation-state`
	openDialogSelector  = `[role="dialog"], .artdeco-modal`
	primaryButton       = `button.artdeco-button--primary`
	enabledPrimary      = `button.artdeco-button--primary:not([disabled])`
)

var (
	StartPost = Locate("start post button", Selector(startPostSelector))
	Editor    = Locate("post editor", Selector(editorSelector))
	AddMedia  = Locate("add media button", Selector(addMediaSelector))
	FileInput = Locate("image file input", Selector(fileInputSelector))
	Publish   = Locate("publish button", Selector(publishSelector))

	// EditorNext is the image editor's forward button.
	EditorNext = Locate("image editor next button", Text{Labels: []string{"suivant", "next"}})

	ScheduleEntry = Locate("schedule button",
		Heuristic{Name: "schedule selectors", Fn: buttonFor(scheduleSelector)},
		Heuristic{Name: "clock icon button", Fn: clockIconButton},
		Heuristic{Name: "button next to publish", Fn: buttonNextToPublish},
	)

	DateInput = Locate("schedule date input", Selector(dateInputSelector))
	TimeInput = Locate("schedule time input", Selector(timeInputSelector))

	ModalNext = Locate("schedule modal next button", Text{Labels: []string{"suivant", "next"}})

	Confirm = Locate("schedule confirm button",
		Text{Labels: []string{"programmer", "schedule", "schedule post"}, Contains: true},
		Heuristic{Name: "enabled primary button in dialog", Fn: primaryInDialog},
		Selector(enabledPrimary),
	)
)

// Locators lists every locator the flows rely on.
func Locators() []Locator {
	return []Locator{StartPost, Editor, AddMedia, FileInput, Publish, EditorNext, ScheduleEntry, DateInput, TimeInput, ModalNext, Confirm}
}

// buttonFor resolves a selector hit to its button; icon selectors match the svg inside.
func buttonFor(selector string) func(context.Context, Page) (*Node, error) {
	return func(ctx context.Context, p Page) (*Node, error) {
		n, err := first(ctx, p, selector, nil)
		if err != nil || n == nil {
			return nil, err
		}
		if n.Tag == "button" {
			return n, nil
		}
		btn, err := p.Closest(ctx, *n, "button")
		if err != nil {
			return nil, err
		}
		if btn != nil {
			return btn, nil
		}
		return n, nil
	}
}

func clockIconButton(ctx context.Context, p Page) (*Node, error) {
	buttons, err := p.Query(ctx, "button", nil)
	if err != nil {
		return nil, err
	}
	for i := range buttons {
		btn := buttons[i]
		shapes, err := p.Query(ctx, "svg path, svg circle", &btn)
		if err != nil {
			return nil, err
		}
		if len(shapes) == 0 {
			continue
		}

		label := strings.ToLower(btn.Attr("aria-label"))
		if strings.Contains(label, "schedule") || strings.Contains(label, "program") || strings.Contains(label, "horloge") {
			return &btn, nil
		}
		footer, err := p.Closest(ctx, btn, composerFooter)
		if err != nil {
			return nil, err
		}
		if footer != nil {
			return &btn, nil
		}
	}
	return nil, nil
}

func buttonNextToPublish(ctx context.Context, p Page) (*Node, error) {
	publish, err := first(ctx, p, publishAriaSelector, nil)
	if err != nil || publish == nil {
		return nil, err
	}
	footer, err := p.Closest(ctx, *publish, footerSelector)
	if err != nil || footer == nil {
		return nil, err
	}
	return first(ctx, p, footerOtherButton, footer)
}

func primaryInDialog(ctx context.Context, p Page) (*Node, error) {
	dialogs, err := p.Query(ctx, dialogSelector, nil)
	if err != nil {
		return nil, err
	}
	for i := range dialogs {
		buttons, err := p.Query(ctx, primaryButton, &dialogs[i])
		if err != nil {
			return nil, err
		}
		for j := range buttons {
			if !buttons[j].Disabled() {
				return &buttons[j], nil
			}
		}
	}
	return nil, nil
}

// scheduleInputs finds text inputs whose label, placeholder or aria-label
// mentions a date or a time, in document order.
func scheduleInputs(ctx context.Context, p Page) ([]Node, error) {
	inputs, err := p.Query(ctx, textInputSelector, nil)
	if err != nil {
		return nil, err
	}

	var matched []Node
	for _, input := range inputs {
		label, err := inputLabel(ctx, p, input)
		if err != nil {
			return nil, err
		}
		text := strings.ToLower(label + input.Attr("placeholder") + input.Attr("aria-label"))
		if strings.Contains(text, "date") || strings.Contains(text, "heure") || strings.Contains(text, "time") {
			matched = append(matched, input)
		}
	}
	return matched, nil
}

func inputLabel(ctx context.Context, p Page, input Node) (string, error) {
	label, err := p.Closest(ctx, input, "label")
	if err != nil {
		return "", err
	}
	if label == nil && input.Attr("id") != "" {
		label, err = first(ctx, p, `label[for="`+cssEscape(input.Attr("id"))+`"]`, nil)
		if err != nil {
			return "", err
		}
	}
	if label == nil {
		return "", nil
	}
	return label.Text, nil
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
