package automation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/pkg/util"
)

const editorNextAttempts = 20

// ensureFeed moves the tab to the feed unless it is already there.
func (a *Agent) ensureFeed(ctx context.Context) error {
	url, err := a.page.URL(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(url, "linkedin.com/feed") {
		return nil
	}
	if err := a.page.Navigate(ctx, a.feedURL); err != nil {
		return err
	}
	return a.sleep(ctx, a.cfg.Delays.Navigation)
}

func (a *Agent) openComposer(ctx context.Context) error {
	start, err := a.wait(ctx, StartPost, a.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	return a.page.Click(ctx, *start)
}

func (a *Agent) publishFlow(ctx context.Context, post models.PostPayload) error {
	d := a.cfg.Delays

	if err := a.ensureFeed(ctx); err != nil {
		return err
	}
	if err := a.openComposer(ctx); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.ComposerOpen); err != nil {
		return err
	}

	editor, err := a.wait(ctx, Editor, a.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if err := a.typeText(ctx, *editor, post.Content); err != nil {
		return err
	}

	if post.HasImage() {
		if err := a.uploadImage(ctx, post, firstNonEmpty(post.ImageURL, post.ImageData)); err != nil {
			return err
		}
	}

	if err := a.sleep(ctx, d.BeforePublish); err != nil {
		return err
	}

	publish, err := a.wait(ctx, Publish, a.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if publish.Disabled() {
		return automationError("publish button is disabled")
	}
	if err := a.page.Click(ctx, *publish); err != nil {
		return err
	}
	return a.sleep(ctx, d.AfterPublish)
}

// scheduleFlow uploads the image before typing because LinkedIn's image
// editor resets the text.
func (a *Agent) scheduleFlow(ctx context.Context, post models.PostPayload) error {
	d := a.cfg.Delays

	linkedInDate, err := models.LinkedInDate(post.ScheduledDate, a.cfg.DateLayout)
	if err != nil {
		return err
	}
	if post.ScheduledTime == "" {
		return automationError("post %s has no scheduled time", post.ID)
	}

	if err := a.ensureFeed(ctx); err != nil {
		return err
	}
	if err := a.page.ScrollTop(ctx); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.Scroll); err != nil {
		return err
	}
	if err := a.openComposer(ctx); err != nil {
		return err
	}

	if post.HasImage() {
		ref := firstNonEmpty(post.ImageData, post.ImageURL)
		if _, err := a.wait(ctx, Editor, a.cfg.ElementTimeout); err != nil {
			return err
		}
		if err := a.sleep(ctx, d.ComposerSettle); err != nil {
			return err
		}
		if err := a.uploadImage(ctx, post, ref); err != nil {
			return err
		}
		if err := a.dismissImageEditor(ctx); err != nil {
			return err
		}
	}

	if err := a.insertScheduledText(ctx, post.Content); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.TextSettle); err != nil {
		return err
	}

	if err := a.openScheduler(ctx); err != nil {
		return err
	}
	if err := a.fillSchedule(ctx, linkedInDate, post.ScheduledTime); err != nil {
		return err
	}

	next, err := ModalNext.Find(ctx, a.page)
	if err != nil {
		return err
	}
	if next != nil {
		if err := a.page.Click(ctx, *next); err != nil {
			return err
		}
	}
	if err := a.sleep(ctx, d.ModalStep); err != nil {
		return err
	}

	return a.confirmSchedule(ctx)
}

// dismissImageEditor clicks through up to two Next buttons of the image editor.
func (a *Agent) dismissImageEditor(ctx context.Context) error {
	d := a.cfg.Delays
	for attempt := 0; attempt < editorNextAttempts; attempt++ {
		if err := a.sleep(ctx, d.EditorScan); err != nil {
			return err
		}
		next, err := EditorNext.Find(ctx, a.page)
		if err != nil {
			return err
		}
		if next == nil {
			continue
		}

		a.logger.Debug("Skipping image editor", zap.Int("attempt", attempt))
		if err := a.page.Click(ctx, *next); err != nil {
			return err
		}
		if err := a.sleep(ctx, d.EditorNext); err != nil {
			return err
		}

		second, err := EditorNext.Find(ctx, a.page)
		if err != nil {
			return err
		}
		if second != nil {
			if err := a.page.Click(ctx, *second); err != nil {
				return err
			}
			if err := a.sleep(ctx, d.EditorNext); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func (a *Agent) insertScheduledText(ctx context.Context, content string) error {
	d := a.cfg.Delays

	editor, err := a.wait(ctx, Editor, a.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if err := a.sleep(ctx, d.EditorReady); err != nil {
		return err
	}
	if err := a.typeText(ctx, *editor, content); err != nil {
		return err
	}

	got, err := a.page.Text(ctx, *editor)
	if err != nil {
		return err
	}
	if util.RuneLen(got) >= minInsertedRunes {
		return nil
	}

	a.logger.Debug("Text missing after insertion, retrying", zap.Int("length", util.RuneLen(got)))
	if err := a.sleep(ctx, d.FieldSettle); err != nil {
		return err
	}
	if err := a.page.Click(ctx, *editor); err != nil {
		return err
	}
	if err := a.page.Focus(ctx, *editor); err != nil {
		return err
	}
	if err := a.page.InsertText(ctx, *editor, content, true); err != nil {
		return err
	}
	return a.sleep(ctx, d.TextSettle)
}

func (a *Agent) openScheduler(ctx context.Context) error {
	btn, how, err := ScheduleEntry.FindWith(ctx, a.page)
	if err != nil {
		return err
	}
	if btn == nil {
		return automationError("schedule (clock) button not found")
	}

	a.logger.Debug("Opening LinkedIn scheduler", zap.Stringer("strategy", how))
	if err := a.page.Click(ctx, *btn); err != nil {
		return err
	}
	return a.sleep(ctx, a.cfg.Delays.SchedulerOpen)
}

func (a *Agent) fillSchedule(ctx context.Context, date, clock string) error {
	inputs, err := scheduleInputs(ctx, a.page)
	if err != nil {
		return err
	}

	dateInput, err := a.scheduleInput(ctx, inputs, 0, DateInput)
	if err != nil {
		return err
	}
	if err := a.fillField(ctx, *dateInput, date); err != nil {
		return err
	}

	timeInput, err := a.scheduleInput(ctx, inputs, 1, TimeInput)
	if err != nil {
		return err
	}
	return a.fillField(ctx, *timeInput, clock)
}

func (a *Agent) scheduleInput(ctx context.Context, labelled []Node, i int, fallback Locator) (*Node, error) {
	if i < len(labelled) {
		return &labelled[i], nil
	}
	return a.wait(ctx, fallback, a.cfg.ScheduleInputTimeout)
}

func (a *Agent) fillField(ctx context.Context, input Node, value string) error {
	p := a.page
	if err := p.Focus(ctx, input); err != nil {
		return err
	}
	if err := p.SetValue(ctx, input, ""); err != nil {
		return err
	}
	if err := p.SetValue(ctx, input, value); err != nil {
		return err
	}
	if err := p.Dispatch(ctx, input, "input", "change", "blur"); err != nil {
		return err
	}
	return a.sleep(ctx, a.cfg.Delays.FieldSettle)
}

// confirmSchedule clicks the final schedule button, then retries once on
// whatever primary button is left if a dialog stays open.
func (a *Agent) confirmSchedule(ctx context.Context) error {
	d := a.cfg.Delays

	btn, how, err := Confirm.FindWith(ctx, a.page)
	if err != nil {
		return err
	}
	if btn == nil {
		return automationError("schedule confirm button not found")
	}

	a.logger.Debug("Confirming schedule", zap.String("label", btn.Label()), zap.Stringer("strategy", how))
	if err := a.page.Click(ctx, *btn); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.ConfirmSettle); err != nil {
		return err
	}

	dialog, err := first(ctx, a.page, openDialogSelector, nil)
	if err != nil || dialog == nil {
		return err
	}
	retry, err := first(ctx, a.page, enabledPrimary, dialog)
	if err != nil || retry == nil {
		return err
	}

	a.logger.Debug("Dialog still open, clicking remaining primary button", zap.String("label", retry.Label()))
	if err := a.page.Click(ctx, *retry); err != nil {
		return err
	}
	return a.sleep(ctx, d.ConfirmRetry)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
