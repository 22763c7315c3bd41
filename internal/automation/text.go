package automation

import (
	"context"

	"github.com/ncleton-petitmaker/post-veille-ia/pkg/util"
)

// minInsertedRunes is below any real post; a shorter editor means insertion failed.
const minInsertedRunes = 10

// typeText fills a rich text editor. Editors that ignore assigned HTML get
// the text again through a native insert.
func (a *Agent) typeText(ctx context.Context, editor Node, text string) error {
	d := a.cfg.Delays
	p := a.page

	if err := p.Click(ctx, editor); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.Focus); err != nil {
		return err
	}
	if err := p.Focus(ctx, editor); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.Focus); err != nil {
		return err
	}

	if err := p.SetHTML(ctx, editor, ""); err != nil {
		return err
	}
	if err := p.SetHTML(ctx, editor, util.ParagraphHTML(text)); err != nil {
		return err
	}
	if err := p.Dispatch(ctx, editor, "input", "change"); err != nil {
		return err
	}
	if err := a.sleep(ctx, d.TextSettle); err != nil {
		return err
	}

	got, err := p.Text(ctx, editor)
	if err != nil {
		return err
	}
	if !tooShort(got, text) {
		return nil
	}

	a.logger.Debug("Editor rejected HTML, inserting text")
	if err := p.SetHTML(ctx, editor, ""); err != nil {
		return err
	}
	if err := p.Focus(ctx, editor); err != nil {
		return err
	}
	if err := p.InsertText(ctx, editor, text, false); err != nil {
		return err
	}
	if err := p.Dispatch(ctx, editor, "input"); err != nil {
		return err
	}
	return a.sleep(ctx, d.Focus)
}

// tooShort reports whether got holds less than half of want.
func tooShort(got, want string) bool {
	return 2*util.RuneLen(got) < util.RuneLen(want)
}
