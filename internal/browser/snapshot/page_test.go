package snapshot

import (
	"context"
	"testing"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
)

const doc = `<html><body>
<div class="composer">
  <label for="d">Date</label><input id="d" type="text">
  <div class="ql-editor" contenteditable="true"><p>one</p><p>two<br>three</p></div>
  <button class="go" aria-label="Go">Go <span>now</span></button>
</div>
</body></html>`

func TestQueryAndText(t *testing.T) {
	ctx := context.Background()
	p, err := FromString(doc)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}

	nodes, err := p.Query(ctx, "button.go", nil)
	if err != nil || len(nodes) != 1 {
		t.Fatalf("Query = %v, %v", nodes, err)
	}
	btn := nodes[0]
	if btn.Tag != "button" || btn.Label() != "Go now" {
		t.Errorf("button = %+v", btn)
	}
	if btn.HasAttr(refAttr) {
		t.Error("internal ref leaked into attributes")
	}

	editor, _ := p.Query(ctx, ".ql-editor", nil)
	text, err := p.Text(ctx, editor[0])
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "one\ntwo\nthree" {
		t.Errorf("Text = %q", text)
	}

	composer, _ := p.Query(ctx, ".composer", nil)
	inner, _ := p.Query(ctx, "input", &composer[0])
	if len(inner) != 1 || inner[0].Attr("id") != "d" {
		t.Errorf("scoped query = %+v", inner)
	}

	if _, err := p.Query(ctx, "button[", nil); err == nil {
		t.Error("expected error for invalid selector")
	}
}

func TestClosest(t *testing.T) {
	ctx := context.Background()
	p, _ := FromString(doc)
	spans, _ := p.Query(ctx, "span", nil)

	btn, err := p.Closest(ctx, spans[0], "button")
	if err != nil || btn == nil || !btn.HasClass("go") {
		t.Fatalf("Closest = %+v, %v", btn, err)
	}
	none, err := p.Closest(ctx, spans[0], "form")
	if err != nil || none != nil {
		t.Errorf("Closest(form) = %+v, %v", none, err)
	}
}

func TestEditingOperations(t *testing.T) {
	ctx := context.Background()
	p, _ := FromString(doc, IgnoreHTML(".ql-editor"))

	editor, _ := p.Query(ctx, ".ql-editor", nil)
	_ = p.SetHTML(ctx, editor[0], "")
	_ = p.SetHTML(ctx, editor[0], "<p>ignored</p>")
	if got := p.InnerText(".ql-editor"); got != "" {
		t.Errorf("editor after ignored SetHTML = %q", got)
	}

	_ = p.InsertText(ctx, editor[0], "a < b", false)
	_ = p.InsertText(ctx, editor[0], " again", false)
	if got := p.InnerText(".ql-editor"); got != "a < b again" {
		t.Errorf("appended text = %q", got)
	}
	_ = p.InsertText(ctx, editor[0], "fresh", true)
	if got := p.InnerText(".ql-editor"); got != "fresh" {
		t.Errorf("replaced text = %q", got)
	}

	input, _ := p.Query(ctx, "#d", nil)
	_ = p.SetValue(ctx, input[0], "16/10/2026")
	if got := p.Value("#d"); got != "16/10/2026" {
		t.Errorf("Value = %q", got)
	}

	_ = p.Dispatch(ctx, input[0], "input", "change")
	if events := p.Events(); len(events) != 2 || events[1].Name != "change" {
		t.Errorf("Events = %+v", events)
	}

	_ = p.UploadFile(ctx, input[0], automation.File{Name: "a.png"})
	if uploads := p.Uploads(); len(uploads) != 1 || uploads[0].File.Name != "a.png" {
		t.Errorf("Uploads = %+v", uploads)
	}
}

func TestClickHooksAndStaleNodes(t *testing.T) {
	ctx := context.Background()
	p, _ := FromString(doc)

	p.OnClick("button.go", func(p *Page, _ automation.Node) {
		p.Remove(".composer")
	})

	btn, _ := p.Query(ctx, "button.go", nil)
	if err := p.Click(ctx, btn[0]); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if len(p.Clicks()) != 1 {
		t.Errorf("Clicks = %d, want 1", len(p.Clicks()))
	}
	if err := p.Click(ctx, btn[0]); err == nil {
		t.Error("expected error clicking a removed element")
	}
	if err := p.Click(ctx, automation.Node{Ref: "elsewhere"}); err == nil {
		t.Error("expected error for a foreign node")
	}
}

func TestNavigationAndToasts(t *testing.T) {
	ctx := context.Background()
	p, _ := FromString(doc, WithURL("https://example.com/"))

	if url, _ := p.URL(ctx); url != "https://example.com/" {
		t.Errorf("URL = %q", url)
	}
	_ = p.Navigate(ctx, "https://www.linkedin.com/feed/")
	_ = p.ReplaceURL(ctx, "https://www.linkedin.com/feed/?x=1")
	if url, _ := p.URL(ctx); url != "https://www.linkedin.com/feed/?x=1" {
		t.Errorf("URL = %q", url)
	}
	if nav := p.Navigations(); len(nav) != 1 {
		t.Errorf("Navigations = %v", nav)
	}

	_ = p.Toast(ctx, "done", "success")
	if toasts := p.Toasts(); len(toasts) != 1 || toasts[0].Kind != "success" {
		t.Errorf("Toasts = %+v", toasts)
	}
}
