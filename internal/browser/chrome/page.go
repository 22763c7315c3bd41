package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
)

// Page drives one Chrome tab through the DevTools protocol. Node refs are
// backend node ids, which survive DOM re-renders around them.
type Page struct {
	ctx context.Context

	uploadOnce sync.Once
	uploadDir  string
	uploadErr  error
}

var _ automation.Page = (*Page)(nil)

func newPage(tabCtx context.Context) *Page {
	return &Page{ctx: tabCtx}
}

// run executes actions in the tab until they finish or ctx ends.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read tab url: %w", err)
	}
	return url, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) ScrollTop(ctx context.Context) error {
	return p.eval(ctx, `(window.scrollTo(0, 0), true)`)
}

func (p *Page) ReplaceURL(ctx context.Context, url string) error {
	return p.eval(ctx, fmt.Sprintf(`(history.replaceState(history.state, "", %s), true)`, jsLiteral(url)))
}

// Loaded reports whether the document finished loading on a LinkedIn page.
func (p *Page) Loaded(ctx context.Context) (bool, error) {
	var state struct {
		ReadyState string `json:"readyState"`
		Host       string `json:"host"`
	}
	err := p.run(ctx, chromedp.Evaluate(`({readyState: document.readyState, host: location.hostname})`, &state))
	if err != nil {
		return false, err
	}
	return state.ReadyState == "complete" && strings.HasSuffix(state.Host, "linkedin.com"), nil
}

func (p *Page) eval(ctx context.Context, expr string) error {
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (p *Page) Query(ctx context.Context, selector string, within *automation.Node) ([]automation.Node, error) {
	var nodes []automation.Node
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := rootNode(ctx, within)
		if err != nil {
			return err
		}
		ids, err := dom.QuerySelectorAll(root, selector).Do(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := describe(ctx, dom.DescribeNode().WithNodeID(id))
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return nodes, nil
}

func (p *Page) Closest(ctx context.Context, n automation.Node, selector string) (*automation.Node, error) {
	var found *automation.Node
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := callOn(ctx, n, fmt.Sprintf(`function() { return this.closest(%s); }`, jsLiteral(selector)), false)
		if err != nil {
			return err
		}
		if obj.ObjectID == "" {
			return nil
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		node, err := describe(ctx, dom.DescribeNode().WithObjectID(obj.ObjectID))
		if err != nil {
			return err
		}
		found = &node
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to find closest %q: %w", selector, err)
	}
	return found, nil
}

func (p *Page) Text(ctx context.Context, n automation.Node) (string, error) {
	var text string
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		text, err = innerText(ctx, n)
		return err
	}))
	return text, err
}

func (p *Page) Click(ctx context.Context, n automation.Node) error {
	return p.call(ctx, n, `function() { this.scrollIntoView({block: "center"}); this.click(); }`)
}

func (p *Page) Focus(ctx context.Context, n automation.Node) error {
	id, err := backendID(n)
	if err != nil {
		return err
	}
	return p.run(ctx, dom.Focus().WithBackendNodeID(id))
}

func (p *Page) SetHTML(ctx context.Context, n automation.Node, html string) error {
	return p.call(ctx, n, fmt.Sprintf(`function() { this.innerHTML = %s; }`, jsLiteral(html)))
}

// InsertText types through Input.insertText, which editors treat as user input.
func (p *Page) InsertText(ctx context.Context, n automation.Node, text string, selectAll bool) error {
	if selectAll {
		if err := p.call(ctx, n, `function() { this.focus(); document.execCommand("selectAll", false, null); }`); err != nil {
			return err
		}
	}
	return p.run(ctx, input.InsertText(text))
}

func (p *Page) SetValue(ctx context.Context, n automation.Node, value string) error {
	return p.call(ctx, n, fmt.Sprintf(`function() { this.value = %s; }`, jsLiteral(value)))
}

func (p *Page) Dispatch(ctx context.Context, n automation.Node, events ...string) error {
	return p.call(ctx, n, fmt.Sprintf(
		`function() { for (const name of %s) { this.dispatchEvent(new Event(name, {bubbles: true})); } }`,
		jsLiteral(events),
	))
}

// UploadFile stages the file on disk and hands its path to the input.
func (p *Page) UploadFile(ctx context.Context, in automation.Node, f automation.File) error {
	id, err := backendID(in)
	if err != nil {
		return err
	}

	p.uploadOnce.Do(func() {
		p.uploadDir, p.uploadErr = os.MkdirTemp("", "veille-upload-")
	})
	if p.uploadErr != nil {
		return fmt.Errorf("failed to create upload directory: %w", p.uploadErr)
	}

	path := filepath.Join(p.uploadDir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Data, 0o600); err != nil {
		return fmt.Errorf("failed to stage upload: %w", err)
	}
	if err := p.run(ctx, dom.SetFileInputFiles([]string{path}).WithBackendNodeID(id)); err != nil {
		return fmt.Errorf("failed to set file input: %w", err)
	}
	return nil
}

const toastScript = `(function(message, kind) {
	const el = document.createElement("div");
	el.textContent = message;
	el.style.cssText = "position:fixed;top:20px;right:20px;z-index:99999;padding:12px 20px;border-radius:8px;color:#fff;font:14px sans-serif;box-shadow:0 4px 12px rgba(0,0,0,.15);background:" +
		(kind === "success" ? "#10b981" : kind === "error" ? "#ef4444" : "#3b82f6");
	document.body.appendChild(el);
	setTimeout(() => el.remove(), 3000);
	return true;
})(%s, %s)`

func (p *Page) Toast(ctx context.Context, message, kind string) error {
	return p.eval(ctx, fmt.Sprintf(toastScript, jsLiteral(message), jsLiteral(kind)))
}

// Close removes staged uploads.
func (p *Page) Close() {
	if p.uploadDir != "" {
		_ = os.RemoveAll(p.uploadDir)
	}
}

func (p *Page) call(ctx context.Context, n automation.Node, fn string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := callOn(ctx, n, fn, true)
		return err
	}))
}

func rootNode(ctx context.Context, within *automation.Node) (cdp.NodeID, error) {
	doc, err := dom.GetDocument().Do(ctx)
	if err != nil {
		return 0, err
	}
	if within == nil {
		return doc.NodeID, nil
	}

	id, err := backendID(*within)
	if err != nil {
		return 0, err
	}
	ids, err := dom.PushNodesByBackendIDsToFrontend([]cdp.BackendNodeID{id}).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 || ids[0] == 0 {
		return 0, fmt.Errorf("node %d is no longer attached", id)
	}
	return ids[0], nil
}

func describe(ctx context.Context, params *dom.DescribeNodeParams) (automation.Node, error) {
	node, err := params.Do(ctx)
	if err != nil {
		return automation.Node{}, err
	}

	n := automation.Node{
		Ref:   node.BackendNodeID,
		Tag:   strings.ToLower(node.LocalName),
		Attrs: make(map[string]string, len(node.Attributes)/2),
	}
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		n.Attrs[node.Attributes[i]] = node.Attributes[i+1]
	}
	n.Text, err = innerText(ctx, n)
	if err != nil {
		return automation.Node{}, err
	}
	return n, nil
}

func innerText(ctx context.Context, n automation.Node) (string, error) {
	obj, err := callOn(ctx, n, `function() { return this.innerText || this.textContent || ""; }`, true)
	if err != nil {
		return "", err
	}
	var text string
	if len(obj.Value) > 0 {
		if err := json.Unmarshal(obj.Value, &text); err != nil {
			return "", fmt.Errorf("failed to decode text: %w", err)
		}
	}
	return text, nil
}

// callOn runs fn with this bound to n. With byValue unset the result stays a
// remote object the caller must release.
func callOn(ctx context.Context, n automation.Node, fn string, byValue bool) (*runtime.RemoteObject, error) {
	id, err := backendID(n)
	if err != nil {
		return nil, err
	}
	obj, err := dom.ResolveNode().WithBackendNodeID(id).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("node %d is no longer attached: %w", id, err)
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(byValue).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, fmt.Errorf("script error: %s", exc.Error())
	}
	return res, nil
}

func backendID(n automation.Node) (cdp.BackendNodeID, error) {
	id, ok := n.Ref.(cdp.BackendNodeID)
	if !ok {
		return 0, fmt.Errorf("node %v was not produced by a chrome page", n.Ref)
	}
	return id, nil
}

func jsLiteral(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
