// Package snapshot implements automation.Page over a static HTML document.
// Clicks change nothing unless a hook is registered, so saved LinkedIn pages
// can be replayed offline.
package snapshot

import (
	"context"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	nethtml "golang.org/x/net/html"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/automation"
)

const refAttr = "data-snapshot-ref"

// Event is one synthetic event dispatched on an element.
type Event struct {
	Ref  int
	Name string
}

type Upload struct {
	Ref  int
	File automation.File
}

type Toast struct {
	Message string
	Kind    string
}

type hook struct {
	selector string
	fn       func(p *Page, n automation.Node)
}

type Option func(*Page)

// WithURL sets the address the page reports.
func WithURL(url string) Option {
	return func(p *Page) { p.url = url }
}

// IgnoreHTML makes elements matching selector drop assigned HTML, like
// editors that only accept typed input.
func IgnoreHTML(selector string) Option {
	return func(p *Page) { p.ignoreHTML = append(p.ignoreHTML, selector) }
}

type Page struct {
	mu         sync.Mutex
	doc        *goquery.Document
	url        string
	nextRef    int
	ignoreHTML []string
	hooks      []hook

	clicks   []automation.Node
	events   []Event
	uploads  []Upload
	toasts   []Toast
	navigate []string
}

func New(r io.Reader, opts ...Option) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	p := &Page{doc: doc, url: "https://www.linkedin.com/feed/"}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func FromString(s string, opts ...Option) (*Page, error) {
	return New(strings.NewReader(s), opts...)
}

// OnClick runs fn after any element matching selector is clicked.
func (p *Page) OnClick(selector string, fn func(p *Page, n automation.Node)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook{selector: selector, fn: fn})
}

// Mutate gives direct access to the document, for hooks.
func (p *Page) Mutate(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.navigate = append(p.navigate, url)
	return nil
}

func (p *Page) ScrollTop(context.Context) error {
	return nil
}

func (p *Page) ReplaceURL(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	return nil
}

func (p *Page) Query(_ context.Context, selector string, within *automation.Node) ([]automation.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.assignRefs()
	root := p.doc.Selection
	if within != nil {
		sel, err := p.resolve(*within)
		if err != nil {
			return nil, err
		}
		root = sel
	}

	if _, err := cascadia.ParseGroup(selector); err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	var nodes []automation.Node
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, toNode(s))
	})
	return nodes, nil
}

func (p *Page) Closest(_ context.Context, n automation.Node, selector string) (*automation.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel, err := p.resolve(n)
	if err != nil {
		return nil, err
	}
	found := sel.Closest(selector)
	if found.Length() == 0 {
		return nil, nil
	}
	node := toNode(found.First())
	return &node, nil
}

func (p *Page) Text(_ context.Context, n automation.Node) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel, err := p.resolve(n)
	if err != nil {
		return "", err
	}
	return innerText(sel), nil
}

func (p *Page) Click(_ context.Context, n automation.Node) error {
	p.mu.Lock()
	sel, err := p.resolve(n)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, toNode(sel))

	var fire []hook
	for _, h := range p.hooks {
		if sel.Is(h.selector) {
			fire = append(fire, h)
		}
	}
	p.mu.Unlock()

	for _, h := range fire {
		h.fn(p, n)
	}
	return nil
}

func (p *Page) Focus(_ context.Context, n automation.Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.resolve(n)
	return err
}

func (p *Page) SetHTML(_ context.Context, n automation.Node, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel, err := p.resolve(n)
	if err != nil {
		return err
	}
	if content != "" {
		for _, ignored := range p.ignoreHTML {
			if sel.Is(ignored) {
				return nil
			}
		}
	}
	sel.SetHtml(content)
	return nil
}

func (p *Page) InsertText(_ context.Context, n automation.Node, text string, selectAll bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel, err := p.resolve(n)
	if err != nil {
		return err
	}
	if selectAll {
		sel.SetText(text)
		return nil
	}
	sel.AppendHtml(html.EscapeString(text))
	return nil
}

func (p *Page) SetValue(_ context.Context, n automation.Node, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sel, err := p.resolve(n)
	if err != nil {
		return err
	}
	sel.SetAttr("value", value)
	return nil
}

func (p *Page) Dispatch(_ context.Context, n automation.Node, events ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref, err := refOf(n)
	if err != nil {
		return err
	}
	for _, name := range events {
		p.events = append(p.events, Event{Ref: ref, Name: name})
	}
	return nil
}

func (p *Page) UploadFile(_ context.Context, input automation.Node, f automation.File) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref, err := refOf(input)
	if err != nil {
		return err
	}
	p.uploads = append(p.uploads, Upload{Ref: ref, File: f})
	return nil
}

func (p *Page) Toast(_ context.Context, message, kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, Toast{Message: message, Kind: kind})
	return nil
}

// Clicks returns the elements clicked so far, as they were when clicked.
func (p *Page) Clicks() []automation.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]automation.Node(nil), p.clicks...)
}

func (p *Page) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func (p *Page) Uploads() []Upload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Upload(nil), p.uploads...)
}

func (p *Page) Toasts() []Toast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Toast(nil), p.toasts...)
}

func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigate...)
}

// Value returns the value attribute of the first element matching selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := p.doc.Find(selector).First().Attr("value")
	return v
}

// InnerText returns the visible text of the first element matching selector.
func (p *Page) InnerText(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return innerText(p.doc.Find(selector).First())
}

// Remove deletes every element matching selector.
func (p *Page) Remove(selector string) {
	p.Mutate(func(doc *goquery.Document) {
		doc.Find(selector).Remove()
	})
}

func (p *Page) assignRefs() {
	p.doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr(refAttr); ok {
			return
		}
		p.nextRef++
		s.SetAttr(refAttr, strconv.Itoa(p.nextRef))
	})
}

func (p *Page) resolve(n automation.Node) (*goquery.Selection, error) {
	ref, err := refOf(n)
	if err != nil {
		return nil, err
	}
	sel := p.doc.Find(fmt.Sprintf(`[%s="%d"]`, refAttr, ref))
	if sel.Length() == 0 {
		return nil, fmt.Errorf("element %d is no longer attached", ref)
	}
	return sel.First(), nil
}

func refOf(n automation.Node) (int, error) {
	ref, ok := n.Ref.(int)
	if !ok {
		return 0, fmt.Errorf("node %v was not produced by a snapshot page", n.Ref)
	}
	return ref, nil
}

func toNode(s *goquery.Selection) automation.Node {
	node := automation.Node{
		Tag:   goquery.NodeName(s),
		Text:  innerText(s),
		Attrs: make(map[string]string),
	}
	if len(s.Nodes) == 0 {
		return node
	}
	for _, attr := range s.Nodes[0].Attr {
		if attr.Key == refAttr {
			node.Ref, _ = strconv.Atoi(attr.Val)
			continue
		}
		node.Attrs[attr.Key] = attr.Val
	}
	return node
}

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "h1": true, "h2": true, "h3": true, "section": true,
}

// innerText approximates the browser property: text content with line
// breaks for <br> and block elements.
func innerText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(&b, n)
	}
	return strings.Trim(b.String(), "\n")
}

func writeText(b *strings.Builder, n *nethtml.Node) {
	switch n.Type {
	case nethtml.TextNode:
		b.WriteString(n.Data)
		return
	case nethtml.ElementNode:
		switch n.Data {
		case "br":
			b.WriteString("\n")
			return
		case "script", "style":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if n.Type == nethtml.ElementNode && blockElements[n.Data] {
		b.WriteString("\n")
	}
}
