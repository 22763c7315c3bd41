// Package automation drives LinkedIn's composer through a Page, publishing a
// post immediately or handing it to LinkedIn's own scheduler.
package automation

import (
	"context"
	"strings"
)

// Node is one element as seen when it was queried. Ref is driver specific.
type Node struct {
	Ref   any
	Tag   string
	Text  string
	Attrs map[string]string
}

func (n Node) Attr(name string) string {
	return n.Attrs[name]
}

func (n Node) HasAttr(name string) bool {
	_, ok := n.Attrs[name]
	return ok
}

func (n Node) Disabled() bool {
	return n.HasAttr("disabled") || n.Attr("aria-disabled") == "true"
}

func (n Node) HasClass(class string) bool {
	for _, c := range strings.Fields(n.Attr("class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Label is the node's trimmed visible text.
func (n Node) Label() string {
	return strings.TrimSpace(n.Text)
}

// File is an upload handed to a file input.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Page is one browser tab's document.
type Page interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	ScrollTop(ctx context.Context) error
	// ReplaceURL rewrites the address bar without reloading.
	ReplaceURL(ctx context.Context, url string) error

	// Query returns the elements matching selector in document order, inside
	// within when it is not nil.
	Query(ctx context.Context, selector string, within *Node) ([]Node, error)
	// Closest returns the nearest ancestor-or-self matching selector, or nil.
	Closest(ctx context.Context, n Node, selector string) (*Node, error)
	Text(ctx context.Context, n Node) (string, error)

	Click(ctx context.Context, n Node) error
	Focus(ctx context.Context, n Node) error
	SetHTML(ctx context.Context, n Node, html string) error
	// InsertText types text at the caret, replacing the content first when selectAll is set.
	InsertText(ctx context.Context, n Node, text string, selectAll bool) error
	SetValue(ctx context.Context, n Node, value string) error
	Dispatch(ctx context.Context, n Node, events ...string) error
	UploadFile(ctx context.Context, input Node, f File) error

	Toast(ctx context.Context, message, kind string) error
}

func first(ctx context.Context, p Page, selector string, within *Node) (*Node, error) {
	nodes, err := p.Query(ctx, selector, within)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return &nodes[0], nil
}
