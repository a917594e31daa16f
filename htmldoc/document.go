// Package htmldoc renders static HTML into a dom.Page without a browser.
//
// Geometry comes from inline styles: left, top, width and height in px place an
// element in its document's viewport. Elements without a declared box take the
// union of their children's boxes. A few data attributes stand in for state
// that only exists in a live page:
//
//	data-listeners="click keydown"   event listeners attached to the element
//	data-fault="geometry"            layout reads of the element fail
//	data-fault="hit-test"            hit tests that land on the element fail
//
// Declarative shadow roots (<template shadowrootmode="open">) and srcdoc
// frames are supported. Frames with only a src are treated as cross-origin.
package htmldoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/anxuanzi/bua-teacher/dom"
)

// Default viewport size.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Document is a parsed, laid out HTML document. It implements dom.Page and dom.Source.
type Document struct {
	root       *html.Node
	top        *scope
	body       *node
	viewport   dom.Viewport
	byHTML     map[*html.Node]*node
	listeners  bool
	failHitAll bool
}

// Option configures a Document.
type Option func(*Document)

// WithViewport sets the window size.
func WithViewport(width, height float64) Option {
	return func(d *Document) { d.viewport = dom.Viewport{Width: width, Height: height} }
}

// WithoutListenerIntrospection makes EventListeners report dom.ErrListenersUnavailable.
func WithoutListenerIntrospection() Option {
	return func(d *Document) { d.listeners = false }
}

// WithFailingHitTests makes every hit test fail.
func WithFailingHitTests() Option {
	return func(d *Document) { d.failHitAll = true }
}

// Parse reads and lays out an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	d := &Document{
		root:      root,
		viewport:  dom.Viewport{Width: DefaultWidth, Height: DefaultHeight},
		byHTML:    make(map[*html.Node]*node),
		listeners: true,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.top = d.buildDocument(root, nil)
	d.body = d.findBody(d.top)
	if d.body == nil {
		return nil, errors.New("failed to parse html: document has no body")
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Capture returns the document itself; a static page never changes.
func (d *Document) Capture(context.Context) (dom.Page, error) {
	return d, nil
}

func (d *Document) Document() dom.Scope    { return d.top }
func (d *Document) Body() dom.LiveNode     { return d.body }
func (d *Document) Viewport() dom.Viewport { return d.viewport }

// ElementByID returns the first element of the top document with the id, or nil.
func (d *Document) ElementByID(id string) dom.LiveNode {
	h := htmlquery.FindOne(d.root, fmt.Sprintf("//*[@id=%q]", id))
	if n, ok := d.byHTML[h]; ok && h != nil {
		return n
	}
	return nil
}

// ResolveXPath evaluates the locator against the top document, or against the
// frame document or shadow root the hosts lead to.
func (d *Document) ResolveXPath(_ context.Context, hosts []string, xpath string) (dom.LiveNode, error) {
	if len(hosts) > 0 {
		return dom.FindIn(d.top, hosts, xpath)
	}
	h, err := htmlquery.Query(d.root, xpath)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate xpath %q: %w", xpath, err)
	}
	if h == nil {
		return nil, nil
	}
	n, ok := d.byHTML[h]
	if !ok {
		return nil, nil
	}
	return n, nil
}

func (d *Document) BoundingRect(n dom.LiveNode) (dom.Rect, error) {
	nd, err := d.own(n)
	if err != nil {
		return dom.Rect{}, err
	}
	if nd.fault == "geometry" {
		return dom.Rect{}, fmt.Errorf("layout read failed for <%s>", nd.tag)
	}
	return nd.rect(), nil
}

func (d *Document) TextRect(n dom.LiveNode) (dom.Rect, error) {
	nd, err := d.own(n)
	if err != nil {
		return dom.Rect{}, err
	}
	if nd.kind != dom.KindText {
		return dom.Rect{}, errors.New("not a text node")
	}
	if nd.parent == nil {
		return dom.Rect{}, nil
	}
	return nd.parent.rect(), nil
}

func (d *Document) ComputedStyle(n dom.LiveNode) (dom.Style, error) {
	nd, err := d.own(n)
	if err != nil {
		return dom.Style{}, err
	}
	if nd.fault == "geometry" {
		return dom.Style{}, fmt.Errorf("style read failed for <%s>", nd.tag)
	}
	return nd.computedStyle(), nil
}

func (d *Document) Properties(n dom.LiveNode) (dom.Properties, error) {
	nd, err := d.own(n)
	if err != nil {
		return dom.Properties{}, err
	}
	if nd.fault == "geometry" {
		return dom.Properties{}, fmt.Errorf("property read failed for <%s>", nd.tag)
	}
	return nd.properties(), nil
}

func (d *Document) EventListeners(n dom.LiveNode) ([]string, error) {
	if !d.listeners {
		return nil, dom.ErrListenersUnavailable
	}
	nd, err := d.own(n)
	if err != nil {
		return nil, err
	}
	v, _ := nd.Attr("data-listeners")
	return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }), nil
}

func (d *Document) own(n dom.LiveNode) (*node, error) {
	nd, ok := n.(*node)
	if !ok || nd.doc != d {
		return nil, errors.New("node does not belong to this document")
	}
	return nd, nil
}

func (d *Document) findBody(s *scope) *node {
	for _, c := range s.children {
		if c.tag != "html" {
			continue
		}
		for _, cc := range c.children {
			if cc.tag == "body" {
				return cc
			}
		}
	}
	return nil
}
