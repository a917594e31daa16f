package dom

import (
	"context"
	"strings"
)

// NodeKind discriminates live nodes.
type NodeKind int

const (
	KindOther NodeKind = iota
	KindElement
	KindText
)

// LiveNode is a node of a rendered document. Implementations must be pointer
// backed: the walker compares nodes by interface equality.
type LiveNode interface {
	Kind() NodeKind

	// TagName is lowercase. Empty for non-elements.
	TagName() string

	// Text is the raw content of a text node.
	Text() string

	Attr(name string) (string, bool)

	// AttrNames lists attribute names in document order.
	AttrNames() []string

	// ParentElement is nil when the parent is a document or a shadow root.
	ParentElement() LiveNode

	PreviousSibling() LiveNode
	ChildNodes() []LiveNode

	// ShadowRoot is nil unless the element hosts an open shadow root.
	ShadowRoot() Scope

	// ContentDocument returns the document of a frame element, nil for other
	// nodes, and ErrCrossOrigin when the frame cannot be entered.
	ContentDocument() (Scope, error)

	// RootNode is the document or shadow root the node belongs to.
	RootNode() Scope

	// OwnerDocument is the document the node belongs to, even inside a shadow tree.
	OwnerDocument() Scope
}

// Scope is a document or a shadow root: something that owns children and can
// answer hit tests in its own coordinate space.
type Scope interface {
	ChildNodes() []LiveNode

	// ElementFromPoint returns the topmost element at x, y, nil when nothing is
	// there, or an error wrapping ErrHitTest.
	ElementFromPoint(x, y float64) (LiveNode, error)

	// Host is the shadow host of a shadow root, or the frame element of a frame
	// document. Nil for the top document.
	Host() LiveNode

	IsShadow() bool
}

// Page is one captured rendering the walker can classify.
type Page interface {
	Document() Scope
	Body() LiveNode
	Viewport() Viewport

	BoundingRect(n LiveNode) (Rect, error)
	TextRect(n LiveNode) (Rect, error)
	ComputedStyle(n LiveNode) (Style, error)
	Properties(n LiveNode) (Properties, error)

	// EventListeners returns the event types with listeners attached, or
	// ErrListenersUnavailable.
	EventListeners(n LiveNode) ([]string, error)

	// ResolveXPath looks the locator up in the current document, entering the
	// frame documents and shadow roots of hosts first. A nil node with a nil
	// error means nothing matched.
	ResolveXPath(ctx context.Context, hosts []string, xpath string) (LiveNode, error)
}

// Source captures a fresh Page for every extraction.
type Source interface {
	Capture(ctx context.Context) (Page, error)
}

// Rect is a box in CSS pixels relative to the owning document's viewport.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Center returns the visual center of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// IsEmpty reports whether the box has no area.
func (r Rect) IsEmpty() bool {
	return r.Width == 0 || r.Height == 0
}

// Offset moves the box by dx, dy.
func (r Rect) Offset(dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// Contains reports whether the point lies inside the box.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left() && x < r.Right() && y >= r.Top() && y < r.Bottom()
}

// Viewport is the size of the top-level window.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Style is the subset of computed style the classifier reads.
type Style struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
	Position   string `json:"position"`
}

// Properties are element state that only exists on the live object, never in markup.
type Properties struct {
	OffsetWidth     float64  `json:"offsetWidth"`
	OffsetHeight    float64  `json:"offsetHeight"`
	HasOnClick      bool     `json:"hasOnClick"`
	Handlers        []string `json:"handlers,omitempty"`
	ContentEditable bool     `json:"contentEditable"`
	Draggable       bool     `json:"draggable"`
}

func hasHandler(p Properties, eventType string) bool {
	for _, h := range p.Handlers {
		if h == eventType {
			return true
		}
	}
	return false
}

// ClassList splits the class attribute of n.
func ClassList(n LiveNode) []string {
	v, ok := n.Attr("class")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}

// HasClass reports whether n carries the class name.
func HasClass(n LiveNode, name string) bool {
	for _, c := range ClassList(n) {
		if c == name {
			return true
		}
	}
	return false
}

func attrIs(n LiveNode, name, want string) bool {
	v, ok := n.Attr(name)
	return ok && v == want
}

func hasAttr(n LiveNode, name string) bool {
	_, ok := n.Attr(name)
	return ok
}
