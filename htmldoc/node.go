package htmldoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	"github.com/anxuanzi/bua-teacher/dom"
)

// hiddenByDefault are elements the user agent stylesheet never renders.
var hiddenByDefault = map[string]bool{
	"head": true, "script": true, "style": true, "title": true,
	"meta": true, "link": true, "template": true, "noscript": true,
}

type node struct {
	doc  *Document
	h    *html.Node
	kind dom.NodeKind
	tag  string

	parent   *node
	prev     *node
	children []*node

	shadow      *scope
	content     *scope
	crossOrigin bool

	root  *scope
	owner *scope

	decl  map[string]string
	box   *dom.Rect
	fault string
}

func (n *node) Kind() dom.NodeKind { return n.kind }
func (n *node) TagName() string    { return n.tag }

func (n *node) Text() string {
	if n.kind != dom.KindText {
		return ""
	}
	return n.h.Data
}

func (n *node) Attr(name string) (string, bool) {
	if n.kind != dom.KindElement {
		return "", false
	}
	for _, a := range n.h.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (n *node) AttrNames() []string {
	if n.kind != dom.KindElement {
		return nil
	}
	names := make([]string, 0, len(n.h.Attr))
	for _, a := range n.h.Attr {
		names = append(names, a.Key)
	}
	return names
}

func (n *node) ParentElement() dom.LiveNode {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) PreviousSibling() dom.LiveNode {
	if n.prev == nil {
		return nil
	}
	return n.prev
}

func (n *node) ChildNodes() []dom.LiveNode { return liveNodes(n.children) }

func (n *node) ShadowRoot() dom.Scope {
	if n.shadow == nil {
		return nil
	}
	return n.shadow
}

func (n *node) ContentDocument() (dom.Scope, error) {
	if n.crossOrigin {
		return nil, fmt.Errorf("frame %q: %w", n.attr("src"), dom.ErrCrossOrigin)
	}
	if n.content == nil {
		return nil, nil
	}
	return n.content, nil
}

func (n *node) RootNode() dom.Scope      { return n.root }
func (n *node) OwnerDocument() dom.Scope { return n.owner }

func (n *node) attr(name string) string {
	v, _ := n.Attr(name)
	return v
}

// rendered reports whether neither the node nor an ancestor, across shadow
// hosts and frame elements, is display:none.
func (n *node) rendered() bool {
	for cur := n; cur != nil; cur = cur.layoutParent() {
		if cur.kind == dom.KindElement && cur.display() == "none" {
			return false
		}
	}
	return true
}

// layoutParent steps over document and shadow root boundaries.
func (n *node) layoutParent() *node {
	if n.parent != nil {
		return n.parent
	}
	if n.root != nil {
		return n.root.host
	}
	return nil
}

func (n *node) display() string {
	if v, ok := n.decl["display"]; ok {
		return v
	}
	if _, hidden := n.Attr("hidden"); hidden || hiddenByDefault[n.tag] {
		return "none"
	}
	return "block"
}

func (n *node) visibility() string {
	for cur := n; cur != nil; cur = cur.layoutParent() {
		if v, ok := cur.decl["visibility"]; ok {
			return v
		}
	}
	return "visible"
}

func (n *node) computedStyle() dom.Style {
	s := dom.Style{
		Display:    n.display(),
		Visibility: n.visibility(),
		Opacity:    "1",
		Position:   "static",
	}
	if v, ok := n.decl["opacity"]; ok {
		s.Opacity = v
	}
	if v, ok := n.decl["position"]; ok {
		s.Position = v
	}
	return s
}

// rect is the declared box, or the union of the children's boxes.
func (n *node) rect() dom.Rect {
	if !n.rendered() {
		return dom.Rect{}
	}
	if n.box != nil {
		return *n.box
	}
	var (
		out   dom.Rect
		found bool
	)
	kids := n.children
	if n.shadow != nil {
		kids = n.shadow.children
	}
	for _, c := range kids {
		if c.kind != dom.KindElement {
			continue
		}
		r := c.rect()
		if r.IsEmpty() {
			continue
		}
		if !found {
			out, found = r, true
			continue
		}
		out = union(out, r)
	}
	return out
}

func (n *node) properties() dom.Properties {
	var p dom.Properties
	if r := n.rect(); !r.IsEmpty() {
		p.OffsetWidth, p.OffsetHeight = r.Width, r.Height
	}
	_, p.HasOnClick = n.Attr("onclick")
	for _, a := range n.h.Attr {
		if strings.HasPrefix(a.Key, "on") && len(a.Key) > 2 {
			p.Handlers = append(p.Handlers, strings.TrimPrefix(a.Key, "on"))
		}
	}
	p.ContentEditable = n.editable()
	p.Draggable = n.draggable()
	return p
}

// editable follows the inherited contenteditable state.
func (n *node) editable() bool {
	for cur := n; cur != nil; cur = cur.parent {
		v, ok := cur.Attr("contenteditable")
		if !ok {
			continue
		}
		switch strings.ToLower(v) {
		case "", "true", "plaintext-only":
			return true
		default:
			return false
		}
	}
	return false
}

func (n *node) draggable() bool {
	switch n.attr("draggable") {
	case "true":
		return true
	case "false":
		return false
	}
	if n.tag == "img" {
		return true
	}
	_, href := n.Attr("href")
	return n.tag == "a" && href
}

func (n *node) hittable() bool {
	return n.kind == dom.KindElement &&
		n.rendered() &&
		n.visibility() != "hidden" &&
		n.decl["pointer-events"] != "none"
}

// scope is a document or a shadow root.
type scope struct {
	doc      *Document
	shadow   bool
	host     *node
	children []*node

	// elements in tree order, for hit testing
	elements []*node
}

func (s *scope) ChildNodes() []dom.LiveNode { return liveNodes(s.children) }
func (s *scope) IsShadow() bool             { return s.shadow }

func (s *scope) Host() dom.LiveNode {
	if s.host == nil {
		return nil
	}
	return s.host
}

// ElementFromPoint returns the last element in tree order whose box contains the point.
func (s *scope) ElementFromPoint(x, y float64) (dom.LiveNode, error) {
	if s.doc.failHitAll {
		return nil, fmt.Errorf("%w: hit testing disabled", dom.ErrHitTest)
	}
	for i := len(s.elements) - 1; i >= 0; i-- {
		el := s.elements[i]
		if !el.hittable() || !el.rect().Contains(x, y) {
			continue
		}
		if el.fault == "hit-test" {
			return nil, fmt.Errorf("%w: at %.0f,%.0f", dom.ErrHitTest, x, y)
		}
		return el, nil
	}
	return nil, nil
}

func (d *Document) buildDocument(h *html.Node, frame *node) *scope {
	s := &scope{doc: d, host: frame}
	s.children = d.buildChildren(h, nil, s, s)
	return s
}

func (d *Document) buildChildren(h *html.Node, parent *node, root, owner *scope) []*node {
	var (
		out  []*node
		prev *node
	)
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if parent != nil && isShadowTemplate(c) {
			sr := &scope{doc: d, shadow: true, host: parent}
			sr.children = d.buildChildren(c, nil, sr, owner)
			parent.shadow = sr
			continue
		}
		n := d.build(c, parent, root, owner)
		n.prev = prev
		prev = n
		out = append(out, n)
	}
	return out
}

func (d *Document) build(h *html.Node, parent *node, root, owner *scope) *node {
	n := &node{doc: d, h: h, parent: parent, root: root, owner: owner}
	d.byHTML[h] = n

	switch h.Type {
	case html.TextNode:
		n.kind = dom.KindText
		return n
	case html.ElementNode:
		n.kind = dom.KindElement
		n.tag = strings.ToLower(h.Data)
	default:
		n.kind = dom.KindOther
		return n
	}

	root.elements = append(root.elements, n)
	n.fault = n.attr("data-fault")
	n.decl = declarations(n.attr("style"))
	n.box = declaredBox(n.decl)

	if n.tag == "iframe" || n.tag == "frame" {
		if src, ok := n.Attr("srcdoc"); ok {
			fh, err := html.Parse(strings.NewReader(src))
			if err == nil {
				n.content = d.buildDocument(fh, n)
			} else {
				n.crossOrigin = true
			}
		} else if n.attr("src") != "" {
			n.crossOrigin = true
		}
		return n
	}

	n.children = d.buildChildren(h, n, root, owner)
	return n
}

func isShadowTemplate(h *html.Node) bool {
	if h.Type != html.ElementNode || h.Data != "template" {
		return false
	}
	for _, a := range h.Attr {
		if a.Key == "shadowrootmode" || a.Key == "shadowroot" {
			return true
		}
	}
	return false
}

// declarations parses an inline style attribute into lowercase property values.
func declarations(style string) map[string]string {
	out := map[string]string{}
	style = strings.TrimSpace(style)
	if style == "" {
		return out
	}
	// The parser only stores a value once it reaches a terminator.
	if !strings.HasSuffix(style, ";") {
		style += ";"
	}
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		return out
	}
	for _, d := range decls {
		out[strings.ToLower(d.Property)] = strings.ToLower(strings.TrimSpace(d.Value))
	}
	return out
}

func declaredBox(decl map[string]string) *dom.Rect {
	w, okW := px(decl["width"])
	h, okH := px(decl["height"])
	if !okW && !okH {
		return nil
	}
	x, _ := px(decl["left"])
	y, _ := px(decl["top"])
	return &dom.Rect{X: x, Y: y, Width: w, Height: h}
}

func px(v string) (float64, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(v, "px"))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func union(a, b dom.Rect) dom.Rect {
	left := min(a.Left(), b.Left())
	top := min(a.Top(), b.Top())
	right := max(a.Right(), b.Right())
	bottom := max(a.Bottom(), b.Bottom())
	return dom.Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
}

func liveNodes(ns []*node) []dom.LiveNode {
	out := make([]dom.LiveNode, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}
