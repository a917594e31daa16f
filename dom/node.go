package dom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Node is either an *ElementNode or a *TextNode.
type Node interface {
	Visible() bool

	// ParentNode is the owning element. Ownership flows from parent to child;
	// the back-reference is for traversal only.
	ParentNode() *ElementNode

	String() string

	setParent(p *ElementNode)
}

// TextNode is visible text inside an element.
type TextNode struct {
	Text      string
	IsVisible bool
	Parent    *ElementNode
}

func (t *TextNode) Visible() bool            { return t.IsVisible }
func (t *TextNode) ParentNode() *ElementNode { return t.Parent }
func (t *TextNode) setParent(p *ElementNode) { t.Parent = p }
func (t *TextNode) String() string           { return t.Text }

// HasParentWithHighlightIndex reports whether any ancestor is interactive.
// Such text is already part of that ancestor's summary.
func (t *TextNode) HasParentWithHighlightIndex() bool {
	for cur := t.Parent; cur != nil; cur = cur.Parent {
		if cur.HighlightIndex != nil {
			return true
		}
	}
	return false
}

// IsParentInViewport reports whether the owning element is in the viewport.
func (t *TextNode) IsParentInViewport() bool {
	return t.Parent != nil && t.Parent.IsInViewport
}

// IsParentTopElement reports whether the owning element is topmost.
func (t *TextNode) IsParentTopElement() bool {
	return t.Parent != nil && t.Parent.IsTopElement
}

// ElementNode is an element of the rebuilt tree.
type ElementNode struct {
	TagName        string
	XPath          string
	Hosts          []string
	Attributes     map[string]string
	Children       []Node
	IsVisible      bool
	IsInteractive  bool
	IsTopElement   bool
	IsInViewport   bool
	ShadowRoot     bool
	HighlightIndex *int
	Parent         *ElementNode

	hashOnce sync.Once
	hash     string
}

func (e *ElementNode) Visible() bool            { return e.IsVisible }
func (e *ElementNode) ParentNode() *ElementNode { return e.Parent }
func (e *ElementNode) setParent(p *ElementNode) { e.Parent = p }

// Index returns the highlight index and whether the element has one.
func (e *ElementNode) Index() (int, bool) {
	if e.HighlightIndex == nil {
		return 0, false
	}
	return *e.HighlightIndex, true
}

// String renders the subtree with two-space indentation, one element per line.
func (e *ElementNode) String() string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(e.TagName)
	for _, k := range sortedKeys(e.Attributes) {
		fmt.Fprintf(&b, " %s=%q", k, e.Attributes[k])
	}
	b.WriteString(">")

	var extras []string
	if e.IsInteractive {
		extras = append(extras, "interactive")
	}
	if e.IsTopElement {
		extras = append(extras, "top")
	}
	if e.ShadowRoot {
		extras = append(extras, "shadow-root")
	}
	if e.HighlightIndex != nil {
		extras = append(extras, fmt.Sprintf("highlight:%d", *e.HighlightIndex))
	}
	if e.IsInViewport {
		extras = append(extras, "in-viewport")
	}
	if len(extras) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(extras, ", "))
		b.WriteString("]")
	}

	if len(e.Children) > 0 {
		b.WriteString("\n")
		for _, child := range e.Children {
			for _, line := range strings.Split(strings.TrimRight(child.String(), "\n"), "\n") {
				b.WriteString("  ")
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// Hash is a structural fingerprint of the element: its ancestor tag path,
// attributes and locator. It is computed once.
func (e *ElementNode) Hash() string {
	e.hashOnce.Do(func() {
		h := sha256.New()
		var path []string
		for cur := e; cur != nil; cur = cur.Parent {
			path = append(path, cur.TagName)
		}
		for i := len(path) - 1; i >= 0; i-- {
			h.Write([]byte(path[i]))
			h.Write([]byte{'/'})
		}
		h.Write([]byte{0})
		for _, k := range sortedKeys(e.Attributes) {
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(e.Attributes[k]))
			h.Write([]byte{0})
		}
		for _, host := range e.Hosts {
			h.Write([]byte(host))
			h.Write([]byte{0})
		}
		h.Write([]byte(e.XPath))
		e.hash = hex.EncodeToString(h.Sum(nil))
	})
	return e.hash
}

// GetAllTextTillNextClickableElement joins the text below e with newlines,
// without descending into interactive descendants. maxDepth -1 is unlimited.
func (e *ElementNode) GetAllTextTillNextClickableElement(maxDepth int) string {
	var parts []string
	var collect func(n Node, depth int)
	collect = func(n Node, depth int) {
		if maxDepth != -1 && depth > maxDepth {
			return
		}
		switch v := n.(type) {
		case *TextNode:
			parts = append(parts, v.Text)
		case *ElementNode:
			if v != e && v.HighlightIndex != nil {
				return
			}
			for _, child := range v.Children {
				collect(child, depth+1)
			}
		}
	}
	collect(e, 0)
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// FileUploadElement finds a file input in e, its descendants, or when
// checkSiblings is set, in the subtrees of its siblings.
func (e *ElementNode) FileUploadElement(checkSiblings bool) *ElementNode {
	if e.TagName == "input" && e.Attributes["type"] == "file" {
		return e
	}
	for _, child := range e.Children {
		if el, ok := child.(*ElementNode); ok {
			if found := el.FileUploadElement(false); found != nil {
				return found
			}
		}
	}
	if checkSiblings && e.Parent != nil {
		for _, sib := range e.Parent.Children {
			el, ok := sib.(*ElementNode)
			if !ok || el == e {
				continue
			}
			if found := el.FileUploadElement(false); found != nil {
				return found
			}
		}
	}
	return nil
}

// Walk visits e and its descendants in document order until fn returns false.
func (e *ElementNode) Walk(fn func(Node) bool) bool {
	if !fn(e) {
		return false
	}
	for _, child := range e.Children {
		switch v := child.(type) {
		case *ElementNode:
			if !v.Walk(fn) {
				return false
			}
		default:
			if !fn(v) {
				return false
			}
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
