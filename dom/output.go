package dom

import (
	"sort"
	"strconv"
	"strings"
)

// Output is the compact, LLM facing projection of a node.
type Output struct {
	Type           string            `json:"type"`
	TagName        string            `json:"tagName,omitempty"`
	HighlightIndex *int              `json:"highlightIndex,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Text           string            `json:"text,omitempty"`
	Children       []*Output         `json:"children,omitempty"`
}

// AttributePolicy selects which attributes of an interactive element are projected.
type AttributePolicy struct {
	all   bool
	names map[string]bool
}

var (
	// NoAttributes projects no attributes.
	NoAttributes = AttributePolicy{}

	// AllAttributes projects every captured attribute.
	AllAttributes = AttributePolicy{all: true}
)

// IncludeAttributes projects only the named attributes.
func IncludeAttributes(names ...string) AttributePolicy {
	p := AttributePolicy{names: make(map[string]bool, len(names))}
	for _, n := range names {
		p.names[n] = true
	}
	return p
}

// Filter applies the policy, then drops attributes that merely repeat the tag name.
func (p AttributePolicy) Filter(attrs map[string]string, tagName string) map[string]string {
	out := make(map[string]string)
	for k, v := range attrs {
		if !p.all && !p.names[k] {
			continue
		}
		if v == tagName {
			continue
		}
		out[k] = v
	}
	return out
}

// ClickableElementsToString projects the subtree of e. Interactive elements
// carry their owned text; text under an interactive ancestor is folded into
// that ancestor and not repeated.
func (e *ElementNode) ClickableElementsToString(policy AttributePolicy) (*Output, error) {
	if e == nil {
		return nil, ErrNoClickableElements
	}
	out := project(e, policy)
	if out == nil {
		return nil, ErrNoClickableElements
	}
	return out, nil
}

func project(n Node, policy AttributePolicy) *Output {
	switch v := n.(type) {
	case *ElementNode:
		out := &Output{Type: TypeElement, TagName: v.TagName}
		if v.HighlightIndex != nil {
			idx := *v.HighlightIndex
			out.HighlightIndex = &idx
			out.Attributes = policy.Filter(v.Attributes, v.TagName)
			out.Text = v.GetAllTextTillNextClickableElement(-1)
		}
		for _, child := range v.Children {
			if c := project(child, policy); c != nil {
				out.Children = append(out.Children, c)
			}
		}
		return out
	case *TextNode:
		if !v.HasParentWithHighlightIndex() && v.IsVisible {
			return &Output{Type: TypeText, Text: v.Text}
		}
	}
	return nil
}

// Layout is the flat list of interactive elements handed to the agent.
type Layout struct {
	SnapshotID       string    `json:"snapshotId,omitempty"`
	Highlightable    []*Output `json:"highlightable"`
	UniqueAttributes []string  `json:"uniqueAttributes,omitempty"`
}

// NewLayout projects every selector map entry with all attributes and without
// children, ordered by highlight index.
func NewLayout(m SelectorMap) *Layout {
	l := &Layout{Highlightable: make([]*Output, 0, len(m))}
	for _, idx := range m.Indices() {
		out, err := m[idx].ClickableElementsToString(AllAttributes)
		if err != nil {
			continue
		}
		out.Children = nil
		l.Highlightable = append(l.Highlightable, out)
	}
	return l
}

// WithUniqueAttributes records the sorted set of attribute names across all entries.
func (l *Layout) WithUniqueAttributes() *Layout {
	seen := make(map[string]bool)
	for _, e := range l.Highlightable {
		if e.Type != TypeElement {
			continue
		}
		for k := range e.Attributes {
			seen[k] = true
		}
	}
	l.UniqueAttributes = make([]string, 0, len(seen))
	for k := range seen {
		l.UniqueAttributes = append(l.UniqueAttributes, k)
	}
	sort.Strings(l.UniqueAttributes)
	return l
}

// String renders the layout as one line per element, the way it is fed to a model.
func (l *Layout) String() string {
	var b strings.Builder
	for _, e := range l.Highlightable {
		if e.HighlightIndex == nil {
			continue
		}
		b.WriteString("[")
		b.WriteString(strconv.Itoa(*e.HighlightIndex))
		b.WriteString("]<")
		b.WriteString(e.TagName)
		for _, k := range sortedKeys(e.Attributes) {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=\"")
			b.WriteString(e.Attributes[k])
			b.WriteString("\"")
		}
		b.WriteString(">")
		b.WriteString(strings.ReplaceAll(e.Text, "\n", " "))
		b.WriteString("</")
		b.WriteString(e.TagName)
		b.WriteString(">\n")
	}
	return b.String()
}
