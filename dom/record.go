// Package dom extracts a point-in-time snapshot of a rendered document, classifies
// its elements and rebuilds them into a navigable tree for language models.
package dom

// Record types.
const (
	TypeElement = "element"
	TypeText    = "text"
)

// NodeRecord is one flat entry of a Snapshot. Element records reference their
// children by id so the tree can be rebuilt in a separate pass.
type NodeRecord struct {
	Type string `json:"type"`

	// Text records
	Text string `json:"text,omitempty"`

	// Element records
	TagName        string            `json:"tagName,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	XPath          string            `json:"xpath,omitempty"`
	Hosts          []string          `json:"hosts,omitempty"`
	Children       []string          `json:"children,omitempty"`
	IsTopElement   bool              `json:"isTopElement,omitempty"`
	IsInteractive  bool              `json:"isInteractive,omitempty"`
	IsInViewport   bool              `json:"isInViewport,omitempty"`
	HighlightIndex *int              `json:"highlightIndex,omitempty"`
	ShadowRoot     bool              `json:"shadowRoot,omitempty"`

	IsVisible bool `json:"isVisible"`
}

// IsText reports whether the record describes a text node.
func (r *NodeRecord) IsText() bool {
	return r.Type == TypeText
}

// Snapshot is the flat output of one tree walk.
type Snapshot struct {
	RootID string                 `json:"rootId"`
	Map    map[string]*NodeRecord `json:"map"`
}

// InteractiveCount returns the number of records carrying a highlight index.
func (s *Snapshot) InteractiveCount() int {
	n := 0
	for _, r := range s.Map {
		if r.HighlightIndex != nil {
			n++
		}
	}
	return n
}
