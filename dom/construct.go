package dom

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// SelectorMap maps highlight indices to their elements for one snapshot.
type SelectorMap map[int]*ElementNode

// Indices returns the highlight indices in ascending order.
func (m SelectorMap) Indices() []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// ConstructDomTree rebuilds the element tree and the selector map from a flat
// snapshot. Nodes are built first and linked in a second pass, so the order in
// which the map is visited does not matter.
func ConstructDomTree(s *Snapshot) (*ElementNode, SelectorMap, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}

	nodes := make(map[string]Node, len(s.Map))
	selectorMap := make(SelectorMap)

	for id, r := range s.Map {
		if r == nil {
			return nil, nil, fmt.Errorf("%w: empty record %s", ErrMalformedSnapshot, id)
		}
		if r.IsText() {
			nodes[id] = &TextNode{Text: r.Text, IsVisible: r.IsVisible}
			continue
		}

		// The tree owns its values; the snapshot stays as captured.
		el := &ElementNode{
			TagName:       r.TagName,
			XPath:         r.XPath,
			Hosts:         slices.Clone(r.Hosts),
			Attributes:    maps.Clone(r.Attributes),
			IsVisible:     r.IsVisible,
			IsInteractive: r.IsInteractive,
			IsTopElement:  r.IsTopElement,
			IsInViewport:  r.IsInViewport,
			ShadowRoot:    r.ShadowRoot,
		}
		if el.Attributes == nil {
			el.Attributes = map[string]string{}
		}
		if r.HighlightIndex != nil {
			index := *r.HighlightIndex
			el.HighlightIndex = &index
		}
		if r.HighlightIndex != nil {
			if prev, dup := selectorMap[*r.HighlightIndex]; dup {
				return nil, nil, fmt.Errorf("%w: highlight index %d used by %s and %s",
					ErrMalformedSnapshot, *r.HighlightIndex, prev.XPath, r.XPath)
			}
			selectorMap[*r.HighlightIndex] = el
		}
		nodes[id] = el
	}

	for id, r := range s.Map {
		if r.IsText() {
			continue
		}
		parent := nodes[id].(*ElementNode)
		parent.Children = make([]Node, 0, len(r.Children))
		for _, childID := range r.Children {
			child, ok := nodes[childID]
			if !ok {
				return nil, nil, fmt.Errorf("%w: record %s references missing child %s", ErrMalformedSnapshot, id, childID)
			}
			if child.ParentNode() != nil {
				return nil, nil, fmt.Errorf("%w: child %s has more than one parent", ErrMalformedSnapshot, childID)
			}
			child.setParent(parent)
			parent.Children = append(parent.Children, child)
		}
	}

	root, ok := nodes[s.RootID].(*ElementNode)
	if !ok {
		return nil, nil, fmt.Errorf("%w: root %q is missing or not an element", ErrMalformedSnapshot, s.RootID)
	}
	if root.Parent != nil {
		return nil, nil, fmt.Errorf("%w: root %q has a parent", ErrMalformedSnapshot, s.RootID)
	}
	return root, selectorMap, nil
}
