package dom

import (
	"slices"
	"strconv"
	"strings"
)

// XPath builds the structural locator of an element: its ancestor chain with
// sibling indices, stopping at the top of its document or shadow root. The
// result has no leading slash and resolves relative to the document node.
func XPath(n LiveNode) string {
	var segments []string
	for cur := n; cur != nil && cur.Kind() == KindElement; cur = cur.ParentElement() {
		segments = append(segments, segment(cur))
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, "/")
}

func segment(n LiveNode) string {
	tag := n.TagName()
	index := 0
	for sib := n.PreviousSibling(); sib != nil; sib = sib.PreviousSibling() {
		if sib.Kind() == KindElement && sib.TagName() == tag {
			index++
		}
	}
	if index == 0 {
		return tag
	}
	return tag + "[" + strconv.Itoa(index+1) + "]"
}

// HostChain returns the locators of the frame elements and shadow hosts that
// enclose n, outermost first. It is empty for nodes of the top document.
func HostChain(n LiveNode) []string {
	var chain []string
	for cur := n; cur != nil; {
		root := cur.RootNode()
		if root == nil {
			break
		}
		host := root.Host()
		if host == nil {
			break
		}
		chain = append(chain, XPath(host))
		cur = host
	}
	slices.Reverse(chain)
	return chain
}

// Find evaluates a locator built by XPath against the children of scope. It
// returns nil when a step has no match.
func Find(scope Scope, xpath string) LiveNode {
	if scope == nil || xpath == "" {
		return nil
	}
	children := scope.ChildNodes()
	var match LiveNode
	for _, step := range strings.Split(xpath, "/") {
		tag, nth := parseStep(step)
		match = nil
		seen := 0
		for _, c := range children {
			if c.Kind() != KindElement || c.TagName() != tag {
				continue
			}
			seen++
			if seen == nth {
				match = c
				break
			}
		}
		if match == nil {
			return nil
		}
		children = match.ChildNodes()
	}
	return match
}

// FindIn follows hosts from top, entering each frame document or shadow root,
// and evaluates xpath in the innermost scope. A host that no longer encloses a
// scope yields nil.
func FindIn(top Scope, hosts []string, xpath string) (LiveNode, error) {
	scope, err := enterHosts(top, hosts)
	if err != nil || scope == nil {
		return nil, err
	}
	return Find(scope, xpath), nil
}

// enterHosts walks hosts from top and returns the innermost scope, or nil.
func enterHosts(top Scope, hosts []string) (Scope, error) {
	scope := top
	for _, h := range hosts {
		host := Find(scope, h)
		if host == nil {
			return nil, nil
		}
		if host.TagName() == "iframe" || host.TagName() == "frame" {
			doc, err := host.ContentDocument()
			if err != nil {
				return nil, err
			}
			scope = doc
		} else {
			scope = host.ShadowRoot()
		}
		if scope == nil {
			return nil, nil
		}
	}
	return scope, nil
}

func parseStep(step string) (string, int) {
	open := strings.IndexByte(step, '[')
	if open < 0 || !strings.HasSuffix(step, "]") {
		return step, 1
	}
	nth, err := strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil || nth < 1 {
		return step, 1
	}
	return step[:open], nth
}
