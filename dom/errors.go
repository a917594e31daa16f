package dom

import "errors"

var (
	// ErrCrossOrigin is returned by LiveNode.ContentDocument when a frame's document cannot be reached.
	ErrCrossOrigin = errors.New("frame document is not accessible")

	// ErrHitTest reports that a scope could not answer an element-from-point query.
	ErrHitTest = errors.New("hit test failed")

	// ErrListenersUnavailable means listener introspection is not supported by the page.
	// The classifier falls back to inline handler properties.
	ErrListenersUnavailable = errors.New("event listener introspection unavailable")

	// ErrNoSnapshot is returned when a lookup happens before any layout was extracted.
	ErrNoSnapshot = errors.New("please run the get layout tool first")

	// ErrStaleSelector is returned when a highlight index or its locator no longer
	// matches the live document. The layout has to be extracted again.
	ErrStaleSelector = errors.New("stale selector")

	// ErrMalformedSnapshot is returned when a snapshot cannot be rebuilt into a tree.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrNoClickableElements is returned when there is nothing to project.
	ErrNoClickableElements = errors.New("no clickable elements found")
)
