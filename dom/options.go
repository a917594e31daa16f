package dom

// OverlayContainerID is the id of the highlight overlay container. The walker skips it.
const OverlayContainerID = "playwright-highlight-container"

// DefaultOptOutClass marks subtrees that must never be captured.
const DefaultOptOutClass = "theia-nohighlight"

// Options configures one extraction.
type Options struct {
	// DoHighlightElements draws overlays for interactive elements.
	DoHighlightElements bool

	// FocusHighlightIndex restricts overlays to a single index when >= 0.
	FocusHighlightIndex int

	// ViewportExpansion inflates the viewport by this many pixels. -1 disables
	// viewport filtering entirely.
	ViewportExpansion int

	// OptOutClasses reject an element and its subtree.
	OptOutClasses []string

	// ExcludeIDs reject elements by id, as if they carried an opt-out class.
	ExcludeIDs []string
}

// DefaultOptions returns the defaults of a plain extraction call.
func DefaultOptions() Options {
	return Options{
		DoHighlightElements: true,
		FocusHighlightIndex: -1,
		ViewportExpansion:   0,
		OptOutClasses:       []string{DefaultOptOutClass},
	}
}

// LayoutOptions returns the options used by the get layout tool.
func LayoutOptions() Options {
	opts := DefaultOptions()
	opts.DoHighlightElements = false
	return opts
}

func (o Options) shouldDraw(index int) bool {
	if !o.DoHighlightElements {
		return false
	}
	return o.FocusHighlightIndex < 0 || o.FocusHighlightIndex == index
}
