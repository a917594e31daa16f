package dom

import "math"

// Palette is the overlay color cycle, indexed by highlight index.
var Palette = []string{
	"#FF0000", "#00FF00", "#0000FF", "#FFA500", "#800080", "#008080",
	"#FF69B4", "#4B0082", "#FF4500", "#2E8B57", "#DC143C", "#4682B4",
}

// Overlay label geometry in CSS pixels.
const (
	LabelWidth  = 20
	LabelHeight = 16
	BorderWidth = 2
)

// ColorFor returns the palette color of a highlight index.
func ColorFor(index int) string {
	if index < 0 {
		index = -index
	}
	return Palette[index%len(Palette)]
}

// BackgroundFor returns the translucent fill matching ColorFor.
func BackgroundFor(index int) string {
	return ColorFor(index) + "1A"
}

// LabelBox places the numbered label at the top-right corner inside the box,
// or above it when the box is too small to hold the label.
func LabelBox(r Rect) Rect {
	top := r.Top() + 2
	left := r.Left() + r.Width - LabelWidth - 2
	if r.Width < LabelWidth+4 || r.Height < LabelHeight+4 {
		top = r.Top() - LabelHeight - 2
		left = r.Left() + r.Width - LabelWidth
	}
	return Rect{X: left, Y: top, Width: LabelWidth, Height: LabelHeight}
}

// LabelFontSize scales the label text with the box height, between 8 and 12 px.
func LabelFontSize(r Rect) float64 {
	return math.Min(12, math.Max(8, r.Height/2))
}

// HighlightTarget is one element to outline.
type HighlightTarget struct {
	Node    LiveNode
	Index   int
	TagName string

	// Rect is relative to the top-level viewport, with the frame offset applied.
	Rect Rect

	// Frame is the containing frame element, nil in the top document.
	Frame LiveNode
}

// Highlighter draws numbered outlines over interactive elements.
type Highlighter interface {
	Highlight(t HighlightTarget) error

	// Clear removes every outline drawn so far.
	Clear() error
}

type nopHighlighter struct{}

func (nopHighlighter) Highlight(HighlightTarget) error { return nil }
func (nopHighlighter) Clear() error                    { return nil }
