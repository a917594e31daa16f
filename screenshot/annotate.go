// Package screenshot renders highlight overlays onto captured screenshots.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/anxuanzi/bua-teacher/dom"
)

// AnnotationConfig configures how annotations are drawn.
type AnnotationConfig struct {
	// BorderWidth is the width of bounding box borders in CSS pixels.
	BorderWidth float64

	// ShowLabels draws the index label of every box.
	ShowLabels bool

	// Fill paints the translucent background inside each box.
	Fill bool

	// Scale converts CSS pixels to image pixels, the device pixel ratio of
	// the capture. Zero means 1.
	Scale float64
}

// DefaultAnnotationConfig matches the in-page overlay.
func DefaultAnnotationConfig() AnnotationConfig {
	return AnnotationConfig{
		BorderWidth: dom.BorderWidth,
		ShowLabels:  true,
		Fill:        true,
		Scale:       1,
	}
}

// Annotate draws a box and index label for each target on a PNG or JPEG
// screenshot and re-encodes it in the same format.
func Annotate(imgData []byte, targets []dom.HighlightTarget, cfg AnnotationConfig) ([]byte, error) {
	if len(targets) == 0 {
		return imgData, nil
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for annotation: %w", err)
	}

	dc := Render(img, targets, cfg)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dc.Image())
	default:
		err = jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}

// Render draws the targets over img and returns the drawing context.
func Render(img image.Image, targets []dom.HighlightTarget, cfg AnnotationConfig) *gg.Context {
	scale := cfg.Scale
	if scale <= 0 {
		scale = 1
	}

	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)
	dc.Scale(scale, scale)

	for _, t := range targets {
		r := t.Rect
		if r.IsEmpty() {
			continue
		}

		if cfg.Fill {
			dc.SetHexColor(dom.BackgroundFor(t.Index))
			dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
			dc.Fill()
		}

		dc.SetHexColor(dom.ColorFor(t.Index))
		dc.SetLineWidth(cfg.BorderWidth)
		dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
		dc.Stroke()

		if cfg.ShowLabels {
			drawLabel(dc, t)
		}
	}
	return dc
}

// drawLabel fills the label box in the target color and centers the index in it.
func drawLabel(dc *gg.Context, t dom.HighlightTarget) {
	lb := dom.LabelBox(t.Rect)
	dc.SetHexColor(dom.ColorFor(t.Index))
	dc.DrawRectangle(lb.X, lb.Y, lb.Width, lb.Height)
	dc.Fill()

	x, y := lb.Center()
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(strconv.Itoa(t.Index), x, y, 0.5, 0.35)
}

// Annotator is a dom.Highlighter that records targets for Render instead of
// drawing into the page. Screenshots taken afterwards carry no overlay.
type Annotator struct {
	cfg AnnotationConfig

	mu      sync.Mutex
	targets []dom.HighlightTarget
}

var _ dom.Highlighter = (*Annotator)(nil)

// NewAnnotator creates an Annotator.
func NewAnnotator(cfg AnnotationConfig) *Annotator {
	return &Annotator{cfg: cfg}
}

// Highlight records one target.
func (a *Annotator) Highlight(t dom.HighlightTarget) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.targets = append(a.targets, t)
	return nil
}

// Clear forgets every recorded target.
func (a *Annotator) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.targets = nil
	return nil
}

// Targets returns the recorded targets in draw order.
func (a *Annotator) Targets() []dom.HighlightTarget {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]dom.HighlightTarget(nil), a.targets...)
}

// Annotate draws the recorded targets on a screenshot.
func (a *Annotator) Annotate(imgData []byte) ([]byte, error) {
	return Annotate(imgData, a.Targets(), a.cfg)
}
