package dom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPage struct {
	Page
	rectCalls, styleCalls, propCalls int
	err                              error
}

func (p *countingPage) BoundingRect(LiveNode) (Rect, error) {
	p.rectCalls++
	return Rect{Width: 10, Height: 10}, p.err
}

func (p *countingPage) ComputedStyle(LiveNode) (Style, error) {
	p.styleCalls++
	return Style{Display: "block"}, p.err
}

func (p *countingPage) Properties(LiveNode) (Properties, error) {
	p.propCalls++
	return Properties{OffsetWidth: 10}, p.err
}

type stubNode struct{ LiveNode }

func TestGeometryCacheMemoizes(t *testing.T) {
	page := &countingPage{}
	c := newGeometryCache(page)
	a, b := &stubNode{}, &stubNode{}

	for i := 0; i < 3; i++ {
		_, err := c.BoundingRect(a)
		require.NoError(t, err)
		_, err = c.ComputedStyle(a)
		require.NoError(t, err)
		_, err = c.Properties(a)
		require.NoError(t, err)
	}
	_, _ = c.BoundingRect(b)

	assert.Equal(t, 2, page.rectCalls)
	assert.Equal(t, 1, page.styleCalls)
	assert.Equal(t, 1, page.propCalls)
	assert.Equal(t, 4, c.len())
}

func TestGeometryCacheKeepsErrors(t *testing.T) {
	page := &countingPage{err: errors.New("detached")}
	c := newGeometryCache(page)
	n := &stubNode{}

	_, err := c.BoundingRect(n)
	assert.Error(t, err)
	_, err = c.BoundingRect(n)
	assert.Error(t, err)
	assert.Equal(t, 1, page.rectCalls)
}

func TestShouldDraw(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.shouldDraw(0))
	assert.True(t, opts.shouldDraw(5))

	opts.FocusHighlightIndex = 2
	assert.False(t, opts.shouldDraw(1))
	assert.True(t, opts.shouldDraw(2))

	assert.False(t, LayoutOptions().shouldDraw(0))
}

func TestRectInViewport(t *testing.T) {
	c := &Classifier{viewport: Viewport{Width: 100, Height: 100}}

	assert.True(t, c.rectInViewport(Rect{X: 10, Y: 10, Width: 5, Height: 5}, 0))
	assert.False(t, c.rectInViewport(Rect{X: 10, Y: 150, Width: 5, Height: 5}, 0))
	assert.True(t, c.rectInViewport(Rect{X: 10, Y: 150, Width: 5, Height: 5}, 50))
	assert.False(t, c.rectInViewport(Rect{X: -30, Y: 10, Width: 5, Height: 5}, 0))
	assert.True(t, c.rectInViewport(Rect{X: 10, Y: 9000, Width: 5, Height: 5}, -1))
}
