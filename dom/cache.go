package dom

type rectEntry struct {
	rect Rect
	err  error
}

type styleEntry struct {
	style Style
	err   error
}

type propsEntry struct {
	props Properties
	err   error
}

// geometryCache memoizes layout and style reads for one walk. Entries are keyed
// by node identity and the cache is discarded with the walk.
type geometryCache struct {
	page   Page
	rects  map[LiveNode]rectEntry
	styles map[LiveNode]styleEntry
	props  map[LiveNode]propsEntry
}

func newGeometryCache(page Page) *geometryCache {
	return &geometryCache{
		page:   page,
		rects:  make(map[LiveNode]rectEntry),
		styles: make(map[LiveNode]styleEntry),
		props:  make(map[LiveNode]propsEntry),
	}
}

// BoundingRect returns the cached bounding rect of n.
func (c *geometryCache) BoundingRect(n LiveNode) (Rect, error) {
	if e, ok := c.rects[n]; ok {
		return e.rect, e.err
	}
	r, err := c.page.BoundingRect(n)
	c.rects[n] = rectEntry{rect: r, err: err}
	return r, err
}

// ComputedStyle returns the cached computed style of n.
func (c *geometryCache) ComputedStyle(n LiveNode) (Style, error) {
	if e, ok := c.styles[n]; ok {
		return e.style, e.err
	}
	s, err := c.page.ComputedStyle(n)
	c.styles[n] = styleEntry{style: s, err: err}
	return s, err
}

// Properties returns the cached live properties of n.
func (c *geometryCache) Properties(n LiveNode) (Properties, error) {
	if e, ok := c.props[n]; ok {
		return e.props, e.err
	}
	p, err := c.page.Properties(n)
	c.props[n] = propsEntry{props: p, err: err}
	return p, err
}

func (c *geometryCache) len() int {
	return len(c.rects) + len(c.styles) + len(c.props)
}
