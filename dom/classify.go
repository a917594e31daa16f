package dom

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

// alwaysAcceptTags are structural containers that are always captured.
var alwaysAcceptTags = map[string]bool{
	"body": true, "div": true, "main": true, "article": true,
	"section": true, "nav": true, "header": true, "footer": true,
}

// leafDenyTags never contribute to the layout.
var leafDenyTags = map[string]bool{
	"svg": true, "script": true, "style": true, "link": true,
	"meta": true, "noscript": true, "template": true,
}

// interactiveTags are interactive by tag alone.
var interactiveTags = map[string]bool{
	"a": true, "button": true, "details": true, "embed": true,
	"input": true, "menu": true, "menuitem": true, "object": true,
	"select": true, "textarea": true, "canvas": true, "summary": true,
	"dialog": true, "banner": true,
}

// interactiveRoles from ARIA and common widget toolkits.
var interactiveRoles = map[string]bool{
	"button-icon": true, "dialog": true, "button-text-icon-only": true, "treeitem": true,
	"alert": true, "grid": true, "progressbar": true, "radio": true,
	"checkbox": true, "menuitem": true, "option": true, "switch": true,
	"dropdown": true, "scrollbar": true, "combobox": true, "a-button-text": true,
	"button": true, "region": true, "textbox": true, "tabpanel": true,
	"tab": true, "click": true, "button-text": true, "spinbutton": true,
	"a-button-inner": true, "link": true, "menu": true, "slider": true,
	"listbox": true, "a-dropdown-button": true, "button-icon-only": true, "searchbox": true,
	"menuitemradio": true, "tooltip": true, "tree": true, "menuitemcheckbox": true,
}

// markerClasses flag IDE chrome that is clickable without any semantic markup.
var (
	highlightMarkerClasses = []string{"theia-highlight", "lm-TabBar-tab"}
	navMarkerClasses       = []string{"address-input__container__input", "nav-btn", "pull-left"}
)

var clickEventTypes = []string{"click", "mousedown", "mouseup", "touchstart", "touchend"}

// fallbackHandlerTypes are checked as on<type> properties when listeners cannot be listed.
var fallbackHandlerTypes = []string{
	"click", "mousedown", "mouseup", "touchstart", "touchend",
	"keydown", "keyup", "focus", "blur",
}

var ariaStateAttrs = []string{"aria-expanded", "aria-pressed", "aria-selected", "aria-checked"}

// Classifier answers the visibility and interactivity questions of one walk.
// It shares the walk's geometry cache.
type Classifier struct {
	page     Page
	cache    *geometryCache
	viewport Viewport
	opts     Options
	optOut   map[string]bool
	exclude  map[string]bool
	log      *zap.Logger
}

// NewClassifier creates a classifier over page with a fresh cache.
func NewClassifier(page Page, opts Options, logger *zap.Logger) *Classifier {
	return newClassifier(page, newGeometryCache(page), opts, logger)
}

func newClassifier(page Page, cache *geometryCache, opts Options, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{
		page:     page,
		cache:    cache,
		viewport: page.Viewport(),
		opts:     opts,
		optOut:   make(map[string]bool, len(opts.OptOutClasses)),
		exclude:  make(map[string]bool, len(opts.ExcludeIDs)),
		log:      logger,
	}
	for _, cls := range opts.OptOutClasses {
		c.optOut[cls] = true
	}
	for _, id := range opts.ExcludeIDs {
		c.exclude[id] = true
	}
	return c
}

// IsElementAccepted reports whether the element belongs in the tree at all.
func (c *Classifier) IsElementAccepted(n LiveNode) bool {
	if n == nil || n.Kind() != KindElement {
		return false
	}
	tag := n.TagName()
	if tag == "" {
		return false
	}
	for _, cls := range ClassList(n) {
		if c.optOut[cls] {
			return false
		}
	}
	if id, ok := n.Attr("id"); ok && c.exclude[id] {
		return false
	}
	if alwaysAcceptTags[tag] {
		return true
	}
	return !leafDenyTags[tag]
}

// IsElementVisible reports whether the element renders a box. Read failures
// count as invisible.
func (c *Classifier) IsElementVisible(n LiveNode) bool {
	props, err := c.cache.Properties(n)
	if err != nil {
		c.log.Debug("properties unavailable", zap.String("tag", n.TagName()), zap.Error(err))
		return false
	}
	style, err := c.cache.ComputedStyle(n)
	if err != nil {
		c.log.Debug("computed style unavailable", zap.String("tag", n.TagName()), zap.Error(err))
		return false
	}
	return props.OffsetWidth > 0 &&
		props.OffsetHeight > 0 &&
		style.Visibility != "hidden" &&
		style.Display != "none"
}

// IsTextNodeVisible reports whether a text node renders inside the expanded
// viewport under a visible parent.
func (c *Classifier) IsTextNodeVisible(n LiveNode) bool {
	rect, err := c.page.TextRect(n)
	if err != nil || rect.IsEmpty() {
		return false
	}
	if !c.rectInViewport(rect, c.opts.ViewportExpansion) {
		return false
	}
	parent := n.ParentElement()
	if parent == nil {
		return false
	}
	style, err := c.cache.ComputedStyle(parent)
	if err != nil {
		return false
	}
	return style.Display != "none" && style.Visibility != "hidden" && style.Opacity != "0"
}

// IsInExpandedViewport reports whether the element's box intersects the
// viewport inflated by expansion pixels. An expansion of -1 always passes.
func (c *Classifier) IsInExpandedViewport(n LiveNode, expansion int) bool {
	if expansion == -1 {
		return true
	}
	rect, err := c.cache.BoundingRect(n)
	if err != nil {
		return false
	}
	return c.rectInViewport(rect, expansion)
}

func (c *Classifier) rectInViewport(r Rect, expansion int) bool {
	if expansion == -1 {
		return true
	}
	e := float64(expansion)
	return !(r.Bottom() < -e ||
		r.Top() > c.viewport.Height+e ||
		r.Right() < -e ||
		r.Left() > c.viewport.Width+e)
}

// IsTopElement reports whether the element is not occluded at its center
// within its own document or shadow root. Elements outside the viewport and
// elements of frame documents are always top. Hit-test failures fail open.
func (c *Classifier) IsTopElement(n LiveNode) bool {
	rect, err := c.cache.BoundingRect(n)
	if err != nil {
		return false
	}

	inViewport := rect.Left() < c.viewport.Width &&
		rect.Right() > 0 &&
		rect.Top() < c.viewport.Height &&
		rect.Bottom() > 0
	if !inViewport {
		return true
	}

	if n.OwnerDocument() != c.page.Document() {
		return true
	}

	root := n.RootNode()
	if root == nil {
		return true
	}
	x, y := rect.Center()
	hit, err := root.ElementFromPoint(x, y)
	if err != nil {
		c.log.Debug("hit test failed, assuming top", zap.String("tag", n.TagName()), zap.Error(err))
		return true
	}
	if hit == nil {
		return false
	}

	stop := root.Host()
	for cur := hit; cur != nil && cur != stop; cur = cur.ParentElement() {
		if cur == n {
			return true
		}
	}
	return false
}

// IsInteractiveElement reports whether the element is something a user can act
// on. Attribute checks run before listener introspection.
func (c *Classifier) IsInteractiveElement(n LiveNode) bool {
	if n == nil || n.Kind() != KindElement {
		return false
	}
	tag := n.TagName()

	for _, cls := range highlightMarkerClasses {
		if HasClass(n, cls) {
			return true
		}
	}

	if HasClass(n, "dropdown-toggle") ||
		attrIs(n, "data-toggle", "dropdown") ||
		attrIs(n, "aria-haspopup", "true") {
		return true
	}

	if c.hasInteractiveRole(n, tag) {
		return true
	}

	props, propsErr := c.cache.Properties(n)
	if propsErr != nil {
		c.log.Debug("properties unavailable", zap.String("tag", tag), zap.Error(propsErr))
	}

	if props.HasOnClick ||
		hasAttr(n, "onclick") ||
		hasAttr(n, "ng-click") ||
		hasAttr(n, "@click") ||
		hasAttr(n, "v-on:click") {
		return true
	}

	if c.hasClickListeners(n, props) {
		return true
	}

	for _, a := range ariaStateAttrs {
		if hasAttr(n, a) {
			return true
		}
	}

	if isContentEditable(n, props) {
		return true
	}

	return props.Draggable || attrIs(n, "draggable", "true")
}

func (c *Classifier) hasInteractiveRole(n LiveNode, tag string) bool {
	for _, cls := range navMarkerClasses {
		if HasClass(n, cls) {
			return true
		}
	}
	if interactiveTags[tag] {
		return true
	}
	if role, ok := n.Attr("role"); ok && interactiveRoles[role] {
		return true
	}
	if role, ok := n.Attr("aria-role"); ok && interactiveRoles[role] {
		return true
	}
	if tabIndex, ok := n.Attr("tabindex"); ok && tabIndex != "-1" {
		if parent := n.ParentElement(); parent == nil || parent.TagName() != "body" {
			return true
		}
	}
	return attrIs(n, "data-action", "a-dropdown-select") || attrIs(n, "data-action", "a-dropdown-button")
}

func (c *Classifier) hasClickListeners(n LiveNode, props Properties) bool {
	types, err := c.page.EventListeners(n)
	if err != nil {
		if !errors.Is(err, ErrListenersUnavailable) {
			c.log.Debug("listener introspection failed", zap.String("tag", n.TagName()), zap.Error(err))
		}
		types = types[:0]
		for _, t := range fallbackHandlerTypes {
			if hasHandler(props, t) {
				types = append(types, t)
			}
		}
	}
	for _, t := range types {
		for _, want := range clickEventTypes {
			if t == want {
				return true
			}
		}
	}
	return false
}

// isContentEditable covers native editability and rich text editor frames.
func isContentEditable(n LiveNode, props Properties) bool {
	if attrIs(n, "contenteditable", "true") || props.ContentEditable {
		return true
	}
	if attrIs(n, "id", "tinymce") || HasClass(n, "mce-content-body") {
		return true
	}
	if n.TagName() == "body" {
		if v, ok := n.Attr("data-id"); ok && strings.HasPrefix(v, "mce_") {
			return true
		}
	}
	return false
}
