package dom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// walker holds the state of a single tree walk. A new walker is created for
// every BuildDomTree call so nothing leaks between snapshots.
type walker struct {
	*Classifier

	body      LiveNode
	records   map[string]*NodeRecord
	nextID    int
	nextIndex int
	pending   []HighlightTarget
}

// BuildDomTree walks the page from its body and returns the flat snapshot.
// Overlays left by a previous walk are cleared first; new ones are drawn after
// the walk, in index order.
func BuildDomTree(page Page, opts Options, h Highlighter, logger *zap.Logger) (*Snapshot, error) {
	if page == nil {
		return nil, errors.New("failed to build dom tree: nil page")
	}
	if h == nil {
		h = nopHighlighter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := h.Clear(); err != nil {
		logger.Warn("failed to clear highlight overlay", zap.Error(err))
	}

	body := page.Body()
	if body == nil {
		return nil, fmt.Errorf("failed to build dom tree: %w: document has no body", ErrMalformedSnapshot)
	}

	w := &walker{
		Classifier: NewClassifier(page, opts, logger),
		body:       body,
		records:    make(map[string]*NodeRecord),
	}

	rootID := w.walk(body, nil)

	for _, t := range w.pending {
		if !opts.shouldDraw(t.Index) {
			continue
		}
		if err := h.Highlight(t); err != nil {
			logger.Debug("failed to highlight element", zap.Int("index", t.Index), zap.Error(err))
		}
	}

	return &Snapshot{RootID: rootID, Map: w.records}, nil
}

func (w *walker) store(r *NodeRecord) string {
	id := strconv.Itoa(w.nextID)
	w.nextID++
	w.records[id] = r
	return id
}

// walk returns the id of the record emitted for n, or "" when n is skipped.
func (w *walker) walk(n LiveNode, frame LiveNode) string {
	if n == nil {
		return ""
	}
	if n.Kind() == KindElement && attrIs(n, "id", OverlayContainerID) {
		return ""
	}
	if n == w.body {
		return w.walkBody(n, frame)
	}

	switch n.Kind() {
	case KindText:
		return w.walkText(n)
	case KindElement:
		return w.walkElement(n, frame)
	default:
		return ""
	}
}

// walkBody always emits the body, whatever the filters say.
func (w *walker) walkBody(n LiveNode, frame LiveNode) string {
	r := &NodeRecord{
		Type:       TypeElement,
		TagName:    "body",
		XPath:      XPath(n),
		Attributes: captureAttributes(n),
		IsVisible:  w.IsElementVisible(n),
	}
	r.Children = w.walkAll(n.ChildNodes(), frame)
	return w.store(r)
}

func (w *walker) walkText(n LiveNode) string {
	text := strings.TrimSpace(n.Text())
	if text == "" {
		return ""
	}
	parent := n.ParentElement()
	if parent == nil || parent.TagName() == "script" {
		return ""
	}
	return w.store(&NodeRecord{
		Type:      TypeText,
		Text:      text,
		IsVisible: w.IsTextNodeVisible(n),
	})
}

func (w *walker) walkElement(n LiveNode, frame LiveNode) string {
	if !w.IsElementAccepted(n) {
		return ""
	}
	if w.opts.ViewportExpansion != -1 && w.prunable(n) {
		return ""
	}

	tag := n.TagName()
	r := &NodeRecord{
		Type:    TypeElement,
		TagName: tag,
		XPath:   XPath(n),
	}

	interactive := w.IsInteractiveElement(n)
	if interactive || tag == "iframe" || tag == "body" {
		r.Attributes = captureAttributes(n)
	}
	if interactive {
		r.Hosts = HostChain(n)
	}

	indexMark := w.nextIndex
	r.IsVisible = w.IsElementVisible(n)
	if r.IsVisible {
		r.IsTopElement = w.IsTopElement(n)
		if r.IsTopElement {
			r.IsInteractive = interactive
			if interactive {
				r.IsInViewport = w.IsInExpandedViewport(n, w.opts.ViewportExpansion)
				index := w.nextIndex
				w.nextIndex++
				r.HighlightIndex = &index
				w.queueHighlight(n, index, frame)
			}
		}
	}

	r.Children = w.walkChildren(n, r, frame)

	if tag == "a" && len(r.Children) == 0 {
		if href, _ := n.Attr("href"); href == "" {
			w.reclaim(indexMark)
			return ""
		}
	}
	return w.store(r)
}

// walkChildren picks exactly one of the frame, editable, shadow host and
// default branches.
func (w *walker) walkChildren(n LiveNode, r *NodeRecord, frame LiveNode) []string {
	switch {
	case r.TagName == "iframe":
		doc, err := n.ContentDocument()
		if err != nil {
			w.log.Debug("skipping inaccessible frame", zap.String("xpath", r.XPath), zap.Error(err))
			return nil
		}
		if doc == nil {
			return nil
		}
		return w.walkAll(doc.ChildNodes(), n)
	case w.isEditableRegion(n):
		return w.walkAll(n.ChildNodes(), frame)
	case n.ShadowRoot() != nil:
		r.ShadowRoot = true
		return w.walkAll(n.ShadowRoot().ChildNodes(), frame)
	default:
		return w.walkAll(n.ChildNodes(), frame)
	}
}

func (w *walker) walkAll(nodes []LiveNode, frame LiveNode) []string {
	var ids []string
	for _, child := range nodes {
		if id := w.walk(child, frame); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (w *walker) isEditableRegion(n LiveNode) bool {
	props, _ := w.cache.Properties(n)
	return isContentEditable(n, props)
}

// prunable reports whether an element without size and without fixed or
// sticky positioning lies wholly outside the expanded viewport. Failed reads
// never prune.
func (w *walker) prunable(n LiveNode) bool {
	rect, err := w.cache.BoundingRect(n)
	if err != nil {
		w.log.Debug("bounding rect unavailable", zap.String("tag", n.TagName()), zap.Error(err))
		return false
	}
	if style, err := w.cache.ComputedStyle(n); err == nil {
		if style.Position == "fixed" || style.Position == "sticky" {
			return false
		}
	}
	if props, err := w.cache.Properties(n); err == nil {
		if props.OffsetWidth > 0 || props.OffsetHeight > 0 {
			return false
		}
	}
	return !w.rectInViewport(rect, w.opts.ViewportExpansion)
}

func (w *walker) queueHighlight(n LiveNode, index int, frame LiveNode) {
	rect, _ := w.cache.BoundingRect(n)
	if frame != nil {
		if fr, err := w.cache.BoundingRect(frame); err == nil {
			rect = rect.Offset(fr.Left(), fr.Top())
		}
	}
	w.pending = append(w.pending, HighlightTarget{
		Node:    n,
		Index:   index,
		TagName: n.TagName(),
		Rect:    rect,
		Frame:   frame,
	})
}

// reclaim drops every index handed out since mark. It is only called for a
// pruned anchor, whose subtree emitted no records, so the sequence stays dense.
func (w *walker) reclaim(mark int) {
	if w.nextIndex == mark {
		return
	}
	w.nextIndex = mark
	kept := w.pending[:0]
	for _, t := range w.pending {
		if t.Index < mark {
			kept = append(kept, t)
		}
	}
	w.pending = kept
}

func captureAttributes(n LiveNode) map[string]string {
	names := n.AttrNames()
	attrs := make(map[string]string, len(names))
	for _, name := range names {
		v, _ := n.Attr(name)
		attrs[name] = v
	}
	return attrs
}
