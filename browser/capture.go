package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anxuanzi/bua-teacher/dom"
)

// collectJS registers every node of the document, its shadow roots and its
// same-origin frames in window.__buaTeacher and returns them as JSON, along
// with the center hit test of each top document element. Other hit tests,
// listener lookups and locator checks refer to nodes by id.
const collectJS = `(gen, handlerTypes) => {
	const reg = { gen, nodes: [], ids: new Map(), scopes: [] };
	window.__buaTeacher = reg;
	const out = { scopes: [], nodes: [], body: -1, viewport: { width: window.innerWidth, height: window.innerHeight } };

	const box = (r) => ({ x: r.x, y: r.y, width: r.width, height: r.height });
	const addScope = (root, host) => {
		const id = reg.scopes.length;
		reg.scopes.push(root);
		out.scopes.push({ id, shadow: typeof ShadowRoot !== 'undefined' && root instanceof ShadowRoot, host: host ? reg.ids.get(host) : -1, children: [] });
		return id;
	};
	const element = (el, rec) => {
		rec.tag = el.tagName.toLowerCase();
		rec.attrs = Array.from(el.attributes, (a) => [a.name, a.value]);
		try { rec.rect = box(el.getBoundingClientRect()); } catch (e) {}
		try {
			const s = el.ownerDocument.defaultView.getComputedStyle(el);
			rec.style = { display: s.display, visibility: s.visibility, opacity: s.opacity, position: s.position };
		} catch (e) {}
		try {
			rec.props = {
				offsetWidth: el.offsetWidth || 0,
				offsetHeight: el.offsetHeight || 0,
				hasOnClick: typeof el.onclick === 'function',
				handlers: handlerTypes.filter((t) => typeof el['on' + t] === 'function'),
				contentEditable: !!el.isContentEditable,
				draggable: !!el.draggable,
			};
		} catch (e) {}
	};
	const text = (t, rec) => {
		rec.text = t.textContent;
		try {
			const range = t.ownerDocument.createRange();
			range.selectNodeContents(t);
			rec.rect = box(range.getBoundingClientRect());
		} catch (e) {}
	};
	const visitAll = (list, parent, scope, doc) => {
		const ids = [];
		let prev = -1;
		for (const c of list) {
			prev = visit(c, parent, prev, scope, doc);
			ids.push(prev);
		}
		return ids;
	};
	const visit = (n, parent, prev, scope, doc) => {
		const id = reg.nodes.length;
		reg.nodes.push(n);
		reg.ids.set(n, id);
		const rec = { id, kind: 0, parent, prev, scope, doc, children: [], shadow: -1, content: -1 };
		out.nodes.push(rec);
		if (n.nodeType === Node.TEXT_NODE) {
			rec.kind = 2;
			text(n, rec);
			return id;
		}
		if (n.nodeType !== Node.ELEMENT_NODE) {
			return id;
		}
		rec.kind = 1;
		element(n, rec);
		if (rec.tag === 'iframe' || rec.tag === 'frame') {
			let cd = null;
			try { cd = n.contentDocument; } catch (e) { rec.content = -2; }
			if (cd) {
				const s = addScope(cd, n);
				rec.content = s;
				out.scopes[s].children = visitAll(cd.childNodes, -1, s, s);
			} else if (rec.content === -1 && n.getAttribute('src')) {
				rec.content = -2;
			}
			return id;
		}
		if (n.shadowRoot) {
			const s = addScope(n.shadowRoot, n);
			rec.shadow = s;
			out.scopes[s].children = visitAll(n.shadowRoot.childNodes, -1, s, doc);
		}
		rec.children = visitAll(n.childNodes, id, scope, doc);
		return id;
	};

	const top = addScope(document, null);
	out.scopes[top].children = visitAll(document.childNodes, -1, top, top);
	if (document.body) {
		out.body = reg.ids.get(document.body);
	}

	// Answer the center hit test of every top document element up front.
	out.hits = [];
	for (const rec of out.nodes) {
		if (rec.kind !== 1 || rec.doc !== top || !rec.rect || !rec.rect.width || !rec.rect.height) continue;
		const x = rec.rect.x + rec.rect.width / 2;
		const y = rec.rect.y + rec.rect.height / 2;
		if (x < 0 || y < 0 || x > out.viewport.width || y > out.viewport.height) continue;
		try {
			const el = reg.scopes[rec.scope].elementFromPoint(x, y);
			const id = !el ? -1 : reg.ids.has(el) ? reg.ids.get(el) : -2;
			out.hits.push([rec.scope, x, y, id]);
		} catch (e) {}
	}
	return JSON.stringify(out);
}`

const hitTestJS = `(gen, scope, x, y) => {
	const reg = window.__buaTeacher;
	if (!reg || reg.gen !== gen) throw new Error('capture registry replaced');
	const el = reg.scopes[scope].elementFromPoint(x, y);
	if (!el) return -1;
	const id = reg.ids.get(el);
	return id === undefined ? -2 : id;
}`

const nodeObjectJS = `(gen, id) => {
	const reg = window.__buaTeacher;
	if (!reg || reg.gen !== gen) throw new Error('capture registry replaced');
	return reg.nodes[id];
}`

const resolveJS = `(gen, hosts, xpath) => {
	let root = document;
	const find = (path) => {
		const doc = root.nodeType === Node.DOCUMENT_NODE ? root : root.ownerDocument;
		return doc.evaluate(path, root, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	};
	for (const path of hosts || []) {
		const host = find(path);
		if (!host) return -1;
		if (host.tagName === 'IFRAME' || host.tagName === 'FRAME') {
			let doc = null;
			try { doc = host.contentDocument; } catch (e) {}
			if (!doc) return -1;
			root = doc;
		} else {
			if (!host.shadowRoot) return -1;
			root = host.shadowRoot;
		}
	}
	const hit = find(xpath);
	if (!hit) return -1;
	const reg = window.__buaTeacher;
	if (!reg || reg.gen !== gen || !reg.ids.has(hit)) return -2;
	return reg.ids.get(hit);
}`

// Sentinel ids of the collector and lookup scripts.
const (
	noNode      = -1
	unknownNode = -2
	crossOrigin = -2
)

// handlerTypes are the on<type> properties reported by the collector.
var handlerTypes = []string{"click", "mousedown", "mouseup", "touchstart", "touchend", "keydown", "keyup", "focus", "blur"}

// evaluator runs page scripts. The rod implementation lives in tab.go.
type evaluator interface {
	evalString(ctx context.Context, js string, args ...any) (string, error)
	evalInt(ctx context.Context, js string, args ...any) (int, error)
	listenerTypes(ctx context.Context, js string, args ...any) ([]string, error)
}

type rawCapture struct {
	Viewport dom.Viewport `json:"viewport"`
	Body     int          `json:"body"`
	Scopes   []rawScope   `json:"scopes"`
	Nodes    []rawNode    `json:"nodes"`

	// Hits holds scope, x, y and the hit node id.
	Hits [][4]float64 `json:"hits"`
}

type rawScope struct {
	ID       int   `json:"id"`
	Shadow   bool  `json:"shadow"`
	Host     int   `json:"host"`
	Children []int `json:"children"`
}

type rawNode struct {
	ID       int             `json:"id"`
	Kind     int             `json:"kind"`
	Tag      string          `json:"tag"`
	Text     string          `json:"text"`
	Attrs    [][2]string     `json:"attrs"`
	Parent   int             `json:"parent"`
	Prev     int             `json:"prev"`
	Children []int           `json:"children"`
	Shadow   int             `json:"shadow"`
	Content  int             `json:"content"`
	Scope    int             `json:"scope"`
	Doc      int             `json:"doc"`
	Rect     *dom.Rect       `json:"rect"`
	Style    *dom.Style      `json:"style"`
	Props    *dom.Properties `json:"props"`
}

// snapshotPage is a dom.Page over one collector run. Geometry and style come
// from the collected JSON; hit tests, listeners and locators go back to the
// live page.
type snapshotPage struct {
	ctx      context.Context
	ev       evaluator
	gen      string
	viewport dom.Viewport
	nodes    []*node
	scopes   []*scope
	body     *node
}

func decodeCapture(ctx context.Context, ev evaluator, gen string, data []byte) (*snapshotPage, error) {
	var raw rawCapture
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("browser: decode capture: %w", err)
	}

	p := &snapshotPage{
		ctx:      ctx,
		ev:       ev,
		gen:      gen,
		viewport: raw.Viewport,
		nodes:    make([]*node, len(raw.Nodes)),
		scopes:   make([]*scope, len(raw.Scopes)),
	}
	for i := range raw.Scopes {
		p.scopes[i] = &scope{page: p, id: i}
	}
	for _, h := range raw.Hits {
		s := p.scopeAt(int(h[0]))
		if s == nil {
			continue
		}
		if s.hits == nil {
			s.hits = make(map[point]int)
		}
		s.hits[point{h[1], h[2]}] = int(h[3])
	}
	for i := range raw.Nodes {
		p.nodes[i] = &node{page: p, id: i}
	}

	for i, rs := range raw.Scopes {
		s := p.scopes[i]
		s.shadow = rs.Shadow
		s.host = p.nodeAt(rs.Host)
		s.children = p.nodeList(rs.Children)
	}
	for i, rn := range raw.Nodes {
		if rn.ID != i {
			return nil, fmt.Errorf("browser: decode capture: node %d out of order", rn.ID)
		}
		n := p.nodes[i]
		n.kind = dom.NodeKind(rn.Kind)
		n.tag = rn.Tag
		n.text = rn.Text
		n.attrs = rn.Attrs
		n.parent = p.nodeAt(rn.Parent)
		n.prev = p.nodeAt(rn.Prev)
		n.children = p.nodeList(rn.Children)
		n.shadow = p.scopeAt(rn.Shadow)
		n.crossOrigin = rn.Content == crossOrigin
		n.content = p.scopeAt(rn.Content)
		n.root = p.scopeAt(rn.Scope)
		n.owner = p.scopeAt(rn.Doc)
		n.rect, n.style, n.props = rn.Rect, rn.Style, rn.Props
	}
	p.body = p.nodeAt(raw.Body)
	if len(p.scopes) == 0 {
		return nil, errors.New("browser: decode capture: no document scope")
	}
	return p, nil
}

func (p *snapshotPage) nodeAt(id int) *node {
	if id < 0 || id >= len(p.nodes) {
		return nil
	}
	return p.nodes[id]
}

func (p *snapshotPage) scopeAt(id int) *scope {
	if id < 0 || id >= len(p.scopes) {
		return nil
	}
	return p.scopes[id]
}

func (p *snapshotPage) nodeList(ids []int) []*node {
	out := make([]*node, 0, len(ids))
	for _, id := range ids {
		if n := p.nodeAt(id); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (p *snapshotPage) Document() dom.Scope    { return p.scopes[0] }
func (p *snapshotPage) Viewport() dom.Viewport { return p.viewport }

func (p *snapshotPage) Body() dom.LiveNode {
	if p.body == nil {
		return nil
	}
	return p.body
}

func (p *snapshotPage) own(n dom.LiveNode) (*node, error) {
	nd, ok := n.(*node)
	if !ok || nd.page != p {
		return nil, errors.New("browser: node does not belong to this capture")
	}
	return nd, nil
}

func (p *snapshotPage) BoundingRect(n dom.LiveNode) (dom.Rect, error) {
	nd, err := p.own(n)
	if err != nil {
		return dom.Rect{}, err
	}
	if nd.rect == nil {
		return dom.Rect{}, fmt.Errorf("browser: no layout box for <%s>", nd.tag)
	}
	return *nd.rect, nil
}

func (p *snapshotPage) TextRect(n dom.LiveNode) (dom.Rect, error) {
	return p.BoundingRect(n)
}

func (p *snapshotPage) ComputedStyle(n dom.LiveNode) (dom.Style, error) {
	nd, err := p.own(n)
	if err != nil {
		return dom.Style{}, err
	}
	if nd.style == nil {
		return dom.Style{}, fmt.Errorf("browser: no computed style for <%s>", nd.tag)
	}
	return *nd.style, nil
}

func (p *snapshotPage) Properties(n dom.LiveNode) (dom.Properties, error) {
	nd, err := p.own(n)
	if err != nil {
		return dom.Properties{}, err
	}
	if nd.props == nil {
		return dom.Properties{}, fmt.Errorf("browser: no properties for <%s>", nd.tag)
	}
	return *nd.props, nil
}

func (p *snapshotPage) EventListeners(n dom.LiveNode) ([]string, error) {
	nd, err := p.own(n)
	if err != nil {
		return nil, err
	}
	if nd.orphan {
		return nil, dom.ErrListenersUnavailable
	}
	types, err := p.ev.listenerTypes(p.ctx, nodeObjectJS, p.gen, nd.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dom.ErrListenersUnavailable, err)
	}
	return types, nil
}

func (p *snapshotPage) ResolveXPath(ctx context.Context, hosts []string, xpath string) (dom.LiveNode, error) {
	if hosts == nil {
		hosts = []string{}
	}
	id, err := p.ev.evalInt(ctx, resolveJS, p.gen, hosts, xpath)
	if err != nil {
		return nil, fmt.Errorf("browser: resolve %s: %w", xpath, err)
	}
	switch {
	case id == noNode:
		return nil, nil
	case id == unknownNode:
		return p.orphan(), nil
	default:
		if n := p.nodeAt(id); n != nil {
			return n, nil
		}
		return p.orphan(), nil
	}
}

// orphan stands for a live element that did not exist at capture time.
func (p *snapshotPage) orphan() *node {
	return &node{page: p, id: -1, kind: dom.KindElement, orphan: true}
}

type node struct {
	page *snapshotPage
	id   int

	kind     dom.NodeKind
	tag      string
	text     string
	attrs    [][2]string
	parent   *node
	prev     *node
	children []*node

	shadow      *scope
	content     *scope
	crossOrigin bool
	root        *scope
	owner       *scope

	rect   *dom.Rect
	style  *dom.Style
	props  *dom.Properties
	orphan bool
}

func (n *node) Kind() dom.NodeKind         { return n.kind }
func (n *node) TagName() string            { return n.tag }
func (n *node) Text() string               { return n.text }
func (n *node) ChildNodes() []dom.LiveNode { return liveNodes(n.children) }

func (n *node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a[0] == name {
			return a[1], true
		}
	}
	return "", false
}

func (n *node) AttrNames() []string {
	names := make([]string, len(n.attrs))
	for i, a := range n.attrs {
		names[i] = a[0]
	}
	return names
}

func (n *node) ParentElement() dom.LiveNode {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) PreviousSibling() dom.LiveNode {
	if n.prev == nil {
		return nil
	}
	return n.prev
}

func (n *node) ShadowRoot() dom.Scope {
	if n.shadow == nil {
		return nil
	}
	return n.shadow
}

func (n *node) ContentDocument() (dom.Scope, error) {
	if n.crossOrigin {
		src, _ := n.Attr("src")
		return nil, fmt.Errorf("browser: frame %s: %w", src, dom.ErrCrossOrigin)
	}
	if n.content == nil {
		return nil, nil
	}
	return n.content, nil
}

func (n *node) RootNode() dom.Scope {
	if n.root == nil {
		return nil
	}
	return n.root
}

func (n *node) OwnerDocument() dom.Scope {
	if n.owner == nil {
		return nil
	}
	return n.owner
}

type scope struct {
	page     *snapshotPage
	id       int
	shadow   bool
	host     *node
	children []*node

	// hits answered by the collector
	hits map[point]int
}

type point struct{ x, y float64 }

func (s *scope) ChildNodes() []dom.LiveNode { return liveNodes(s.children) }
func (s *scope) IsShadow() bool             { return s.shadow }

func (s *scope) Host() dom.LiveNode {
	if s.host == nil {
		return nil
	}
	return s.host
}

// ElementFromPoint answers from the collector's hits when it can and asks
// the live page otherwise.
func (s *scope) ElementFromPoint(x, y float64) (dom.LiveNode, error) {
	id, ok := s.hits[point{x, y}]
	if !ok {
		var err error
		id, err = s.page.ev.evalInt(s.page.ctx, hitTestJS, s.page.gen, s.id, x, y)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", dom.ErrHitTest, err)
		}
	}
	switch {
	case id == noNode:
		return nil, nil
	case id == unknownNode:
		return s.page.orphan(), nil
	default:
		if n := s.page.nodeAt(id); n != nil {
			return n, nil
		}
		return s.page.orphan(), nil
	}
}

func liveNodes(ns []*node) []dom.LiveNode {
	out := make([]dom.LiveNode, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}
