package dom_test

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anxuanzi/bua-teacher/dom"
	"github.com/anxuanzi/bua-teacher/htmldoc"
)

type recorder struct {
	targets []dom.HighlightTarget
	clears  int
}

func (r *recorder) Highlight(t dom.HighlightTarget) error {
	r.targets = append(r.targets, t)
	return nil
}

func (r *recorder) Clear() error {
	r.clears++
	r.targets = nil
	return nil
}

func (r *recorder) indices() []int {
	out := make([]int, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t.Index)
	}
	return out
}

func page(t *testing.T, body string, opts ...htmldoc.Option) *htmldoc.Document {
	t.Helper()
	d, err := htmldoc.ParseString("<!DOCTYPE html><html><head></head><body>"+body+"</body></html>", opts...)
	require.NoError(t, err)
	return d
}

func build(t *testing.T, d *htmldoc.Document, opts dom.Options) (*dom.Snapshot, *dom.ElementNode, dom.SelectorMap) {
	t.Helper()
	snap, err := dom.BuildDomTree(d, opts, nil, nil)
	require.NoError(t, err)
	root, m, err := dom.ConstructDomTree(snap)
	require.NoError(t, err)
	return snap, root, m
}

func indexed(m dom.SelectorMap) map[string]int {
	out := make(map[string]int, len(m))
	for idx, el := range m {
		out[el.Attributes["id"]] = idx
	}
	return out
}

func recordByXPath(s *dom.Snapshot, xpath string) *dom.NodeRecord {
	for _, r := range s.Map {
		if r.XPath == xpath {
			return r
		}
	}
	return nil
}

const toolbar = `
	<button id="save" style="left:10px;top:10px;width:80px;height:24px">Save</button>
	<a id="docs" href="/docs" style="left:100px;top:10px;width:80px;height:24px">Docs</a>
	<div id="plain" style="left:10px;top:50px;width:80px;height:24px">Just text</div>
	<div id="menu" role="menuitem" style="left:200px;top:10px;width:80px;height:24px">File</div>
	<input id="search" type="text" style="left:300px;top:10px;width:120px;height:24px">`

func TestIndicesAreDenseInDocumentOrder(t *testing.T) {
	snap, _, m := build(t, page(t, toolbar), dom.LayoutOptions())

	assert.Equal(t, []int{0, 1, 2, 3}, m.Indices())
	assert.Equal(t, map[string]int{"save": 0, "docs": 1, "menu": 2, "search": 3}, indexed(m))
	assert.Equal(t, 4, snap.InteractiveCount())

	root := snap.Map[snap.RootID]
	require.NotNil(t, root)
	assert.Equal(t, "body", root.TagName)
	assert.NotNil(t, root.Attributes)
}

func TestClassificationCascade(t *testing.T) {
	d := page(t, toolbar+`
		<button id="hidden" style="display:none">Hidden</button>
		<button id="under" style="left:10px;top:100px;width:100px;height:40px">Under</button>
		<div id="cover" style="left:0px;top:90px;width:300px;height:100px"></div>`)
	snap, _, _ := build(t, d, dom.LayoutOptions())

	for id, r := range snap.Map {
		if r.IsText() {
			continue
		}
		if r.HighlightIndex != nil {
			assert.True(t, r.IsInteractive, "record %s", id)
		}
		if r.IsInteractive {
			assert.True(t, r.IsTopElement, "record %s", id)
			assert.NotNil(t, r.HighlightIndex, "record %s", id)
		}
		if r.IsTopElement {
			assert.True(t, r.IsVisible, "record %s", id)
		}
	}
}

func TestOccludedElementIsNotIndexed(t *testing.T) {
	d := page(t, `
		<button id="under" style="left:10px;top:10px;width:100px;height:40px">Under</button>
		<div id="cover" style="left:0px;top:0px;width:300px;height:100px"></div>`)
	snap, _, m := build(t, d, dom.LayoutOptions())

	assert.Empty(t, m)
	r := recordByXPath(snap, "html/body/button")
	require.NotNil(t, r)
	assert.True(t, r.IsVisible)
	assert.False(t, r.IsTopElement)
	assert.Nil(t, r.HighlightIndex)
}

func TestHitTestFailureFailsOpen(t *testing.T) {
	d := page(t, `
		<button id="under" style="left:10px;top:10px;width:100px;height:40px">Under</button>
		<div id="cover" style="left:0px;top:0px;width:300px;height:100px"></div>`,
		htmldoc.WithFailingHitTests())
	_, _, m := build(t, d, dom.LayoutOptions())

	assert.Equal(t, map[string]int{"under": 0}, indexed(m))
}

func TestHiddenAnchorKeptWithoutIndex(t *testing.T) {
	d := page(t, `<a id="ghost" href="/x" style="display:none">Hidden</a>`)
	snap, root, m := build(t, d, dom.LayoutOptions())

	assert.Empty(t, m)
	r := recordByXPath(snap, "html/body/a")
	require.NotNil(t, r)
	assert.False(t, r.IsVisible)
	assert.Nil(t, r.HighlightIndex)

	require.Len(t, root.Children, 1)
	a, ok := root.Children[0].(*dom.ElementNode)
	require.True(t, ok)
	require.Len(t, a.Children, 1)
	text, ok := a.Children[0].(*dom.TextNode)
	require.True(t, ok)
	assert.Equal(t, "Hidden", text.Text)
}

func TestAnchorUnderHiddenParent(t *testing.T) {
	d := page(t, `
		<div style="display:none"><a id="link" href="/x">Link</a></div>
		<button id="go" style="left:0px;top:0px;width:40px;height:20px">Go</button>`)
	snap, _, m := build(t, d, dom.LayoutOptions())

	assert.Equal(t, map[string]int{"go": 0}, indexed(m))
	r := recordByXPath(snap, "html/body/div/a")
	require.NotNil(t, r)
	assert.Nil(t, r.HighlightIndex)
	assert.False(t, r.IsVisible)
}

func TestEmptyAnchorIsDroppedAndIndexReclaimed(t *testing.T) {
	d := page(t, `
		<a id="empty" style="left:0px;top:0px;width:40px;height:20px"></a>
		<button id="next" style="left:50px;top:0px;width:40px;height:20px">Next</button>`)
	snap, _, m := build(t, d, dom.LayoutOptions())

	assert.Nil(t, recordByXPath(snap, "html/body/a"))
	assert.Equal(t, map[string]int{"next": 0}, indexed(m))
}

func TestFocusHighlightIndexDrawsOneOverlay(t *testing.T) {
	d := page(t, toolbar)
	rec := &recorder{}

	opts := dom.DefaultOptions()
	opts.FocusHighlightIndex = 2
	snap, err := dom.BuildDomTree(d, opts, rec, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.InteractiveCount())
	assert.Equal(t, 1, rec.clears)
	require.Equal(t, []int{2}, rec.indices())
	assert.Equal(t, "div", rec.targets[0].TagName)
	assert.Equal(t, dom.Rect{X: 200, Y: 10, Width: 80, Height: 24}, rec.targets[0].Rect)
}

func TestHighlightAllInIndexOrder(t *testing.T) {
	d := page(t, toolbar)
	rec := &recorder{}

	_, err := dom.BuildDomTree(d, dom.DefaultOptions(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, rec.indices())

	_, err = dom.BuildDomTree(d, dom.LayoutOptions(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.clears)
	assert.Empty(t, rec.targets)
}

func TestViewportBoundary(t *testing.T) {
	markup := `<a id="far" href="/far" style="left:10px;top:1220px;width:0px;height:0px"></a>`

	snap, _, _ := build(t, page(t, markup), dom.LayoutOptions())
	assert.Nil(t, recordByXPath(snap, "html/body/a"))

	opts := dom.LayoutOptions()
	opts.ViewportExpansion = -1
	snap, _, _ = build(t, page(t, markup), opts)
	assert.NotNil(t, recordByXPath(snap, "html/body/a"))
}

func TestOffscreenSizedElementKeepsIndex(t *testing.T) {
	d := page(t, `<button id="below" style="left:10px;top:1500px;width:80px;height:24px">Below</button>`)
	snap, _, m := build(t, d, dom.LayoutOptions())

	assert.Equal(t, map[string]int{"below": 0}, indexed(m))
	r := recordByXPath(snap, "html/body/button")
	require.NotNil(t, r)
	assert.True(t, r.IsTopElement)
	assert.False(t, r.IsInViewport)

	opts := dom.LayoutOptions()
	opts.ViewportExpansion = 1000
	snap, _, _ = build(t, d, opts)
	assert.True(t, recordByXPath(snap, "html/body/button").IsInViewport)
}

func TestOptOutAndExcludedSubtrees(t *testing.T) {
	d := page(t, `
		<div class="panel theia-nohighlight"><button id="a" style="left:0px;top:0px;width:20px;height:20px">A</button></div>
		<div id="chat-tree-widget-treeContainer"><button id="b" style="left:30px;top:0px;width:20px;height:20px">B</button></div>
		<button id="c" style="left:60px;top:0px;width:20px;height:20px">C</button>`)

	opts := dom.LayoutOptions()
	opts.ExcludeIDs = []string{"chat-tree-widget-treeContainer"}
	_, _, m := build(t, d, opts)

	assert.Equal(t, map[string]int{"c": 0}, indexed(m))
}

func TestInteractivitySignals(t *testing.T) {
	d := page(t, `
		<div id="listener" data-listeners="click" style="left:0px;top:0px;width:20px;height:20px">l</div>
		<div id="aria" aria-expanded="false" style="left:30px;top:0px;width:20px;height:20px">a</div>
		<div id="tab" class="lm-TabBar-tab" style="left:60px;top:0px;width:20px;height:20px">t</div>
		<div id="drag" draggable="true" style="left:90px;top:0px;width:20px;height:20px">d</div>
		<div id="toggle" data-toggle="dropdown" style="left:120px;top:0px;width:20px;height:20px">o</div>
		<section><div id="focusable" tabindex="0" style="left:150px;top:0px;width:20px;height:20px">f</div></section>
		<div id="bodytab" tabindex="0" style="left:180px;top:0px;width:20px;height:20px">b</div>
		<div id="keys" data-listeners="keydown" style="left:210px;top:0px;width:20px;height:20px">k</div>`)
	_, _, m := build(t, d, dom.LayoutOptions())

	got := indexed(m)
	for _, id := range []string{"listener", "aria", "tab", "drag", "toggle", "focusable"} {
		assert.Contains(t, got, id)
	}
	assert.NotContains(t, got, "bodytab")
	assert.NotContains(t, got, "keys")
}

func TestListenerFallbackToHandlerProperties(t *testing.T) {
	d := page(t, `
		<div id="down" onmousedown="go()" style="left:0px;top:0px;width:20px;height:20px">x</div>
		<div id="listed" data-listeners="click" style="left:30px;top:0px;width:20px;height:20px">y</div>`,
		htmldoc.WithoutListenerIntrospection())
	_, _, m := build(t, d, dom.LayoutOptions())

	assert.Equal(t, map[string]int{"down": 0}, indexed(m))
}

func TestShadowRootTraversal(t *testing.T) {
	d := page(t, `<div id="host"><template shadowrootmode="open">
		<button id="inside" style="left:0px;top:0px;width:40px;height:20px">Inside</button>
	</template></div>`)
	snap, _, m := build(t, d, dom.LayoutOptions())

	host := recordByXPath(snap, "html/body/div")
	require.NotNil(t, host)
	assert.True(t, host.ShadowRoot)

	require.Len(t, m, 1)
	assert.Equal(t, "button", m[0].XPath)
	assert.Equal(t, []string{"html/body/div"}, m[0].Hosts)
	require.NotNil(t, m[0].Parent)
	assert.Equal(t, "div", m[0].Parent.TagName)
}

func TestFrameTraversal(t *testing.T) {
	d := page(t, `
		<iframe id="inline" srcdoc="<button id='inner' style='left:5px;top:5px;width:30px;height:20px'>Go</button>"
			style="left:100px;top:200px;width:300px;height:200px"></iframe>
		<iframe id="remote" src="https://example.com/" style="left:500px;top:0px;width:100px;height:100px"></iframe>`)
	rec := &recorder{}

	snap, err := dom.BuildDomTree(d, dom.DefaultOptions(), rec, nil)
	require.NoError(t, err)
	_, m, err := dom.ConstructDomTree(snap)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"inner": 0}, indexed(m))
	assert.Equal(t, "html/body/button", m[0].XPath)
	assert.Equal(t, []string{"html/body/iframe"}, m[0].Hosts)

	require.Len(t, rec.targets, 1)
	assert.Equal(t, dom.Rect{X: 105, Y: 205, Width: 30, Height: 20}, rec.targets[0].Rect)
	assert.NotNil(t, rec.targets[0].Frame)

	remote := recordByXPath(snap, "html/body/iframe[2]")
	require.NotNil(t, remote)
	assert.Equal(t, "https://example.com/", remote.Attributes["src"])
	assert.Empty(t, remote.Children)
}

func TestGeometryFailureDegrades(t *testing.T) {
	d := page(t, `
		<button id="broken" data-fault="geometry">Broken</button>
		<button id="fine" style="left:0px;top:0px;width:40px;height:20px">Fine</button>`)
	snap, _, m := build(t, d, dom.LayoutOptions())

	r := recordByXPath(snap, "html/body/button")
	require.NotNil(t, r)
	assert.False(t, r.IsVisible)
	assert.Equal(t, map[string]int{"fine": 0}, indexed(m))
}

func TestExtractionIsIdempotent(t *testing.T) {
	d := page(t, toolbar)
	first, err := dom.BuildDomTree(d, dom.LayoutOptions(), nil, nil)
	require.NoError(t, err)
	second, err := dom.BuildDomTree(d, dom.LayoutOptions(), nil, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("snapshots differ (-first +second):\n%s", diff)
	}
}

func TestXPathRoundTrip(t *testing.T) {
	d := page(t, toolbar+`<div><span><button id="deep" style="left:500px;top:10px;width:40px;height:20px">Deep</button></span></div>`)
	_, _, m := build(t, d, dom.LayoutOptions())
	require.NotEmpty(t, m)

	for _, idx := range m.Indices() {
		el := m[idx]
		live, err := d.ResolveXPath(context.Background(), el.Hosts, el.XPath)
		require.NoError(t, err, el.XPath)
		require.NotNil(t, live, el.XPath)
		assert.Same(t, d.ElementByID(el.Attributes["id"]), live, el.XPath)
	}
}

func TestScopedXPathRoundTrip(t *testing.T) {
	d := page(t, `
		<button id="top" style="left:0px;top:0px;width:40px;height:20px">Top</button>
		<div id="host" style="left:0px;top:30px;width:100px;height:40px"><template shadowrootmode="open">
			<button id="inside" style="left:0px;top:30px;width:40px;height:20px">Inside</button>
		</template></div>
		<iframe srcdoc="<p>x</p><button id='framed' style='left:5px;top:5px;width:30px;height:20px'>Go</button>"
			style="left:200px;top:0px;width:300px;height:200px"></iframe>`)
	_, _, m := build(t, d, dom.LayoutOptions())
	require.Len(t, m, 3)

	ctx := context.Background()
	for _, idx := range m.Indices() {
		el := m[idx]
		live, err := d.ResolveXPath(ctx, el.Hosts, el.XPath)
		require.NoError(t, err, el.XPath)
		require.NotNil(t, live, el.XPath)
		assert.Equal(t, el.Attributes["id"], attr(live, "id"), el.XPath)
	}

	// The button path alone lands on the top document's button.
	framed := m[2]
	require.Equal(t, "framed", framed.Attributes["id"])
	live, err := d.ResolveXPath(ctx, nil, framed.XPath)
	require.NoError(t, err)
	assert.Equal(t, "top", attr(live, "id"))

	live, err = d.ResolveXPath(ctx, []string{"html/body/iframe[3]"}, framed.XPath)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func attr(n dom.LiveNode, name string) string {
	if n == nil {
		return ""
	}
	v, _ := n.Attr(name)
	return v
}

func TestTextTrimmedAndScriptSkipped(t *testing.T) {
	d := page(t, `<div>   </div><p style="left:0px;top:0px;width:40px;height:20px">  hello  </p><script>var x = 1;</script>`)
	snap, _, _ := build(t, d, dom.LayoutOptions())

	var texts []string
	for _, r := range snap.Map {
		if r.IsText() {
			texts = append(texts, r.Text)
			assert.True(t, r.IsVisible)
		}
	}
	sort.Strings(texts)
	assert.Equal(t, []string{"hello"}, texts)
}

func TestNilPage(t *testing.T) {
	_, err := dom.BuildDomTree(nil, dom.DefaultOptions(), nil, nil)
	assert.Error(t, err)
}
