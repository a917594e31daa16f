package browser

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anxuanzi/bua-teacher/dom"
)

func fixture(t *testing.T, ev evaluator) *snapshotPage {
	t.Helper()
	data, err := os.ReadFile("testdata/capture.json")
	require.NoError(t, err)
	p, err := decodeCapture(context.Background(), ev, "gen-1", data)
	require.NoError(t, err)
	return p
}

// workbench hit tests return the element a user would see at each point.
func workbench() *stubPage {
	return &stubPage{
		hit: func(scope int, x, _ float64) int {
			switch {
			case scope == 1:
				return 6
			case x >= 200:
				return 7
			case x >= 100:
				return 5
			default:
				return 3
			}
		},
		listeners: map[int][]string{5: {"click"}},
	}
}

func TestDecodeCapture(t *testing.T) {
	p := fixture(t, workbench())

	assert.Equal(t, dom.Viewport{Width: 1280, Height: 720}, p.Viewport())
	body := p.Body()
	require.NotNil(t, body)
	assert.Equal(t, "body", body.TagName())
	cls, ok := body.Attr("class")
	assert.True(t, ok)
	assert.Equal(t, "theia-app", cls)

	doc := p.Document()
	assert.False(t, doc.IsShadow())
	assert.Nil(t, doc.Host())
	require.Len(t, doc.ChildNodes(), 1)
	assert.Equal(t, "html", doc.ChildNodes()[0].TagName())

	kids := body.ChildNodes()
	require.Len(t, kids, 3)
	save, host, frame := kids[0], kids[1], kids[2]
	assert.Equal(t, []string{"id", "class"}, save.AttrNames())
	assert.Nil(t, save.PreviousSibling())
	assert.Same(t, save, host.PreviousSibling())
	assert.Same(t, body, save.ParentElement())
	assert.Same(t, doc, save.RootNode())
	assert.Same(t, doc, save.OwnerDocument())

	text := save.ChildNodes()[0]
	assert.Equal(t, dom.KindText, text.Kind())
	assert.Equal(t, "  Save  ", text.Text())

	sr := host.ShadowRoot()
	require.NotNil(t, sr)
	assert.True(t, sr.IsShadow())
	assert.Same(t, host, sr.Host())
	inner := sr.ChildNodes()[0]
	assert.Nil(t, inner.ParentElement())
	assert.Same(t, sr, inner.RootNode())

	_, err := frame.ContentDocument()
	assert.ErrorIs(t, err, dom.ErrCrossOrigin)
	cd, err := save.ContentDocument()
	assert.NoError(t, err)
	assert.Nil(t, cd)
}

func TestDecodeCaptureGeometry(t *testing.T) {
	p := fixture(t, workbench())
	save := p.Body().ChildNodes()[0]

	r, err := p.BoundingRect(save)
	require.NoError(t, err)
	assert.Equal(t, dom.Rect{X: 10, Y: 10, Width: 80, Height: 24}, r)

	st, err := p.ComputedStyle(save)
	require.NoError(t, err)
	assert.Equal(t, "inline-block", st.Display)

	props, err := p.Properties(save)
	require.NoError(t, err)
	assert.Equal(t, 80.0, props.OffsetWidth)

	text := save.ChildNodes()[0]
	tr, err := p.TextRect(text)
	require.NoError(t, err)
	assert.Equal(t, 30.0, tr.Width)
	_, err = p.ComputedStyle(text)
	assert.Error(t, err)
	_, err = p.Properties(text)
	assert.Error(t, err)
}

func TestDecodeCaptureMalformed(t *testing.T) {
	ev := workbench()
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"no scopes", `{"body": -1, "scopes": [], "nodes": []}`},
		{"out of order", `{"body": -1, "scopes": [{"id":0,"host":-1,"children":[]}], "nodes": [{"id": 3, "parent": -1, "prev": -1, "shadow": -1, "content": -1, "scope": 0, "doc": 0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCapture(context.Background(), ev, "g", []byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestForeignNode(t *testing.T) {
	a := fixture(t, workbench())
	b := fixture(t, workbench())

	_, err := a.BoundingRect(b.Body())
	assert.Error(t, err)
	_, err = a.EventListeners(b.Body())
	assert.Error(t, err)
}

func TestEventListeners(t *testing.T) {
	ev := workbench()
	p := fixture(t, ev)
	host := p.Body().ChildNodes()[1]

	types, err := p.EventListeners(host)
	require.NoError(t, err)
	assert.Equal(t, []string{"click"}, types)

	last := ev.callsTo(nodeObjectJS)
	require.Len(t, last, 1)
	assert.Equal(t, []any{"gen-1", 5}, last[0].args)

	ev.fail = errors.New("target closed")
	_, err = p.EventListeners(host)
	assert.ErrorIs(t, err, dom.ErrListenersUnavailable)

	_, err = p.EventListeners(p.orphan())
	assert.ErrorIs(t, err, dom.ErrListenersUnavailable)
}

func TestElementFromPoint(t *testing.T) {
	ev := workbench()
	p := fixture(t, ev)

	hit, err := p.Document().ElementFromPoint(50, 22)
	require.NoError(t, err)
	assert.Same(t, p.Body().ChildNodes()[0], hit)

	calls := ev.callsTo(hitTestJS)
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"gen-1", 0, 50.0, 22.0}, calls[0].args)

	ev.hit = func(int, float64, float64) int { return unknownNode }
	hit, err = p.Document().ElementFromPoint(1, 1)
	require.NoError(t, err)
	assert.True(t, hit.(*node).orphan)

	ev.hit = func(int, float64, float64) int { return noNode }
	hit, err = p.Document().ElementFromPoint(1, 1)
	require.NoError(t, err)
	assert.Nil(t, hit)

	ev.fail = errors.New("execution context destroyed")
	_, err = p.Document().ElementFromPoint(1, 1)
	assert.ErrorIs(t, err, dom.ErrHitTest)
}

func TestCollectedHitsAnswerLocally(t *testing.T) {
	data, err := os.ReadFile("testdata/capture.json")
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["hits"] = [][4]float64{{0, 50, 22, 3}, {0, 60, 40, noNode}, {1, 125, 22, 6}}
	data, err = json.Marshal(raw)
	require.NoError(t, err)

	ev := workbench()
	p, err := decodeCapture(context.Background(), ev, "gen-1", data)
	require.NoError(t, err)

	hit, err := p.Document().ElementFromPoint(50, 22)
	require.NoError(t, err)
	assert.Same(t, p.nodeAt(3), hit)

	hit, err = p.Document().ElementFromPoint(60, 40)
	require.NoError(t, err)
	assert.Nil(t, hit)

	hit, err = p.scopeAt(1).ElementFromPoint(125, 22)
	require.NoError(t, err)
	assert.Same(t, p.nodeAt(6), hit)
	assert.Empty(t, ev.callsTo(hitTestJS))

	hit, err = p.Document().ElementFromPoint(250, 50)
	require.NoError(t, err)
	assert.Same(t, p.nodeAt(7), hit)
	assert.Len(t, ev.callsTo(hitTestJS), 1)
}

func TestResolveXPath(t *testing.T) {
	ev := workbench()
	ev.resolve = func(hosts []string, xpath string) int {
		switch {
		case len(hosts) > 0:
			return noNode
		case xpath == "html/body/button":
			return 3
		case xpath == "html/body/span":
			return unknownNode
		default:
			return noNode
		}
	}
	p := fixture(t, ev)
	ctx := context.Background()

	n, err := p.ResolveXPath(ctx, nil, "html/body/button")
	require.NoError(t, err)
	assert.Same(t, p.Body().ChildNodes()[0], n)

	n, err = p.ResolveXPath(ctx, nil, "html/body/span")
	require.NoError(t, err)
	assert.True(t, n.(*node).orphan)

	n, err = p.ResolveXPath(ctx, nil, "html/body/nav")
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = p.ResolveXPath(ctx, []string{"html/body/iframe"}, "html/body/button")
	require.NoError(t, err)
	assert.Nil(t, n)

	calls := ev.callsTo(resolveJS)
	require.Len(t, calls, 4)
	assert.Equal(t, []string{}, calls[0].args[1])
	assert.Equal(t, []string{"html/body/iframe"}, calls[3].args[1])
}

func TestBuildDomTreeOverCapture(t *testing.T) {
	p := fixture(t, workbench())

	snap, err := dom.BuildDomTree(p, dom.LayoutOptions(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	root, m, err := dom.ConstructDomTree(snap)
	require.NoError(t, err)
	require.NotNil(t, root)

	require.Equal(t, []int{0, 1, 2}, m.Indices())
	assert.Equal(t, "html/body/button", m[0].XPath)
	assert.Equal(t, "save", m[0].Attributes["id"])
	assert.Equal(t, "html/body/div", m[1].XPath)
	assert.True(t, m[1].ShadowRoot)
	assert.Equal(t, "button", m[2].XPath)
	assert.Equal(t, "inner", m[2].Attributes["id"])
	assert.Equal(t, []string{"html/body/div"}, m[2].Hosts)
	assert.Empty(t, m[0].Hosts)
	for _, idx := range m.Indices() {
		assert.True(t, m[idx].IsTopElement, "index %d", idx)
		assert.True(t, m[idx].IsInViewport, "index %d", idx)
	}
	assert.Equal(t, "Save", m[0].GetAllTextTillNextClickableElement(-1))
}

func TestBuildDomTreeOccludedByPopup(t *testing.T) {
	ev := workbench()
	ev.hit = func(scope int, x, _ float64) int {
		if scope == 1 {
			return 6
		}
		if x < 100 {
			// a context menu created after capture covers the save button
			return unknownNode
		}
		return 5
	}
	p := fixture(t, ev)

	snap, err := dom.BuildDomTree(p, dom.LayoutOptions(), nil, nil)
	require.NoError(t, err)
	_, m, err := dom.ConstructDomTree(snap)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, m.Indices())
	assert.Equal(t, "html/body/div", m[0].XPath)
}
