package dom_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anxuanzi/bua-teacher/dom"
	"github.com/anxuanzi/bua-teacher/htmldoc"
)

// swapSource serves a document that tests can replace, the way a live tab
// navigates under a stored snapshot.
type swapSource struct {
	mu  sync.Mutex
	cur *htmldoc.Document
	err error
}

func (s *swapSource) current() *htmldoc.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *swapSource) swap(d *htmldoc.Document) {
	s.mu.Lock()
	s.cur = d
	s.mu.Unlock()
}

func (s *swapSource) Capture(context.Context) (dom.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return livePage{doc: s.current(), src: s}, nil
}

// livePage reads the captured document but resolves locators against the
// current one.
type livePage struct {
	doc *htmldoc.Document
	src *swapSource
}

func (p livePage) Document() dom.Scope    { return p.doc.Document() }
func (p livePage) Body() dom.LiveNode     { return p.doc.Body() }
func (p livePage) Viewport() dom.Viewport { return p.doc.Viewport() }

func (p livePage) BoundingRect(n dom.LiveNode) (dom.Rect, error)     { return p.doc.BoundingRect(n) }
func (p livePage) TextRect(n dom.LiveNode) (dom.Rect, error)         { return p.doc.TextRect(n) }
func (p livePage) ComputedStyle(n dom.LiveNode) (dom.Style, error)   { return p.doc.ComputedStyle(n) }
func (p livePage) Properties(n dom.LiveNode) (dom.Properties, error) { return p.doc.Properties(n) }
func (p livePage) EventListeners(n dom.LiveNode) ([]string, error)   { return p.doc.EventListeners(n) }

func (p livePage) ResolveXPath(ctx context.Context, hosts []string, xpath string) (dom.LiveNode, error) {
	return p.src.current().ResolveXPath(ctx, hosts, xpath)
}

func TestServiceLookupBeforeLayout(t *testing.T) {
	svc := dom.NewService(&swapSource{cur: page(t, toolbar)})

	_, err := svc.Lookup(0)
	assert.ErrorIs(t, err, dom.ErrNoSnapshot)
	_, err = svc.Resolve(context.Background(), 0)
	assert.ErrorIs(t, err, dom.ErrNoSnapshot)
	assert.Nil(t, svc.LastState())
	assert.Nil(t, svc.LastSelectorMap())
}

func TestServiceLayout(t *testing.T) {
	rec := &recorder{}
	svc := dom.NewService(&swapSource{cur: page(t, toolbar)},
		dom.WithHighlighter(rec),
		dom.WithLogger(zaptest.NewLogger(t)),
	)

	l, err := svc.Layout(context.Background())
	require.NoError(t, err)
	assert.Len(t, l.Highlightable, 4)
	assert.NotEmpty(t, l.SnapshotID)
	assert.Empty(t, rec.targets)

	st := svc.LastState()
	require.NotNil(t, st)
	assert.Equal(t, l.SnapshotID, st.ID)
	assert.Len(t, svc.LastSelectorMap(), 4)

	el, err := svc.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "docs", el.Attributes["id"])

	_, err = svc.Lookup(9)
	assert.ErrorIs(t, err, dom.ErrStaleSelector)
	assert.Contains(t, err.Error(), "highlightIndex 9")
}

func TestServiceClickableElementsDraws(t *testing.T) {
	rec := &recorder{}
	svc := dom.NewService(&swapSource{cur: page(t, toolbar)}, dom.WithHighlighter(rec))

	st, err := svc.ClickableElements(context.Background(), dom.DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, st.SelectorMap, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, rec.indices())
}

func TestServiceReplacesState(t *testing.T) {
	src := &swapSource{cur: page(t, toolbar)}
	svc := dom.NewService(src)

	first, err := svc.Layout(context.Background())
	require.NoError(t, err)

	src.swap(page(t, `<button id="only" style="left:0px;top:0px;width:40px;height:20px">Only</button>`))
	second, err := svc.Layout(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
	assert.Len(t, svc.LastSelectorMap(), 1)
	_, err = svc.Lookup(3)
	assert.ErrorIs(t, err, dom.ErrStaleSelector)
}

func TestServiceResolveDetectsStaleLocator(t *testing.T) {
	src := &swapSource{cur: page(t, toolbar)}
	svc := dom.NewService(src)
	_, err := svc.Layout(context.Background())
	require.NoError(t, err)

	el, err := svc.Resolve(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "search", el.Attributes["id"])

	src.swap(page(t, `<p>navigated away</p>`))
	_, err = svc.Resolve(context.Background(), 3)
	assert.ErrorIs(t, err, dom.ErrStaleSelector)
	assert.Contains(t, err.Error(), "html/body/input")
}

func TestServiceResolveInsideFrame(t *testing.T) {
	framed := `<iframe srcdoc="<button id='inner' style='left:5px;top:5px;width:30px;height:20px'>Go</button>"
		style="left:100px;top:0px;width:300px;height:200px"></iframe>`
	src := &swapSource{cur: page(t, `<button id="outer" style="left:0px;top:0px;width:40px;height:20px">Out</button>`+framed)}
	svc := dom.NewService(src)
	_, err := svc.Layout(context.Background())
	require.NoError(t, err)

	el, err := svc.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "inner", el.Attributes["id"])
	assert.Equal(t, []string{"html/body/iframe"}, el.Hosts)

	src.swap(page(t, `<button id="outer" style="left:0px;top:0px;width:40px;height:20px">Out</button>`))
	_, err = svc.Resolve(context.Background(), 1)
	assert.ErrorIs(t, err, dom.ErrStaleSelector)
	assert.Contains(t, err.Error(), "html/body/iframe >> html/body/button")
}

// slowSource holds every capture open for a moment and records the most
// captures it saw in flight at once.
type slowSource struct {
	swapSource
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *slowSource) Capture(ctx context.Context) (dom.Page, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return s.swapSource.Capture(ctx)
}

func TestServiceSerializesExtractions(t *testing.T) {
	src := &slowSource{swapSource: swapSource{cur: page(t, toolbar)}}
	svc := dom.NewService(src)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Layout(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.peak.Load())
	assert.Len(t, svc.LastSelectorMap(), 4)
}

func TestServiceOptOutAndExclude(t *testing.T) {
	d := page(t, `
		<div class="chrome"><button id="a" style="left:0px;top:0px;width:20px;height:20px">A</button></div>
		<div id="chat"><button id="b" style="left:30px;top:0px;width:20px;height:20px">B</button></div>
		<div class="theia-nohighlight"><button id="c" style="left:60px;top:0px;width:20px;height:20px">C</button></div>`)
	svc := dom.NewService(&swapSource{cur: d},
		dom.WithOptOutClasses("chrome"),
		dom.WithExcludeIDs("chat"),
	)

	opts := dom.LayoutOptions()
	opts.OptOutClasses = nil
	st, err := svc.ClickableElements(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c": 0}, indexed(st.SelectorMap))
}

func TestServiceCaptureError(t *testing.T) {
	boom := errors.New("tab closed")
	svc := dom.NewService(&swapSource{err: boom})

	_, err := svc.Layout(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, svc.LastState())
}

type countingSource struct {
	swapSource
	n int64
}

func (s *countingSource) Mutations() int64 { return s.n }

func TestServiceLayoutAge(t *testing.T) {
	src := &countingSource{swapSource: swapSource{cur: page(t, toolbar)}, n: 10}
	svc := dom.NewService(src)

	_, err := svc.LayoutAge()
	assert.ErrorIs(t, err, dom.ErrNoSnapshot)

	_, err = svc.Layout(context.Background())
	require.NoError(t, err)
	age, err := svc.LayoutAge()
	require.NoError(t, err)
	assert.Zero(t, age)

	src.n = 17
	age, err = svc.LayoutAge()
	require.NoError(t, err)
	assert.Equal(t, int64(7), age)

	plain := dom.NewService(&swapSource{cur: page(t, toolbar)})
	_, err = plain.Layout(context.Background())
	require.NoError(t, err)
	age, err = plain.LayoutAge()
	require.NoError(t, err)
	assert.Zero(t, age)
}
