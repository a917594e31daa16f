package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anxuanzi/bua-teacher/dom"
)

// Tab is one browser tab. It is a dom.Source, and it counts DOM mutations so
// callers can tell how stale the last capture is.
type Tab struct {
	Page *rod.Page

	ev        evaluator
	log       *zap.Logger
	timeout   time.Duration
	mutations atomic.Int64
	tracking  atomic.Bool

	overlay *Overlay
	pulser  *Pulser
}

// NewTab wraps an open page. timeout bounds each script evaluation.
func NewTab(page *rod.Page, timeout time.Duration, logger *zap.Logger) *Tab {
	if logger == nil {
		logger = zap.NewNop()
	}
	ev := rodEvaluator{page: page}
	return &Tab{
		Page:    page,
		ev:      ev,
		log:     logger,
		timeout: timeout,
		overlay: newOverlay(ev, timeout),
		pulser:  newPulser(ev, ev, logger),
	}
}

// Overlay returns the tab's highlight overlay.
func (t *Tab) Overlay() *Overlay { return t.overlay }

// Pulser returns the tab's pulse effect.
func (t *Tab) Pulser() *Pulser { return t.pulser }

// Capture collects the document, its shadow roots and same-origin frames.
// Layout metrics are read alongside and used when the window reports no size.
func (t *Tab) Capture(ctx context.Context) (dom.Page, error) {
	gen := uuid.NewString()

	var (
		data    string
		metrics *proto.PageGetLayoutMetricsResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := t.ev.evalString(gctx, collectJS, gen, handlerTypes)
		if err != nil {
			return fmt.Errorf("browser: collect dom: %w", err)
		}
		data = s
		return nil
	})
	g.Go(func() error {
		m, err := proto.PageGetLayoutMetrics{}.Call(t.Page.Context(gctx))
		if err != nil {
			t.log.Debug("layout metrics unavailable", zap.Error(err))
			return nil
		}
		metrics = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p, err := decodeCapture(ctx, t.ev, gen, []byte(data))
	if err != nil {
		return nil, err
	}
	if (p.viewport.Width == 0 || p.viewport.Height == 0) && metrics != nil && metrics.CSSLayoutViewport != nil {
		p.viewport = dom.Viewport{
			Width:  float64(metrics.CSSLayoutViewport.ClientWidth),
			Height: float64(metrics.CSSLayoutViewport.ClientHeight),
		}
	}

	t.log.Debug("captured page", zap.Int("nodes", len(p.nodes)), zap.Int("scopes", len(p.scopes)))
	return p, nil
}

// Navigate loads pageURL in the tab. A page that never finishes loading is
// logged and kept.
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	page := t.Page.Context(ctx)
	if err := page.Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		t.log.Warn("wait load timed out", zap.String("url", pageURL), zap.Error(err))
	}
	return nil
}

// Screenshot captures the visible viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := t.Page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

// TrackMutations starts counting DOM mutations until ctx is done. The whole
// tree is requested first; the browser only reports mutations of nodes it
// has sent.
func (t *Tab) TrackMutations(ctx context.Context) error {
	if !t.tracking.CompareAndSwap(false, true) {
		return nil
	}

	page := t.Page.Context(ctx)
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(page); err != nil {
		t.tracking.Store(false)
		return fmt.Errorf("browser: DOM.getDocument: %w", err)
	}

	wait := page.EachEvent(
		func(*proto.DOMChildNodeInserted) { t.mutations.Add(1) },
		func(*proto.DOMChildNodeRemoved) { t.mutations.Add(1) },
		func(*proto.DOMAttributeModified) { t.mutations.Add(1) },
		func(*proto.DOMDocumentUpdated) { t.mutations.Add(1) },
	)
	go func() {
		wait()
		t.tracking.Store(false)
	}()
	return nil
}

// Mutations returns the number of mutations counted so far.
func (t *Tab) Mutations() int64 { return t.mutations.Load() }

// Close closes the tab.
func (t *Tab) Close() error {
	t.release()
	return t.Page.Close()
}

func (t *Tab) release() {
	t.pulser.Close()
}

// rodEvaluator runs scripts on a rod page.
type rodEvaluator struct {
	page *rod.Page
}

func (e rodEvaluator) evalString(ctx context.Context, js string, args ...any) (string, error) {
	res, err := e.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e rodEvaluator) evalInt(ctx context.Context, js string, args ...any) (int, error) {
	res, err := e.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// listenerTypes resolves the script result to a remote object and lists the
// event listeners attached to it.
func (e rodEvaluator) listenerTypes(ctx context.Context, js string, args ...any) ([]string, error) {
	page := e.page.Context(ctx)
	obj, err := page.Evaluate(rod.Eval(js, args...).ByObject())
	if err != nil {
		return nil, err
	}
	if obj.ObjectID == "" {
		return nil, fmt.Errorf("script returned %s, not an object", obj.Type)
	}
	defer func() { _ = proto.RuntimeReleaseObject{ObjectID: obj.ObjectID}.Call(page) }()

	res, err := proto.DOMDebuggerGetEventListeners{ObjectID: obj.ObjectID}.Call(page)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(res.Listeners))
	for _, l := range res.Listeners {
		types = append(types, l.Type)
	}
	return types, nil
}

// bind exposes a page binding and calls fn for every call until ctx is done.
func (e rodEvaluator) bind(ctx context.Context, name string, fn func(payload string)) (func(), error) {
	page := e.page.Context(ctx)
	if err := (proto.RuntimeAddBinding{Name: name}).Call(page); err != nil {
		return nil, err
	}
	wait := page.EachEvent(func(ev *proto.RuntimeBindingCalled) {
		if ev.Name == name {
			fn(ev.Payload)
		}
	})
	return wait, nil
}
