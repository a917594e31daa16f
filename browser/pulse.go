package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PulseClass is the class that animates a pulsing element.
const PulseClass = "pulse-element"

// CurrentWidgetClass marks the active tab of a dock panel.
const CurrentWidgetClass = "p-mod-current"

const bindingName = "__buaTeacherSelected"

const pulseCSS = `@keyframes bua-teacher-pulse {
	0% { box-shadow: 0 0 0 0 rgba(0, 122, 204, 0.7); }
	70% { box-shadow: 0 0 0 10px rgba(0, 122, 204, 0); }
	100% { box-shadow: 0 0 0 0 rgba(0, 122, 204, 0); }
}
.pulse-element {
	animation: bua-teacher-pulse 1.5s infinite;
	outline: 2px solid #007acc !important;
	outline-offset: -2px;
}`

const locateJS = `const locate = (t) => {
		if (t.xpath) {
			let root = document;
			const find = (path) => {
				const doc = root.nodeType === Node.DOCUMENT_NODE ? root : root.ownerDocument;
				return doc.evaluate(path, root, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			};
			for (const path of t.hosts || []) {
				const host = find(path);
				if (!host) return null;
				if (host.tagName === 'IFRAME' || host.tagName === 'FRAME') {
					let doc = null;
					try { doc = host.contentDocument; } catch (e) {}
					if (!doc) return null;
					root = doc;
				} else {
					if (!host.shadowRoot) return null;
					root = host.shadowRoot;
				}
			}
			return find(t.xpath);
		}
		let root = document;
		if (t.within) {
			root = document.querySelector(t.within);
			if (!root) return null;
		}
		return root.querySelector(t.selector);
	};`

const pulseStartJS = `(t, css, token, binding, cls) => {
	` + locateJS + `
	const el = locate(t);
	if (!el) return 0;
	const pulses = window.__buaTeacherPulses = window.__buaTeacherPulses || new Map();
	const current = pulses.get(el);
	if (current) {
		current.token = token;
		return 2;
	}
	if (!document.getElementById('bua-teacher-pulse-style')) {
		const style = document.createElement('style');
		style.id = 'bua-teacher-pulse-style';
		style.textContent = css;
		(document.head || document.documentElement).appendChild(style);
	}
	el.classList.add(cls);
	let observer = null;
	const entry = { token };
	const onClick = () => entry.finish(true);
	entry.finish = (selected) => {
		el.classList.remove(cls);
		el.removeEventListener('click', onClick, true);
		if (observer) observer.disconnect();
		pulses.delete(el);
		if (selected && typeof window[binding] === 'function') window[binding](entry.token);
	};
	el.addEventListener('click', onClick, true);
	if (t.stopClass) {
		observer = new MutationObserver(() => {
			if (el.classList.contains(t.stopClass)) entry.finish(true);
		});
		observer.observe(el, { attributes: true, attributeFilter: ['class'] });
	}
	pulses.set(el, entry);
	return 1;
}`

const pulseStopJS = `(t, cls) => {
	` + locateJS + `
	const el = locate(t);
	if (!el) return 0;
	const pulses = window.__buaTeacherPulses;
	if (pulses && pulses.has(el)) {
		pulses.get(el).finish(false);
		return 1;
	}
	el.classList.remove(cls);
	return 0;
}`

const pulseActiveJS = `(t, cls) => {
	` + locateJS + `
	const el = locate(t);
	return el && el.classList.contains(cls) ? 1 : 0;
}`

// Target is something that can pulse: an element by locator, a widget tab,
// or an element inside a widget.
type Target struct {
	XPath     string   `json:"xpath,omitempty"`
	Hosts     []string `json:"hosts,omitempty"`
	Selector  string   `json:"selector,omitempty"`
	Within    string   `json:"within,omitempty"`
	StopClass string   `json:"stopClass,omitempty"`
}

// ElementTarget targets the element at xpath. Hosts lead from the top
// document through frame elements and shadow hosts to the element's scope.
func ElementTarget(xpath string, hosts ...string) Target {
	return Target{XPath: xpath, Hosts: hosts}
}

func (t Target) String() string {
	switch {
	case t.XPath != "" && len(t.Hosts) > 0:
		return "xpath:" + strings.Join(t.Hosts, " >> ") + " >> " + t.XPath
	case t.XPath != "":
		return "xpath:" + t.XPath
	case t.Within != "":
		return t.Within + " " + t.Selector
	default:
		return t.Selector
	}
}

// WidgetSelectors map widget ids to the DOM nodes of the IDE shell.
type WidgetSelectors struct {
	// Tab formats the selector of a widget's title tab.
	Tab string

	// Node formats the selector of a widget's content node.
	Node string
}

// DefaultWidgetSelectors returns the selectors of the Theia shell.
func DefaultWidgetSelectors() WidgetSelectors {
	return WidgetSelectors{Tab: "#shell-tab-%s", Node: "#%s"}
}

// WidgetID derives the shell id of a widget from its factory id and
// construction options. An id or name option is appended as ":value".
func WidgetID(factoryID string, options map[string]any) string {
	for _, key := range []string{"id", "name"} {
		if v, ok := options[key]; ok && v != nil && fmt.Sprint(v) != "" {
			return factoryID + ":" + fmt.Sprint(v)
		}
	}
	return factoryID
}

// Widget targets the title tab of a widget. The pulse ends when the widget
// becomes current or its tab is clicked.
func (w WidgetSelectors) Widget(factoryID string, options map[string]any) Target {
	return Target{
		Selector:  fmt.Sprintf(w.Tab, cssEscape(WidgetID(factoryID, options))),
		StopClass: CurrentWidgetClass,
	}
}

// Element targets the first match of css inside a widget.
func (w WidgetSelectors) Element(factoryID string, options map[string]any, css string) Target {
	return Target{
		Selector: css,
		Within:   fmt.Sprintf(w.Node, cssEscape(WidgetID(factoryID, options))),
	}
}

// cssEscape escapes the characters of a widget id that are special in an id selector.
func cssEscape(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch r {
		case ':', '.', '/', '#', '[', ']', '(', ')', ' ', '"', '\'', ',', '+', '~', '>', '=', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

type binder interface {
	bind(ctx context.Context, name string, fn func(payload string)) (wait func(), err error)
}

type pulse struct {
	token string
	once  sync.Once
	err   error
	done  chan struct{}
}

func (pl *pulse) finish(err error) {
	pl.once.Do(func() {
		pl.err = err
		close(pl.done)
	})
}

// Pulser pulses page elements until the user selects them.
type Pulser struct {
	ev  evaluator
	b   binder
	log *zap.Logger

	mu      sync.Mutex
	active  map[string]*pulse
	settled map[string]*pulse
	byToken map[string]string
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newPulser(ev evaluator, b binder, logger *zap.Logger) *Pulser {
	return &Pulser{
		ev:      ev,
		b:       b,
		log:     logger,
		active:  make(map[string]*pulse),
		settled: make(map[string]*pulse),
		byToken: make(map[string]string),
	}
}

// Pulse script results.
const (
	pulseMissing = 0
	pulseStarted = 1
	pulseAdopted = 2
)

// Start makes the target pulse. Starting a target that already pulses is a
// no-op. A pulse left in the page by an earlier session is adopted: its next
// selection is reported to this Pulser.
func (p *Pulser) Start(ctx context.Context, t Target) error {
	if err := p.listen(); err != nil {
		return fmt.Errorf("browser: pulse binding: %w", err)
	}

	key := t.String()
	p.mu.Lock()
	if _, ok := p.active[key]; ok {
		p.mu.Unlock()
		return nil
	}
	pl := &pulse{token: uuid.NewString(), done: make(chan struct{})}
	delete(p.settled, key)
	p.active[key] = pl
	p.byToken[pl.token] = key
	p.mu.Unlock()

	res, err := p.ev.evalInt(ctx, pulseStartJS, t, pulseCSS, pl.token, bindingName, PulseClass)
	switch {
	case err != nil:
		err = fmt.Errorf("browser: pulse %s: %w", key, err)
	case res == pulseMissing:
		err = fmt.Errorf("%w: %s", ErrTargetNotFound, key)
	case res == pulseAdopted:
		p.log.Debug("pulse adopted", zap.String("target", key))
		return nil
	case res != pulseStarted:
		err = fmt.Errorf("browser: pulse %s: unexpected result %d", key, res)
	default:
		p.log.Debug("pulse started", zap.String("target", key))
		return nil
	}
	p.forget(key, false)
	pl.finish(err)
	return err
}

// WaitSelected blocks until the user selects a pulsing target, the pulse is
// stopped, or ctx is done.
func (p *Pulser) WaitSelected(ctx context.Context, t Target) error {
	key := t.String()
	p.mu.Lock()
	pl, ok := p.active[key]
	if !ok {
		pl, ok = p.settled[key]
		delete(p.settled, key)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPulsing, key)
	}

	select {
	case <-pl.done:
		return pl.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the pulse of a target. Waiters receive ErrPulseStopped.
func (p *Pulser) Stop(ctx context.Context, t Target) error {
	key := t.String()
	if pl := p.forget(key, true); pl != nil {
		pl.finish(ErrPulseStopped)
	}
	if _, err := p.ev.evalInt(ctx, pulseStopJS, t, PulseClass); err != nil {
		return fmt.Errorf("browser: stop pulse %s: %w", key, err)
	}
	return nil
}

// IsActive reports whether the target currently carries the pulse class.
func (p *Pulser) IsActive(ctx context.Context, t Target) (bool, error) {
	res, err := p.ev.evalInt(ctx, pulseActiveJS, t, PulseClass)
	if err != nil {
		return false, fmt.Errorf("browser: pulse state %s: %w", t, err)
	}
	return res == 1, nil
}

// Active lists the targets pulsing right now.
func (p *Pulser) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.active))
	for k := range p.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close stops listening for selections and releases every waiter.
func (p *Pulser) Close() {
	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.cancel, p.stopped = nil, nil
	pending := p.active
	p.active = make(map[string]*pulse)
	p.byToken = make(map[string]string)
	for key, pl := range pending {
		p.settled[key] = pl
	}
	p.mu.Unlock()

	for _, pl := range pending {
		pl.finish(ErrPulseStopped)
	}
	if cancel != nil {
		cancel()
		<-stopped
	}
}

func (p *Pulser) listen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	wait, err := p.b.bind(ctx, bindingName, p.selected)
	if err != nil {
		cancel()
		return err
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		wait()
	}()
	p.cancel, p.stopped = cancel, stopped
	return nil
}

func (p *Pulser) selected(token string) {
	p.mu.Lock()
	key, ok := p.byToken[token]
	var pl *pulse
	if ok {
		pl = p.active[key]
		delete(p.active, key)
		delete(p.byToken, token)
		p.settled[key] = pl
	}
	p.mu.Unlock()

	if pl != nil {
		p.log.Debug("pulse target selected", zap.String("target", key))
		pl.finish(nil)
	}
}

// forget drops an active pulse. A settled pulse stays readable by WaitSelected.
func (p *Pulser) forget(key string, settle bool) *pulse {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.active[key]
	if !ok {
		return nil
	}
	delete(p.active, key)
	delete(p.byToken, pl.token)
	if settle {
		p.settled[key] = pl
	}
	return pl
}
