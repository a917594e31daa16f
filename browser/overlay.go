package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/anxuanzi/bua-teacher/dom"
)

const overlayJS = `(containerId, gen, id, frameId, index, color, background, rect, label) => {
	const reg = window.__buaTeacher;
	const current = reg && reg.gen === gen;
	const live = current && id >= 0 ? reg.nodes[id] : null;
	const frame = current && frameId >= 0 ? reg.nodes[frameId] : null;

	let container = document.getElementById(containerId);
	if (!container) {
		container = document.createElement('div');
		container.id = containerId;
		Object.assign(container.style, {
			position: 'fixed', pointerEvents: 'none', top: '0', left: '0',
			width: '100%', height: '100%', zIndex: '2147483647',
		});
		document.body.appendChild(container);
	}

	const box = document.createElement('div');
	Object.assign(box.style, {
		position: 'fixed', pointerEvents: 'none', boxSizing: 'border-box',
		border: label.border + 'px solid ' + color, backgroundColor: background,
	});
	const tag = document.createElement('div');
	tag.className = 'playwright-highlight-label';
	Object.assign(tag.style, {
		position: 'fixed', background: color, color: 'white', padding: '1px 4px',
		borderRadius: '4px', width: label.width + 'px', height: label.height + 'px',
		boxSizing: 'border-box', textAlign: 'center', lineHeight: label.height + 'px',
	});
	tag.textContent = String(index);
	container.appendChild(box);
	container.appendChild(tag);

	const place = () => {
		let r = rect;
		if (live && live.isConnected) {
			const b = live.getBoundingClientRect();
			r = { x: b.left, y: b.top, width: b.width, height: b.height };
			if (frame && frame.isConnected) {
				const f = frame.getBoundingClientRect();
				r.x += f.left;
				r.y += f.top;
			}
		}
		box.style.left = r.x + 'px';
		box.style.top = r.y + 'px';
		box.style.width = r.width + 'px';
		box.style.height = r.height + 'px';

		let top = r.y + 2;
		let left = r.x + r.width - label.width - 2;
		if (r.width < label.width + 4 || r.height < label.height + 4) {
			top = r.y - label.height - 2;
			left = r.x + r.width - label.width;
		}
		tag.style.top = top + 'px';
		tag.style.left = left + 'px';
		tag.style.fontSize = Math.min(12, Math.max(8, r.height / 2)) + 'px';
	};
	place();

	window.addEventListener('scroll', place, true);
	window.addEventListener('resize', place);
	(window.__buaTeacherOverlay = window.__buaTeacherOverlay || []).push(place);
	return '';
}`

const clearOverlayJS = `(containerId) => {
	const container = document.getElementById(containerId);
	if (container) container.remove();
	for (const place of window.__buaTeacherOverlay || []) {
		window.removeEventListener('scroll', place, true);
		window.removeEventListener('resize', place);
	}
	window.__buaTeacherOverlay = [];
	return '';
}`

type labelGeometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Border int `json:"border"`
}

// Overlay draws numbered highlight boxes into the page. It implements
// dom.Highlighter. Boxes follow their element on scroll and resize.
type Overlay struct {
	ev      evaluator
	timeout time.Duration
}

func newOverlay(ev evaluator, timeout time.Duration) *Overlay {
	return &Overlay{ev: ev, timeout: timeout}
}

// Highlight draws one box.
func (o *Overlay) Highlight(t dom.HighlightTarget) error {
	gen, id, frameID := "", -1, -1
	if n, ok := t.Node.(*node); ok && !n.orphan {
		gen, id = n.page.gen, n.id
	}
	if f, ok := t.Frame.(*node); ok && !f.orphan {
		frameID = f.id
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	_, err := o.ev.evalString(ctx, overlayJS,
		dom.OverlayContainerID, gen, id, frameID, t.Index,
		dom.ColorFor(t.Index), dom.BackgroundFor(t.Index), t.Rect,
		labelGeometry{Width: dom.LabelWidth, Height: dom.LabelHeight, Border: dom.BorderWidth},
	)
	if err != nil {
		return fmt.Errorf("browser: highlight %d: %w", t.Index, err)
	}
	return nil
}

// Clear removes every box and its listeners.
func (o *Overlay) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if _, err := o.ev.evalString(ctx, clearOverlayJS, dom.OverlayContainerID); err != nil {
		return fmt.Errorf("browser: clear overlay: %w", err)
	}
	return nil
}
