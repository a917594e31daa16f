// Package guide turns layout indices and widget ids into pulsing hints the
// user follows with their own clicks.
package guide

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/anxuanzi/bua-teacher/browser"
	"github.com/anxuanzi/bua-teacher/dom"
)

const (
	// ClickedDirections is returned once the user clicked a highlighted element.
	ClickedDirections = "User has clicked on the element, please provide further directions based on any changes to the layout."

	// WidgetDirections is returned once a widget tab pulses.
	WidgetDirections = "The widget is highlighted. It stays highlighted until the user opens it."

	// ElementDirections is returned once an element inside a widget pulses.
	ElementDirections = "The element is highlighted. It stays highlighted until the user clicks it."
)

// Pulser is the pulse effect of a page. *browser.Pulser implements it.
type Pulser interface {
	Start(ctx context.Context, t browser.Target) error
	Stop(ctx context.Context, t browser.Target) error
	IsActive(ctx context.Context, t browser.Target) (bool, error)
	WaitSelected(ctx context.Context, t browser.Target) error
}

// Result is what a highlight returns to the agent.
type Result struct {
	Success    bool   `json:"success"`
	Directions string `json:"directions,omitempty"`
	Target     string `json:"target,omitempty"`
}

// Guide highlights layout elements and IDE widgets.
type Guide struct {
	svc     *dom.Service
	pulser  Pulser
	widgets browser.WidgetSelectors
	log     *zap.Logger
}

// Option configures a Guide.
type Option func(*Guide)

// WithWidgetSelectors replaces the default shell selectors.
func WithWidgetSelectors(w browser.WidgetSelectors) Option {
	return func(g *Guide) { g.widgets = w }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guide) { g.log = l }
}

// New creates a Guide over a layout service and a pulse effect.
func New(svc *dom.Service, p Pulser, opts ...Option) *Guide {
	g := &Guide{
		svc:     svc,
		pulser:  p,
		widgets: browser.DefaultWidgetSelectors(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Service returns the layout service.
func (g *Guide) Service() *dom.Service { return g.svc }

// Layout extracts the current layout. Indices in the result are valid for
// HighlightByIndex until the next extraction.
func (g *Guide) Layout(ctx context.Context) (*dom.Layout, error) {
	l, err := g.svc.Layout(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get layout: %w", err)
	}
	g.log.Debug("layout extracted", zap.String("snapshot", l.SnapshotID), zap.Int("elements", len(l.Highlightable)))
	return l, nil
}

// HighlightByIndex pulses the element with the given index of the latest
// layout and blocks until the user clicks it or ctx is done.
func (g *Guide) HighlightByIndex(ctx context.Context, index int) (*Result, error) {
	el, err := g.svc.Resolve(ctx, index)
	if err != nil {
		return nil, err
	}

	t := browser.ElementTarget(el.XPath, el.Hosts...)
	if err := g.pulser.Start(ctx, t); err != nil {
		if errors.Is(err, browser.ErrTargetNotFound) {
			return nil, fmt.Errorf("element with xpath %s not found, the layout tool needs to be rerun: %w", el.XPath, dom.ErrStaleSelector)
		}
		return nil, fmt.Errorf("failed to highlight element %d: %w", index, err)
	}
	g.log.Info("waiting for click", zap.Int("index", index), zap.String("xpath", el.XPath))

	if err := g.pulser.WaitSelected(ctx, t); err != nil {
		if serr := g.pulser.Stop(context.WithoutCancel(ctx), t); serr != nil {
			g.log.Warn("failed to stop pulse", zap.String("xpath", el.XPath), zap.Error(serr))
		}
		return nil, fmt.Errorf("failed to wait for click on element %d: %w", index, err)
	}

	return &Result{Success: true, Directions: ClickedDirections, Target: t.String()}, nil
}

// HighlightWidget pulses the title tab of a widget. The pulse ends when the
// widget becomes current or its tab is clicked; the call does not wait.
func (g *Guide) HighlightWidget(ctx context.Context, factoryID string, options map[string]any) (*Result, error) {
	if factoryID == "" {
		return nil, errors.New("factory id is required")
	}
	t := g.widgets.Widget(factoryID, options)
	if err := g.pulser.Start(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to highlight widget %s: %w", browser.WidgetID(factoryID, options), err)
	}
	return &Result{Success: true, Directions: WidgetDirections, Target: t.String()}, nil
}

// HighlightElement pulses the first match of css inside a widget.
func (g *Guide) HighlightElement(ctx context.Context, factoryID string, options map[string]any, css string) (*Result, error) {
	if factoryID == "" || css == "" {
		return nil, errors.New("parent widget factory id and css selector are required")
	}
	t := g.widgets.Element(factoryID, options, css)
	if err := g.pulser.Start(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to highlight %s: %w", t, err)
	}
	return &Result{Success: true, Directions: ElementDirections, Target: t.String()}, nil
}

// StopWidget ends the pulse of a widget tab.
func (g *Guide) StopWidget(ctx context.Context, factoryID string, options map[string]any) error {
	return g.pulser.Stop(ctx, g.widgets.Widget(factoryID, options))
}

// WidgetHighlighted reports whether a widget tab pulses.
func (g *Guide) WidgetHighlighted(ctx context.Context, factoryID string, options map[string]any) (bool, error) {
	return g.pulser.IsActive(ctx, g.widgets.Widget(factoryID, options))
}
