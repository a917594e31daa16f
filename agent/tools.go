package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/anxuanzi/bua-teacher/guide"
)

// toolset holds the handlers behind the teacher tools. Failures are reported
// in the output so the model can react to them.
type toolset struct {
	guide *guide.Guide
	log   *zap.Logger
}

func (ts *toolset) getLayout(ctx context.Context, _ GetLayoutInput) (GetLayoutOutput, error) {
	l, err := ts.guide.Layout(ctx)
	if err != nil {
		ts.log.Warn("get_layout failed", zap.Error(err))
		return GetLayoutOutput{Error: err.Error()}, nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return GetLayoutOutput{Error: err.Error()}, nil
	}
	return GetLayoutOutput{
		Success:    true,
		SnapshotID: l.SnapshotID,
		Elements:   len(l.Highlightable),
		Layout:     string(data),
	}, nil
}

func (ts *toolset) highlightByIndex(ctx context.Context, in HighlightByIndexInput) (HighlightOutput, error) {
	ts.log.Info("highlight_by_index", zap.Int("index", in.HighlightIndex))
	res, err := ts.guide.HighlightByIndex(ctx, in.HighlightIndex)
	return highlightOutput(res, err), nil
}

func (ts *toolset) highlightWidget(ctx context.Context, in HighlightWidgetInput) (HighlightOutput, error) {
	ts.log.Info("highlight_widget", zap.String("factory_id", in.FactoryID))
	res, err := ts.guide.HighlightWidget(ctx, in.FactoryID, in.Options)
	return highlightOutput(res, err), nil
}

func (ts *toolset) highlightHTMLElement(ctx context.Context, in HighlightHTMLElementInput) (HighlightOutput, error) {
	ts.log.Info("highlight_html_element",
		zap.String("factory_id", in.ParentWidgetFactoryID),
		zap.String("selector", in.CSSSelector),
	)
	res, err := ts.guide.HighlightElement(ctx, in.ParentWidgetFactoryID, in.ParentWidgetOptions, in.CSSSelector)
	return highlightOutput(res, err), nil
}

func highlightOutput(res *guide.Result, err error) HighlightOutput {
	if err != nil {
		return HighlightOutput{Error: err.Error()}
	}
	return HighlightOutput{Success: res.Success, Directions: res.Directions}
}

// Tools creates the function tools of the teacher agent.
func Tools(g *guide.Guide, logger *zap.Logger) ([]tool.Tool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ts := &toolset{guide: g, log: logger}
	var tools []tool.Tool

	layoutTool, err := functiontool.New(
		functiontool.Config{
			Name:        GetLayoutTool,
			Description: "Get the current layout of the IDE: every element the user can interact with, each with the highlightIndex to pass to " + HighlightByIndexTool + ".",
		},
		func(ctx tool.Context, in GetLayoutInput) (GetLayoutOutput, error) { return ts.getLayout(ctx, in) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tool: %w", GetLayoutTool, err)
	}
	tools = append(tools, layoutTool)

	indexTool, err := functiontool.New(
		functiontool.Config{
			Name:        HighlightByIndexTool,
			Description: "Highlight the element with the given highlightIndex from the latest layout. Returns once the user clicked the element.",
		},
		func(ctx tool.Context, in HighlightByIndexInput) (HighlightOutput, error) {
			return ts.highlightByIndex(ctx, in)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tool: %w", HighlightByIndexTool, err)
	}
	tools = append(tools, indexTool)

	widgetTool, err := functiontool.New(
		functiontool.Config{
			Name:        HighlightWidgetTool,
			Description: "Highlight a widget in the IDE, based on the layout's factoryId and options. After this is called, the widget will be highlighted.",
		},
		func(ctx tool.Context, in HighlightWidgetInput) (HighlightOutput, error) {
			return ts.highlightWidget(ctx, in)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tool: %w", HighlightWidgetTool, err)
	}
	tools = append(tools, widgetTool)

	elementTool, err := functiontool.New(
		functiontool.Config{
			Name:        HighlightHTMLElementTool,
			Description: "Highlight an HTML element inside a widget, based on the widget's factoryId and options and a CSS selector. After this is called, the element will be highlighted.",
		},
		func(ctx tool.Context, in HighlightHTMLElementInput) (HighlightOutput, error) {
			return ts.highlightHTMLElement(ctx, in)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tool: %w", HighlightHTMLElementTool, err)
	}
	tools = append(tools, elementTool)

	return tools, nil
}

// Tool input/output types

type GetLayoutInput struct{}

type GetLayoutOutput struct {
	Success    bool   `json:"success"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Elements   int    `json:"elements"`
	Layout     string `json:"layout,omitempty" jsonschema:"JSON object with a highlightable list of interactive elements"`
	Error      string `json:"error,omitempty"`
}

type HighlightByIndexInput struct {
	HighlightIndex int `json:"highlight_index" jsonschema:"The highlightIndex of the element, from the latest layout"`
}

type HighlightWidgetInput struct {
	FactoryID string         `json:"factory_id" jsonschema:"The factory id of the widget, for example explorer-view-container or terminal"`
	Options   map[string]any `json:"options,omitempty" jsonschema:"Widget construction options; an id or name option selects one instance"`
}

type HighlightHTMLElementInput struct {
	ParentWidgetFactoryID string         `json:"parent_widget_factory_id" jsonschema:"The factory id of the widget containing the element"`
	ParentWidgetOptions   map[string]any `json:"parent_widget_options,omitempty" jsonschema:"Construction options of the parent widget"`
	CSSSelector           string         `json:"css_selector" jsonschema:"CSS selector of the element inside the widget"`
}

type HighlightOutput struct {
	Success    bool   `json:"success"`
	Directions string `json:"directions,omitempty"`
	Error      string `json:"error,omitempty"`
}
