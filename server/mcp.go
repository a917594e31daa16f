// Package server exposes the guide tools over MCP and plain HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/anxuanzi/bua-teacher/agent"
	"github.com/anxuanzi/bua-teacher/guide"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// MCP serves the guide tools to MCP clients.
type MCP struct {
	guide *guide.Guide
	log   *zap.Logger
	mcp   *mcpserver.MCPServer
}

// NewMCP creates an MCP server with all guide tools registered.
func NewMCP(g *guide.Guide, logger *zap.Logger) *MCP {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MCP{
		guide: g,
		log:   logger,
		mcp:   mcpserver.NewMCPServer("bua-teacher", Version),
	}
	s.registerTools()
	return s
}

// Server returns the underlying MCP server.
func (s *MCP) Server() *mcpserver.MCPServer { return s.mcp }

// Serve runs the server on stdio or streamable-http until it fails or ctx is done.
func (s *MCP) Serve(ctx context.Context, transport, addr string) error {
	switch transport {
	case "stdio":
		return mcpserver.ServeStdio(s.mcp)
	case "streamable-http":
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
		errc := make(chan error, 1)
		go func() { errc <- httpServer.Start(addr) }()
		s.log.Info("mcp server listening", zap.String("addr", addr))
		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			if err := httpServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
				return fmt.Errorf("failed to shut down mcp server: %w", err)
			}
			return nil
		}
	default:
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", transport)
	}
}

func (s *MCP) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool(agent.GetLayoutTool,
			mcp.WithDescription("Get the current layout of the IDE: every element the user can interact with, each with a highlightIndex."),
		),
		s.handleGetLayout,
	)

	s.mcp.AddTool(
		mcp.NewTool(agent.HighlightByIndexTool,
			mcp.WithDescription("Highlight the element with the given highlightIndex from the latest layout. Returns once the user clicked it."),
			mcp.WithNumber("highlight_index", mcp.Description("The highlightIndex from the latest layout"), mcp.Required()),
		),
		s.handleHighlightByIndex,
	)

	s.mcp.AddTool(
		mcp.NewTool(agent.HighlightWidgetTool,
			mcp.WithDescription("Highlight a widget in the IDE, based on its factoryId and options. After this is called, the widget will be highlighted."),
			mcp.WithString("factory_id", mcp.Description("Widget factory id"), mcp.Required()),
			mcp.WithObject("options", mcp.Description("Widget construction options; an id or name selects one instance")),
		),
		s.handleHighlightWidget,
	)

	s.mcp.AddTool(
		mcp.NewTool(agent.HighlightHTMLElementTool,
			mcp.WithDescription("Highlight an HTML element inside a widget, by the widget's factoryId and options and a CSS selector."),
			mcp.WithString("parent_widget_factory_id", mcp.Description("Factory id of the containing widget"), mcp.Required()),
			mcp.WithObject("parent_widget_options", mcp.Description("Construction options of the containing widget")),
			mcp.WithString("css_selector", mcp.Description("CSS selector of the element"), mcp.Required()),
		),
		s.handleHighlightHTMLElement,
	)
}

func (s *MCP) handleGetLayout(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l, err := s.guide.Layout(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(l)
}

func (s *MCP) handleHighlightByIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	index, ok := intParam(params, "highlight_index")
	if !ok {
		return mcp.NewToolResultError("highlight_index is required"), nil
	}
	res, err := s.guide.HighlightByIndex(ctx, index)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *MCP) handleHighlightWidget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	res, err := s.guide.HighlightWidget(ctx, stringParam(params, "factory_id"), objectParam(params, "options"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *MCP) handleHighlightHTMLElement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	res, err := s.guide.HighlightElement(ctx,
		stringParam(params, "parent_widget_factory_id"),
		objectParam(params, "parent_widget_options"),
		stringParam(params, "css_selector"),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func objectParam(params map[string]any, key string) map[string]any {
	m, _ := params[key].(map[string]any)
	return m
}
