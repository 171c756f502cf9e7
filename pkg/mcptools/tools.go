// Package mcptools exposes the daemon's mode and status as MCP tools so an
// assistant can pause or force charging.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
)

const (
	toolGetMode   = "get_mode"
	toolSetMode   = "set_mode"
	toolGetStatus = "get_status"
)

// Backend is the part of the daemon the tools drive.
type Backend interface {
	ModeInfo() types.ModeInfo
	SetMode(m mode.Mode, d time.Duration) types.ModeInfo
	Status() types.Status
}

// Registration pairs a tool definition with its handler.
type Registration struct {
	Tool    mcp.Tool
	Handler server.ToolHandlerFunc
}

func Tools(b Backend) []Registration {
	return []Registration{
		getMode(b),
		setMode(b),
		getStatus(b),
	}
}

// NewServer builds an MCP server with every registration added.
func NewServer(version string, registrations []Registration) *server.MCPServer {
	s := server.NewMCPServer("battplug", version, server.WithToolCapabilities(false))
	for _, r := range registrations {
		s.AddTool(r.Tool, r.Handler)
	}
	return s
}

// Handler serves s over streamable HTTP.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}

func getMode(b Backend) Registration {
	tool := mcp.NewTool(toolGetMode,
		mcp.WithDescription("Get the current charging mode and how long an override has left."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(b.ModeInfo()), nil
	}

	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func setMode(b Backend) Registration {
	tool := mcp.NewTool(toolSetMode,
		mcp.WithDescription("Set the charging mode. Overrides other than normal may expire after a duration."),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("One of normal, pause, force-on, force-off."),
		),
		mcp.WithString("duration",
			mcp.Description("How long the override lasts, e.g. 30m or 2h. Empty means until changed."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		m, err := mode.Parse(req.GetString("mode", ""))
		if err != nil {
			return errorResult(err.Error()), nil
		}

		var d time.Duration
		if s := req.GetString("duration", ""); s != "" {
			d, err = time.ParseDuration(s)
			if err != nil {
				return errorResult(fmt.Sprintf("invalid duration %q", s)), nil
			}
			if d < 0 {
				return errorResult("duration must not be negative"), nil
			}
		}

		logrus.WithFields(logrus.Fields{"mode": m, "duration": d.String()}).Info("mode set through mcp")
		return jsonResult(b.SetMode(m, d)), nil
	}

	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func getStatus(b Backend) Registration {
	tool := mcp.NewTool(toolGetStatus,
		mcp.WithDescription("Get battery charge, plug state, mode, thresholds and calibration progress."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(b.Status()), nil
	}

	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

func errorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultText(fmt.Sprintf("error: %s", msg))
}
