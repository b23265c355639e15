// Package mcpserver exposes the analysis tool registry over the Model Context
// Protocol, so desktop assistants can call the same geodata and risk tools
// the in-process conversation loop uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nyashahama/geoanalyzer/internal/tools"
)

const (
	ServerName    = "geoanalyzer-mcp"
	ServerVersion = "0.1.0"
)

// Dispatcher is the subset of tools.Registry the MCP server needs.
type Dispatcher interface {
	Describe() []tools.Definition
	Dispatch(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// Server wraps an MCP server with every registry tool registered.
type Server struct {
	srv *server.MCPServer
}

func New(d Dispatcher, logger *slog.Logger) *Server {
	srv := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, def := range d.Describe() {
		srv.AddTool(Tool(def), Handler(d, def.Name))
		logger.Debug("mcp: tool registered", "tool", def.Name)
	}
	return &Server{srv: srv}
}

// Run serves MCP over stdin/stdout until stdin closes.
func (s *Server) Run() error {
	return server.ServeStdio(s.srv)
}

// Tool converts a registry definition into an MCP tool declaration.
// Integers are declared as numbers; the registry still rejects fractions.
func Tool(def tools.Definition) mcp.Tool {
	required := make(map[string]bool, len(def.Parameters.Required))
	for _, name := range def.Parameters.Required {
		required[name] = true
	}

	names := make([]string, 0, len(def.Parameters.Properties))
	for name := range def.Parameters.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}
	for _, name := range names {
		p := def.Parameters.Properties[name]

		var popts []mcp.PropertyOption
		if p.Description != "" {
			popts = append(popts, mcp.Description(p.Description))
		}
		if required[name] {
			popts = append(popts, mcp.Required())
		}
		if p.Minimum != nil {
			popts = append(popts, mcp.Min(*p.Minimum))
		}
		if p.Maximum != nil {
			popts = append(popts, mcp.Max(*p.Maximum))
		}
		if len(p.Enum) > 0 {
			popts = append(popts, mcp.Enum(p.Enum...))
		}

		switch p.Type {
		case "string":
			opts = append(opts, mcp.WithString(name, popts...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(name, popts...))
		default:
			opts = append(opts, mcp.WithNumber(name, popts...))
		}
	}
	return mcp.NewTool(def.Name, opts...)
}

// Handler adapts registry dispatch to an MCP tool handler. Dispatch never
// fails, so failures are returned as error results rather than protocol
// errors, which lets the calling model correct its arguments.
func Handler(d Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError("arguments could not be encoded: " + err.Error()), nil
		}

		res := d.Dispatch(ctx, name, args)
		if res.Err != nil {
			return mcp.NewToolResultError(res.Content()), nil
		}
		return mcp.NewToolResultText(res.Content()), nil
	}
}
