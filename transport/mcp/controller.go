package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/gridworld-viewer/logging"
	"github.com/wricardo/gridworld-viewer/viewer/render"
	"github.com/wricardo/gridworld-viewer/viewer/session"
	"github.com/wricardo/gridworld-viewer/viewer/world"
	"go.uber.org/zap"
)

const (
	ServerName    = "Grid World Viewer"
	ServerVersion = "1.0.0"

	defaultLogLimit = 20
)

// Controller exposes one viewer session as MCP tools
type Controller struct {
	session   *session.Session
	logger    *zap.Logger
	mcpServer *server.MCPServer
}

// NewController creates a controller driving sess.
func NewController(sess *session.Session, logger *zap.Logger) *Controller {
	c := &Controller{
		session: sess,
		logger:  logging.OrNop(logger).Named("mcp"),
	}

	c.initMCPServer()
	return c
}

func (c *Controller) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Grid World Viewer - MCP Interface

This server drives a viewer attached to a grid-world simulation server over
WebSocket. The simulation pushes a snapshot of every entity (rabbit, wolf,
carrot) after each step; the viewer renders it and keeps a log panel.

AVAILABLE TOOLS:
- connect: Open the connection to the simulation server (once per session)
- status: Connection state and counters
- step: Ask the simulation for a single step
- start_stepping: Send a step every interval until stopped
- stop_stepping: Cancel the step timer and send stop
- snapshot: Entities of the last rendered snapshot
- frame: Last rendered frame as a PNG image
- log: Most recent log panel lines

NOTE: A closed connection is final. Start a new viewer to reconnect.`),
	)

	c.registerTools()
}

func (c *Controller) registerTools() {
	noArgs := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "connect",
		Description: "Connect to the simulation server",
		InputSchema: noArgs,
	}, c.handleConnect)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "status",
		Description: "Get the connection state and session counters",
		InputSchema: noArgs,
	}, c.handleStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: "Send a single step command",
		InputSchema: noArgs,
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_stepping",
		Description: "Send a step command at a fixed interval until stop_stepping",
		InputSchema: noArgs,
	}, c.handleStartStepping)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "stop_stepping",
		Description: "Cancel the step timer and send a stop command",
		InputSchema: noArgs,
	}, c.handleStopStepping)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "snapshot",
		Description: "Get the entities of the last rendered snapshot",
		InputSchema: noArgs,
	}, c.handleSnapshot)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "frame",
		Description: "Get the last rendered frame as a PNG image",
		InputSchema: noArgs,
	}, c.handleFrame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "log",
		Description: "Get the most recent log panel lines",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": fmt.Sprintf("Number of lines to return (default %d)", defaultLogLimit),
					"minimum":     1,
				},
			},
		},
	}, c.handleLog)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Controller) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeStdio serves the tools over stdin/stdout until the input closes.
func (c *Controller) ServeStdio() error {
	c.logger.Info("serving MCP over stdio", zap.String("session", c.session.ID()))
	return server.ServeStdio(c.mcpServer)
}

func (c *Controller) handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := c.session.Connect(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Connected to %s (session %s)", c.session.URI(), c.session.ID())), nil
}

func (c *Controller) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatStats(c.session.URI(), c.session.Stats())), nil
}

func (c *Controller) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := c.session.Step(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Sent: step"), nil
}

func (c *Controller) handleStartStepping(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	already := c.session.Stepping()
	if err := c.session.StartStepping(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if already {
		return mcp.NewToolResultText("Already stepping"), nil
	}
	return mcp.NewToolResultText("Stepping started"), nil
}

func (c *Controller) handleStopStepping(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := c.session.StopStepping(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Stepping stopped, sent: stop"), nil
}

func (c *Controller) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, ok := c.session.Snapshot()
	if !ok {
		return mcp.NewToolResultError("no snapshot received yet"), nil
	}
	return mcp.NewToolResultText(formatSnapshot(snap)), nil
}

func (c *Controller) handleFrame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	surface, ok := c.session.Surface().(*render.ImageSurface)
	if !ok {
		return mcp.NewToolResultError("frame capture is not supported by this surface"), nil
	}

	frame, version := surface.Frame()
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode frame: %v", err)), nil
	}
	caption := fmt.Sprintf("Frame %d (%dx%d)", version, frame.Bounds().Dx(), frame.Bounds().Dy())
	return mcp.NewToolResultImage(caption, base64.StdEncoding.EncodeToString(buf.Bytes()), "image/png"), nil
}

func (c *Controller) handleLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := defaultLogLimit
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if v, ok := args["limit"].(float64); ok {
			if v < 1 {
				return mcp.NewToolResultError("limit must be at least 1"), nil
			}
			// clamp before converting, huge values overflow int
			limit = c.session.Panel().Len()
			if v < float64(limit) {
				limit = int(v)
			}
		}
	}

	lines := c.session.Panel().Tail(limit)
	if len(lines) == 0 {
		return mcp.NewToolResultText("(log is empty)"), nil
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line.String())
		b.WriteByte('\n')
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatStats(uri string, stats session.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Server: %s\n", uri)
	fmt.Fprintf(&b, "Status: %s\n", stats.Status)
	fmt.Fprintf(&b, "Snapshots: %d received, %d rejected\n", stats.Received, stats.DecodeErrors)
	fmt.Fprintf(&b, "Entities: %d (%d drawn)\n", stats.Entities, stats.Drawn)
	fmt.Fprintf(&b, "Stepping: %t\n", stats.Stepping)
	return b.String()
}

func formatSnapshot(snap world.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entities: %d\n", snap.Len())
	for _, k := range world.Kinds {
		fmt.Fprintf(&b, "  %s: %d\n", k, snap.Count(k))
	}
	if n := snap.Count(world.Unknown); n > 0 {
		fmt.Fprintf(&b, "  unknown (not drawn): %d\n", n)
	}

	b.WriteString("\nPositions:\n")
	for _, e := range snap.EnvState {
		fmt.Fprintf(&b, "  %s at (%d,%d)\n", e.Type, e.Location.X, e.Location.Y)
	}

	raw, err := world.Encode(snap)
	if err == nil {
		b.WriteString("\nJSON:\n")
		b.Write(raw)
		b.WriteByte('\n')
	}
	return b.String()
}
