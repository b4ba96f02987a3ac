package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCaller is the slice of the MCP protocol the enricher consumes:
// call a named tool, get its text content back.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// MCPClient adapts a mark3labs MCP client to the ToolCaller interface.
type MCPClient struct {
	c *client.Client
}

// NewMCPClient connects to a streamable-HTTP MCP server and performs the
// protocol handshake.
func NewMCPClient(ctx context.Context, endpoint string) (*MCPClient, error) {
	c, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("mcp client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp transport: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "scout",
		Version: "1.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	return &MCPClient{c: c}, nil
}

// CallTool invokes a tool and concatenates its text content blocks.
func (m *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := m.c.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp tool %s: %w", name, err)
	}

	var sb strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	if res.IsError {
		return "", fmt.Errorf("mcp tool %s failed: %s", name, sb.String())
	}

	return sb.String(), nil
}

// Close shuts down the MCP session.
func (m *MCPClient) Close() error {
	return m.c.Close()
}
