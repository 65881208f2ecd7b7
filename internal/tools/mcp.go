package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName и ServerVersion публикуются клиентам MCP.
const (
	ServerName    = "telegram-mcp"
	ServerVersion = "2.0.0"
)

// NewMCPServer создает MCP-сервер со всеми инструментами диспетчера.
func NewMCPServer(d *Dispatcher) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithLogging(),
	)
	Register(s, d)
	return s
}

// Register добавляет инструменты диспетчера в MCP-сервер.
func Register(s *server.MCPServer, d *Dispatcher) {
	for _, def := range d.Tools() {
		s.AddTool(toMCPTool(def), handler(d, def.Name))
	}
}

func handler(d *Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := d.Call(ctx, name, req.GetArguments())
		if err != nil {
			return errorResult(AsToolError(err)), nil
		}

		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return errorResult(AsToolError(fmt.Errorf("encode %s result: %w", name, err))), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func errorResult(te *ToolError) *mcp.CallToolResult {
	payload, err := json.Marshal(te)
	if err != nil {
		return mcp.NewToolResultError(te.Error())
	}
	return mcp.NewToolResultError(string(payload))
}

func toMCPTool(def Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}

	for _, p := range def.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}

		switch p.Kind {
		case KindChatRef:
			props = append(props, schemaType("string", "integer"))
			opts = append(opts, mcp.WithString(p.Name, props...))
		case KindString:
			if len(p.Enum) > 0 {
				props = append(props, mcp.Enum(p.Enum...))
			}
			if p.NonEmpty {
				props = append(props, mcp.MinLength(1))
			}
			opts = append(opts, mcp.WithString(p.Name, props...))
		case KindInteger:
			props = append(props, mcp.Min(float64(p.Min)), mcp.Max(float64(p.Max)))
			if !p.Required {
				props = append(props, mcp.DefaultNumber(float64(p.Default)))
			}
			props = append(props, schemaType("integer"))
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case KindBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		}
	}

	return mcp.NewTool(def.Name, opts...)
}

// schemaType заменяет тип свойства, выставленный mcp.WithString или mcp.WithNumber.
// Опции свойства применяются после записи типа, поэтому эта опция идет последней.
func schemaType(types ...string) mcp.PropertyOption {
	return func(schema map[string]any) {
		if len(types) == 1 {
			schema["type"] = types[0]
			return
		}
		schema["type"] = types
	}
}
