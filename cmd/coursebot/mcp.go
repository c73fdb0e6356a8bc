package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coursebot/internal/domain"
	"coursebot/internal/tool"
	"coursebot/internal/vectorstore"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server exposing the course search tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := openApp(context.Background(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			return mcpserver.ServeStdio(newMCPServer(a.registry, a.store))
		},
	}
}

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

// newMCPServer publishes every registry tool plus a course listing.
func newMCPServer(reg *tool.Registry, store *vectorstore.Store) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("coursebot", version, mcpserver.WithToolCapabilities(false))
	for _, def := range reg.Definitions() {
		s.AddTool(mcpTool(def), makeDispatchHandler(reg, def.Name))
	}
	s.AddTool(mcp.NewTool("list_courses",
		mcp.WithDescription("List the titles of all catalogued courses."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	), makeListCoursesHandler(store))
	return s
}

// mcpTool converts a registry definition into an MCP tool schema.
func mcpTool(def domain.ToolDefinition) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(def.Description),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	}
	for name, p := range def.Parameters {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		switch p.Type {
		case "integer", "number":
			opts = append(opts, mcp.WithNumber(name, props...))
		default:
			opts = append(opts, mcp.WithString(name, props...))
		}
	}
	return mcp.NewTool(def.Name, opts...)
}

func makeDispatchHandler(reg *tool.Registry, name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := reg.Dispatch(ctx, name, req.GetArguments())
		if err != nil {
			var te *domain.ToolExecutionError
			if errors.As(err, &te) {
				return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", te.Err)), nil
			}
			return nil, err
		}
		return mcp.NewToolResultText(withSources(res)), nil
	}
}

func makeListCoursesHandler(store *vectorstore.Store) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		titles, err := store.CourseTitles(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list courses failed: %v", err)), nil
		}
		if len(titles) == 0 {
			return mcp.NewToolResultText("No courses catalogued."), nil
		}
		return mcp.NewToolResultText(strings.Join(titles, "\n")), nil
	}
}

// withSources appends the citation list MCP clients cannot see otherwise.
func withSources(res domain.ToolResult) string {
	if len(res.Sources) == 0 {
		return res.Text
	}
	var sb strings.Builder
	sb.WriteString(res.Text)
	sb.WriteString("\n\nSources:")
	for _, s := range res.Sources {
		sb.WriteString("\n- " + s.Label)
		if s.Link != "" {
			sb.WriteString(" <" + s.Link + ">")
		}
	}
	return sb.String()
}
