package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"toolrace/internal/mcp"
)

// toolMarkdown formats a tool descriptor as a markdown document.
func toolMarkdown(server string, tool mcp.ToolDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", tool.Name)
	fmt.Fprintf(&sb, "Server: `%s`\n\n", server)

	if desc := strings.TrimSpace(tool.Description); desc != "" {
		sb.WriteString(desc)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Input schema\n\n")
	if len(tool.InputSchema) == 0 || string(tool.InputSchema) == "null" {
		sb.WriteString("_No input schema advertised._\n")
		return sb.String()
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, tool.InputSchema, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(tool.InputSchema)
	}
	sb.WriteString("```json\n")
	sb.Write(pretty.Bytes())
	sb.WriteString("\n```\n")
	return sb.String()
}

func renderMarkdown(md string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return renderer.Render(md)
}
