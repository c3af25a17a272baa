package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolrace/internal/mcp"
	"toolrace/internal/race"
)

var (
	jsonOutput    bool
	watchRegistry bool
	rawMarkdown   bool
	toolArgs    string
	callTimeout time.Duration
	raceServers []string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and call tools on configured servers",
}

var toolsListCmd = &cobra.Command{
	Use:   "list [server]",
	Short: "List the tools offered by every server, or by one server",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToolsList,
}

var toolsDescribeCmd = &cobra.Command{
	Use:   "describe <server> <tool>",
	Short: "Show a tool's description and input schema",
	Args:  cobra.ExactArgs(2),
	RunE:  runToolsDescribe,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <server> <tool>",
	Short: "Call one tool on one server",
	Args:  cobra.ExactArgs(2),
	RunE:  runToolsCall,
}

var toolsRaceCmd = &cobra.Command{
	Use:   "race <tool>",
	Short: "Call the same tool on several servers and keep the first answer",
	Long: `Race starts the call on every selected server at once. The first server
to return text content wins; the remaining server processes are killed.
Without --server, every registered server takes part.`,
	Args: cobra.ExactArgs(1),
	RunE: runToolsRace,
}

func init() {
	toolsListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print tools as JSON")
	toolsListCmd.Flags().BoolVarP(&watchRegistry, "watch", "w", false, "Re-list whenever the server registry file changes")
	toolsDescribeCmd.Flags().BoolVar(&rawMarkdown, "raw", false, "Print markdown without terminal rendering")

	for _, c := range []*cobra.Command{toolsCallCmd, toolsRaceCmd} {
		c.Flags().StringVarP(&toolArgs, "args", "a", "", "Tool arguments as a JSON object")
		c.Flags().DurationVarP(&callTimeout, "timeout", "t", 0, "Call timeout (default: race.default_timeout)")
		c.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	}
	toolsRaceCmd.Flags().StringSliceVar(&raceServers, "server", nil, "Server to include in the race (repeatable)")

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsDescribeCmd)
	toolsCmd.AddCommand(toolsCallCmd)
	toolsCmd.AddCommand(toolsRaceCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	server := ""
	if len(args) == 1 {
		server = args[0]
	}

	tools, err := discover(ctx, manager, server)
	if err != nil {
		return err
	}
	logger.Debug("Tools discovered", zap.Int("count", len(tools)))

	out := cmd.OutOrStdout()
	if err := renderTools(out, tools); err != nil {
		return err
	}
	if !watchRegistry {
		return nil
	}

	fmt.Fprintln(out, dimStyle.Render("watching "+cfg.Tools.ConfigPath+" (Ctrl+C to stop)"))
	w, err := mcp.NewRegistryWatcher(cfg.Tools.ConfigPath, func(m *mcp.Manager) {
		tools, err := discover(ctx, m, server)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			return
		}
		if err := renderTools(out, tools); err != nil {
			logger.Warn("Failed to render tools", zap.Error(err))
		}
	}, mcp.WithDiscoveryConcurrency(cfg.GetDiscoveryConcurrency()))
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// discover lists every server's tools, or only server's when it is set.
func discover(ctx context.Context, m *mcp.Manager, server string) ([]mcp.ServerTool, error) {
	if server == "" {
		return m.GetAllTools(ctx), nil
	}
	list, err := m.ListServerTools(ctx, server)
	if err != nil {
		return nil, err
	}
	tools := make([]mcp.ServerTool, 0, len(list))
	for _, t := range list {
		tools = append(tools, mcp.ServerTool{Server: server, Tool: t})
	}
	return tools, nil
}

func renderTools(out io.Writer, tools []mcp.ServerTool) error {
	if jsonOutput {
		if tools == nil {
			tools = []mcp.ServerTool{}
		}
		return writeJSON(out, tools)
	}
	printTools(out, tools)
	return nil
}

func printTools(out io.Writer, tools []mcp.ServerTool) {
	if len(tools) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No tools available."))
		return
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d tools", len(tools))))
	current := ""
	for _, st := range tools {
		if st.Server != current {
			current = st.Server
			fmt.Fprintln(out, serverStyle.Render(current))
		}
		line := "  " + toolStyle.Render(st.Tool.Name)
		if desc := strings.TrimSpace(st.Tool.Description); desc != "" {
			line += "  " + dimStyle.Render(desc)
		}
		fmt.Fprintln(out, line)
	}
}

func runToolsDescribe(cmd *cobra.Command, args []string) error {
	server, name := args[0], args[1]

	ctx, cancel := signalContext()
	defer cancel()

	tools, err := manager.ListServerTools(ctx, server)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		if tool.Name != name {
			continue
		}
		md := toolMarkdown(server, tool)
		if rawMarkdown {
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		}
		rendered, err := renderMarkdown(md)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), rendered)
		return nil
	}
	return fmt.Errorf("server %s does not offer tool %q", server, name)
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	server, tool := args[0], args[1]
	arguments, err := parseToolArgs(toolArgs)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	text, err := callWithTimeout(ctx, effectiveTimeout(), func(ctx context.Context) (string, error) {
		return manager.ExecuteTool(ctx, server, tool, arguments)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, mcp.ToolResult{Server: server, Text: text})
	}
	fmt.Fprintln(out, text)
	return nil
}

// callWithTimeout runs fn as a single-task race bounded by timeout, keeping
// the error fn reported when it declines.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	errCh := make(chan error, 1)
	task := race.FromResult(fn, func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	text, ok := race.RaceWithTimeout(ctx, timeout, task)
	if ok {
		return text, nil
	}
	select {
	case err := <-errCh:
		return "", err
	default:
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", fmt.Errorf("tool call timed out after %s", timeout)
}

func runToolsRace(cmd *cobra.Command, args []string) error {
	tool := args[0]
	arguments, err := parseToolArgs(toolArgs)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	timeout := effectiveTimeout()
	start := time.Now()
	result, ok := manager.RaceTool(ctx, timeout, tool, arguments, raceServers...)
	if !ok {
		return fmt.Errorf("no server produced a result for %s within %s", tool, timeout)
	}
	logger.Debug("Race won",
		zap.String("server", result.Server),
		zap.Duration("elapsed", time.Since(start)))

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, result)
	}
	fmt.Fprintln(out, dimStyle.Render("winner: ")+serverStyle.Render(result.Server))
	fmt.Fprintln(out, result.Text)
	return nil
}

func effectiveTimeout() time.Duration {
	if callTimeout > 0 {
		return callTimeout
	}
	return cfg.GetRaceTimeout()
}

// parseToolArgs decodes the --args flag. An empty flag means no arguments.
func parseToolArgs(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
