package mcp

import (
	"context"
	"time"

	"toolrace/internal/logging"
	"toolrace/internal/race"
)

// ToolResult is the outcome of one tool call that won a race.
type ToolResult struct {
	Server string `json:"server"`
	Text   string `json:"text"`
}

// ToolTask wraps one ExecuteTool call as a race task. Failures decline the
// task and are logged. When the race cancels the task, the call's context is
// cancelled and the server subprocess is killed.
func (m *Manager) ToolTask(server, tool string, args any) race.Task[ToolResult] {
	return race.FromResult(func(ctx context.Context) (ToolResult, error) {
		text, err := m.ExecuteTool(ctx, server, tool, args)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Server: server, Text: text}, nil
	}, func(err error) {
		logging.ToolsWarn("Raced call %s on %s failed: %v", tool, server, err)
	})
}

// RaceTool calls the same tool on several servers at once and keeps the first
// call that returns text content. With no servers named, every registered
// server takes part. A non-positive timeout means no deadline beyond ctx.
func (m *Manager) RaceTool(ctx context.Context, timeout time.Duration, tool string, args any, servers ...string) (ToolResult, bool) {
	if len(servers) == 0 {
		for _, cfg := range m.servers {
			servers = append(servers, cfg.Name)
		}
	}

	hasText := func(r ToolResult) bool { return r.Text != NoTextContent }
	tasks := make([]race.Task[ToolResult], 0, len(servers))
	for _, server := range servers {
		tasks = append(tasks, race.Where(m.ToolTask(server, tool, args), hasText))
	}

	if timeout > 0 {
		return race.RaceWithTimeout(ctx, timeout, tasks...)
	}
	return race.Race(ctx, tasks...)
}
