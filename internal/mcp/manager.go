package mcp

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"toolrace/internal/logging"
)

// DefaultDiscoveryConcurrency bounds how many servers GetAllTools queries at once.
const DefaultDiscoveryConcurrency = 4

// Manager holds the registry of configured tool servers and fans discovery
// and execution out to them, one fresh Client per call.
//
// The registry is populated during a single-threaded load phase (Register,
// LoadFromConfig) and is read-only afterwards, so discovery and execution may
// run concurrently without locking.
type Manager struct {
	servers     []ServerConfig
	index       map[string]int
	concurrency int
}

// Option configures a Manager.
type Option func(*Manager)

// WithDiscoveryConcurrency sets the fan-out limit for GetAllTools.
// Values below 1 are ignored.
func WithDiscoveryConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewManager returns a manager with an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		index:       make(map[string]int),
		concurrency: DefaultDiscoveryConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register appends cfg to the registry. Names must be unique.
func (m *Manager) Register(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyCommand, cfg.Name)
	}
	if _, exists := m.index[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateServer, cfg.Name)
	}
	m.index[cfg.Name] = len(m.servers)
	m.servers = append(m.servers, cfg)
	return nil
}

// Servers returns the registry in registration order.
func (m *Manager) Servers() []ServerConfig {
	out := make([]ServerConfig, len(m.servers))
	copy(out, m.servers)
	return out
}

// Server looks up one server by name.
func (m *Manager) Server(name string) (ServerConfig, bool) {
	i, ok := m.index[name]
	if !ok {
		return ServerConfig{}, false
	}
	return m.servers[i], true
}

// GetAllTools queries every registered server for its tools. A server whose
// discovery fails contributes nothing; the others are unaffected. Results are
// grouped by server in registration order.
func (m *Manager) GetAllTools(ctx context.Context) []ServerTool {
	perServer := make([][]ToolDescriptor, len(m.servers))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, cfg := range m.servers {
		g.Go(func() error {
			tools, err := NewClient(cfg).ListTools(ctx)
			if err != nil {
				logging.ToolsWarn("Failed to discover tools from %s: %v", cfg.Name, err)
				return nil
			}
			logging.ToolsDebug("Discovered %d tools from %s", len(tools), cfg.Name)
			perServer[i] = tools
			return nil
		})
	}
	_ = g.Wait()

	var out []ServerTool
	for i, tools := range perServer {
		for _, tool := range tools {
			out = append(out, ServerTool{Server: m.servers[i].Name, Tool: tool})
		}
	}
	return out
}

// ListServerTools runs discovery against a single named server and, unlike
// GetAllTools, returns its failure.
func (m *Manager) ListServerTools(ctx context.Context, server string) ([]ToolDescriptor, error) {
	cfg, ok := m.Server(server)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, server)
	}
	return NewClient(cfg).ListTools(ctx)
}

// ExecuteTool calls a tool on the named server. An unknown server fails with
// ErrServerNotFound without spawning anything.
func (m *Manager) ExecuteTool(ctx context.Context, server, tool string, args any) (string, error) {
	cfg, ok := m.Server(server)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServerNotFound, server)
	}
	return NewClient(cfg).CallTool(ctx, tool, args)
}
