// Package main implements the toolrace CLI.
//
// toolrace launches tool servers declared in a JSON registry, lists what they
// offer, and calls tools on one server or races the same call across several.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolrace/internal/config"
	"toolrace/internal/logging"
	"toolrace/internal/mcp"
)

var (
	// Global flags
	configPath  string
	serversPath string
	verbose     bool

	// Loaded during PersistentPreRunE
	cfg     *config.Config
	manager *mcp.Manager
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "toolrace",
	Short: "toolrace - launch, list and race stdio tool servers",
	Long: `toolrace talks line-delimited JSON-RPC to tool servers launched as
subprocesses. Every call spawns a fresh server process, so servers never
share state between calls.

Servers are declared in a JSON file mapping names to launch commands:

  {"files": {"command": "files-server", "args": ["--stdio"], "env": {"ROOT": "/srv"}}}`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join(".toolrace", "config.yaml"), "Path to toolrace config file")
	rootCmd.PersistentFlags().StringVarP(&serversPath, "servers", "s", "", "Path to server registry JSON (overrides tools.config_path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// setup loads configuration, initializes logging and builds the server registry.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serversPath != "" {
		loaded.Tools.ConfigPath = serversPath
	}
	if verbose {
		loaded.Logging.DebugMode = true
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	root, err := logging.Initialize(cfg.Logging.Options())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger = root
	logger.Debug("Configuration loaded",
		zap.String("config", configPath),
		zap.String("servers", cfg.Tools.ConfigPath))

	manager = mcp.NewManager(mcp.WithDiscoveryConcurrency(cfg.GetDiscoveryConcurrency()))
	if err := manager.LoadFromConfig(cfg.Tools.ConfigPath); err != nil {
		return err
	}
	logging.Boot("Registered %d tool servers from %s", len(manager.Servers()), cfg.Tools.ConfigPath)
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
