package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"toolrace/internal/config"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create toolrace configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration and registered servers",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file and an empty server registry",
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Configuration"))
	fmt.Fprint(out, string(data))

	servers := manager.Servers()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Servers (%d)", len(servers))))
	for _, s := range servers {
		line := "  " + serverStyle.Render(s.Name) + "  " + toolStyle.Render(s.Command)
		for _, a := range s.Args {
			line += " " + dimStyle.Render(a)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	written, err := writeIfAbsent(configPath, func() error {
		return config.DefaultConfig().Save(configPath)
	})
	if err != nil {
		return err
	}
	report(out, configPath, written)

	registry := cfg.Tools.ConfigPath
	written, err = writeIfAbsent(registry, func() error {
		if err := os.MkdirAll(filepath.Dir(registry), 0755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
		data, _ := json.MarshalIndent(map[string]any{"mcpServers": map[string]any{}}, "", "  ")
		return os.WriteFile(registry, append(data, '\n'), 0644)
	})
	if err != nil {
		return err
	}
	report(out, registry, written)
	return nil
}

// writeIfAbsent runs write unless path exists and --force is unset.
func writeIfAbsent(path string, write func() error) (bool, error) {
	if _, err := os.Stat(path); err == nil && !forceInit {
		return false, nil
	}
	if err := write(); err != nil {
		return false, err
	}
	return true, nil
}

func report(out io.Writer, path string, written bool) {
	if written {
		fmt.Fprintln(out, serverStyle.Render("created ")+path)
		return
	}
	fmt.Fprintln(out, dimStyle.Render("exists  "+path+" (use --force to overwrite)"))
}
