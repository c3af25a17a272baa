package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"toolrace/internal/logging"
)

// serversKey is the wrapper key used by desktop-style MCP config files.
const serversKey = "mcpServers"

// LoadFromConfig reads a JSON file mapping server names to
// {"command", "args"?, "env"?} and registers one server per entry, in file
// order. The mapping may sit at the top level or under "mcpServers".
//
// A missing file is not an error. Entries without a usable command are
// skipped, as are args elements and env values that are not strings.
func (m *Manager) LoadFromConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.ConfigDebug("Tool server config %s not found, registry stays empty", path)
			return nil
		}
		return fmt.Errorf("failed to read tool server config: %w", err)
	}

	configs, err := parseServerConfigs(data)
	if err != nil {
		return fmt.Errorf("failed to parse tool server config %s: %w", path, err)
	}

	for _, cfg := range configs {
		if err := m.Register(cfg); err != nil {
			logging.ConfigWarn("Skipping tool server %s: %v", cfg.Name, err)
		}
	}
	logging.Config("Loaded %d tool servers from %s", len(m.servers), path)
	return nil
}

type rawEntry struct {
	key   string
	value json.RawMessage
}

func parseServerConfigs(data []byte) ([]ServerConfig, error) {
	entries, err := orderedObject(data)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.key != serversKey {
			continue
		}
		if nested, err := orderedObject(e.value); err == nil {
			entries = nested
		}
		break
	}

	configs := make([]ServerConfig, 0, len(entries))
	for _, e := range entries {
		cfg, ok := parseServerEntry(e.key, e.value)
		if !ok {
			logging.ConfigWarn("Skipping malformed tool server entry %q", e.key)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// orderedObject splits a JSON object into its members, keeping document order.
func orderedObject(data []byte) ([]rawEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var entries []rawEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("entry %q: %w", key, err)
		}
		entries = append(entries, rawEntry{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseServerEntry(name string, raw json.RawMessage) (ServerConfig, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return ServerConfig{}, false
	}

	cfg := ServerConfig{Name: name}
	if err := json.Unmarshal(fields["command"], &cfg.Command); err != nil || cfg.Command == "" {
		return ServerConfig{}, false
	}

	if rawArgs, ok := fields["args"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(rawArgs, &items); err == nil {
			for _, item := range items {
				var arg string
				if !isAbsent(item) && json.Unmarshal(item, &arg) == nil {
					cfg.Args = append(cfg.Args, arg)
				}
			}
		}
	}

	if rawEnv, ok := fields["env"]; ok {
		var values map[string]json.RawMessage
		if err := json.Unmarshal(rawEnv, &values); err == nil {
			for k, rawValue := range values {
				var v string
				if isAbsent(rawValue) || json.Unmarshal(rawValue, &v) != nil {
					continue
				}
				if cfg.Env == nil {
					cfg.Env = make(map[string]string)
				}
				cfg.Env[k] = v
			}
		}
	}

	return cfg, true
}
