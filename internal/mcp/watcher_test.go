package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, `{"alpha": {"command": "a"}}`)

	reloads := make(chan *Manager, 16)
	w, err := NewRegistryWatcher(path, func(m *Manager) { reloads <- m }, WithDiscoveryConcurrency(2))
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte(`{"alpha": {"command": "a"}, "beta": {"command": "b"}}`), 0o644))

	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case m := <-reloads:
			if len(m.Servers()) == 2 {
				assert.Equal(t, []string{"alpha", "beta"}, serverNames(m))
				assert.Equal(t, 2, m.concurrency)
				reloaded = true
			}
		case <-deadline:
			t.Fatal("registry change was not picked up")
		}
	}

	// Let trailing events settle, then check unrelated files are ignored.
	time.Sleep(150 * time.Millisecond)
	for len(reloads) > 0 {
		<-reloads
	}
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte(`{}`), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, reloads)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistryWatcherKeepsPreviousOnParseError(t *testing.T) {
	path := writeConfig(t, `{"alpha": {"command": "a"}}`)

	reloads := make(chan *Manager, 16)
	w, err := NewRegistryWatcher(path, func(m *Manager) { reloads <- m })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte(`{"alpha": `), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, reloads)
}

func TestNewRegistryWatcherMissingDirectory(t *testing.T) {
	_, err := NewRegistryWatcher(filepath.Join(t.TempDir(), "absent", "servers.json"), nil)
	assert.Error(t, err)
}
