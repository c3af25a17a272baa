package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	restore := Replace(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestGetTagsCategory(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Get(CategoryTools).Info("discovered %d tools from %s", 3, "alpha")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "discovered 3 tools from alpha", entries[0].Message)
	assert.Equal(t, "tools", entries[0].ContextMap()["category"])
}

func TestGetCachesPerCategory(t *testing.T) {
	observe(t, zapcore.DebugLevel)
	assert.Same(t, Get(CategoryRace), Get(CategoryRace))
	assert.NotSame(t, Get(CategoryRace), Get(CategoryTools))
}

func TestConvenienceLevels(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	ToolsDebug("hidden")
	Tools("shown")
	RaceWarn("slow race")
	ToolsError("broken")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Get(CategoryRace).With("race_id", "r-1").Debug("started %d tasks", 2)

	entries := logs.FilterField(zap.String("race_id", "r-1")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "started 2 tasks", entries[0].Message)
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	timer := StartTimer(CategoryTools, "tools/list")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Millisecond)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestInitializeCategoryToggle(t *testing.T) {
	restore := Replace(zap.NewNop())
	t.Cleanup(restore)

	dir := t.TempDir()
	logFile := filepath.Join(dir, "toolrace.log")

	l, err := Initialize(Options{
		Level:      "info",
		Format:     "json",
		File:       logFile,
		Categories: map[string]bool{"race": false},
	})
	require.NoError(t, err)

	assert.False(t, IsCategoryEnabled(CategoryRace))
	assert.True(t, IsCategoryEnabled(CategoryTools))

	Race("should not appear")
	Tools("tool server %s ready", "alpha")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "tool server alpha ready")
	assert.NotContains(t, out, "should not appear")
	assert.True(t, strings.Contains(out, `"category":"tools"`))
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	restore := Replace(zap.NewNop())
	t.Cleanup(restore)

	_, err := Initialize(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestDebugModeForcesDebugLevel(t *testing.T) {
	restore := Replace(zap.NewNop())
	t.Cleanup(restore)

	logFile := filepath.Join(t.TempDir(), "debug.log")
	l, err := Initialize(Options{Level: "error", DebugMode: true, File: logFile})
	require.NoError(t, err)

	ConfigDebug("registry has %d servers", 2)
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "registry has 2 servers")
}
