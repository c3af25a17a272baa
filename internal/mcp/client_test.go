package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoedRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

func decodeEcho(t *testing.T, text string) echoedRequest {
	t.Helper()
	var req echoedRequest
	require.NoError(t, json.Unmarshal([]byte(text), &req), "echoed text: %s", text)
	return req
}

func TestClientListTools(t *testing.T) {
	client := NewClient(helperServer("files", "tools", map[string]string{envTools: "read_file,write_file"}))

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)

	want := []ToolDescriptor{
		{Name: "read_file", Description: "fixture read_file", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "write_file", Description: "fixture write_file", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}
	if diff := cmp.Diff(want, tools); diff != "" {
		t.Fatalf("ListTools() mismatch (-want +got):\n%s", diff)
	}
}

func TestClientListToolsCamelCaseSchema(t *testing.T) {
	tools, err := NewClient(helperServer("camel", "camel", nil)).ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(tools[0].InputSchema))
}

func TestClientCallToolWireFormat(t *testing.T) {
	client := NewClient(helperServer("echo", "echo", nil))

	text, err := client.CallTool(context.Background(), "grep", map[string]any{"pattern": "TODO"})
	require.NoError(t, err)

	req := decodeEcho(t, text)
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, uint64(1), req.ID)
	assert.Equal(t, MethodToolsCall, req.Method)
	assert.Equal(t, "grep", req.Params.Name)
	assert.Equal(t, map[string]any{"pattern": "TODO"}, req.Params.Arguments)
}

func TestClientNilArgumentsSendEmptyObject(t *testing.T) {
	text, err := NewClient(helperServer("echo", "echo", nil)).CallTool(context.Background(), "ping", nil)
	require.NoError(t, err)
	req := decodeEcho(t, text)
	assert.NotNil(t, req.Params.Arguments)
	assert.Empty(t, req.Params.Arguments)
}

func TestClientRequestIDsIncrementPerClient(t *testing.T) {
	ctx := context.Background()
	first := NewClient(helperServer("echo", "echo", nil))
	second := NewClient(helperServer("echo", "echo", nil))

	var ids []uint64
	for i := 0; i < 3; i++ {
		text, err := first.CallTool(ctx, "noop", nil)
		require.NoError(t, err)
		ids = append(ids, decodeEcho(t, text).ID)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	text, err := second.CallTool(ctx, "noop", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), decodeEcho(t, text).ID)
}

func TestClientSkipsUnparseableLines(t *testing.T) {
	text, err := NewClient(helperServer("noisy", "noisy", nil)).CallTool(context.Background(), "grep", nil)
	require.NoError(t, err)
	assert.Equal(t, "grep", decodeEcho(t, text).Params.Name)
}

func TestClientDiscardsStderr(t *testing.T) {
	text, err := NewClient(helperServer("chatty", "stderr", nil)).CallTool(context.Background(), "grep", nil)
	require.NoError(t, err)
	assert.Equal(t, "grep", decodeEcho(t, text).Params.Name)
}

func TestClientNoResponse(t *testing.T) {
	_, err := NewClient(helperServer("silent", "silent", nil)).ListTools(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResponse)

	var serverErr *ServerError
	assert.False(t, errors.As(err, &serverErr))
}

func TestClientServerReportedError(t *testing.T) {
	_, err := NewClient(helperServer("broken", "error", nil)).CallTool(context.Background(), "grep", nil)
	require.Error(t, err)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "broken", serverErr.Server)
	assert.Equal(t, MethodToolsCall, serverErr.Method)
	assert.Contains(t, string(serverErr.Detail), "method not found")
	assert.NotErrorIs(t, err, ErrNoResponse)
}

func TestClientNullErrorIsAbsent(t *testing.T) {
	text, err := NewClient(helperServer("lenient", "null-error", nil)).CallTool(context.Background(), "grep", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestClientShapeMismatchDegrades(t *testing.T) {
	client := NewClient(helperServer("odd", "badshape", nil))

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tools)
	assert.Empty(t, tools)

	text, err := client.CallTool(context.Background(), "grep", nil)
	require.NoError(t, err)
	assert.Equal(t, NoTextContent, text)
}

func TestClientSpawnFailure(t *testing.T) {
	client := NewClient(ServerConfig{Name: "ghost", Command: "/nonexistent/toolrace-server"})

	_, err := client.ListTools(context.Background())
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "ghost", spawnErr.Server)
	assert.NotErrorIs(t, err, ErrNoResponse)
}

func TestClientEmptyCommand(t *testing.T) {
	_, err := NewClient(ServerConfig{Name: "blank"}).ListTools(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestClientContextCancelKillsServer(t *testing.T) {
	client := NewClient(helperServer("slow", "echo", map[string]string{envDelay: "10s"}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.CallTool(ctx, "grep", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
	}{
		{"valid result", `{"jsonrpc":"2.0","id":1,"result":{}}`, true},
		{"valid error", `{"jsonrpc":"2.0","id":7,"error":{"code":1}}`, true},
		{"missing id", `{"jsonrpc":"2.0","method":"notify"}`, false},
		{"missing version", `{"id":1,"result":{}}`, false},
		{"string id", `{"jsonrpc":"2.0","id":"abc","result":{}}`, false},
		{"not json", `starting server`, false},
		{"array", `[1,2,3]`, false},
		{"null", `null`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseResponse([]byte(tt.line))
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"first text", `{"content":[{"type":"text","text":"hello"},{"text":"second"}]}`, "hello"},
		{"empty content", `{"content":[]}`, NoTextContent},
		{"no text field", `{"content":[{"type":"image","data":"..."}]}`, NoTextContent},
		{"text not string", `{"content":[{"text":42}]}`, NoTextContent},
		{"missing result", ``, NoTextContent},
		{"null result", `null`, NoTextContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText(json.RawMessage(tt.result)))
		})
	}
}
