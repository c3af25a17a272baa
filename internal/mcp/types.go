// Package mcp provides the client side of the line-delimited JSON-RPC tool
// protocol: a Client that drives one tool server subprocess per call and a
// Manager holding the registry of configured servers.
package mcp

import (
	"bytes"
	"encoding/json"
)

const (
	jsonRPCVersion = "2.0"

	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"

	// NoTextContent is returned by CallTool when the result carries no
	// content[0].text string.
	NoTextContent = "No text content in tool result"
)

// ServerConfig describes how to launch one tool server.
type ServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ToolDescriptor is a tool advertised by a server's tools/list.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// UnmarshalJSON accepts both input_schema and the camelCase inputSchema
// spelling used by stock MCP servers.
func (t *ToolDescriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"input_schema"`
		CamelSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Name = raw.Name
	t.Description = raw.Description
	t.InputSchema = raw.InputSchema
	if isAbsent(t.InputSchema) {
		t.InputSchema = raw.CamelSchema
	}
	return nil
}

// ServerTool pairs a discovered tool with the server that offers it.
type ServerTool struct {
	Server string         `json:"server"`
	Tool   ToolDescriptor `json:"tool"`
}

// Request is the single line written to a server's stdin.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response is the envelope read back from a server's stdout.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// HasError reports whether the server put a non-null error in the envelope.
func (r *Response) HasError() bool {
	return !isAbsent(r.Error)
}

// parseResponse decodes line as a response envelope. A line qualifies only if
// it is a JSON object carrying both jsonrpc and a numeric id; anything else
// (log chatter, notifications, partial writes) is reported as not ok.
func parseResponse(line []byte) (Response, bool) {
	var probe struct {
		JSONRPC *string         `json:"jsonrpc"`
		ID      *uint64         `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return Response{}, false
	}
	if probe.JSONRPC == nil || probe.ID == nil {
		return Response{}, false
	}
	return Response{
		JSONRPC: *probe.JSONRPC,
		ID:      *probe.ID,
		Result:  probe.Result,
		Error:   probe.Error,
	}, true
}

// toolsCallParams is the params object of a tools/call request.
type toolsCallParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
