package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"toolrace/internal/logging"
)

const (
	// maxLineSize bounds a single stdout line; tool results can be large.
	maxLineSize = 16 * 1024 * 1024

	// waitDelay bounds how long teardown waits on pipes held open by
	// grandchildren after the server itself has been killed.
	waitDelay = 2 * time.Second
)

// Client talks to one tool server. Every call spawns a fresh subprocess,
// performs exactly one request/response exchange over its stdin/stdout and
// tears the process down before returning. Request ids are private to the
// Client and start at 1.
//
// Cancelling the call's context kills the subprocess.
type Client struct {
	cfg ServerConfig

	mu     sync.Mutex
	nextID uint64
}

// NewClient returns a client for the server described by cfg.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg, nextID: 1}
}

// Config returns the server configuration this client launches.
func (c *Client) Config() ServerConfig {
	return c.cfg
}

// ListTools asks the server for its tool catalog. A result whose shape does
// not match yields an empty slice rather than an error.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := c.roundTrip(ctx, MethodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return c.decodeToolList(resp.Result), nil
}

// CallTool invokes a tool and returns the text of the first content block.
// A result without that shape yields NoTextContent.
func (c *Client) CallTool(ctx context.Context, name string, args any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.roundTrip(ctx, MethodToolsCall, toolsCallParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	return extractText(resp.Result), nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params any) (Response, error) {
	if strings.TrimSpace(c.cfg.Command) == "" {
		return Response{}, &SpawnError{Server: c.cfg.Name, Command: c.cfg.Command, Err: ErrEmptyCommand}
	}

	req := Request{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextRequestID(),
		Method:  method,
		Params:  params,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	data = append(data, '\n')

	log := logging.Get(logging.CategoryTools).With("server", c.cfg.Name, "method", method, "id", req.ID)
	timer := logging.StartTimer(logging.CategoryTools, fmt.Sprintf("%s %s", c.cfg.Name, method))
	defer timer.Stop()

	// #nosec G204 -- command and args come from the operator's server config.
	cmd := exec.CommandContext(ctx, c.cfg.Command, slices.Clone(c.cfg.Args)...)
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(c.cfg.Env)...)
	}
	cmd.Stderr = nil
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Response{}, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Response{}, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, &SpawnError{Server: c.cfg.Name, Command: c.cfg.Command, Err: err}
	}
	log.Debug("spawned pid %d", cmd.Process.Pid)
	defer teardown(cmd, stdin, log)

	_, writeErr := stdin.Write(data)
	if writeErr != nil {
		log.Debug("request write failed: %v", writeErr)
	}

	resp, err := readResponse(stdout, log)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		if writeErr != nil && errors.Is(err, ErrNoResponse) {
			return Response{}, fmt.Errorf("%w (request write failed: %v)", err, writeErr)
		}
		return Response{}, err
	}
	if resp.ID != req.ID {
		log.Warn("response id %d does not match request id %d", resp.ID, req.ID)
	}
	if resp.HasError() {
		return Response{}, &ServerError{Server: c.cfg.Name, Method: method, Detail: bytes.TrimSpace(resp.Error)}
	}
	return resp, nil
}

func (c *Client) nextRequestID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// readResponse scans stdout until a line parses as a response envelope.
// Lines that do not parse are skipped.
func readResponse(stdout io.Reader, log *logging.Logger) (Response, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if resp, ok := parseResponse(line); ok {
			return resp, nil
		}
		log.Debug("skipping non-response line (%d bytes)", len(line))
	}
	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	return Response{}, ErrNoResponse
}

func teardown(cmd *exec.Cmd, stdin io.Closer, log *logging.Logger) {
	_ = stdin.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if err := cmd.Wait(); err != nil {
		log.Debug("server exited: %v", err)
	}
}

func (c *Client) decodeToolList(result json.RawMessage) []ToolDescriptor {
	tools := []ToolDescriptor{}
	if isAbsent(result) {
		return tools
	}
	var payload struct {
		Tools json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil || isAbsent(payload.Tools) {
		logging.ToolsDebug("server %s: tools/list result has no tools array", c.cfg.Name)
		return tools
	}
	if err := json.Unmarshal(payload.Tools, &tools); err != nil {
		logging.ToolsWarn("server %s: failed to decode tools: %v", c.cfg.Name, err)
		return []ToolDescriptor{}
	}
	return tools
}

func extractText(result json.RawMessage) string {
	var payload struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(result, &payload); err != nil || len(payload.Content) == 0 {
		return NoTextContent
	}
	var first struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(payload.Content[0], &first); err != nil || first.Text == nil {
		return NoTextContent
	}
	return *first.Text
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
