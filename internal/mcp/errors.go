package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrServerNotFound is returned when a call names a server that is not
	// in the registry.
	ErrServerNotFound = errors.New("server not found")

	// ErrNoResponse is returned when a server's stdout closes before any
	// line parses as a response envelope.
	ErrNoResponse = errors.New("no response from server")

	// ErrDuplicateServer is returned when registering a name already in use.
	ErrDuplicateServer = errors.New("server already registered")

	// ErrEmptyCommand is returned for a server config without a command.
	ErrEmptyCommand = errors.New("empty command for tool server")
)

// SpawnError reports that the server process could not be started.
type SpawnError struct {
	Server  string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start tool server %s (%s): %v", e.Server, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ServerError is an application-level failure reported by the server in the
// response's error field. Detail holds the raw error value.
type ServerError struct {
	Server string
	Method string
	Detail []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("tool server %s returned error for %s: %s", e.Server, e.Method, e.Detail)
}
