// Package mcpserver exposes a hybridstore.Store over the Model Context
// Protocol, so AI clients can ingest and search a corpus without shelling
// out to the CLI.
package mcpserver

import (
	"errors"
	"fmt"

	"github.com/Aman-CERP/hybridstore/internal/svcerr"
)

// Standard JSON-RPC error codes.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is an MCP protocol error with a numeric code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an MCPError for a malformed tool call.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts a store-layer error into an MCPError. svcerr.Error
// causes are reported with their own message; anything else is wrapped as
// an internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var svcErr *svcerr.Error
	if errors.As(err, &svcErr) {
		return &MCPError{Code: ErrCodeInternalError, Message: svcErr.Message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
}
