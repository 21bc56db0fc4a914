package main

import (
	"encoding/json"

	"github.com/halderavik/cbc-design-MCP/catalog"
)

// JSON-RPC 2.0 envelope

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the caller expects no response
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Design error codes
const (
	codeGenerationInfeasible = -32001
	codeFallbackRefused      = -32002
)

// REST models

// StudiesListResponse represents the response for listing studies
type StudiesListResponse struct {
	Studies []*catalog.Study `json:"studies"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	StudiesLoaded int    `json:"studies_loaded"`
	Store         string `json:"store"`
	Error         string `json:"error,omitempty"`
}
