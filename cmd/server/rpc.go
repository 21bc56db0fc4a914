package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/halderavik/cbc-design-MCP/generator"
	"github.com/halderavik/cbc-design-MCP/internal/api"
	"github.com/halderavik/cbc-design-MCP/power"
)

type rpcHandler func(ctx context.Context, params json.RawMessage) (any, error)

var nullID = json.RawMessage("null")

func (s *Server) rpcMethods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"design.generate": s.rpcGenerate,
		"design.optimize": s.rpcOptimize,
		"design.validate": s.rpcValidate,
		"design.evaluate": s.rpcEvaluate,
		"design.export":   s.rpcExport,
		"study.generate":  s.rpcStudyGenerate,
		"ping": func(context.Context, json.RawMessage) (any, error) {
			return "pong", nil
		},
		"health": func(ctx context.Context, _ json.RawMessage) (any, error) {
			r, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/health", nil)
			h, _ := s.health(r)
			return h, nil
		},
	}
}

// handleRPC serves single JSON-RPC 2.0 requests. Transport failures are
// reported in the envelope with HTTP 200; notifications get 204.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeRPC(w, nullID, nil, &rpcError{Code: codeParseError, Message: "failed to read request body"})
		return
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		writeRPC(w, nullID, nil, &rpcError{Code: codeInvalidRequest, Message: "batch requests are not supported"})
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPC(w, nullID, nil, &rpcError{Code: codeParseError, Message: "parse error", Data: err.Error()})
		return
	}
	id := req.ID
	if len(id) == 0 {
		id = nullID
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(w, id, nil, &rpcError{Code: codeInvalidRequest, Message: `invalid request: jsonrpc must be "2.0" and method is required`})
		return
	}

	handler, ok := s.rpcMethods()[req.Method]
	if !ok {
		writeRPC(w, id, nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)})
		return
	}

	result, err := handler(r.Context(), req.Params)
	if req.isNotification() {
		if err != nil {
			s.logger.Warn("RPC notification failed", "method", req.Method, "error", err)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeRPC(w, id, nil, s.rpcErrorFor(req.Method, err))
		return
	}
	writeRPC(w, id, result, nil)
}

// rpcErrorFor maps domain errors onto JSON-RPC codes
func (s *Server) rpcErrorFor(method string, err error) *rpcError {
	switch {
	case errors.Is(err, generator.ErrFallbackRefused):
		return &rpcError{Code: codeFallbackRefused, Message: err.Error()}
	case errors.Is(err, generator.ErrGenerationInfeasible):
		return &rpcError{Code: codeGenerationInfeasible, Message: err.Error()}
	case api.IsInvalidInput(err):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	case api.IsNotFound(err), api.IsConflict(err):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &rpcError{Code: codeInternalError, Message: "request timed out"}
	default:
		s.logger.Error("RPC method failed", "method", method, "error", err)
		return &rpcError{Code: codeInternalError, Message: "internal error", Data: err.Error()}
	}
}

func writeRPC(w http.ResponseWriter, id json.RawMessage, result any, rpcErr *rpcError) {
	respondJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
		Error:   rpcErr,
	})
}

// decodeParams strictly decodes the params object into T
func decodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, fmt.Errorf("%w: params are required", api.ErrInvalidParams)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %v", api.ErrInvalidParams, err)
	}
	return v, nil
}

// Method handlers

func (s *Server) rpcGenerate(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decodeParams[api.GenerateParams](raw)
	if err != nil {
		return nil, err
	}
	if err := api.Check(p); err != nil {
		return nil, err
	}
	return s.svc.Generate(ctx, p.Request())
}

func (s *Server) rpcOptimize(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decodeParams[power.Request](raw)
	if err != nil {
		return nil, err
	}
	return s.svc.Optimize(ctx, p)
}

func (s *Server) rpcValidate(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decodeParams[api.ValidateParams](raw)
	if err != nil {
		return nil, err
	}
	if err := api.Check(p); err != nil {
		return nil, err
	}
	return s.svc.Validate(ctx, p.Design(), p.Grid, p.Constraints)
}

func (s *Server) rpcEvaluate(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decodeParams[api.EvaluateParams](raw)
	if err != nil {
		return nil, err
	}
	if err := api.Check(p); err != nil {
		return nil, err
	}
	return s.svc.Evaluate(ctx, api.ValidateParams{Tasks: p.Tasks}.Design(), p.Grid)
}

func (s *Server) rpcExport(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decodeParams[api.ExportParams](raw)
	if err != nil {
		return nil, err
	}
	return api.Export(ctx, s.svc, p)
}

func (s *Server) rpcStudyGenerate(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decodeParams[api.StudyGenerateParams](raw)
	if err != nil {
		return nil, err
	}
	return api.GenerateFromStudy(ctx, s.svc, s.catalog, p)
}
