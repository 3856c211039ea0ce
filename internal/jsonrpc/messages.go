package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the JSON-RPC version this package speaks.
const ProtocolVersion = "2.0"

// AnyMessage is the raw shape of a JSON-RPC message before it has been
// classified as a request, notification, or response. The transport
// multiplexer decodes into this type first, then dispatches on Type().
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request is a JSON-RPC request (ID present) or notification (ID absent).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response is a JSON-RPC response: exactly one of Result/Error is set.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Error is the JSON-RPC 2.0 error object, extended with a structured
// data.kind/data.details payload per spec §6.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the gateway's structured error metadata.
type ErrorData struct {
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

// NewResultResponse marshals result into a success Response.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: raw, ID: id}, nil
}

// NewErrorResponse builds an error Response.
func NewErrorResponse(id *RequestID, code ErrorCode, message, kind string, details any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    &ErrorData{Kind: kind, Details: details},
		},
		ID: id,
	}
}

// UnmarshalJSON enforces JSON-RPC 2.0 structural rules while decoding.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type rawMessage struct {
		JSONRPCVersion string          `json:"jsonrpc"`
		Method         string          `json:"method,omitempty"`
		Params         json.RawMessage `json:"params,omitempty"`
		Result         json.RawMessage `json:"result,omitempty"`
		Error          *Error          `json:"error,omitempty"`
		ID             *RequestID      `json:"id,omitempty"`
	}
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("jsonrpc: invalid JSON: %w", err)
	}
	if raw.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("jsonrpc: expected version %q, got %q", ProtocolVersion, raw.JSONRPCVersion)
	}
	hasMethod := raw.Method != ""
	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil
	if hasMethod {
		if hasResult || hasError {
			return fmt.Errorf("jsonrpc: request cannot carry result or error")
		}
	} else {
		if hasResult == hasError {
			return fmt.Errorf("jsonrpc: response must carry exactly one of result or error")
		}
	}
	m.JSONRPCVersion, m.Method, m.Params = raw.JSONRPCVersion, raw.Method, raw.Params
	m.Result, m.Error, m.ID = raw.Result, raw.Error, raw.ID
	return nil
}

// Type classifies the message as "request", "notification", or "response".
func (m *AnyMessage) Type() string {
	if m.Method != "" {
		if m.ID == nil {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// AsRequest projects the message as a Request, or nil if it's a response.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}
