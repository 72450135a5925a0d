package gateway

import (
	"encoding/json"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// FrameType discriminates the three frame tags of the duplex protocol.
type FrameType string

const (
	FrameRequest  FrameType = "req"
	FrameResponse FrameType = "resp"
	FrameEvent    FrameType = "event"
)

// Request is a client → server call, carried inside a Frame with
// Type == FrameRequest.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is a server → client reply, carried inside a Frame with
// Type == FrameResponse. Exactly one of Result/Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Event is an unsolicited server → client push, carried inside a Frame
// with Type == FrameEvent.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Error is the machine-readable shape of a failed Response.
type Error struct {
	Code    coretypes.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code coretypes.ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func errResponse(id string, err *Error) Response {
	return Response{ID: id, Error: err}
}

func okResponse(id string, result any) Response {
	raw, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return errResponse(id, newError(coretypes.ErrInternal, marshalErr.Error()))
	}
	return Response{ID: id, Result: raw}
}
