package ops

import "github.com/wrenholt/libris/internal/apperr"

// Request is a single content operation to perform against the upstream API.
// Offset, Count, Sort, and Filters apply to list only.
type Request struct {
	Operation Operation
	Entity    Entity
	ID        int
	Fields    map[string]any

	Offset  int
	Count   int
	Sort    string
	Filters map[string]string
}

// ErrorBody is the failure half of the envelope.
type ErrorBody struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is the uniform response shape returned to the tool caller.
// Success is always explicit; it is never inferred from payload shape.
type Envelope struct {
	Operation string         `json:"operation"`
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     *ErrorBody     `json:"error,omitempty"`
}

// Ok builds a success envelope.
func Ok(operation string, data any, metadata map[string]any) Envelope {
	return Envelope{Operation: operation, Success: true, Data: data, Metadata: metadata}
}

// Fail converts any error into a failure envelope. Untyped errors are
// classified as transport failures so nothing crosses the boundary raw.
func Fail(operation string, err error) Envelope {
	e := apperr.As(err)
	return Envelope{
		Operation: operation,
		Success:   false,
		Error:     &ErrorBody{Message: e.Error(), Details: e.Details()},
	}
}
