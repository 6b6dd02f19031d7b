// Package dto holds the JSON shapes of the HTTP API.
package dto

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// List wraps a collection together with its length.
func List(data any, count int) Envelope {
	return Envelope{Success: true, Data: data, Count: &count}
}

// ErrorBody is the failure envelope. Stack is only filled in development.
type ErrorBody struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
	Stack   string         `json:"stack,omitempty"`
}
