// Package httpx provides JSON response helpers shared by the API handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// MessageBody is the error envelope returned by every API endpoint.
type MessageBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Message sends {"message": msg} with status.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, MessageBody{Message: msg})
}

// FieldErrors sends a 422 carrying per-field validation messages.
func FieldErrors(w http.ResponseWriter, msg string, fields map[string]string) {
	JSON(w, http.StatusUnprocessableEntity, MessageBody{Message: msg, Fields: fields})
}

// DecodeJSON decodes a JSON request body into target, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
