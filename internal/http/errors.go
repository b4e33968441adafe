// Package httpapi exposes the HTTP API layer of the gateway.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the {status:"error"} body used for locally rejected
// requests; it has the same discriminant as the operation envelopes.
type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope with the given status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorEnvelope{Status: "error", Message: message})
}
