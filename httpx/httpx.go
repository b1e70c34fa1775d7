// Package httpx holds the JSON response helpers shared by every handler.
// Failures use one envelope, {message, kind}, so the error shape is identical
// across all entity types.
package httpx

import (
	"encoding/json"
	"net/http"
)

// FailureResponse is the uniform error body.
type FailureResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteFailure writes the uniform failure envelope.
func WriteFailure(w http.ResponseWriter, status int, kind, message string) error {
	return WriteJSON(w, status, FailureResponse{Message: message, Kind: kind})
}

// WriteUnauthorized writes a 401 response.
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	return WriteFailure(w, http.StatusUnauthorized, "unauthorized", message)
}
