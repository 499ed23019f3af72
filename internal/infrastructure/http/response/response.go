package response

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Message sends an error response with a caller-chosen message. Never pass storage errors here.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{
		Error:   errorType(status),
		Message: message,
	})
}

// Error sends err's text as the message; only for errors that are safe to show the client
func Error(w http.ResponseWriter, status int, err error) {
	Message(w, status, err.Error())
}

func errorType(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_server_error"
	}
	return "error"
}
