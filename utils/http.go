package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// Response is the JSON envelope every endpoint answers with
type Response struct {
	Success    bool                   `json:"success"`
	Data       interface{}            `json:"data,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Errors     map[string]string      `json:"errors,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RetryAfter int                    `json:"retryAfter,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a success envelope
func WriteSuccess(w http.ResponseWriter, status int, data interface{}, message string) error {
	return WriteJSON(w, status, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// WriteOK writes a 200 OK success envelope
func WriteOK(w http.ResponseWriter, data interface{}, message string) error {
	return WriteSuccess(w, http.StatusOK, data, message)
}

// WriteError writes a failure envelope
func WriteError(w http.ResponseWriter, status int, code, message string) error {
	return WriteJSON(w, status, Response{
		Success: false,
		Code:    code,
		Message: message,
	})
}

// WriteBadRequest writes a 400 response with per-field messages
func WriteBadRequest(w http.ResponseWriter, code, message string, fields map[string]string) error {
	return WriteJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Code:    code,
		Message: message,
		Errors:  fields,
	})
}

// WriteUnauthorized writes a 401 response
func WriteUnauthorized(w http.ResponseWriter, code, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	return WriteError(w, http.StatusUnauthorized, code, message)
}

// WriteForbidden writes a 403 response
func WriteForbidden(w http.ResponseWriter, code, message string, details map[string]interface{}) error {
	if message == "" {
		message = "Access forbidden"
	}
	return WriteJSON(w, http.StatusForbidden, Response{
		Success: false,
		Code:    code,
		Message: message,
		Details: details,
	})
}

// WriteNotFound writes a 404 response
func WriteNotFound(w http.ResponseWriter, code, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return WriteError(w, http.StatusNotFound, code, message)
}

// WriteTooManyRequests writes a 429 response and sets Retry-After
func WriteTooManyRequests(w http.ResponseWriter, code, message string, retryAfter int) error {
	if message == "" {
		message = "Rate limit exceeded"
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}
	return WriteJSON(w, http.StatusTooManyRequests, Response{
		Success:    false,
		Code:       code,
		Message:    message,
		RetryAfter: retryAfter,
	})
}

// WriteInternalServerError writes a 500 response. detail is the underlying
// error text and should be empty in production.
func WriteInternalServerError(w http.ResponseWriter, code, message, detail string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteJSON(w, http.StatusInternalServerError, Response{
		Success: false,
		Code:    code,
		Message: message,
		Error:   detail,
	})
}

// DecodeJSON decodes a request body into v. An empty body leaves v untouched
// and returns nil.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
