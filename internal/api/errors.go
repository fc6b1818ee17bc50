package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/example/storefront-orders/internal/command"
)

// statusFor maps an error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case command.CodeUnauthenticated:
		return http.StatusUnauthorized
	case command.CodeForbidden:
		return http.StatusForbidden
	case command.CodeEmptyCart, command.CodeInvalidStatus:
		return http.StatusConflict
	case command.CodeOrderCreate, command.CodeOrderItems, command.CodeFetch:
		return http.StatusBadGateway
	case command.CodeTimeout:
		return http.StatusGatewayTimeout
	case command.CodeNotFound:
		return http.StatusNotFound
	case command.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError writes err as {"error": code, "message": text}
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := command.Classify(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		log.Printf("[API] %s %s failed (%s): %v", r.Method, r.URL.Path, code, err)
	}
	respondJSON(w, status, errorBody{Error: code, Message: message})
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: command.CodeInvalidRequest, Message: message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
