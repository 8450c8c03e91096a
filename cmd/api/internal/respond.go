package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fazecat/quantterm/Internal/handlers"
)

func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, map[string]string{"error": message})
}

// StatusFor maps dashboard errors onto HTTP status codes. Anything else is
// treated as an upstream data failure.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, handlers.ErrUnknownMarket), errors.Is(err, handlers.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, handlers.ErrUnsupportedCurrency), errors.Is(err, handlers.ErrInvalidCapital):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
