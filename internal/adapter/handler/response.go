package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/core/service"
)

func init() {
	// Prices and values are emitted as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func ok(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func created(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeError maps domain and service errors to status codes. Anything else
// is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *domain.Error
	switch {
	case errors.As(err, &domainErr):
		status := http.StatusInternalServerError
		switch domainErr.Kind {
		case domain.KindValidation:
			status = http.StatusBadRequest
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindInsufficientStock:
			status = http.StatusConflict
		}
		fail(w, status, domainErr.Error())
	case errors.Is(err, service.ErrDuplicateRequest):
		fail(w, http.StatusConflict, "duplicate request")
	case errors.Is(err, context.Canceled):
		loggerFrom(r.Context()).Info("request cancelled", zap.String("path", r.URL.Path))
		fail(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		loggerFrom(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		fail(w, http.StatusInternalServerError, "internal error")
	}
}
