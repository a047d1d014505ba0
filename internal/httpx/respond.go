package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object from the body. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid json: %v", err)
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindOrderNotFound:     http.StatusNotFound,
	apperr.KindInvalidStatus:     http.StatusNotFound,
	apperr.KindProductNotFound:   http.StatusBadRequest,
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindInsufficientStock: http.StatusBadRequest,
	apperr.KindDuplicateName:     http.StatusBadRequest,
	apperr.KindStatusInUse:       http.StatusBadRequest,
	apperr.KindInvalidTransition: http.StatusBadRequest,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindUnauthorized:      http.StatusUnauthorized,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindConfiguration:     http.StatusInternalServerError,
	apperr.KindInternal:          http.StatusInternalServerError,
}

func StatusFor(kind apperr.Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteError renders err as the JSON error envelope. Server-side kinds are
// logged with their cause and answered with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err)
	}
	status := StatusFor(ae.Kind)
	reqID := middleware.GetReqID(r.Context())

	message := ae.Message
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", ae.Kind.Code()),
			zap.Error(err))
		if ae.Kind == apperr.KindInternal {
			message = "internal server error"
		}
	}
	if ae.Kind == apperr.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	payload := map[string]any{
		"error":   ae.Kind.Code(),
		"message": message,
		"status":  status,
	}
	if reqID != "" {
		payload["request_id"] = reqID
	}
	if len(ae.Details) > 0 && status < http.StatusInternalServerError {
		payload["details"] = ae.Details
	}
	writeJSON(w, status, payload)
}
