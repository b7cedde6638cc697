package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/generic"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch generic.KindOf(err) {
	case generic.KindNotFound, generic.KindEmptyResult:
		return http.StatusNotFound
	case generic.KindConflict:
		return http.StatusConflict
	case generic.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders an error returned by billing.Service or a store.
// Client errors expose their message; anything else is logged and hidden.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.Error(err),
			zap.Stringer("kind", generic.KindOf(err)),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())))
		writeError(w, status, message, nil)
		return
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var invalid *generic.InvalidInputError
	if errors.As(err, &invalid) {
		resp.Field = invalid.Field
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decode reads a JSON body and validates it. On failure the response has
// already been written and ok is false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	details := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		details[i] = describeFieldError(fe)
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Details: strings.Join(details, "; "),
		Field:   jsonFieldName(fieldErrs[0]),
	})
}

func describeFieldError(fe validator.FieldError) string {
	field := jsonFieldName(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be in YYYY-MM-DD form"
	case "email":
		return field + " must be a valid email"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// jsonFieldName relies on the validator's tag name func returning json names.
func jsonFieldName(fe validator.FieldError) string {
	if ns := fe.Namespace(); ns != "" {
		if i := strings.Index(ns, "."); i >= 0 {
			return ns[i+1:]
		}
	}
	return fe.Field()
}
