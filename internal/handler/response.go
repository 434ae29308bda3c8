package handler

// Every JSON error from the API has the same shape:
//
//	{"error": "not_found", "message": "snippet not found with id abc123"}
//
// The kind comes from the apperror sentinel; the message is the AppError's
// client-safe text. Errors that are not AppErrors become a generic 500.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/compiler-playground/internal/apperror"
)

// maxJSONBody bounds request bodies. Source code is limited separately
// (and more tightly) by the execution config.
const maxJSONBody = 1 << 20

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusOf maps an error kind to its HTTP status and machine-readable name.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrCompile):
		return http.StatusBadRequest, "compile_error"
	case errors.Is(err, apperror.ErrTransportFault):
		return http.StatusBadRequest, "transport_error"
	case errors.Is(err, apperror.ErrIO), errors.Is(err, apperror.ErrSpawn), errors.Is(err, apperror.ErrStreamFault):
		return http.StatusInternalServerError, "execution_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Raw errors may carry SQL or file paths; never echo them.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: apperror.Message(err),
		})
		return
	}

	status, kind := statusOf(err)
	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a single JSON value from the request body into dst.
// Malformed input is an ErrValidation so writeError turns it into a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must be %d bytes or less", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is empty")
		default:
			return apperror.ValidationFailed("body", "invalid JSON body")
		}
	}
	return nil
}
