// Package handler exposes the HTTP surface of the storefront core.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
)

type errorBody struct {
	Kind     apperr.Kind             `json:"kind"`
	Title    string                  `json:"title"`
	Fields   []apperr.FieldViolation `json:"fields,omitempty"`
	Recovery string                  `json:"recovery,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// RespondJSON writes payload as a JSON response.
func RespondJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"kind":"internal","title":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Warn().Err(err).Msg("handler: failed to write JSON response")
	}
}

// RespondError maps a service error onto the error envelope: a
// machine-readable kind, a human title and, for validation, the full
// list of per-field violations.
func RespondError(w http.ResponseWriter, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		log.Error().Err(err).Msg("handler: internal error")
	}
	RespondJSON(w, statusFor(e.Kind), errorEnvelope{Error: errorBody{
		Kind:     e.Kind,
		Title:    e.Title,
		Fields:   e.Fields,
		Recovery: e.Recovery,
	}})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindBusiness:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body", apperr.FieldViolation{Field: "body", Reason: "body must be valid JSON"})
	}
	return nil
}

// decodeBodyOptional tolerates an absent body for operations whose
// input is entirely optional.
func decodeBodyOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body", apperr.FieldViolation{Field: "body", Reason: "body must be valid JSON"})
	}
	return nil
}
