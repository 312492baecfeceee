package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/recon/internal/apperrors"
)

type successEnvelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Data: data})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeSuccess(w, status, map[string]string{"message": msg})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}

func mapDomainError(err error) (int, string, string) {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest, string(apperrors.CodeInvalidInput), err.Error()
	case apperrors.CodeNotFound, apperrors.CodeModuleNotFound:
		return http.StatusNotFound, string(apperrors.CodeOf(err)), err.Error()
	case apperrors.CodeDuplicateModule, apperrors.CodeInvalidConfig:
		return http.StatusConflict, string(apperrors.CodeOf(err)), err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "upstream call timed out"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
}
