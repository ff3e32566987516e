package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/quizgen/quizgen-api/internal/api/shared"
	"github.com/quizgen/quizgen-api/internal/domain"
	"github.com/quizgen/quizgen-api/internal/importer"
	"github.com/quizgen/quizgen-api/internal/scheduler"
	"github.com/quizgen/quizgen-api/internal/service"
	"github.com/quizgen/quizgen-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes so handlers
// never leak error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, importer.ErrTaskNotFound),
		errors.Is(err, scheduler.ErrCredentialNotFound),
		errors.Is(err, service.ErrNotReady):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, importer.ErrInvalidMode),
		errors.Is(err, scheduler.ErrInvalidCredential),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, scheduler.ErrQueueFull),
		errors.Is(err, importer.ErrRegistryFull):
		return http.StatusTooManyRequests

	case errors.Is(err, scheduler.ErrQueueClosed),
		errors.Is(err, importer.ErrOrchestratorDown):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrQuestionNotFound):
		return "Question not found"
	case errors.Is(err, importer.ErrTaskNotFound):
		return "Import task not found"
	case errors.Is(err, scheduler.ErrCredentialNotFound):
		return "Credential not found"
	case errors.Is(err, service.ErrNotReady):
		return "Explanation not generated yet"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"
	case errors.Is(err, domain.ErrEmptyContent):
		return "Content is required"
	case errors.Is(err, importer.ErrInvalidMode):
		return "Mode must be add or replace"
	case errors.Is(err, scheduler.ErrInvalidCredential):
		// Credential validation messages name fields, never key material.
		return strings.TrimPrefix(err.Error(), scheduler.ErrInvalidCredential.Error()+": ")
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, scheduler.ErrQueueFull):
		return "Too many pending requests, try again later"
	case errors.Is(err, importer.ErrRegistryFull):
		return "Too many imports in progress, try again later"
	case errors.Is(err, scheduler.ErrQueueClosed),
		errors.Is(err, importer.ErrOrchestratorDown):
		return "Service is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err. A
// non-empty defaultMsg replaces the generic message of 500 responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}

// SanitizeValidationError turns validator errors into "Invalid <field>: <reason>".
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid":
		return "must be a UUID"
	case "url":
		return "must be a URL"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
