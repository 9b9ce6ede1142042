package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"topictree/internal/auth"
	"topictree/internal/export"
	"topictree/internal/gitrepo"
	"topictree/internal/resolver"
	"topictree/internal/tagger"
	"topictree/internal/tree"
	"topictree/internal/treestore"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, treestore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Tree not found", nil
	case errors.Is(err, gitrepo.ErrRevisionNotFound):
		return http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil
	case errors.Is(err, tagger.ErrEmptyComment):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment is required", nil
	case errors.Is(err, tree.ErrDegenerateLabel):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, resolver.ErrGeneratorFailure):
		return http.StatusBadGateway, "GENERATOR_FAILED", "Topic generation failed", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil
	case errors.Is(err, auth.ErrMissingKey), errors.Is(err, auth.ErrInvalidKey):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
