package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// ErrorType represents different types of errors
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeConflict         ErrorType = "conflict"
	ErrorTypeInsufficientData ErrorType = "insufficient_data"
	ErrorTypeDatabase         ErrorType = "database"
	ErrorTypeExternal         ErrorType = "external_api"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeTimeout          ErrorType = "timeout"
)

// AppError represents an application error with additional context
type AppError struct {
	Type     ErrorType
	Message  string
	Code     string
	Internal error
	Context  map[string]interface{}
	Source   string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the internal error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return errors.Is(e.Internal, target)
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// LogFields returns structured logging fields
func (e *AppError) LogFields() []interface{} {
	fields := []interface{}{
		"error_type", e.Type,
		"error_code", e.Code,
		"error_message", e.Message,
		"source", e.Source,
	}

	if e.Internal != nil {
		fields = append(fields, "internal_error", e.Internal.Error())
	}

	for k, v := range e.Context {
		fields = append(fields, k, v)
	}

	return fields
}

// New creates a new AppError
func New(errorType ErrorType, code, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", file, line)

	return &AppError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Source:  source,
		Context: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error into AppError
func Wrap(err error, errorType ErrorType, code, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", file, line)

	return &AppError{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Internal: err,
		Source:   source,
		Context:  make(map[string]interface{}),
	}
}

// Handler provides error handling strategies
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new error handler
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle processes an error according to its type
func (h *Handler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		h.handleAppError(ctx, appErr)
	} else {
		h.handleGenericError(ctx, err)
	}
}

func (h *Handler) handleAppError(ctx context.Context, err *AppError) {
	switch err.Type {
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeConflict, ErrorTypeInsufficientData:
		h.logger.WarnContext(ctx, "Request rejected", err.LogFields()...)
	case ErrorTypeDatabase, ErrorTypeExternal, ErrorTypeInternal, ErrorTypeTimeout:
		h.logger.ErrorContext(ctx, "Critical error", err.LogFields()...)
	default:
		h.logger.ErrorContext(ctx, "Unknown error type", err.LogFields()...)
	}
}

func (h *Handler) handleGenericError(ctx context.Context, err error) {
	h.logger.ErrorContext(ctx, "Unhandled error", "error", err.Error())
}

// LogAndReturn logs an error and returns it
func (h *Handler) LogAndReturn(ctx context.Context, err error) error {
	h.Handle(ctx, err)
	return err
}

// Error codes used by the review engine
const (
	CodeValidation       = "VALIDATION"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyReviewed  = "ALREADY_REVIEWED"
	CodeInvalidState     = "INVALID_STATE"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeUpstreamFormat   = "UPSTREAM_FORMAT"
	CodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	CodeDatabase         = "DB_ERROR"
)

// NewValidationError reports missing or out-of-range input.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, CodeValidation, message)
}

// NewNotFoundError reports an entity that is absent or not owned by the caller.
func NewNotFoundError(entity string) *AppError {
	return New(ErrorTypeNotFound, CodeNotFound, fmt.Sprintf("%s not found", entity)).
		WithContext("entity", entity)
}

// NewAlreadyReviewedError reports a duplicate review for a program week.
func NewAlreadyReviewedError(programID uint, week int) *AppError {
	return New(ErrorTypeConflict, CodeAlreadyReviewed,
		fmt.Sprintf("review already exists for program %d week %d", programID, week)).
		WithContext("program_id", programID).
		WithContext("review_week", week)
}

// NewInvalidStateError reports a state machine guard violation.
func NewInvalidStateError(message string) *AppError {
	return New(ErrorTypeConflict, CodeInvalidState, message)
}

// NewInsufficientDataError reports that too few logged days exist for analysis.
func NewInsufficientDataError(days, minimum int) *AppError {
	return New(ErrorTypeInsufficientData, CodeInsufficientData,
		fmt.Sprintf("only %d logged days, need at least %d", days, minimum)).
		WithContext("days", days).
		WithContext("minimum", minimum)
}

// NewUpstreamFormatError reports an unparseable AI response.
func NewUpstreamFormatError(err error) *AppError {
	return Wrap(err, ErrorTypeExternal, CodeUpstreamFormat, "AI response contains no parseable JSON object")
}

// NewUpstreamTimeoutError reports an AI reasoning call that hit its deadline.
func NewUpstreamTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, CodeUpstreamTimeout, fmt.Sprintf("%s operation timed out", operation)).
		WithContext("operation", operation)
}

// NewDatabaseError wraps a persistence failure.
func NewDatabaseError(err error) *AppError {
	return Wrap(err, ErrorTypeDatabase, CodeDatabase, "Database operation failed")
}

// NewExternalAPIError wraps an upstream API failure.
func NewExternalAPIError(err error, api string) *AppError {
	return Wrap(err, ErrorTypeExternal, "EXTERNAL_API", fmt.Sprintf("%s API error", api)).
		WithContext("api", api)
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsAlreadyReviewed reports whether err is a duplicate-review error.
func IsAlreadyReviewed(err error) bool { return HasCode(err, CodeAlreadyReviewed) }

// IsInvalidState reports whether err is a state machine guard error.
func IsInvalidState(err error) bool { return HasCode(err, CodeInvalidState) }

// IsInsufficientData reports whether err is a data-sufficiency gate error.
func IsInsufficientData(err error) bool { return HasCode(err, CodeInsufficientData) }

// IsValidation reports whether err is an input validation error.
func IsValidation(err error) bool { return HasCode(err, CodeValidation) }
