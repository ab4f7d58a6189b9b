package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing key.
	RedisNotFoundMessage = "not found"
	// WorkerOutputMessage describes a worker returning off-schema output.
	WorkerOutputMessage = "worker returned unparseable output"
	// ExternalServiceMessage describes an unreachable backend service.
	ExternalServiceMessage = "external service unavailable"
	// TicketIDMissingMessage describes a creation call that yielded no identifier.
	TicketIDMissingMessage = "ticket created without an identifier"
)

// Sentinels for errors.Is checks across the support graph. Each failure kind
// has a distinct recovery path (see the node implementations), so callers
// branch on these rather than on message text.
var (
	// ErrWorkerOutput marks a recoverable model-output parse failure; the
	// worker layer retries it and the node degrades to an apology on exhaustion.
	ErrWorkerOutput = errors.New("worker output parse error")
	// ErrExternalService marks an unreachable ticket store or search backend.
	ErrExternalService = errors.New("external service error")
	// ErrTicketIDMissing marks a nominally successful creation with no usable id.
	ErrTicketIDMissing = errors.New("ticket id missing")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapWorkerOutput tags a parse failure so the worker layer can retry it.
func WrapWorkerOutput(err error) *AppError {
	if err == nil {
		return nil
	}
	return New(fmt.Errorf("%w: %w", ErrWorkerOutput, err), http.StatusBadGateway, WorkerOutputMessage)
}

// WrapExternalService tags a backend failure naming the service involved.
func WrapExternalService(service string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(fmt.Errorf("%w: %s: %w", ErrExternalService, service, err), http.StatusBadGateway, ExternalServiceMessage)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
